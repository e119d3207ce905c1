package similarity

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

// BedrockEmbedder calls a hosted embedding model via Bedrock Runtime,
// using the Amazon Titan request/response shape (inputText/embedding). A pluggable, non-default alternative to HashEmbedder
// for deployments with AWS access.
type BedrockEmbedder struct {
	client  *bedrockruntime.Client
	modelID string
	dim     int
}

func NewBedrockEmbedder(client *bedrockruntime.Client, modelID string, dim int) *BedrockEmbedder {
	return &BedrockEmbedder{client: client, modelID: modelID, dim: dim}
}

func (b *BedrockEmbedder) Dim() int { return b.dim }

type titanEmbedRequest struct {
	InputText string `json:"inputText"`
}

type titanEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

func (b *BedrockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	payload, err := json.Marshal(titanEmbedRequest{InputText: text})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	out, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(b.modelID),
		ContentType: aws.String("application/json"),
		Body:        payload,
	})
	if err != nil {
		return nil, fmt.Errorf("invoke bedrock model: %w", err)
	}

	var resp titanEmbedResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}

	return resp.Embedding, nil
}
