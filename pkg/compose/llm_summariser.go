package compose

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"riverwatch.dev/agent/pkg/model"
)

// LLMSummariser is a pluggable Summariser alternative to the default
// template, delegating summary composition to a hosted model. Never
// wired by default: the deterministic template is required for
// content_hash-independent, reproducible run logs, and an LLM call's
// latency and failure modes are unsuited to the per-cluster hot path. An
// operator may opt into this for narrative-quality summaries where
// determinism does not matter (e.g. a dashboard-only rendering).
type LLMSummariser struct {
	client anthropic.Client
	model  anthropic.Model
}

func NewLLMSummariser(apiKey string, model anthropic.Model) *LLMSummariser {
	return &LLMSummariser{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

func (s *LLMSummariser) Summarise(c model.Cluster, rain model.RainfallSummary, permitCount int) string {
	fallback := DeterministicSummariser{}.Summarise(c, rain, permitCount)

	prompt := fmt.Sprintf(
		"Summarise this environmental incident in one paragraph under 600 characters. "+
			"Source kind: %s. Stations: %v. Rainfall category: %s. Nearby permits: %d.",
		c.SourceKind, c.StationIDs(), rain.Category, permitCount,
	)

	msg, err := s.client.Messages.New(context.Background(), anthropic.MessageNewParams{
		Model:     s.model,
		MaxTokens: 300,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil || len(msg.Content) == 0 {
		return fallback
	}

	text := msg.Content[0].Text
	if text == "" {
		return fallback
	}
	if len(text) > maxSummaryLen {
		text = text[:maxSummaryLen]
	}
	return text
}
