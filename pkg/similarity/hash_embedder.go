package similarity

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
)

// HashEmbedder is the default, dependency-free Embedder: it derives a
// unit vector deterministically from the SHA-256 digest of the input
// text, repeated/truncated to fill dim components. It produces no
// meaningful semantic similarity signal; it exists so the pipeline is
// runnable end-to-end without a hosted embedding model, and so
// EmbedAndStore's idempotence can be tested without network access.
type HashEmbedder struct {
	dim int
}

func NewHashEmbedder(dim int) *HashEmbedder {
	return &HashEmbedder{dim: dim}
}

func (h *HashEmbedder) Dim() int { return h.dim }

func (h *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	digest := sha256.Sum256([]byte(text))

	vec := make([]float32, h.dim)
	for i := 0; i < h.dim; i++ {
		b := digest[i%len(digest):]
		if len(b) < 4 {
			b = append(append([]byte{}, b...), digest[:4-len(b)]...)
		}
		u := binary.BigEndian.Uint32(b[:4])
		vec[i] = float32(u%2000)/1000.0 - 1.0
	}

	normalize(vec)
	return vec, nil
}

func normalize(vec []float32) {
	var sumSq float64
	for _, v := range vec {
		sumSq += float64(v) * float64(v)
	}
	if sumSq == 0 {
		return
	}
	norm := float32(math.Sqrt(sumSq))
	for i := range vec {
		vec[i] /= norm
	}
}
