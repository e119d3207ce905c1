// Package similarity implements SimilarityIndex: a Postgres-backed
// embeddings table with idempotent per-incident writes and app-side
// cosine similarity search, following the batched embed-then-store
// pattern of the retrieval-augmented indexer in the example pack
// (rag.Indexer/rag.Embedder) adapted from a periodic document indexer to
// a per-incident, on-demand embed call.
package similarity

import "context"

// Embedder turns text into a fixed-dimension vector. HashEmbedder is the
// deterministic default; BedrockEmbedder is a pluggable alternative for
// deployments with access to a hosted embedding model.
type Embedder interface {
	Dim() int
	Embed(ctx context.Context, text string) ([]float32, error)
}
