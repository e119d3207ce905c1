package similarity

import (
	"context"
	"fmt"
	"math"
	"sort"

	"riverwatch.dev/agent/internal/pgdb"
	"riverwatch.dev/agent/pkg/model"
)

// Index is a Postgres-backed embeddings table, mirroring the
// JSONB-storage idiom of db/repository/postgres.go with a plain float8[]
// vector column in place of pgvector, since no vector extension or
// client adapter is available here.
type Index struct {
	db       *pgdb.DB
	embedder Embedder
}

func NewIndex(db *pgdb.DB, embedder Embedder) *Index {
	return &Index{db: db, embedder: embedder}
}

func (idx *Index) EnsureSchema(ctx context.Context) error {
	return idx.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS incident_embeddings (
			incident_id TEXT PRIMARY KEY,
			run_id      TEXT NOT NULL,
			summary     TEXT NOT NULL,
			embedding   DOUBLE PRECISION[] NOT NULL
		)
	`)
}

// EmbedAndStore is idempotent by incident_id: if a row already exists for
// this incident, no embedding call is made and no write occurs.
func (idx *Index) EmbedAndStore(ctx context.Context, incident model.Incident) error {
	var exists bool
	row := idx.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM incident_embeddings WHERE incident_id = $1)`, incident.IncidentID)
	if err := row.Scan(&exists); err != nil {
		return fmt.Errorf("check existing embedding: %w", err)
	}
	if exists {
		return nil
	}

	vec, err := idx.embedder.Embed(ctx, incident.SummaryText)
	if err != nil {
		return fmt.Errorf("embed summary: %w", err)
	}

	return idx.db.Exec(ctx, `
		INSERT INTO incident_embeddings (incident_id, run_id, summary, embedding)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (incident_id) DO NOTHING
	`, incident.IncidentID, incident.RunID, incident.SummaryText, float32SliceToFloat64(vec))
}

// Query embeds the query text and returns the k nearest incidents by
// cosine similarity, filtering out matches below minScore. Distance is
// computed application-side: no vector extension is assumed to be
// available in the target Postgres instance.
func (idx *Index) Query(ctx context.Context, text string, k int, minScore float64) ([]model.SimilarityMatch, error) {
	queryVec, err := idx.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	rows, err := idx.db.Query(ctx, `SELECT incident_id, embedding FROM incident_embeddings`)
	if err != nil {
		return nil, fmt.Errorf("scan candidate embeddings: %w", err)
	}
	defer rows.Close()

	matches := make([]model.SimilarityMatch, 0)
	for rows.Next() {
		var incidentID string
		var embedding []float64
		if err := rows.Scan(&incidentID, &embedding); err != nil {
			return nil, fmt.Errorf("scan embedding row: %w", err)
		}
		score := cosineSimilarity(queryVec, embedding)
		if score >= minScore {
			matches = append(matches, model.SimilarityMatch{IncidentID: incidentID, Score: score})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func cosineSimilarity(a []float32, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		av := float64(a[i])
		dot += av * b[i]
		normA += av * av
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func float32SliceToFloat64(in []float32) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = float64(v)
	}
	return out
}
