// Package retriever provides chunk retrieval over the knowledge store.
package retriever

import "context"

// Result is a retrieved chunk with its originating document source and a
// relevance score in [0, 1], higher is more relevant.
type Result struct {
	ChunkID string  `json:"chunk_id"`
	Text    string  `json:"text"`
	Source  string  `json:"source"`
	Score   float64 `json:"score"`
}

// Tool retrieves chunks relevant to a query. Results are ordered by
// descending score; fewer than k results are returned when the store holds
// fewer matching chunks. An empty store yields an empty slice, not an error.
type Tool interface {
	Retrieve(ctx context.Context, query string, k int) ([]Result, error)
	Healthy(ctx context.Context) bool
}
