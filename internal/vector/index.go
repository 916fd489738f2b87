// Package vector provides vector storage and similarity search over
// unit-normalized embeddings.
package vector

import "context"

// Index stores embeddings keyed by chunk ID and answers top-k queries.
type Index interface {
	Add(ctx context.Context, ids []string, vectors [][]float32) error
	// Search returns up to k hits ordered by similarity descending.
	Search(ctx context.Context, query []float32, k int) ([]*Result, error)
	Remove(ctx context.Context, ids []string) error
	Save(path string) error
	Load(path string) error
	Size() int
	Close() error
}

// Result is a single similarity hit. Score is cosine similarity on
// unit-normalized vectors, higher is closer.
type Result struct {
	ID    string
	Score float64
}
