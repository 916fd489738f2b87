// Package embedding provides the text embedding capability and caching.
package embedding

import "context"

// Embedder produces fixed-length vector embeddings for text. Embeddings must
// be deterministic for identical input and unit-normalized so that inner
// product equals cosine similarity.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}
