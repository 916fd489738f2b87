// Package storage defines persistence for documents and chunks.
package storage

import (
	"context"

	"github.com/hyperjump/kotae/internal/models"
)

// Storage persists documents and their chunks. Implementations must support
// concurrent readers overlapping with writers; a reader may observe pre- or
// post-ingest state but never a partially written chunk.
type Storage interface {
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	DeleteDocument(ctx context.Context, id string) error

	BatchCreateChunks(ctx context.Context, chunks []*models.DocumentChunk) error
	GetChunk(ctx context.Context, id string) (*models.DocumentChunk, error)
	GetChunksByDocumentID(ctx context.Context, docID string) ([]*models.DocumentChunk, error)
	DeleteChunksByDocumentID(ctx context.Context, docID string) error

	CountDocuments(ctx context.Context) (int64, error)
	CountChunks(ctx context.Context) (int64, error)

	Ping(ctx context.Context) error
	Close() error
}
