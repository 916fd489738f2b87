// Package ingest turns source text and files into stored, retrievable chunks.
package ingest

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/chunker"
	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/retriever"
)

// ErrEmptyText rejects ingestion of content with nothing to chunk.
var ErrEmptyText = errors.New("document text must not be empty")

// Service chunks incoming text and writes it to the knowledge store.
type Service struct {
	store     *retriever.Store
	chunker   *chunker.Chunker
	extractor *extract.Extractor
	logger    *zap.Logger
}

func NewService(store *retriever.Store, ch *chunker.Chunker, ex *extract.Extractor, logger *zap.Logger) *Service {
	return &Service{store: store, chunker: ch, extractor: ex, logger: logger}
}

// DocumentID derives a stable document ID from a source identifier, so
// re-ingesting the same source replaces the prior version.
func DocumentID(source string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(source)).String()
}

// IngestText chunks and stores extracted plain text. A document with the
// same derived ID is replaced.
func (s *Service) IngestText(ctx context.Context, in models.IngestInput) (*models.IngestReceipt, error) {
	if strings.TrimSpace(in.Text) == "" {
		return nil, ErrEmptyText
	}
	id := in.ID
	if id == "" {
		if in.Source != "" {
			id = DocumentID(in.Source)
		} else {
			id = uuid.NewString()
		}
	}

	// Replace any earlier version of this document. Remove is a no-op for
	// unknown IDs.
	if err := s.store.Remove(ctx, id); err != nil {
		s.logger.Warn("failed to remove prior document version",
			zap.String("document_id", id), zap.Error(err))
	}

	chunks := s.chunker.Split(in.Text)
	doc := &models.Document{
		ID:      id,
		Source:  in.Source,
		Title:   in.Title,
		Content: in.Text,
	}
	receipt, err := s.store.Add(ctx, doc, chunks)
	if err != nil {
		return nil, err
	}
	s.logger.Info("document ingested",
		zap.String("document_id", receipt.DocumentID),
		zap.String("source", in.Source),
		zap.Int("chunks", receipt.ChunksCreated),
		zap.Bool("degraded", receipt.Degraded))
	return receipt, nil
}

// IngestFile extracts text from the file at path and ingests it. The path is
// the source identifier.
func (s *Service) IngestFile(ctx context.Context, path string) (*models.IngestReceipt, error) {
	text, err := s.extractor.Extract(path)
	if err != nil {
		return nil, err
	}
	return s.IngestText(ctx, models.IngestInput{
		Source: path,
		Title:  filepath.Base(path),
		Text:   text,
	})
}

// Remove deletes an ingested document by ID.
func (s *Service) Remove(ctx context.Context, docID string) error {
	return s.store.Remove(ctx, docID)
}

// RemoveFile deletes the document ingested from path.
func (s *Service) RemoveFile(ctx context.Context, path string) error {
	return s.store.Remove(ctx, DocumentID(path))
}
