package retriever

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
)

// Store is the knowledge store: documents and chunks in SQLite, embeddings in
// a vector index, and a keyword index that serves as a degraded-mode
// retriever when embeddings are unavailable.
//
// The store enters degraded mode when embedding fails during ingestion and
// stays there until the process restarts; queries then fall back to keyword
// search so the system keeps answering, just with weaker recall.
type Store struct {
	embedder embedding.Embedder
	index    vector.Index
	storage  storage.Storage
	keyword  *KeywordIndex
	logger   *zap.Logger

	degraded atomic.Bool
}

// NewStore composes the retrieval components into a Store.
func NewStore(embedder embedding.Embedder, index vector.Index, st storage.Storage, keyword *KeywordIndex, logger *zap.Logger) *Store {
	return &Store{
		embedder: embedder,
		index:    index,
		storage:  st,
		keyword:  keyword,
		logger:   logger,
	}
}

// Add persists a document and its chunk texts. Embeddings are computed in one
// batch; if embedding fails the chunks are still stored and keyword-indexed,
// the store flips to degraded mode, and ingestion succeeds.
func (s *Store) Add(ctx context.Context, doc *models.Document, chunkTexts []string) (*models.IngestReceipt, error) {
	if err := s.storage.CreateDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to store document: %w", err)
	}

	ids := make([]string, len(chunkTexts))
	chunks := make([]*models.DocumentChunk, len(chunkTexts))
	for i, text := range chunkTexts {
		ids[i] = uuid.NewString()
		chunks[i] = &models.DocumentChunk{
			ID:         ids[i],
			DocumentID: doc.ID,
			Content:    text,
			ChunkIndex: i,
		}
	}
	if err := s.storage.BatchCreateChunks(ctx, chunks); err != nil {
		return nil, fmt.Errorf("failed to store chunks: %w", err)
	}

	for _, chunk := range chunks {
		if err := s.keyword.Index(ctx, chunk.ID, chunk.Content, doc.Source); err != nil {
			return nil, fmt.Errorf("failed to index chunk %s: %w", chunk.ID, err)
		}
	}

	receipt := &models.IngestReceipt{DocumentID: doc.ID, ChunkIDs: ids, ChunksCreated: len(chunks)}

	vectors, err := s.embedder.EmbedBatch(ctx, chunkTexts)
	if err != nil {
		s.degraded.Store(true)
		receipt.Degraded = true
		s.logger.Warn("embedding failed, store degraded to keyword-only retrieval",
			zap.String("document_id", doc.ID),
			zap.Error(err))
		return receipt, nil
	}

	for i, chunk := range chunks {
		chunk.Embedding = vectors[i]
	}
	if err := s.index.Add(ctx, ids, vectors); err != nil {
		return nil, fmt.Errorf("failed to add vectors: %w", err)
	}

	return receipt, nil
}

// Remove deletes a document, its chunks, and their index entries.
func (s *Store) Remove(ctx context.Context, docID string) error {
	chunks, err := s.storage.GetChunksByDocumentID(ctx, docID)
	if err != nil {
		return err
	}
	if len(chunks) > 0 {
		ids := make([]string, len(chunks))
		for i, chunk := range chunks {
			ids[i] = chunk.ID
		}
		if err := s.index.Remove(ctx, ids); err != nil {
			return fmt.Errorf("failed to remove vectors: %w", err)
		}
		for _, id := range ids {
			if err := s.keyword.Delete(ctx, id); err != nil {
				s.logger.Warn("failed to remove chunk from keyword index",
					zap.String("chunk_id", id), zap.Error(err))
			}
		}
	}
	if err := s.storage.DeleteChunksByDocumentID(ctx, docID); err != nil {
		return err
	}
	return s.storage.DeleteDocument(ctx, docID)
}

// Retrieve returns up to k chunks relevant to the query, ordered by
// descending score. In degraded mode, or when embedding the query fails,
// keyword search answers instead of semantic search.
func (s *Store) Retrieve(ctx context.Context, query string, k int) ([]Result, error) {
	if k <= 0 {
		return []Result{}, nil
	}
	if s.degraded.Load() {
		return s.keyword.Search(ctx, query, k)
	}

	queryVec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		s.logger.Warn("query embedding failed, falling back to keyword search", zap.Error(err))
		return s.keyword.Search(ctx, query, k)
	}

	hits, err := s.index.Search(ctx, queryVec, k)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	sources := make(map[string]string)
	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		chunk, err := s.storage.GetChunk(ctx, hit.ID)
		if err != nil {
			s.logger.Warn("indexed chunk missing from storage",
				zap.String("chunk_id", hit.ID), zap.Error(err))
			continue
		}
		source, ok := sources[chunk.DocumentID]
		if !ok {
			if doc, err := s.storage.GetDocument(ctx, chunk.DocumentID); err == nil {
				source = doc.Source
			}
			sources[chunk.DocumentID] = source
		}
		score := hit.Score
		if score < 0 {
			score = 0
		} else if score > 1 {
			score = 1
		}
		results = append(results, Result{
			ChunkID: chunk.ID,
			Text:    chunk.Content,
			Source:  source,
			Score:   score,
		})
	}
	return results, nil
}

// IndexSize returns the number of vectors currently indexed.
func (s *Store) IndexSize() int {
	return s.index.Size()
}

// Degraded reports whether the store fell back to keyword-only retrieval.
func (s *Store) Degraded() bool {
	return s.degraded.Load()
}

// Healthy reports whether the underlying storage is reachable.
func (s *Store) Healthy(ctx context.Context) bool {
	return s.storage.Ping(ctx) == nil
}

// EmbeddingHealthy probes the embedding backend with a short input.
func (s *Store) EmbeddingHealthy(ctx context.Context) bool {
	_, err := s.embedder.Embed(ctx, "ping")
	return err == nil
}

// Close releases the store's resources. The vector index and storage are
// owned by the caller and closed separately.
func (s *Store) Close() error {
	return s.keyword.Close()
}
