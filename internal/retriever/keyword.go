package retriever

import (
	"context"
	"fmt"
	"os"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
)

// chunkEntry is the shape indexed into Bleve for each chunk.
type chunkEntry struct {
	Content string `json:"content"`
	Source  string `json:"source"`
}

// KeywordIndex is a Bleve-backed keyword index over chunks. It serves as the
// degraded-mode retriever when embeddings are unavailable.
type KeywordIndex struct {
	index bleve.Index
}

// NewKeywordIndex creates or opens a Bleve index at path. An empty path
// creates an in-memory index that is discarded on close.
func NewKeywordIndex(path string) (*KeywordIndex, error) {
	im := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	// Standard analyzer (lowercase + tokenize, no stemming) so queries match
	// the exact words stored in chunks.
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("content", textFieldMapping)
	sourceFieldMapping := bleve.NewKeywordFieldMapping()
	sourceFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("source", sourceFieldMapping)
	im.AddDocumentMapping("chunk", docMapping)
	im.DefaultType = "chunk"
	im.DefaultMapping = docMapping

	if path == "" {
		index, err := bleve.NewMemOnly(im)
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory Bleve index: %w", err)
		}
		return &KeywordIndex{index: index}, nil
	}

	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &KeywordIndex{index: index}, nil
	}

	index, err := bleve.New(path, im)
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &KeywordIndex{index: index}, nil
}

// Index indexes a chunk's content under its ID.
func (k *KeywordIndex) Index(ctx context.Context, chunkID, content, source string) error {
	return k.index.Index(chunkID, chunkEntry{Content: content, Source: source})
}

// Delete removes a chunk from the index.
func (k *KeywordIndex) Delete(ctx context.Context, chunkID string) error {
	return k.index.Delete(chunkID)
}

// Search runs a match query over chunk content and returns up to limit hits.
// Scores are normalized to [0, 1] relative to the top hit.
func (k *KeywordIndex) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	q := bleve.NewMatchQuery(query)
	q.SetField("content")
	req := bleve.NewSearchRequest(q)
	req.Size = limit
	req.Fields = []string{"content", "source"}

	results, err := k.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("keyword search failed: %w", err)
	}

	out := make([]Result, 0, len(results.Hits))
	var top float64
	if len(results.Hits) > 0 {
		top = results.Hits[0].Score
	}
	for _, hit := range results.Hits {
		r := Result{ChunkID: hit.ID, Score: hit.Score}
		if top > 0 {
			r.Score = hit.Score / top
		}
		if v, ok := hit.Fields["content"].(string); ok {
			r.Text = v
		}
		if v, ok := hit.Fields["source"].(string); ok {
			r.Source = v
		}
		out = append(out, r)
	}
	return out, nil
}

// Count returns the number of indexed chunks.
func (k *KeywordIndex) Count() (uint64, error) {
	return k.index.DocCount()
}

// Close closes the underlying index.
func (k *KeywordIndex) Close() error {
	return k.index.Close()
}
