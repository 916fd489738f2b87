package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/chunker"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/retriever"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
)

type fixture struct {
	service *Service
	storage *storage.SQLiteStorage
	store   *retriever.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	idx, err := vector.NewMemoryIndex(64)
	if err != nil {
		t.Fatal(err)
	}
	kw, err := retriever.NewKeywordIndex("")
	if err != nil {
		t.Fatal(err)
	}
	store := retriever.NewStore(embedding.NewMockEmbedder(64), idx, st, kw, zap.NewNop())
	t.Cleanup(func() { store.Close() })

	ch, err := chunker.New(50, 10)
	if err != nil {
		t.Fatal(err)
	}
	return &fixture{
		service: NewService(store, ch, extract.NewExtractor(), zap.NewNop()),
		storage: st,
		store:   store,
	}
}

func TestIngestText(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	receipt, err := f.service.IngestText(ctx, models.IngestInput{
		Source: "notes/ml.md",
		Title:  "ML notes",
		Text:   "Machine learning is a subset of AI. It learns patterns from data.",
	})
	if err != nil {
		t.Fatal(err)
	}
	if receipt.ChunksCreated == 0 {
		t.Error("expected at least one chunk")
	}
	if receipt.Degraded {
		t.Error("unexpected degraded receipt")
	}
	if receipt.DocumentID != DocumentID("notes/ml.md") {
		t.Errorf("expected source-derived ID, got %s", receipt.DocumentID)
	}

	results, err := f.store.Retrieve(ctx, "Machine learning is a subset of AI.", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("expected ingested content to be retrievable, got %d results", len(results))
	}
}

func TestIngestTextReplacesSameSource(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	input := models.IngestInput{Source: "a.txt", Text: "First version of the document."}
	if _, err := f.service.IngestText(ctx, input); err != nil {
		t.Fatal(err)
	}
	input.Text = "Second version of the document."
	if _, err := f.service.IngestText(ctx, input); err != nil {
		t.Fatal(err)
	}

	n, err := f.storage.CountDocuments(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("re-ingesting the same source should replace, got %d documents", n)
	}
	doc, err := f.storage.GetDocument(ctx, DocumentID("a.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if doc.Content != "Second version of the document." {
		t.Errorf("expected replaced content, got %q", doc.Content)
	}
}

func TestIngestTextEmpty(t *testing.T) {
	f := newFixture(t)
	if _, err := f.service.IngestText(context.Background(), models.IngestInput{Source: "a.txt", Text: "  "}); err != ErrEmptyText {
		t.Errorf("expected ErrEmptyText, got %v", err)
	}
}

func TestIngestFile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "doc.txt")
	if err := os.WriteFile(path, []byte("Photosynthesis converts sunlight into chemical energy."), 0600); err != nil {
		t.Fatal(err)
	}

	receipt, err := f.service.IngestFile(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	if receipt.ChunksCreated != 1 {
		t.Errorf("expected 1 chunk, got %d", receipt.ChunksCreated)
	}

	doc, err := f.storage.GetDocument(ctx, receipt.DocumentID)
	if err != nil {
		t.Fatal(err)
	}
	if doc.Source != path || doc.Title != "doc.txt" {
		t.Errorf("got source %q title %q", doc.Source, doc.Title)
	}
}

func TestRemoveFile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "doc.txt")
	if err := os.WriteFile(path, []byte("Temporary content to remove."), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := f.service.IngestFile(ctx, path); err != nil {
		t.Fatal(err)
	}
	if err := f.service.RemoveFile(ctx, path); err != nil {
		t.Fatal(err)
	}
	n, _ := f.storage.CountDocuments(ctx)
	if n != 0 {
		t.Errorf("expected 0 documents after removal, got %d", n)
	}
}

func TestDocumentIDStable(t *testing.T) {
	if DocumentID("a.txt") != DocumentID("a.txt") {
		t.Error("DocumentID must be deterministic")
	}
	if DocumentID("a.txt") == DocumentID("b.txt") {
		t.Error("distinct sources must yield distinct IDs")
	}
}
