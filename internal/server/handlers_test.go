package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/agent"
	"github.com/hyperjump/kotae/internal/chunker"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/ingest"
	"github.com/hyperjump/kotae/internal/llm"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/retriever"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
)

func newTestServer(t *testing.T, client llm.Client) (*Server, http.Handler) {
	t.Helper()
	st, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "db.sqlite"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	embedder := embedding.NewMockEmbedder(32)
	idx, err := vector.NewMemoryIndex(32)
	if err != nil {
		t.Fatal(err)
	}
	kw, err := retriever.NewKeywordIndex("")
	if err != nil {
		t.Fatal(err)
	}
	store := retriever.NewStore(embedder, idx, st, kw, zap.NewNop())
	t.Cleanup(func() { store.Close() })

	ch, err := chunker.New(50, 10)
	if err != nil {
		t.Fatal(err)
	}
	ing := ingest.NewService(store, ch, extract.NewExtractor(), zap.NewNop())
	a := agent.New(client, store, agent.Config{}, zap.NewNop())

	srv := NewServer(a, ing, store, st, &config.ServerConfig{Port: 8080}, zap.NewNop())
	return srv, srv.Router()
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func TestHandleIngestAndAsk(t *testing.T) {
	client := llm.NewScriptedClient(
		llm.ToolCallResponse("call_1", "retrieve", `{"query": "What is machine learning?"}`),
		llm.TextResponse(`{"binary_score": "relevant"}`),
		llm.TextResponse("Machine learning is a subset of AI."),
	)
	_, handler := newTestServer(t, client)

	w := doJSON(t, handler, http.MethodPost, "/api/v1/ingest", models.IngestInput{
		Source: "ml.md",
		Text:   "Machine learning is a subset of AI. It learns from data.",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("ingest: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var receipt models.IngestReceipt
	if err := json.Unmarshal(w.Body.Bytes(), &receipt); err != nil {
		t.Fatal(err)
	}
	if receipt.ChunksCreated == 0 {
		t.Error("expected chunks to be created")
	}

	w = doJSON(t, handler, http.MethodPost, "/api/v1/ask", models.AskRequest{
		Question: "What is machine learning?",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("ask: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp models.AskResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Success {
		t.Fatalf("expected success, got error %q", resp.Error)
	}
	if !strings.Contains(strings.Join(resp.ExecutionPath, " "), "RETRIEVE") {
		t.Errorf("expected RETRIEVE in path: %v", resp.ExecutionPath)
	}
	if resp.SourcesUsed == 0 {
		t.Error("expected sources to be used")
	}
}

func TestHandleAskValidation(t *testing.T) {
	_, handler := newTestServer(t, llm.NewScriptedClient())

	w := doJSON(t, handler, http.MethodPost, "/api/v1/ask", models.AskRequest{Question: "  "})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ask", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed body, got %d", rec.Code)
	}
}

func TestHandleIngestEmptyText(t *testing.T) {
	_, handler := newTestServer(t, llm.NewScriptedClient())
	w := doJSON(t, handler, http.MethodPost, "/api/v1/ingest", models.IngestInput{Source: "a.txt", Text: ""})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHandleDocumentLifecycle(t *testing.T) {
	_, handler := newTestServer(t, llm.NewScriptedClient())

	w := doJSON(t, handler, http.MethodPost, "/api/v1/ingest", models.IngestInput{
		ID:     "doc1",
		Source: "a.txt",
		Text:   "Some document content.",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}

	w = doJSON(t, handler, http.MethodGet, "/api/v1/documents/doc1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var doc models.Document
	if err := json.Unmarshal(w.Body.Bytes(), &doc); err != nil {
		t.Fatal(err)
	}
	if doc.Source != "a.txt" {
		t.Errorf("got source %q", doc.Source)
	}

	w = doJSON(t, handler, http.MethodDelete, "/api/v1/documents/doc1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	w = doJSON(t, handler, http.MethodGet, "/api/v1/documents/doc1", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", w.Code)
	}
}

func TestHandleStatus(t *testing.T) {
	_, handler := newTestServer(t, llm.NewScriptedClient())

	w := doJSON(t, handler, http.MethodPost, "/api/v1/ingest", models.IngestInput{
		Source: "a.txt",
		Text:   "Status test content.",
	})
	if w.Code != http.StatusCreated {
		t.Fatal("ingest failed")
	}

	w = doJSON(t, handler, http.MethodGet, "/api/v1/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var status map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatal(err)
	}
	if status["documents"].(float64) != 1 {
		t.Errorf("expected 1 document, got %v", status["documents"])
	}
	if status["degraded"].(bool) {
		t.Error("expected non-degraded status")
	}
}

func TestHandleHealth(t *testing.T) {
	_, handler := newTestServer(t, llm.NewScriptedClient(llm.TextResponse("pong")))

	w := doJSON(t, handler, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var status models.HealthStatus
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatal(err)
	}
	if !status.Retrieval || !status.Embedding {
		t.Errorf("expected healthy retrieval and embedding: %+v", status)
	}
}

func TestServerStop(t *testing.T) {
	srv, _ := newTestServer(t, llm.NewScriptedClient())
	// Stop before Start is a no-op.
	if err := srv.Stop(context.Background()); err != nil {
		t.Errorf("Stop: %v", err)
	}
}
