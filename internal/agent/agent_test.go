package agent

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/llm"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/retriever"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
)

// stubTool replays fixed retrieval results and records queries.
type stubTool struct {
	results []retriever.Result
	err     error
	queries []string
}

func (s *stubTool) Retrieve(ctx context.Context, query string, k int) ([]retriever.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.queries = append(s.queries, query)
	if s.err != nil {
		return nil, s.err
	}
	if len(s.results) > k {
		return s.results[:k], nil
	}
	return s.results, nil
}

func (s *stubTool) Healthy(ctx context.Context) bool { return true }

func pathOf(resp *models.AskResponse) string {
	return strings.Join(resp.ExecutionPath, " ")
}

func countState(resp *models.AskResponse, state State) int {
	n := 0
	for _, s := range resp.ExecutionPath {
		if s == string(state) {
			n++
		}
	}
	return n
}

func TestAskDirectAnswer(t *testing.T) {
	client := llm.NewScriptedClient(llm.TextResponse("The capital of France is Paris."))
	a := New(client, &stubTool{}, Config{}, zap.NewNop())

	resp, err := a.Ask(context.Background(), "What is the capital of France?")
	if err != nil {
		t.Fatal(err)
	}
	if !resp.Success {
		t.Fatal("expected success")
	}
	if resp.Answer != "The capital of France is Paris." {
		t.Errorf("unexpected answer: %q", resp.Answer)
	}
	if got := pathOf(resp); got != "START DECIDE END" {
		t.Errorf("unexpected path: %s", got)
	}
	if resp.SourcesUsed != 0 {
		t.Errorf("direct answer should use no sources, got %d", resp.SourcesUsed)
	}
}

func TestAskRetrieveAndAnswer(t *testing.T) {
	client := llm.NewScriptedClient(
		llm.ToolCallResponse("call_1", "retrieve", `{"query": "machine learning"}`),
		llm.TextResponse(`{"binary_score": "relevant"}`),
		llm.TextResponse("Machine learning is a subset of AI."),
	)
	tool := &stubTool{results: []retriever.Result{
		{ChunkID: "c1", Text: "Machine learning is a subset of AI.", Source: "ml.md", Score: 0.9},
	}}
	a := New(client, tool, Config{}, zap.NewNop())

	resp, err := a.Ask(context.Background(), "What is machine learning?")
	if err != nil {
		t.Fatal(err)
	}
	if !resp.Success {
		t.Fatalf("expected success, got error %q", resp.Error)
	}
	if got := pathOf(resp); got != "START DECIDE RETRIEVE GRADE ANSWER END" {
		t.Errorf("unexpected path: %s", got)
	}
	if resp.SourcesUsed != 1 {
		t.Errorf("expected 1 source, got %d", resp.SourcesUsed)
	}
	if len(tool.queries) != 1 || tool.queries[0] != "machine learning" {
		t.Errorf("expected the model-supplied query, got %v", tool.queries)
	}
	if !strings.Contains(resp.Answer, "subset of AI") {
		t.Errorf("answer should reference retrieved content: %q", resp.Answer)
	}

	reqs := client.Requests()
	if len(reqs) != 3 {
		t.Fatalf("expected 3 round-trips, got %d", len(reqs))
	}
	schema := reqs[1].Schema
	if schema == nil {
		t.Fatal("grader round-trip should request structured output")
	}
	props, _ := schema.Schema["properties"].(map[string]any)
	if _, ok := props["binary_score"]; !ok {
		t.Errorf("grader schema missing binary_score: %v", schema.Schema)
	}
}

func TestAskToolCallWithoutQueryDefaultsToQuestion(t *testing.T) {
	client := llm.NewScriptedClient(
		llm.ToolCallResponse("call_1", "retrieve", `{}`),
		llm.TextResponse(`{"binary_score": "relevant"}`),
		llm.TextResponse("answer"),
	)
	tool := &stubTool{results: []retriever.Result{{Text: "context", Score: 0.5}}}
	a := New(client, tool, Config{}, zap.NewNop())

	if _, err := a.Ask(context.Background(), "original question"); err != nil {
		t.Fatal(err)
	}
	if len(tool.queries) != 1 || tool.queries[0] != "original question" {
		t.Errorf("expected fallback to the user question, got %v", tool.queries)
	}
}

func TestAskEmptyQuestion(t *testing.T) {
	a := New(llm.NewScriptedClient(), &stubTool{}, Config{}, zap.NewNop())
	if _, err := a.Ask(context.Background(), "   "); err == nil {
		t.Fatal("expected validation error for empty question")
	}
}

func TestAskEmptyStore(t *testing.T) {
	// Empty context never reaches the grader; the loop rewrites until the
	// bound, then answers that nothing was found.
	client := llm.NewScriptedClient(
		llm.ToolCallResponse("call_1", "retrieve", `{"query": "q"}`),
		llm.TextResponse("rephrased question"),
		llm.ToolCallResponse("call_2", "retrieve", `{"query": "rephrased question"}`),
	)
	a := New(client, &stubTool{}, Config{MaxIterations: 1}, zap.NewNop())

	resp, err := a.Ask(context.Background(), "What is in the knowledge base?")
	if err != nil {
		t.Fatal(err)
	}
	if !resp.Success {
		t.Fatalf("expected success, got error %q", resp.Error)
	}
	if resp.SourcesUsed != 0 {
		t.Errorf("expected 0 sources, got %d", resp.SourcesUsed)
	}
	if !strings.Contains(resp.Answer, "couldn't find") {
		t.Errorf("expected a no-information answer, got %q", resp.Answer)
	}
	if got := pathOf(resp); got != "START DECIDE RETRIEVE GRADE REWRITE DECIDE RETRIEVE GRADE ANSWER END" {
		t.Errorf("unexpected path: %s", got)
	}
}

func TestAskIterationBound(t *testing.T) {
	// Grader always says not_relevant; the loop must hit the bound and
	// still terminate with a non-error answer.
	client := llm.NewScriptedClient(
		llm.ToolCallResponse("call_1", "retrieve", `{"query": "q1"}`),
		llm.TextResponse(`{"binary_score": "not_relevant"}`),
		llm.TextResponse("rewrite one"),
		llm.ToolCallResponse("call_2", "retrieve", `{"query": "q2"}`),
		llm.TextResponse(`{"binary_score": "not_relevant"}`),
		llm.TextResponse("rewrite two"),
		llm.ToolCallResponse("call_3", "retrieve", `{"query": "q3"}`),
		llm.TextResponse(`{"binary_score": "not_relevant"}`),
		llm.TextResponse("best-effort answer from last context"),
	)
	tool := &stubTool{results: []retriever.Result{{Text: "some context", Score: 0.4}}}
	a := New(client, tool, Config{MaxIterations: 2}, zap.NewNop())

	resp, err := a.Ask(context.Background(), "stubborn question")
	if err != nil {
		t.Fatal(err)
	}
	if !resp.Success {
		t.Fatalf("expected success at the bound, got error %q", resp.Error)
	}
	if resp.Answer != "best-effort answer from last context" {
		t.Errorf("unexpected answer: %q", resp.Answer)
	}
	if n := countState(resp, StateRewrite); n != 2 {
		t.Errorf("expected exactly 2 rewrites, got %d (path %s)", n, pathOf(resp))
	}
	if resp.ExecutionPath[len(resp.ExecutionPath)-1] != string(StateEnd) {
		t.Errorf("path must end in END: %s", pathOf(resp))
	}
}

func TestGradingFailSafe(t *testing.T) {
	// Anything other than the literal relevant verdict must route to
	// REWRITE, never straight to ANSWER.
	for _, verdict := range []string{
		`{"binary_score": "maybe"}`,
		`{"binary_score": ""}`,
		`not json at all`,
	} {
		client := llm.NewScriptedClient(
			llm.ToolCallResponse("call_1", "retrieve", `{"query": "q"}`),
			llm.TextResponse(verdict),
			llm.TextResponse("rewritten"),
			llm.ToolCallResponse("call_2", "retrieve", `{"query": "rewritten"}`),
			llm.TextResponse(`{"binary_score": "relevant"}`),
			llm.TextResponse("final"),
		)
		tool := &stubTool{results: []retriever.Result{{Text: "context", Score: 0.5}}}
		a := New(client, tool, Config{MaxIterations: 3}, zap.NewNop())

		resp, err := a.Ask(context.Background(), "question")
		if err != nil {
			t.Fatal(err)
		}
		if resp.ExecutionPath[4] != string(StateRewrite) {
			t.Errorf("verdict %q: expected REWRITE after GRADE, path %s", verdict, pathOf(resp))
		}
	}
}

func TestAskFallbackOnWorkflowFailure(t *testing.T) {
	client := llm.NewScriptedClient()
	client.Err = errors.New("completion backend down")
	a := New(client, &stubTool{}, Config{}, zap.NewNop())

	resp, err := a.Ask(context.Background(), "anything")
	if err != nil {
		t.Fatal(err)
	}
	// Empty store lets the fallback answer without a model round-trip.
	if !resp.Success {
		t.Fatalf("expected fallback success, got error %q", resp.Error)
	}
	if got := pathOf(resp); got != "START RETRIEVE ANSWER END" {
		t.Errorf("unexpected fallback path: %s", got)
	}
	if !strings.Contains(resp.Answer, "couldn't find") {
		t.Errorf("unexpected fallback answer: %q", resp.Answer)
	}
}

func TestAskProcessingFailed(t *testing.T) {
	client := llm.NewScriptedClient()
	client.Err = errors.New("completion backend down")
	tool := &stubTool{results: []retriever.Result{{Text: "context", Score: 0.5}}}
	a := New(client, tool, Config{}, zap.NewNop())

	resp, err := a.Ask(context.Background(), "anything")
	if err != nil {
		t.Fatal(err)
	}
	if resp.Success {
		t.Fatal("expected failure when workflow and fallback both fail")
	}
	if !strings.Contains(resp.Error, "processing failed") {
		t.Errorf("expected summarized cause, got %q", resp.Error)
	}
	if strings.Contains(resp.Error, "completion backend down") == false {
		t.Errorf("error should carry the underlying cause: %q", resp.Error)
	}
}

func TestAskCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tool := &stubTool{results: []retriever.Result{{Text: "context", Score: 0.5}}}
	a := New(llm.NewScriptedClient(llm.TextResponse("unused")), tool, Config{}, zap.NewNop())

	resp, err := a.Ask(ctx, "question")
	if err != nil {
		t.Fatal(err)
	}
	if resp.Success {
		t.Error("cancelled request should not succeed")
	}
}

// TestAskAgainstRealStore exercises the workflow end to end over a real
// store with a deterministic embedder.
func TestAskAgainstRealStore(t *testing.T) {
	st, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	embedder := embedding.NewMockEmbedder(64)
	idx, err := vector.NewMemoryIndex(64)
	if err != nil {
		t.Fatal(err)
	}
	kw, err := retriever.NewKeywordIndex("")
	if err != nil {
		t.Fatal(err)
	}
	store := retriever.NewStore(embedder, idx, st, kw, zap.NewNop())
	defer store.Close()

	ctx := context.Background()
	doc := &models.Document{ID: "doc1", Source: "ml.md", Content: "full text"}
	if _, err := store.Add(ctx, doc, []string{"Machine learning is a subset of AI."}); err != nil {
		t.Fatal(err)
	}

	client := llm.NewScriptedClient(
		llm.ToolCallResponse("call_1", "retrieve", `{"query": "What is machine learning?"}`),
		llm.TextResponse(`{"binary_score": "relevant"}`),
		llm.TextResponse("Machine learning is a subset of AI."),
	)
	a := New(client, store, Config{}, zap.NewNop())

	resp, err := a.Ask(ctx, "What is machine learning?")
	if err != nil {
		t.Fatal(err)
	}
	if !resp.Success {
		t.Fatalf("expected success, got error %q", resp.Error)
	}
	found := false
	for _, s := range resp.ExecutionPath {
		if s == string(StateRetrieve) {
			found = true
		}
	}
	if !found {
		t.Errorf("path must include RETRIEVE: %s", pathOf(resp))
	}
	if resp.SourcesUsed == 0 {
		t.Error("expected at least one source")
	}
	// The tool message handed to the grader must carry the stored chunk.
	reqs := client.Requests()
	graderReq := reqs[1]
	if !strings.Contains(graderReq.Messages[0].Content, "Machine learning is a subset of AI.") {
		t.Error("grader prompt should include retrieved context")
	}
}
