package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/llm"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/retriever"
	"github.com/hyperjump/kotae/pkg/utils"
)

// Config bounds the workflow loop.
type Config struct {
	// MaxIterations caps rewrite/retrieve passes before the workflow is
	// forced to answer with whatever context it last retrieved.
	MaxIterations int
	// TopK is how many chunks each retrieval returns.
	TopK int
}

// Agent orchestrates one workflow instantiation per question. The retrieval
// store is the only shared dependency; everything else is per-request.
type Agent struct {
	llm           llm.Client
	tool          retriever.Tool
	maxIterations int
	topK          int
	logger        *zap.Logger
}

// New builds an Agent. Non-positive Config fields fall back to defaults
// (3 iterations, 3 chunks).
func New(client llm.Client, tool retriever.Tool, cfg Config, logger *zap.Logger) *Agent {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 3
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 3
	}
	return &Agent{
		llm:           client,
		tool:          tool,
		maxIterations: cfg.MaxIterations,
		topK:          cfg.TopK,
		logger:        logger,
	}
}

// Ask answers a question. Validation failures return an error; everything
// else terminates in a response. When the workflow fails mid-flight, a
// simplified fallback (direct retrieve + single generate) is attempted before
// the failure is surfaced as an unsuccessful response with a summarized cause.
func (a *Agent) Ask(ctx context.Context, question string) (*models.AskResponse, error) {
	req := models.AskRequest{Question: question}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	resp, err := a.run(ctx, question)
	if err == nil {
		return resp, nil
	}
	a.logger.Warn("workflow failed, attempting fallback",
		zap.String("question", utils.Truncate(question, 200)),
		zap.Error(err))

	resp, fbErr := a.fallback(ctx, question)
	if fbErr == nil {
		return resp, nil
	}
	a.logger.Error("fallback failed",
		zap.String("question", utils.Truncate(question, 200)),
		zap.NamedError("workflow_error", err),
		zap.NamedError("fallback_error", fbErr))

	return &models.AskResponse{
		Success:       false,
		Error:         fmt.Sprintf("processing failed: %v", err),
		ExecutionPath: []string{string(StateStart), string(StateEnd)},
	}, nil
}

// run drives the state machine to END. Any upstream failure aborts the run
// and is handled by Ask.
func (a *Agent) run(ctx context.Context, question string) (*models.AskResponse, error) {
	w := &workflow{question: question, current: question}
	w.visit(StateStart)

	state := StateStart
	for state != StateEnd {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var next State
		var err error
		switch state {
		case StateStart:
			w.messages = append(w.messages, llm.Message{Role: llm.RoleUser, Content: question})
			next = StateDecide
		case StateDecide:
			next, err = a.decide(ctx, w)
		case StateRetrieve:
			next, err = a.retrieve(ctx, w)
		case StateGrade:
			next, err = a.grade(ctx, w)
		case StateRewrite:
			next, err = a.rewrite(ctx, w)
		case StateAnswer:
			next, err = a.answer(ctx, w)
		default:
			return nil, fmt.Errorf("workflow reached unknown state %q", state)
		}
		if err != nil {
			a.logger.Warn("workflow step failed",
				zap.String("state", string(state)),
				zap.Int("iterations", w.iterations),
				zap.Error(err))
			return nil, err
		}
		state = next
		w.visit(state)
	}

	return &models.AskResponse{
		Answer:        w.answer,
		Success:       true,
		SourcesUsed:   w.sources,
		ExecutionPath: w.pathStrings(),
	}, nil
}

// decide asks the model whether to retrieve or answer directly.
func (a *Agent) decide(ctx context.Context, w *workflow) (State, error) {
	resp, err := a.llm.Complete(ctx, llm.Request{
		Messages: w.messages,
		Tools:    []llm.ToolSpec{retrieveToolSpec()},
	})
	if err != nil {
		return "", fmt.Errorf("decide step failed: %w", err)
	}
	w.messages = append(w.messages, *resp)

	if len(resp.ToolCalls) == 0 {
		// The model's direct response is the final answer.
		w.answer = resp.Content
		return StateEnd, nil
	}

	call := resp.ToolCalls[0]
	w.toolCallID = call.ID
	w.toolQuery = w.current
	var args struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal([]byte(call.Arguments), &args); err == nil && strings.TrimSpace(args.Query) != "" {
		w.toolQuery = args.Query
	}
	return StateRetrieve, nil
}

// retrieve executes the tool call and appends the context as a tool message.
func (a *Agent) retrieve(ctx context.Context, w *workflow) (State, error) {
	results, err := a.tool.Retrieve(ctx, w.toolQuery, a.topK)
	if err != nil {
		return "", fmt.Errorf("retrieval failed: %w", err)
	}
	w.context = formatContext(results)
	w.sources = len(results)
	w.messages = append(w.messages, llm.Message{
		Role:       llm.RoleTool,
		Content:    w.context,
		ToolCallID: w.toolCallID,
	})
	return StateGrade, nil
}

// grade checks retrieved context against the original question. Anything
// other than a literal relevant verdict fails toward rewriting; the
// iteration bound forces an answer instead of looping forever.
func (a *Agent) grade(ctx context.Context, w *workflow) (State, error) {
	relevant, err := a.graderSaysRelevant(ctx, w)
	if err != nil {
		return "", fmt.Errorf("grade step failed: %w", err)
	}
	if relevant {
		return StateAnswer, nil
	}
	if w.iterations >= a.maxIterations {
		a.logger.Info("iteration bound reached, forcing answer",
			zap.String("question", utils.Truncate(w.question, 200)),
			zap.Int("iterations", w.iterations))
		return StateAnswer, nil
	}
	return StateRewrite, nil
}

// graderSaysRelevant escalates grader unavailability; only malformed output
// fails soft toward not_relevant.
func (a *Agent) graderSaysRelevant(ctx context.Context, w *workflow) (bool, error) {
	if strings.TrimSpace(w.context) == "" {
		return false, nil
	}
	resp, err := a.llm.Complete(ctx, llm.Request{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: graderPrompt(w.question, w.context)}},
		Schema:   graderSchema(),
	})
	if err != nil {
		return false, err
	}
	var verdict struct {
		BinaryScore string `json:"binary_score"`
	}
	if err := json.Unmarshal([]byte(resp.Content), &verdict); err != nil {
		a.logger.Warn("malformed grader output, treating as not relevant",
			zap.String("output", resp.Content))
		return false, nil
	}
	score := strings.TrimSpace(strings.ToLower(verdict.BinaryScore))
	return score == gradeRelevant || score == "yes", nil
}

// rewrite replaces the active query with a reformulation of the original
// question and loops back to decide.
func (a *Agent) rewrite(ctx context.Context, w *workflow) (State, error) {
	resp, err := a.llm.Complete(ctx, llm.Request{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: rewritePrompt(w.question)}},
	})
	if err != nil {
		return "", fmt.Errorf("rewrite step failed: %w", err)
	}
	w.current = strings.TrimSpace(resp.Content)
	if w.current == "" {
		w.current = w.question
	}
	w.messages = append(w.messages, llm.Message{Role: llm.RoleUser, Content: w.current})
	w.iterations++
	return StateDecide, nil
}

// answer synthesizes the final answer from the last retrieved context.
func (a *Agent) answer(ctx context.Context, w *workflow) (State, error) {
	answer, err := a.synthesize(ctx, w.question, w.context)
	if err != nil {
		return "", fmt.Errorf("answer step failed: %w", err)
	}
	if strings.TrimSpace(w.context) == "" {
		w.sources = 0
	}
	w.answer = answer
	w.messages = append(w.messages, llm.Message{Role: llm.RoleAssistant, Content: answer})
	return StateEnd, nil
}

// synthesize never fabricates: empty context short-circuits to a no-information
// answer without a model round-trip.
func (a *Agent) synthesize(ctx context.Context, question, contextText string) (string, error) {
	if strings.TrimSpace(contextText) == "" {
		return noInfoAnswer, nil
	}
	resp, err := a.llm.Complete(ctx, llm.Request{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: synthesizePrompt(question, contextText)}},
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// fallback is the simplified recovery path: one retrieval, one generation,
// no grading loop.
func (a *Agent) fallback(ctx context.Context, question string) (*models.AskResponse, error) {
	results, err := a.tool.Retrieve(ctx, question, a.topK)
	if err != nil {
		return nil, fmt.Errorf("fallback retrieval failed: %w", err)
	}
	answer, err := a.synthesize(ctx, question, formatContext(results))
	if err != nil {
		return nil, fmt.Errorf("fallback generation failed: %w", err)
	}
	return &models.AskResponse{
		Answer:      answer,
		Success:     true,
		SourcesUsed: len(results),
		ExecutionPath: []string{
			string(StateStart), string(StateRetrieve), string(StateAnswer), string(StateEnd),
		},
	}, nil
}

// Healthy reports whether the completion backend responds.
func (a *Agent) Healthy(ctx context.Context) bool {
	return a.llm.Healthy(ctx)
}
