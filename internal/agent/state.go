// Package agent runs the question-answering workflow: a bounded state
// machine that lets the model decide when to retrieve, grades retrieved
// context, and rewrites the question when retrieval misses.
package agent

import "github.com/hyperjump/kotae/internal/llm"

// State names a node in the workflow. Every state a request visits is
// recorded in its execution path, in order.
type State string

const (
	StateStart    State = "START"
	StateDecide   State = "DECIDE"
	StateRetrieve State = "RETRIEVE"
	StateGrade    State = "GRADE"
	StateRewrite  State = "REWRITE"
	StateAnswer   State = "ANSWER"
	StateEnd      State = "END"
)

// workflow is the per-request state. It is never shared between requests.
type workflow struct {
	question string // the user's original question, used for grading and synthesis
	current  string // the active query, replaced on each rewrite

	messages   []llm.Message
	context    string // most recent tool message content
	sources    int
	iterations int

	toolCallID string
	toolQuery  string

	answer string
	path   []State
}

func (w *workflow) visit(s State) {
	w.path = append(w.path, s)
}

func (w *workflow) pathStrings() []string {
	out := make([]string, len(w.path))
	for i, s := range w.path {
		out[i] = string(s)
	}
	return out
}
