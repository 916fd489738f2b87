package models

import (
	"errors"
	"strings"
)

// ErrEmptyQuestion is returned when a question is blank.
var ErrEmptyQuestion = errors.New("question cannot be empty")

// AskRequest is a question for the agent. Collection is reserved for callers
// that partition their knowledge base; the default collection is used when empty.
type AskRequest struct {
	Question   string `json:"question"`
	Collection string `json:"collection,omitempty"`
}

// Validate ensures the request has a non-empty question.
func (r *AskRequest) Validate() error {
	if strings.TrimSpace(r.Question) == "" {
		return ErrEmptyQuestion
	}
	return nil
}

// AskResponse is the answer produced by the agent. ExecutionPath lists every
// workflow state visited, in order, so looping behavior is observable.
type AskResponse struct {
	Answer        string   `json:"answer"`
	Success       bool     `json:"success"`
	SourcesUsed   int      `json:"sources_used"`
	ExecutionPath []string `json:"execution_path"`
	Error         string   `json:"error,omitempty"`
}

// HealthStatus reports per-capability health for the health boundary.
type HealthStatus struct {
	Retrieval  bool `json:"retrieval"`
	Completion bool `json:"completion"`
	Embedding  bool `json:"embedding"`
}
