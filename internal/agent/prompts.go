package agent

import (
	"fmt"
	"strings"

	"github.com/hyperjump/kotae/internal/llm"
	"github.com/hyperjump/kotae/internal/retriever"
)

const (
	gradeRelevant    = "relevant"
	gradeNotRelevant = "not_relevant"

	// noInfoAnswer is returned when the loop exhausts its iteration bound
	// without ever retrieving usable context.
	noInfoAnswer = "I couldn't find any relevant information in the knowledge base to answer your question. Please make sure relevant documents have been ingested first."
)

// retrieveToolSpec describes the retrieval tool offered to the model in the
// decide step.
func retrieveToolSpec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        "retrieve",
		Description: "Retrieve relevant documents from the knowledge base",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "The search query",
				},
			},
			"required": []string{"query"},
		},
	}
}

// graderSchema constrains the grader to a two-valued verdict.
func graderSchema() *llm.ResponseSchema {
	return &llm.ResponseSchema{
		Name: "grade_documents",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"binary_score": map[string]any{
					"type": "string",
					"enum": []string{gradeRelevant, gradeNotRelevant},
				},
			},
			"required":             []string{"binary_score"},
			"additionalProperties": false,
		},
	}
}

func graderPrompt(question, context string) string {
	return fmt.Sprintf(
		"You are grading whether a retrieved document is relevant to a user question.\n\n"+
			"Document:\n%s\n\nQuestion: %s\n\n"+
			"Answer with binary_score %q if the document contains information related to the question, otherwise %q.",
		context, question, gradeRelevant, gradeNotRelevant)
}

func rewritePrompt(question string) string {
	return fmt.Sprintf(
		"Rewrite this question to improve search results. Reply with the rewritten question only.\n\nQuestion: %s",
		question)
}

func synthesizePrompt(question, context string) string {
	return fmt.Sprintf(
		"Answer the question using only the context below. Keep it concise. "+
			"If the context does not contain the answer, say you don't know.\n\n"+
			"Question: %s\n\nContext:\n%s",
		question, context)
}

// formatContext renders retrieved chunks the way the model receives them.
// An empty result set yields an empty string.
func formatContext(results []retriever.Result) string {
	if len(results) == 0 {
		return ""
	}
	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = fmt.Sprintf("Document %d:\n%s", i+1, r.Text)
	}
	return strings.Join(parts, "\n\n")
}
