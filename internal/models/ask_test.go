package models

import (
	"errors"
	"testing"
)

func TestAskRequestValidate(t *testing.T) {
	req := &AskRequest{Question: "what is machine learning?"}
	if err := req.Validate(); err != nil {
		t.Errorf("valid request rejected: %v", err)
	}

	empty := &AskRequest{}
	err := empty.Validate()
	if err == nil {
		t.Fatal("empty question should be rejected")
	}
	if !errors.Is(err, ErrEmptyQuestion) {
		t.Errorf("expected ErrEmptyQuestion, got %v", err)
	}
}
