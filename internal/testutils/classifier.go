package testutils

import (
	"context"
	"sync"

	"github.com/rahilrshah/productivity-app/internal/classify"
)

// StubClassifier returns scripted classifications in order, falling back to
// the last one when the script runs out. It records every call.
type StubClassifier struct {
	mu      sync.Mutex
	script  []*classify.Classification
	Err     error
	Calls   []string
	callIdx int
}

// NewStubClassifier creates a StubClassifier returning the given results in
// sequence.
func NewStubClassifier(results ...*classify.Classification) *StubClassifier {
	return &StubClassifier{script: results}
}

var _ classify.Classifier = (*StubClassifier)(nil)

func (s *StubClassifier) Classify(ctx context.Context, text string, contextSummary string) (*classify.Classification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Calls = append(s.Calls, text)
	if s.Err != nil {
		return nil, s.Err
	}
	if len(s.script) == 0 {
		return &classify.Classification{Intent: "create_task", Confidence: 0.1}, nil
	}
	idx := s.callIdx
	if idx >= len(s.script) {
		idx = len(s.script) - 1
	}
	s.callIdx++
	return s.script[idx], nil
}
