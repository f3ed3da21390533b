package testutils

import (
	"context"
	"fmt"
	"sync/atomic"
)

// MockEmbedder is a test embedder that returns predictable embeddings
type MockEmbedder struct {
	Embeddings map[string][]float32

	// ModelName is returned by Model. Defaults to "mock-embed".
	ModelName string

	// FailOn causes Embed to return an error when the input text matches
	FailOn string

	calls atomic.Int64
}

func NewMockEmbedder() *MockEmbedder {
	return &MockEmbedder{
		Embeddings: make(map[string][]float32),
		ModelName:  "mock-embed",
	}
}

func (m *MockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	m.calls.Add(1)

	if m.FailOn != "" && text == m.FailOn {
		return nil, fmt.Errorf("mock embedding failure for: %s", text)
	}

	if emb, ok := m.Embeddings[text]; ok {
		return emb, nil
	}

	// Return a default embedding for any text
	return []float32{0.1, 0.2, 0.3}, nil
}

func (m *MockEmbedder) Model() string {
	return m.ModelName
}

// Calls returns how many times Embed was called.
func (m *MockEmbedder) Calls() int {
	return int(m.calls.Load())
}

func (m *MockEmbedder) Close() error {
	return nil
}
