package testutils

import (
	"context"
	"sync"

	"github.com/papercomputeco/keepsake/pkg/memory"
)

// MockExtractor is a test extractor that returns facts scripted per message
// content and records every request.
type MockExtractor struct {
	// Results maps message content to the candidates returned for it.
	Results map[string][]memory.ExtractedFact

	// Err, when set, is returned for every call.
	Err error

	// PanicOn causes a panic when the message content matches.
	PanicOn string

	// Gate, when set, blocks each call until a value is received or it is
	// closed. Entered receives the content of each call before it blocks.
	Gate    chan struct{}
	Entered chan string

	mu       sync.Mutex
	requests []memory.ExtractRequest
}

// NewMockExtractor creates a new mock extractor.
func NewMockExtractor() *MockExtractor {
	return &MockExtractor{
		Results: make(map[string][]memory.ExtractedFact),
	}
}

func (m *MockExtractor) ExtractMemoryFacts(ctx context.Context, req memory.ExtractRequest) ([]memory.ExtractedFact, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.Entered != nil {
		m.Entered <- req.MessageContent
	}
	if m.Gate != nil {
		select {
		case <-m.Gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if m.PanicOn != "" && req.MessageContent == m.PanicOn {
		panic("mock extractor panic")
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Results[req.MessageContent], nil
}

// Requests returns every request seen so far.
func (m *MockExtractor) Requests() []memory.ExtractRequest {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]memory.ExtractRequest(nil), m.requests...)
}

var _ memory.Extractor = (*MockExtractor)(nil)
