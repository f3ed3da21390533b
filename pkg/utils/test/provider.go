package testutils

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/papercomputeco/keepsake/pkg/memory"
)

// MockEmbeddingProvider is a memory.EmbeddingProvider with scripted vectors.
type MockEmbeddingProvider struct {
	// ModelName is the resolved model unless settings override it.
	ModelName string

	// Vectors maps a text substring to the vector returned for texts
	// containing it. The first match in Keys order wins.
	Vectors map[string][]float32
	Keys    []string

	// Default is returned when no key matches. Nil means an empty vector.
	Default []float32

	// Err, when set, is returned by every call.
	Err error

	// Gate, when set, blocks EmbedText until it is closed.
	Gate chan struct{}

	mu    sync.Mutex
	texts []string
	calls atomic.Int64
}

// NewMockEmbeddingProvider creates a provider that returns def for every text.
func NewMockEmbeddingProvider(def []float32) *MockEmbeddingProvider {
	return &MockEmbeddingProvider{
		ModelName: "mock-embed",
		Vectors:   make(map[string][]float32),
		Default:   def,
	}
}

// On returns vec for any text containing substr.
func (p *MockEmbeddingProvider) On(substr string, vec []float32) *MockEmbeddingProvider {
	p.Vectors[substr] = vec
	p.Keys = append(p.Keys, substr)
	return p
}

func (p *MockEmbeddingProvider) ResolveEmbeddingModel(settings memory.Settings) string {
	if settings.EmbeddingModel != "" {
		return settings.EmbeddingModel
	}
	return p.ModelName
}

func (p *MockEmbeddingProvider) EmbedText(ctx context.Context, req memory.EmbedRequest) (memory.Embedding, error) {
	p.calls.Add(1)
	p.mu.Lock()
	p.texts = append(p.texts, req.Text)
	p.mu.Unlock()

	if p.Gate != nil {
		select {
		case <-p.Gate:
		case <-ctx.Done():
			return memory.Embedding{}, ctx.Err()
		}
	}
	if p.Err != nil {
		return memory.Embedding{}, p.Err
	}

	vec := p.Default
	for _, k := range p.Keys {
		if strings.Contains(req.Text, k) {
			vec = p.Vectors[k]
			break
		}
	}
	if len(vec) == 0 {
		return memory.Embedding{}, errors.New("mock provider has no vector")
	}

	return memory.Embedding{
		Embedding: append([]float32(nil), vec...),
		Model:     p.ResolveEmbeddingModel(req.Settings),
	}, nil
}

// Calls returns how many times EmbedText was called.
func (p *MockEmbeddingProvider) Calls() int {
	return int(p.calls.Load())
}

// Texts returns every text passed to EmbedText.
func (p *MockEmbeddingProvider) Texts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]string(nil), p.texts...)
}

var _ memory.EmbeddingProvider = (*MockEmbeddingProvider)(nil)
