// Package openai implements pkg/embedding's Embedder client for OpenAI-compatible
// /v1/embeddings APIs.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/papercomputeco/keepsake/pkg/embeddings"
	"github.com/papercomputeco/keepsake/pkg/vector"
)

const (
	// DefaultEmbeddingModel is the default model used for embeddings.
	DefaultEmbeddingModel = "text-embedding-3-small"

	// DefaultBaseURL is the default OpenAI API URL.
	DefaultBaseURL = "https://api.openai.com"
)

// Embedder wraps an OpenAI-compatible embeddings endpoint.
type Embedder struct {
	baseURL    string
	apiKey     string
	model      string
	dimensions int
	httpClient *http.Client
}

// EmbedderConfig holds configuration for the OpenAI embedder.
type EmbedderConfig struct {
	// BaseURL is the API root without the /v1 suffix. Defaults to DefaultBaseURL.
	BaseURL string

	// APIKey is sent as a bearer token. Required.
	APIKey string

	// Model defaults to DefaultEmbeddingModel.
	Model string

	// Dimensions, when non-zero, is requested from the API and enforced on
	// responses.
	Dimensions int

	// Timeout bounds each embedding request. Defaults to 30 seconds.
	Timeout time.Duration
}

type embedRequest struct {
	Model      string `json:"model"`
	Input      string `json:"input"`
	Dimensions int    `json:"dimensions,omitempty"`
}

type embedResponse struct {
	Model string `json:"model"`
	Data  []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// NewEmbedder creates a new OpenAI embedder.
func NewEmbedder(cfg EmbedderConfig) (*Embedder, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("missing embedding api key")
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	model := cfg.Model
	if model == "" {
		model = DefaultEmbeddingModel
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Embedder{
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(cfg.APIKey),
		model:      model,
		dimensions: cfg.Dimensions,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// Model returns the configured embedding model.
func (e *Embedder) Model() string {
	return e.model
}

// Embed converts text into a vector embedding.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return e.EmbedWithModel(ctx, e.model, text)
}

// EmbedWithModel embeds text using the named model instead of the configured one.
func (e *Embedder) EmbedWithModel(ctx context.Context, model, text string) ([]float32, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty text", vector.ErrEmbedding)
	}
	if model == "" {
		model = e.model
	}

	payload, err := json.Marshal(embedRequest{Model: model, Input: trimmed, Dimensions: e.dimensions})
	if err != nil {
		return nil, fmt.Errorf("%w: marshaling request: %v", vector.ErrEmbedding, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/v1/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: creating request: %v", vector.ErrEmbedding, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: sending request: %v", vector.ErrEmbedding, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: embedding http %d: %s", vector.ErrEmbedding, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", vector.ErrEmbedding, err)
	}

	if len(decoded.Data) == 0 || len(decoded.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("%w: no embeddings returned", vector.ErrEmbedding)
	}

	emb := decoded.Data[0].Embedding
	if e.dimensions > 0 && len(emb) != e.dimensions {
		return nil, fmt.Errorf("%w: got %d, want %d", vector.ErrDimensionMismatch, len(emb), e.dimensions)
	}

	return emb, nil
}

// Close releases resources held by the embedder.
func (e *Embedder) Close() error {
	return nil
}

var (
	_ embeddings.Embedder      = (*Embedder)(nil)
	_ embeddings.ModelEmbedder = (*Embedder)(nil)
)
