// Package embeddings
package embeddings

import "context"

// Embedder provides text embedding capabilities.
type Embedder interface {
	// Embed converts text into a vector embedding using the configured model.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Model returns the name of the configured embedding model.
	Model() string

	// Close releases any resources held by the embedder.
	Close() error
}

// ModelEmbedder is implemented by embedders that can embed with a model other
// than the one they were configured with.
type ModelEmbedder interface {
	EmbedWithModel(ctx context.Context, model, text string) ([]float32, error)
}
