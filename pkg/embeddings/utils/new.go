// Package embeddingutils is the embeddings utility package
package embeddingutils

import (
	"fmt"

	"github.com/papercomputeco/keepsake/pkg/embeddings"
	"github.com/papercomputeco/keepsake/pkg/embeddings/ollama"
	"github.com/papercomputeco/keepsake/pkg/embeddings/openai"
)

type NewEmbedderOpts struct {
	ProviderType string
	TargetURL    string
	Model        string
	APIKey       string
	Dimensions   int
}

func NewEmbedder(o *NewEmbedderOpts) (embeddings.Embedder, error) {
	switch o.ProviderType {
	case "ollama":
		return ollama.NewEmbedder(ollama.EmbedderConfig{
			BaseURL: o.TargetURL,
			Model:   o.Model,
		})
	case "openai":
		return openai.NewEmbedder(openai.EmbedderConfig{
			BaseURL:    o.TargetURL,
			APIKey:     o.APIKey,
			Model:      o.Model,
			Dimensions: o.Dimensions,
		})
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", o.ProviderType)
	}
}
