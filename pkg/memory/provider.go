package memory

import (
	"context"
	"fmt"

	"github.com/papercomputeco/keepsake/pkg/embeddings"
	"github.com/papercomputeco/keepsake/pkg/vector"
)

// EmbedderProvider adapts an embeddings.Embedder to EmbeddingProvider.
type EmbedderProvider struct {
	embedder embeddings.Embedder
}

// NewEmbedderProvider wraps embedder.
func NewEmbedderProvider(embedder embeddings.Embedder) *EmbedderProvider {
	return &EmbedderProvider{embedder: embedder}
}

// ResolveEmbeddingModel returns the settings override when the embedder can
// honor it, else the embedder's configured model.
func (p *EmbedderProvider) ResolveEmbeddingModel(settings Settings) string {
	if settings.EmbeddingModel != "" {
		if _, ok := p.embedder.(embeddings.ModelEmbedder); ok {
			return settings.EmbeddingModel
		}
	}
	return p.embedder.Model()
}

// EmbedText embeds req.Text under the resolved model.
func (p *EmbedderProvider) EmbedText(ctx context.Context, req EmbedRequest) (Embedding, error) {
	model := p.ResolveEmbeddingModel(req.Settings)

	var (
		emb []float32
		err error
	)
	if me, ok := p.embedder.(embeddings.ModelEmbedder); ok && model != p.embedder.Model() {
		emb, err = me.EmbedWithModel(ctx, model, req.Text)
	} else {
		emb, err = p.embedder.Embed(ctx, req.Text)
	}
	if err != nil {
		return Embedding{}, err
	}
	if len(emb) == 0 {
		return Embedding{}, fmt.Errorf("%w: empty embedding", vector.ErrEmbedding)
	}

	return Embedding{Embedding: emb, Model: model}, nil
}

var _ EmbeddingProvider = (*EmbedderProvider)(nil)
