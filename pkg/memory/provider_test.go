package memory_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/keepsake/pkg/memory"
	testutils "github.com/papercomputeco/keepsake/pkg/utils/test"
	"github.com/papercomputeco/keepsake/pkg/vector"
)

// modelEmbedder records the model it was asked to embed with.
type modelEmbedder struct {
	*testutils.MockEmbedder
	lastModel string
}

func (m *modelEmbedder) EmbedWithModel(_ context.Context, model, _ string) ([]float32, error) {
	m.lastModel = model
	return []float32{1, 0}, nil
}

var _ = Describe("EmbedderProvider", func() {
	var (
		ctx      context.Context
		embedder *testutils.MockEmbedder
	)

	BeforeEach(func() {
		ctx = context.Background()
		embedder = testutils.NewMockEmbedder()
	})

	It("embeds with the embedder's model", func() {
		embedder.Embeddings["hello"] = []float32{0.5, 0.5}
		provider := memory.NewEmbedderProvider(embedder)

		emb, err := provider.EmbedText(ctx, memory.EmbedRequest{Text: "hello"})
		Expect(err).NotTo(HaveOccurred())
		Expect(emb.Model).To(Equal("mock-embed"))
		Expect(emb.Embedding).To(Equal([]float32{0.5, 0.5}))
		Expect(embedder.Calls()).To(Equal(1))
	})

	It("ignores a model override the embedder cannot honor", func() {
		provider := memory.NewEmbedderProvider(embedder)
		settings := memory.Settings{EmbeddingModel: "other-model"}

		Expect(provider.ResolveEmbeddingModel(settings)).To(Equal("mock-embed"))
	})

	It("routes model overrides to embedders that support them", func() {
		me := &modelEmbedder{MockEmbedder: embedder}
		provider := memory.NewEmbedderProvider(me)
		settings := memory.Settings{EmbeddingModel: "other-model"}

		emb, err := provider.EmbedText(ctx, memory.EmbedRequest{Text: "hi", Settings: settings})
		Expect(err).NotTo(HaveOccurred())
		Expect(emb.Model).To(Equal("other-model"))
		Expect(me.lastModel).To(Equal("other-model"))
		Expect(embedder.Calls()).To(Equal(0))
	})

	It("returns embedder failures", func() {
		embedder.FailOn = "boom"
		provider := memory.NewEmbedderProvider(embedder)

		_, err := provider.EmbedText(ctx, memory.EmbedRequest{Text: "boom"})
		Expect(err).To(HaveOccurred())
	})

	It("rejects empty embeddings", func() {
		embedder.Embeddings["empty"] = []float32{}
		provider := memory.NewEmbedderProvider(embedder)

		_, err := provider.EmbedText(ctx, memory.EmbedRequest{Text: "empty"})
		Expect(errors.Is(err, vector.ErrEmbedding)).To(BeTrue())
	})
})
