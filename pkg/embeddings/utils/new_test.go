package embeddingutils_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	embeddingutils "github.com/papercomputeco/keepsake/pkg/embeddings/utils"
)

var _ = Describe("NewEmbedder", func() {
	It("builds an ollama embedder", func() {
		e, err := embeddingutils.NewEmbedder(&embeddingutils.NewEmbedderOpts{
			ProviderType: "ollama",
			Model:        "all-minilm",
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(e.Model()).To(Equal("all-minilm"))
	})

	It("builds an openai embedder", func() {
		e, err := embeddingutils.NewEmbedder(&embeddingutils.NewEmbedderOpts{
			ProviderType: "openai",
			APIKey:       "sk-test",
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(e.Model()).To(Equal("text-embedding-3-small"))
	})

	It("rejects unknown providers", func() {
		_, err := embeddingutils.NewEmbedder(&embeddingutils.NewEmbedderOpts{ProviderType: "cohere"})
		Expect(err).To(MatchError(ContainSubstring("unsupported embedding provider")))
	})
})
