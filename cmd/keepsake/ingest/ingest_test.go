package ingestcmder_test

import (
	"context"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/keepsake/cmd/keepsake/cmdtest"
	ingestcmder "github.com/papercomputeco/keepsake/cmd/keepsake/ingest"
	"github.com/papercomputeco/keepsake/pkg/memory"
	"github.com/papercomputeco/keepsake/pkg/storage"
	testutils "github.com/papercomputeco/keepsake/pkg/utils/test"
)

const message = "I just adopted a greyhound named Pixel"

var _ = Describe("ingest command", func() {
	var (
		server    *cmdtest.Server
		extractor *testutils.MockExtractor
	)

	BeforeEach(func() {
		extractor = testutils.NewMockExtractor()
		extractor.Results[message] = []memory.ExtractedFact{
			{Fact: "User adopted a greyhound named Pixel", Type: "profile", Confidence: 0.9, Evidence: "adopted a greyhound named Pixel"},
		}
		server = cmdtest.NewServer(&memory.Config{Extractor: extractor})
	})

	It("ingests a message and stores its facts", func() {
		out, err := server.Run(ingestcmder.NewIngestCmd(), message, "--id", "m1", "--guild", "g1", "--author", "u1", "--author-name", "ana")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("Ingested message m1"))

		facts, err := server.Store.FactsForSubjects(context.Background(), []string{"u1"}, storage.FactQuery{GuildID: "g1"})
		Expect(err).NotTo(HaveOccurred())
		Expect(facts).To(HaveLen(1))
		Expect(facts[0].Fact).To(Equal("User adopted a greyhound named Pixel."))
	})

	It("reads the message from stdin", func() {
		cmd := ingestcmder.NewIngestCmd()
		cmd.SetIn(strings.NewReader(message))

		_, err := server.Run(cmd, "-", "--guild", "g1", "--author", "u1")
		Expect(err).NotTo(HaveOccurred())
		Expect(extractor.Requests()).To(HaveLen(1))
		Expect(extractor.Requests()[0].MessageContent).To(Equal(message))
	})

	It("queues without waiting", func() {
		out, err := server.Run(ingestcmder.NewIngestCmd(), "see you all tomorrow", "--id", "m2", "--author", "u1", "--wait=false")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Or(ContainSubstring("Queued message m2"), ContainSubstring("Ingested message m2")))
	})

	It("rejects empty content", func() {
		_, err := server.Run(ingestcmder.NewIngestCmd(), "   ", "--author", "u1")
		Expect(err).To(MatchError("message content is empty"))
	})
})
