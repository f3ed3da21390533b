package searchcmder_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/keepsake/cmd/keepsake/cmdtest"
	searchcmder "github.com/papercomputeco/keepsake/cmd/keepsake/search"
	testutils "github.com/papercomputeco/keepsake/pkg/utils/test"
)

var _ = Describe("search command", func() {
	var server *cmdtest.Server

	BeforeEach(func() {
		server = cmdtest.NewServer(nil)

		ctx := context.Background()
		now := time.Now()
		for _, f := range []string{"User brews espresso at home.", "User owns a cat named Miso."} {
			_, err := server.Store.AddFact(ctx, testutils.NewTestFact("g1", "u1", f, now))
			Expect(err).NotTo(HaveOccurred())
		}
	})

	It("prints ranked facts", func() {
		out, err := server.Run(searchcmder.NewSearchCmd(), "espresso", "--guild", "g1")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring(`Facts matching: "espresso"`))
		Expect(out).To(ContainSubstring("#1"))
		Expect(out).To(ContainSubstring("User brews espresso at home."))
		Expect(out).NotTo(ContainSubstring("Miso"))
	})

	It("prints only fact text when quiet", func() {
		out, err := server.Run(searchcmder.NewSearchCmd(), "cat", "--guild", "g1", "-q")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal("User owns a cat named Miso.\n"))
	})

	It("reports when nothing matches", func() {
		out, err := server.Run(searchcmder.NewSearchCmd(), "astronomy", "--guild", "g1")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("No facts found."))
	})

	It("requires a query", func() {
		_, err := server.Run(searchcmder.NewSearchCmd())
		Expect(err).To(HaveOccurred())
	})
})
