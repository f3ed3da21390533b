package snapshotcmder_test

import (
	"context"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/keepsake/cmd/keepsake/cmdtest"
	snapshotcmder "github.com/papercomputeco/keepsake/cmd/keepsake/snapshot"
	"github.com/papercomputeco/keepsake/pkg/memory"
	testutils "github.com/papercomputeco/keepsake/pkg/utils/test"
)

var _ = Describe("snapshot command", func() {
	var (
		server *cmdtest.Server
		path   string
	)

	BeforeEach(func() {
		path = filepath.Join(GinkgoT().TempDir(), "MEMORY.md")
		server = cmdtest.NewServer(&memory.Config{SnapshotPath: path, SnapshotDebounce: time.Hour})

		_, err := server.Store.AddFact(context.Background(), testutils.NewTestFact("g1", "u1", "User speaks Portuguese.", time.Now()))
		Expect(err).NotTo(HaveOccurred())
	})

	It("prints raw markdown when not a terminal", func() {
		out, err := server.Run(snapshotcmder.NewSnapshotCmd())
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("- User speaks Portuguese."))
		Expect(path).NotTo(BeAnExistingFile())
	})

	It("renders markdown on request", func() {
		out, err := server.Run(snapshotcmder.NewSnapshotCmd(), "--render")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("User speaks Portuguese."))
	})

	It("refreshes the snapshot file", func() {
		_, err := server.Run(snapshotcmder.NewSnapshotCmd(), "--refresh")
		Expect(err).NotTo(HaveOccurred())

		data, err := os.ReadFile(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(ContainSubstring("User speaks Portuguese."))
	})
})
