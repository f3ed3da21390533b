package dotdir_test

import (
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/keepsake/pkg/dotdir"
)

var _ = Describe("Layout", func() {
	It("places every default file under the resolved directory", func() {
		root := filepath.Join(GinkgoT().TempDir(), "state")

		l, err := dotdir.NewManager().Layout(root)
		Expect(err).NotTo(HaveOccurred())
		Expect(root).To(BeADirectory())

		Expect(l.SQLitePath()).To(Equal(filepath.Join(root, "keepsake.sqlite")))
		Expect(l.VectorPath()).To(Equal(filepath.Join(root, "vectors.sqlite")))
		Expect(l.JournalDir()).To(Equal(filepath.Join(root, "journal")))
		Expect(l.SnapshotPath()).To(Equal(filepath.Join(root, "MEMORY.md")))
	})

	It("prefers explicit paths over layout defaults", func() {
		Expect(dotdir.Or("/data/facts.db", "/default.db")).To(Equal("/data/facts.db"))
		Expect(dotdir.Or("", "/default.db")).To(Equal("/default.db"))
	})
})
