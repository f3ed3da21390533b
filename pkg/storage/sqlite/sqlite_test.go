package sqlite_test

import (
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/keepsake/pkg/storage"
	"github.com/papercomputeco/keepsake/pkg/storage/sqlite"
	"github.com/papercomputeco/keepsake/pkg/storage/storagetest"
)

var _ = Describe("SQLiteDriver", func() {
	Describe("NewSQLiteDriver", func() {
		It("creates a driver with file database", func() {
			tmpDir := GinkgoT().TempDir()
			dbPath := filepath.Join(tmpDir, "test.db")

			s, err := sqlite.NewSQLiteDriver(context.Background(), dbPath)
			Expect(err).NotTo(HaveOccurred())
			defer s.Close()

			// Verify file was created
			_, err = os.Stat(dbPath)
			Expect(err).NotTo(HaveOccurred())
		})

		It("reopens an existing database without losing facts", func() {
			ctx := context.Background()
			dbPath := filepath.Join(GinkgoT().TempDir(), "test.db")

			s, err := sqlite.NewSQLiteDriver(ctx, dbPath)
			Expect(err).NotTo(HaveOccurred())
			_, err = s.AddFact(ctx, &storage.Fact{GuildID: "g1", Subject: "u1", Fact: "User likes tea."})
			Expect(err).NotTo(HaveOccurred())
			Expect(s.Close()).To(Succeed())

			s, err = sqlite.NewSQLiteDriver(ctx, dbPath)
			Expect(err).NotTo(HaveOccurred())
			defer s.Close()

			_, err = s.GetFactBySubjectAndFact(ctx, "g1", "u1", "User likes tea.")
			Expect(err).NotTo(HaveOccurred())
		})
	})

	Describe("storage.Driver behavior", func() {
		storagetest.DriverBehaviors(func(ctx context.Context) storage.Driver {
			driver, err := sqlite.NewSQLiteDriver(ctx, ":memory:")
			Expect(err).NotTo(HaveOccurred())
			return driver
		})
	})
})
