// Package storagetest holds the behavior every storage.Driver must share,
// written as Ginkgo specs that driver test suites run against their driver.
package storagetest

import (
	"context"
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/keepsake/pkg/storage"
)

// DriverBehaviors registers the shared driver specs. newDriver is called
// before each spec and must return an empty store.
func DriverBehaviors(newDriver func(ctx context.Context) storage.Driver) {
	var (
		ctx    context.Context
		driver storage.Driver
		base   time.Time
	)

	BeforeEach(func() {
		ctx = context.Background()
		driver = newDriver(ctx)
		base = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	})

	AfterEach(func() {
		if driver != nil {
			Expect(driver.Close()).To(Succeed())
		}
	})

	fact := func(guild, subject, text string, age time.Duration) *storage.Fact {
		return &storage.Fact{
			GuildID:         guild,
			ChannelID:       "c1",
			Subject:         subject,
			Fact:            text,
			FactType:        storage.FactTypePreference,
			EvidenceText:    "evidence for " + text,
			SourceMessageID: "m-" + text,
			Confidence:      0.75,
			CreatedAt:       base.Add(-age),
		}
	}

	Describe("AddFact", func() {
		It("assigns an id and round-trips every field", func() {
			f := fact("g1", "u1", "User likes tea.", 0)
			inserted, err := driver.AddFact(ctx, f)
			Expect(err).NotTo(HaveOccurred())
			Expect(inserted).To(BeTrue())
			Expect(f.ID).To(BeNumerically(">", 0))

			got, err := driver.GetFactBySubjectAndFact(ctx, "g1", "u1", "User likes tea.")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ID).To(Equal(f.ID))
			Expect(got.ChannelID).To(Equal("c1"))
			Expect(got.FactType).To(Equal(storage.FactTypePreference))
			Expect(got.EvidenceText).To(Equal("evidence for User likes tea."))
			Expect(got.SourceMessageID).To(Equal("m-User likes tea."))
			Expect(got.Confidence).To(BeNumerically("~", 0.75, 1e-9))
			Expect(got.CreatedAt.Equal(base)).To(BeTrue())
		})

		It("does not insert an identical live fact twice", func() {
			_, err := driver.AddFact(ctx, fact("g1", "u1", "User likes tea.", 0))
			Expect(err).NotTo(HaveOccurred())

			inserted, err := driver.AddFact(ctx, fact("g1", "u1", "User likes tea.", 0))
			Expect(err).NotTo(HaveOccurred())
			Expect(inserted).To(BeFalse())

			inserted, err = driver.AddFact(ctx, fact("g2", "u1", "User likes tea.", 0))
			Expect(err).NotTo(HaveOccurred())
			Expect(inserted).To(BeTrue())
		})

		It("rejects a nil fact", func() {
			_, err := driver.AddFact(ctx, nil)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("GetFactBySubjectAndFact", func() {
		It("returns NotFoundError for unknown facts", func() {
			_, err := driver.GetFactBySubjectAndFact(ctx, "g1", "u1", "missing")
			Expect(err).To(BeAssignableToTypeOf(storage.NotFoundError{}))
		})
	})

	Describe("fact listing", func() {
		BeforeEach(func() {
			for i, s := range []string{"u1", "u2", "u1", "u3"} {
				_, err := driver.AddFact(ctx, fact("g1", s, fmt.Sprintf("Fact %d.", i), time.Duration(i)*time.Hour))
				Expect(err).NotTo(HaveOccurred())
			}
			_, err := driver.AddFact(ctx, fact("g2", "u1", "Other guild fact.", 0))
			Expect(err).NotTo(HaveOccurred())
		})

		It("lists subject facts newest first", func() {
			facts, err := driver.FactsForSubjects(ctx, []string{"u1", "u3"}, storage.FactQuery{GuildID: "g1"})
			Expect(err).NotTo(HaveOccurred())

			var texts []string
			for _, f := range facts {
				texts = append(texts, f.Fact)
			}
			Expect(texts).To(Equal([]string{"Fact 0.", "Fact 2.", "Fact 3."}))
		})

		It("returns nothing for no subjects", func() {
			facts, err := driver.FactsForSubjects(ctx, nil, storage.FactQuery{GuildID: "g1"})
			Expect(err).NotTo(HaveOccurred())
			Expect(facts).To(BeEmpty())
		})

		It("lists a guild's facts with a limit", func() {
			facts, err := driver.FactsForScope(ctx, storage.FactQuery{GuildID: "g1", Limit: 2})
			Expect(err).NotTo(HaveOccurred())
			Expect(facts).To(HaveLen(2))
			Expect(facts[0].Fact).To(Equal("Fact 0."))
			Expect(facts[1].Fact).To(Equal("Fact 1."))
		})

		It("lists every guild for an empty guild id", func() {
			facts, err := driver.FactsForScope(ctx, storage.FactQuery{})
			Expect(err).NotTo(HaveOccurred())
			Expect(facts).To(HaveLen(5))
		})
	})

	Describe("ArchiveOldFacts", func() {
		It("hides all but the newest facts for the subject", func() {
			for i := range 5 {
				_, err := driver.AddFact(ctx, fact("g1", "u1", fmt.Sprintf("Fact %d.", i), time.Duration(i)*time.Hour))
				Expect(err).NotTo(HaveOccurred())
			}
			_, err := driver.AddFact(ctx, fact("g1", "u2", "Untouched.", 10*time.Hour))
			Expect(err).NotTo(HaveOccurred())

			archived, err := driver.ArchiveOldFacts(ctx, "g1", "u1", 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(archived).To(Equal(3))

			facts, err := driver.FactsForScope(ctx, storage.FactQuery{GuildID: "g1"})
			Expect(err).NotTo(HaveOccurred())
			Expect(facts).To(HaveLen(3))

			_, err = driver.GetFactBySubjectAndFact(ctx, "g1", "u1", "Fact 4.")
			Expect(err).To(BeAssignableToTypeOf(storage.NotFoundError{}))

			archived, err = driver.ArchiveOldFacts(ctx, "g1", "u1", 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(archived).To(BeZero())
		})

		It("allows an archived fact's text to be stored again", func() {
			_, err := driver.AddFact(ctx, fact("g1", "u1", "Old news.", time.Hour))
			Expect(err).NotTo(HaveOccurred())
			_, err = driver.ArchiveOldFacts(ctx, "g1", "u1", 0)
			Expect(err).NotTo(HaveOccurred())

			inserted, err := driver.AddFact(ctx, fact("g1", "u1", "Old news.", 0))
			Expect(err).NotTo(HaveOccurred())
			Expect(inserted).To(BeTrue())
		})
	})

	Describe("messages", func() {
		BeforeEach(func() {
			for i, content := range []string{"Rust is great", "I prefer Go", "rust again", "unrelated"} {
				Expect(driver.AddMessage(ctx, &storage.Message{
					MessageID:  fmt.Sprintf("m%d", i),
					GuildID:    "g1",
					ChannelID:  "c1",
					AuthorID:   "u1",
					AuthorName: "alice",
					Content:    content,
					CreatedAt:  base.Add(time.Duration(i) * time.Minute),
				})).To(Succeed())
			}
		})

		It("finds messages containing any token, newest first", func() {
			msgs, err := driver.SearchMessages(ctx, storage.MessageQuery{GuildID: "g1", Tokens: []string{"rust", "prefer"}})
			Expect(err).NotTo(HaveOccurred())

			var ids []string
			for _, m := range msgs {
				ids = append(ids, m.MessageID)
			}
			Expect(ids).To(Equal([]string{"m2", "m1", "m0"}))
		})

		It("honors the limit and guild", func() {
			msgs, err := driver.SearchMessages(ctx, storage.MessageQuery{GuildID: "g1", Tokens: []string{"rust"}, Limit: 1})
			Expect(err).NotTo(HaveOccurred())
			Expect(msgs).To(HaveLen(1))

			msgs, err = driver.SearchMessages(ctx, storage.MessageQuery{GuildID: "g2", Tokens: []string{"rust"}})
			Expect(err).NotTo(HaveOccurred())
			Expect(msgs).To(BeEmpty())
		})

		It("returns nothing without tokens", func() {
			msgs, err := driver.SearchMessages(ctx, storage.MessageQuery{GuildID: "g1"})
			Expect(err).NotTo(HaveOccurred())
			Expect(msgs).To(BeEmpty())
		})
	})

	Describe("LogAction", func() {
		It("appends entries with metadata", func() {
			Expect(driver.LogAction(ctx, storage.ActionEntry{
				Kind:     "memory_remember",
				GuildID:  "g1",
				Content:  "User likes tea.",
				Metadata: map[string]any{"scope": "user"},
			})).To(Succeed())
		})
	})
}
