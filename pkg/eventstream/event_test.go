package eventstream_test

import (
	"encoding/json"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/keepsake/pkg/eventstream"
	"github.com/papercomputeco/keepsake/pkg/storage"
)

var _ = Describe("Event", func() {
	var fact *storage.Fact

	BeforeEach(func() {
		fact = &storage.Fact{
			ID:              7,
			GuildID:         "g1",
			Subject:         "u1",
			Fact:            "User loves pineapple pizza.",
			FactType:        storage.FactTypePreference,
			SourceMessageID: "m1",
			Confidence:      0.8,
			CreatedAt:       time.Unix(1735689600, 0).UTC(),
		}
	})

	It("marshals FactPersistedEvent with expected top-level keys", func() {
		event := eventstream.NewFactPersistedEvent(fact, eventstream.EventSource{Origin: "ingest", UserID: "u1"})

		payload, err := json.Marshal(event)
		Expect(err).NotTo(HaveOccurred())

		var got map[string]any
		Expect(json.Unmarshal(payload, &got)).To(Succeed())

		Expect(got).To(HaveKey("schema_version"))
		Expect(got).To(HaveKey("event_type"))
		Expect(got).To(HaveKey("event_id"))
		Expect(got).To(HaveKey("emitted_at"))
		Expect(got).To(HaveKey("source"))
		Expect(got).To(HaveKey("fact"))
	})

	It("copies the fact and assigns a unique id", func() {
		a := eventstream.NewFactPersistedEvent(fact, eventstream.EventSource{Origin: "ingest"})
		b := eventstream.NewFactPersistedEvent(fact, eventstream.EventSource{Origin: "ingest"})
		Expect(a.EventID).NotTo(Equal(b.EventID))

		fact.Fact = "changed"
		Expect(a.Fact.Fact).To(Equal("User loves pineapple pizza."))
	})

	It("partitions by guild and subject", func() {
		event := eventstream.NewFactPersistedEvent(fact, eventstream.EventSource{})
		Expect(event.PartitionKey()).To(Equal("g1/u1"))
	})

	It("defines stable event constants", func() {
		Expect(eventstream.SchemaVersionV1).To(BeNumerically(">", 0))
		Expect(eventstream.EventTypeFactPersisted).To(Equal("keepsake.fact.persisted"))
	})

	It("provides ErrNilFactEvent for nil payload validation", func() {
		Expect(eventstream.ErrNilFactEvent).To(MatchError("nil fact event"))
	})
})
