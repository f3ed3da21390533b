package kafka_test

import (
	"context"
	"encoding/json"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/papercomputeco/keepsake/pkg/eventstream"
	"github.com/papercomputeco/keepsake/pkg/eventstream/kafka"
	"github.com/papercomputeco/keepsake/pkg/storage"
)

type fakeWriter struct {
	msgs   []kafkago.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

var _ = Describe("Publisher", func() {
	var (
		w *fakeWriter
		p *kafka.Publisher
	)

	BeforeEach(func() {
		w = &fakeWriter{}
		p = kafka.NewPublisherWithWriter(w)
	})

	It("requires brokers", func() {
		_, err := kafka.NewPublisher(kafka.Config{})
		Expect(err).To(HaveOccurred())
	})

	It("returns ErrNilFactEvent for nil events", func() {
		Expect(p.PublishFact(context.Background(), nil)).To(MatchError(eventstream.ErrNilFactEvent))
	})

	It("writes a keyed JSON message", func() {
		event := eventstream.NewFactPersistedEvent(&storage.Fact{
			ID:      1,
			GuildID: "g1",
			Subject: "u1",
			Fact:    "User likes tea.",
		}, eventstream.EventSource{Origin: "ingest"})

		Expect(p.PublishFact(context.Background(), event)).To(Succeed())
		Expect(w.msgs).To(HaveLen(1))
		Expect(string(w.msgs[0].Key)).To(Equal("g1/u1"))

		var decoded eventstream.FactPersistedEvent
		Expect(json.Unmarshal(w.msgs[0].Value, &decoded)).To(Succeed())
		Expect(decoded.Fact.Fact).To(Equal("User likes tea."))
		Expect(decoded.EventID).To(Equal(event.EventID))
	})

	It("wraps writer errors", func() {
		w.err = errors.New("broker down")
		event := eventstream.NewFactPersistedEvent(&storage.Fact{GuildID: "g1"}, eventstream.EventSource{})
		Expect(p.PublishFact(context.Background(), event)).To(MatchError(ContainSubstring("broker down")))
	})

	It("closes the writer", func() {
		Expect(p.Close()).To(Succeed())
		Expect(w.closed).To(BeTrue())
	})
})
