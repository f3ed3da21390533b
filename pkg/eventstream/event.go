package eventstream

import (
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/keepsake/pkg/storage"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeFactPersisted is emitted after a durable fact is stored.
	EventTypeFactPersisted = "keepsake.fact.persisted"
)

// FactPersistedEvent is a transport-neutral event payload for a stored fact.
type FactPersistedEvent struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	EventID       string       `json:"event_id"`
	EmittedAt     time.Time    `json:"emitted_at"`
	Source        EventSource  `json:"source"`
	Fact          storage.Fact `json:"fact"`
}

// EventSource identifies how the fact entered the store.
type EventSource struct {
	// Origin is "ingest" for extracted facts or "directive" for explicit
	// remember requests.
	Origin    string `json:"origin"`
	UserID    string `json:"user_id,omitempty"`
	ChannelID string `json:"channel_id,omitempty"`
	Trace     string `json:"trace,omitempty"`
}

// NewFactPersistedEvent wraps a copy of fact in a v1 event with a fresh id.
func NewFactPersistedEvent(fact *storage.Fact, source EventSource) *FactPersistedEvent {
	return &FactPersistedEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypeFactPersisted,
		EventID:       uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		Source:        source,
		Fact:          *fact,
	}
}

// PartitionKey groups events for the same subject so consumers see them in
// insert order.
func (e *FactPersistedEvent) PartitionKey() string {
	return e.Fact.GuildID + "/" + e.Fact.Subject
}
