// Package memory turns a stream of chat messages into durable, grounded facts
// and retrieves the most relevant of them for a conversational query.
//
// The [Engine] owns all per-instance state: the single-worker ingestion queue,
// the pending-jobs index used for request coalescing, the query embedding
// cache, and the debounced snapshot flag. Construct one per process (or per
// shard) with [NewEngine]; engines never share state implicitly.
//
// Collaborators are injected through [Config]:
//
//   - a [storage.Driver] holding facts, messages, and the action log
//   - an optional [vector.Driver] and [EmbeddingProvider] for semantic ranking
//   - an optional [Extractor] that proposes facts from a message
//   - an optional [Journal] and snapshot path for operator-facing files
//   - an optional [eventstream.Publisher] notified after every stored fact
package memory

import (
	"context"
	"time"

	"github.com/papercomputeco/keepsake/pkg/journal"
	"github.com/papercomputeco/keepsake/pkg/storage"
)

// Settings is the per-call snapshot of runtime-tunable memory settings.
type Settings struct {
	// Enabled turns fact extraction on. Journaling and the message log are
	// written regardless.
	Enabled bool `json:"enabled"`

	// ExtractionModel overrides the extractor's default model when set.
	ExtractionModel string `json:"extraction_model,omitempty"`

	// EmbeddingModel overrides the embedder's default model when set.
	EmbeddingModel string `json:"embedding_model,omitempty"`
}

// Trace correlates collaborator calls with the request that caused them.
type Trace struct {
	ID        string `json:"id,omitempty"`
	Source    string `json:"source,omitempty"`
	GuildID   string `json:"guild_id,omitempty"`
	ChannelID string `json:"channel_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
}

// ExtractRequest asks the extractor for candidate facts about a message author.
type ExtractRequest struct {
	Settings       Settings
	AuthorName     string
	MessageContent string
	MaxFacts       int
	Trace          Trace
}

// ExtractedFact is a candidate fact proposed by the extractor. It is not
// trusted until it passes grounding validation.
type ExtractedFact struct {
	Fact       string           `json:"fact"`
	Type       storage.FactType `json:"type"`
	Confidence float64          `json:"confidence"`
	Evidence   string           `json:"evidence,omitempty"`
}

// Extractor proposes candidate facts from a single chat message.
type Extractor interface {
	ExtractMemoryFacts(ctx context.Context, req ExtractRequest) ([]ExtractedFact, error)
}

// EmbedRequest asks the embedding provider to embed text.
type EmbedRequest struct {
	Settings Settings
	Text     string
	Trace    Trace
}

// Embedding is a vector together with the model that produced it.
type Embedding struct {
	Embedding []float32 `json:"embedding"`
	Model     string    `json:"model"`
}

// EmbeddingProvider embeds text under the model the settings resolve to.
type EmbeddingProvider interface {
	EmbedText(ctx context.Context, req EmbedRequest) (Embedding, error)
	ResolveEmbeddingModel(settings Settings) string
}

// Journal is the append-only message journal.
type Journal interface {
	Append(entry journal.Entry) error
	Tail(n int) ([]string, error)
}

// FactDTO is the public projection of a ranked fact.
type FactDTO struct {
	ID         int64            `json:"id"`
	Subject    string           `json:"subject"`
	Fact       string           `json:"fact"`
	FactType   storage.FactType `json:"fact_type"`
	Evidence   string           `json:"evidence,omitempty"`
	ChannelID  string           `json:"channel_id,omitempty"`
	Confidence float64          `json:"confidence"`
	CreatedAt  time.Time        `json:"created_at"`
	Score      float64          `json:"score"`
}

// MessageDTO is the public projection of a recalled chat message.
type MessageDTO struct {
	MessageID  string    `json:"message_id"`
	ChannelID  string    `json:"channel_id,omitempty"`
	AuthorID   string    `json:"author_id"`
	AuthorName string    `json:"author_name"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
}

// Stats is a point-in-time view of engine counters.
type Stats struct {
	Pending          int64 `json:"pending"`
	Queued           int   `json:"queued"`
	Processed        int64 `json:"processed"`
	Dropped          int64 `json:"dropped"`
	Failed           int64 `json:"failed"`
	FactsStored      int64 `json:"facts_stored"`
	FactsRejected    int64 `json:"facts_rejected"`
	SnapshotsWritten int64 `json:"snapshots_written"`
}
