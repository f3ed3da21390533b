// Package storage defines the durable fact store used by the memory engine
// and the row shapes it persists.
package storage

import (
	"context"
)

// Driver defines the interface for persisting and retrieving durable facts,
// ingested messages, and the action audit log.
//
// Facts are immutable once written. Staleness is handled by ArchiveOldFacts,
// which hides all but the newest keep facts for a subject.
type Driver interface {
	// AddFact inserts a fact. Returns true if the row was newly inserted,
	// false if an identical (guild, subject, fact) row already exists.
	// On insert the driver assigns fact.ID and fact.CreatedAt when unset.
	AddFact(ctx context.Context, fact *Fact) (bool, error)

	// GetFactBySubjectAndFact returns the live fact with the exact text for
	// the subject in a guild, or NotFoundError.
	GetFactBySubjectAndFact(ctx context.Context, guildID, subject, fact string) (*Fact, error)

	// FactsForSubjects returns live facts for any of the subjects, newest first.
	FactsForSubjects(ctx context.Context, subjects []string, q FactQuery) ([]*Fact, error)

	// FactsForScope returns live facts in a guild regardless of subject, newest
	// first. An empty guild id returns facts across every guild.
	FactsForScope(ctx context.Context, q FactQuery) ([]*Fact, error)

	// ArchiveOldFacts archives every live fact for the subject beyond the newest
	// keep facts. Returns the number of archived rows.
	ArchiveOldFacts(ctx context.Context, guildID, subject string, keep int) (int, error)

	// AddMessage records a cleaned, ingested chat message.
	AddMessage(ctx context.Context, msg *Message) error

	// SearchMessages returns recent messages in a guild containing any of the
	// query tokens, newest first.
	SearchMessages(ctx context.Context, q MessageQuery) ([]*Message, error)

	// LogAction appends an entry to the action audit log.
	LogAction(ctx context.Context, entry ActionEntry) error

	// Close closes the store and releases any resources.
	Close() error
}

// FactQuery narrows fact lookups.
type FactQuery struct {
	GuildID string
	Limit   int
}

// MessageQuery narrows message searches.
type MessageQuery struct {
	GuildID string
	Tokens  []string
	Limit   int
}
