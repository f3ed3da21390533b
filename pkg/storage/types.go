package storage

import (
	"strings"
	"time"
)

const (
	// SubjectSelf is the subject for durable facts about the agent's own persona.
	SubjectSelf = "__self__"

	// SubjectLore is the subject for server-wide facts not tied to one person.
	SubjectLore = "__lore__"
)

// FactType classifies a durable fact.
type FactType string

const (
	FactTypePreference   FactType = "preference"
	FactTypeProfile      FactType = "profile"
	FactTypeRelationship FactType = "relationship"
	FactTypeProject      FactType = "project"
	FactTypeLore         FactType = "lore"
	FactTypeSelf         FactType = "self"
	FactTypeOther        FactType = "other"
)

// ParseFactType maps a free-form type label onto a FactType. Unknown labels
// map to FactTypeOther.
func ParseFactType(s string) FactType {
	switch FactType(strings.ToLower(strings.TrimSpace(s))) {
	case FactTypePreference:
		return FactTypePreference
	case FactTypeProfile:
		return FactTypeProfile
	case FactTypeRelationship:
		return FactTypeRelationship
	case FactTypeProject:
		return FactTypeProject
	case FactTypeLore:
		return FactTypeLore
	case FactTypeSelf:
		return FactTypeSelf
	default:
		return FactTypeOther
	}
}

// Fact is a durable, immutable-once-written record about a subject.
type Fact struct {
	ID              int64     `json:"id"`
	GuildID         string    `json:"guild_id"`
	ChannelID       string    `json:"channel_id,omitempty"`
	Subject         string    `json:"subject"`
	Fact            string    `json:"fact"`
	FactType        FactType  `json:"fact_type"`
	EvidenceText    string    `json:"evidence_text,omitempty"`
	SourceMessageID string    `json:"source_message_id"`
	Confidence      float64   `json:"confidence"`
	CreatedAt       time.Time `json:"created_at"`
}

// IsUserSubject reports whether the fact is about a person rather than the
// agent itself or shared lore.
func (f *Fact) IsUserSubject() bool {
	return IsUserSubject(f.Subject)
}

// IsUserSubject reports whether subject is an opaque user id.
func IsUserSubject(subject string) bool {
	return subject != "" && subject != SubjectSelf && subject != SubjectLore
}

// Message is a cleaned chat message recorded by the ingestion pipeline.
type Message struct {
	MessageID  string    `json:"message_id"`
	GuildID    string    `json:"guild_id,omitempty"`
	ChannelID  string    `json:"channel_id,omitempty"`
	AuthorID   string    `json:"author_id"`
	AuthorName string    `json:"author_name"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
}

// ActionEntry is one row in the action audit log.
type ActionEntry struct {
	Kind      string         `json:"kind"`
	GuildID   string         `json:"guild_id,omitempty"`
	ChannelID string         `json:"channel_id,omitempty"`
	UserID    string         `json:"user_id,omitempty"`
	MessageID string         `json:"message_id,omitempty"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
