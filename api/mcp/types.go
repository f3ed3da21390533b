package mcp

import (
	"time"

	"github.com/papercomputeco/keepsake/pkg/memory"
)

// Fact is a ranked durable fact as returned to MCP clients.
type Fact struct {
	ID         int64   `json:"id"`
	Subject    string  `json:"subject"`
	Fact       string  `json:"fact"`
	Type       string  `json:"type"`
	Evidence   string  `json:"evidence,omitempty"`
	ChannelID  string  `json:"channel_id,omitempty"`
	Confidence float64 `json:"confidence"`
	Score      float64 `json:"score"`
	CreatedAt  string  `json:"created_at"`
}

// Message is a recalled chat message as returned to MCP clients.
type Message struct {
	MessageID  string `json:"message_id"`
	ChannelID  string `json:"channel_id,omitempty"`
	AuthorID   string `json:"author_id"`
	AuthorName string `json:"author_name"`
	Content    string `json:"content"`
	CreatedAt  string `json:"created_at"`
}

func toFacts(in []memory.FactDTO) []Fact {
	out := make([]Fact, 0, len(in))
	for _, f := range in {
		out = append(out, Fact{
			ID:         f.ID,
			Subject:    f.Subject,
			Fact:       f.Fact,
			Type:       string(f.FactType),
			Evidence:   f.Evidence,
			ChannelID:  f.ChannelID,
			Confidence: f.Confidence,
			Score:      f.Score,
			CreatedAt:  formatTime(f.CreatedAt),
		})
	}
	return out
}

func toMessages(in []memory.MessageDTO) []Message {
	out := make([]Message, 0, len(in))
	for _, m := range in {
		out = append(out, Message{
			MessageID:  m.MessageID,
			ChannelID:  m.ChannelID,
			AuthorID:   m.AuthorID,
			AuthorName: m.AuthorName,
			Content:    m.Content,
			CreatedAt:  formatTime(m.CreatedAt),
		})
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
