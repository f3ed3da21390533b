package testutils

import (
	"time"

	"github.com/papercomputeco/keepsake/pkg/storage"
)

// NewTestFact creates a simple user fact for testing
func NewTestFact(guildID, subject, text string, createdAt time.Time) *storage.Fact {
	return &storage.Fact{
		GuildID:         guildID,
		ChannelID:       "channel-1",
		Subject:         subject,
		Fact:            text,
		FactType:        storage.FactTypeProfile,
		SourceMessageID: "msg-" + subject,
		Confidence:      0.8,
		CreatedAt:       createdAt,
	}
}
