package storage

import "fmt"

// NotFoundError is returned when a fact doesn't exist in the store.
type NotFoundError struct {
	GuildID string
	Subject string
}

func (e NotFoundError) Error() string {
	if e.Subject == "" {
		return "fact not found"
	}

	return fmt.Sprintf("fact not found: guild=%s subject=%s", e.GuildID, e.Subject)
}
