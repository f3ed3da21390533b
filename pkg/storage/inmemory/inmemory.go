// Package inmemory provides an in-process implementation of storage.Driver.
package inmemory

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/papercomputeco/keepsake/pkg/storage"
)

// Driver implements storage.Driver using in-memory slices.
type Driver struct {
	// mu is a read write sync mutex guarding every slice below
	mu sync.RWMutex

	nextID   int64
	facts    []*storage.Fact
	archived map[int64]bool
	messages []*storage.Message
	actions  []storage.ActionEntry
}

// NewDriver creates a new in-memory fact store.
func NewDriver() *Driver {
	return &Driver{
		archived: make(map[int64]bool),
	}
}

// AddFact stores a copy of fact. Identical live (guild, subject, fact) rows
// are not inserted twice.
func (d *Driver) AddFact(_ context.Context, fact *storage.Fact) (bool, error) {
	if fact == nil {
		return false, errors.New("cannot store nil fact")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for _, existing := range d.facts {
		if d.archived[existing.ID] {
			continue
		}
		if existing.GuildID == fact.GuildID && existing.Subject == fact.Subject && existing.Fact == fact.Fact {
			return false, nil
		}
	}

	d.nextID++
	fact.ID = d.nextID
	if fact.CreatedAt.IsZero() {
		fact.CreatedAt = time.Now().UTC()
	}

	row := *fact
	d.facts = append(d.facts, &row)
	return true, nil
}

// GetFactBySubjectAndFact returns the live fact matching the exact text.
func (d *Driver) GetFactBySubjectAndFact(_ context.Context, guildID, subject, fact string) (*storage.Fact, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, f := range d.facts {
		if d.archived[f.ID] {
			continue
		}
		if f.GuildID == guildID && f.Subject == subject && f.Fact == fact {
			row := *f
			return &row, nil
		}
	}

	return nil, storage.NotFoundError{GuildID: guildID, Subject: subject}
}

// FactsForSubjects returns live facts for the subjects, newest first.
func (d *Driver) FactsForSubjects(_ context.Context, subjects []string, q storage.FactQuery) ([]*storage.Fact, error) {
	if len(subjects) == 0 {
		return nil, nil
	}

	return d.collect(q, func(f *storage.Fact) bool {
		return slices.Contains(subjects, f.Subject)
	}), nil
}

// FactsForScope returns live facts in a guild, newest first.
func (d *Driver) FactsForScope(_ context.Context, q storage.FactQuery) ([]*storage.Fact, error) {
	return d.collect(q, func(*storage.Fact) bool { return true }), nil
}

func (d *Driver) collect(q storage.FactQuery, match func(*storage.Fact) bool) []*storage.Fact {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []*storage.Fact
	for i := len(d.facts) - 1; i >= 0; i-- {
		f := d.facts[i]
		if d.archived[f.ID] {
			continue
		}
		if q.GuildID != "" && f.GuildID != q.GuildID {
			continue
		}
		if !match(f) {
			continue
		}
		row := *f
		out = append(out, &row)
	}

	sortNewestFirst(out)
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

// ArchiveOldFacts archives all but the newest keep live facts for the subject.
func (d *Driver) ArchiveOldFacts(_ context.Context, guildID, subject string, keep int) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var live []*storage.Fact
	for _, f := range d.facts {
		if d.archived[f.ID] || f.GuildID != guildID || f.Subject != subject {
			continue
		}
		live = append(live, f)
	}

	sortNewestFirst(live)
	if keep < 0 {
		keep = 0
	}
	if len(live) <= keep {
		return 0, nil
	}

	for _, f := range live[keep:] {
		d.archived[f.ID] = true
	}
	return len(live) - keep, nil
}

// AddMessage records a copy of msg.
func (d *Driver) AddMessage(_ context.Context, msg *storage.Message) error {
	if msg == nil {
		return errors.New("cannot store nil message")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	row := *msg
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	d.messages = append(d.messages, &row)
	return nil
}

// SearchMessages returns guild messages containing any query token, newest first.
func (d *Driver) SearchMessages(_ context.Context, q storage.MessageQuery) ([]*storage.Message, error) {
	if len(q.Tokens) == 0 {
		return nil, nil
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []*storage.Message
	for i := len(d.messages) - 1; i >= 0; i-- {
		m := d.messages[i]
		if q.GuildID != "" && m.GuildID != q.GuildID {
			continue
		}
		lower := strings.ToLower(m.Content)
		for _, tok := range q.Tokens {
			if strings.Contains(lower, tok) {
				row := *m
				out = append(out, &row)
				break
			}
		}
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
	}
	return out, nil
}

// LogAction appends an audit entry.
func (d *Driver) LogAction(_ context.Context, entry storage.ActionEntry) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	d.actions = append(d.actions, entry)
	return nil
}

// Actions returns a copy of the audit log.
func (d *Driver) Actions() []storage.ActionEntry {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return slices.Clone(d.actions)
}

// Close is a no-op for the in-memory driver.
func (d *Driver) Close() error {
	return nil
}

func sortNewestFirst(facts []*storage.Fact) {
	slices.SortStableFunc(facts, func(a, b *storage.Fact) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		if a.ID > b.ID {
			return -1
		}
		if a.ID < b.ID {
			return 1
		}
		return 0
	})
}

var _ storage.Driver = (*Driver)(nil)
