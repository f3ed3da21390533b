package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/papercomputeco/keepsake/pkg/journal"
	"github.com/papercomputeco/keepsake/pkg/storage"
)

const (
	// DefaultSnapshotDebounce is the delay between the first trigger in a
	// burst and the snapshot refresh.
	DefaultSnapshotDebounce = time.Second

	snapshotFactLimit    = 500
	snapshotJournalLines = 20
)

// scheduleSnapshot arranges one refresh after the debounce delay. Triggers
// while a refresh is already scheduled are no-ops.
func (e *Engine) scheduleSnapshot() {
	if e.snapshotPath == "" {
		return
	}
	if !e.snapshotScheduled.CompareAndSwap(false, true) {
		return
	}

	e.timerMu.Lock()
	defer e.timerMu.Unlock()

	e.snapshotTimer = time.AfterFunc(e.snapshotDebounce, func() {
		e.snapshotScheduled.Store(false)
		if err := e.RefreshMemoryMarkdown(e.ctx); err != nil {
			e.logger.Error("snapshot refresh failed", "error", err)
		}
	})
}

// stopSnapshotTimer cancels a scheduled refresh and reports whether one was
// still pending.
func (e *Engine) stopSnapshotTimer() bool {
	e.timerMu.Lock()
	defer e.timerMu.Unlock()

	if e.snapshotTimer == nil {
		return false
	}
	stopped := e.snapshotTimer.Stop()
	e.snapshotTimer = nil
	if stopped {
		e.snapshotScheduled.Store(false)
	}
	return stopped
}

// RefreshMemoryMarkdown regenerates the operator-facing Markdown snapshot of
// live facts and the recent journal. It is a reporting side effect: retrieval
// never reads the file.
func (e *Engine) RefreshMemoryMarkdown(ctx context.Context) error {
	if e.snapshotPath == "" {
		return nil
	}

	md, facts, err := e.snapshotMarkdown(ctx)
	if err != nil {
		return err
	}

	if err := journal.WriteFileAtomic(e.snapshotPath, []byte(md)); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}

	e.snapshots.Add(1)
	e.logger.Debug("snapshot refreshed", "path", e.snapshotPath, "facts", facts)
	return nil
}

// SnapshotMarkdown renders the current snapshot without writing it.
func (e *Engine) SnapshotMarkdown(ctx context.Context) (string, error) {
	md, _, err := e.snapshotMarkdown(ctx)
	return md, err
}

func (e *Engine) snapshotMarkdown(ctx context.Context) (string, int, error) {
	facts, err := e.store.FactsForScope(ctx, storage.FactQuery{Limit: snapshotFactLimit})
	if err != nil {
		return "", 0, fmt.Errorf("listing facts: %w", err)
	}

	var lines []string
	if e.journal != nil {
		lines, err = e.journal.Tail(snapshotJournalLines)
		if err != nil {
			e.logger.Warn("journal tail failed", "error", err)
		}
	}

	return RenderSnapshot(facts, lines, e.now()), len(facts), nil
}

// RenderSnapshot renders facts grouped into People, Agent Self, and Server
// Lore, followed by the recent journal lines.
func RenderSnapshot(facts []*storage.Fact, journalLines []string, now time.Time) string {
	var (
		people = map[string][]*storage.Fact{}
		self   []*storage.Fact
		lore   []*storage.Fact
	)
	for _, f := range facts {
		switch f.Subject {
		case storage.SubjectSelf:
			self = append(self, f)
		case storage.SubjectLore:
			lore = append(lore, f)
		default:
			key := f.Subject
			if f.GuildID != "" {
				key = f.Subject + " (guild " + f.GuildID + ")"
			}
			people[key] = append(people[key], f)
		}
	}

	var b strings.Builder
	b.WriteString("# Memory Snapshot\n\n")
	fmt.Fprintf(&b, "_Generated %s_\n\n", now.UTC().Format(time.RFC3339))

	b.WriteString("## People\n\n")
	if len(people) == 0 {
		b.WriteString("_None yet._\n\n")
	}
	subjects := make([]string, 0, len(people))
	for s := range people {
		subjects = append(subjects, s)
	}
	slices.Sort(subjects)
	for _, s := range subjects {
		fmt.Fprintf(&b, "### %s\n\n", s)
		writeFacts(&b, people[s])
	}

	b.WriteString("## Agent Self\n\n")
	writeFacts(&b, self)

	b.WriteString("## Server Lore\n\n")
	writeFacts(&b, lore)

	b.WriteString("## Recent Journal\n\n")
	if len(journalLines) == 0 {
		b.WriteString("_None yet._\n")
	}
	for _, line := range journalLines {
		b.WriteString(line)
		b.WriteString("\n")
	}

	return b.String()
}

func writeFacts(b *strings.Builder, facts []*storage.Fact) {
	if len(facts) == 0 {
		b.WriteString("_None yet._\n\n")
		return
	}
	for _, f := range facts {
		fmt.Fprintf(b, "- %s _(%s, %.2f)_\n", f.Fact, f.FactType, f.Confidence)
	}
	b.WriteString("\n")
}
