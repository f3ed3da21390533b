package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/papercomputeco/keepsake/pkg/eventstream"
	"github.com/papercomputeco/keepsake/pkg/journal"
	"github.com/papercomputeco/keepsake/pkg/storage"
)

const (
	// DefaultMaxIngestQueue is the ingest queue capacity.
	DefaultMaxIngestQueue = 400

	// DefaultArchiveKeep is the per-subject live fact watermark.
	DefaultArchiveKeep = 80

	// DefaultMaxFactsPerMessage bounds extraction per message.
	DefaultMaxFactsPerMessage = 4

	drainPollInterval = 10 * time.Millisecond
)

// IngestJob is one raw chat message submitted for ingestion.
type IngestJob struct {
	MessageID  string    `json:"message_id"`
	AuthorID   string    `json:"author_id"`
	AuthorName string    `json:"author_name"`
	GuildID    string    `json:"guild_id,omitempty"`
	ChannelID  string    `json:"channel_id,omitempty"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at,omitzero"`
	Settings   Settings  `json:"settings"`
	Trace      Trace     `json:"trace,omitzero"`
}

// Validate reports whether the job can be queued.
func (j IngestJob) Validate() error {
	if strings.TrimSpace(j.MessageID) == "" {
		return ErrEmptyMessageID
	}
	return nil
}

type queuedJob struct {
	id     string
	job    IngestJob
	future *Future
}

// IngestMessage queues job for the single ingestion worker and returns a
// future for its outcome. It never blocks on processing and never fails:
// an empty message id or a closed engine resolves false immediately, and a
// job already pending for the same message id shares that job's future.
// When the queue is full the oldest queued job is dropped.
func (e *Engine) IngestMessage(job IngestJob) *Future {
	id := strings.TrimSpace(job.MessageID)
	if id == "" {
		return resolvedFuture(false)
	}
	job.MessageID = id

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed.Load() {
		return resolvedFuture(false)
	}

	if f, ok := e.jobs[id]; ok {
		return f
	}

	q := &queuedJob{id: id, job: job, future: newFuture()}
	e.jobs[id] = q.future
	e.pending.Add(1)

	for {
		select {
		case e.queue <- q:
			select {
			case e.wake <- struct{}{}:
			default:
			}
			e.workerOnce.Do(func() { go e.work() })
			return q.future
		default:
			e.evictOldestLocked()
		}
	}
}

// evictOldestLocked drops the oldest queued job. Caller holds e.mu.
func (e *Engine) evictOldestLocked() {
	select {
	case old := <-e.queue:
		e.dropped.Add(1)
		e.logger.Warn("ingest queue overflow",
			"dropped_message_id", old.id,
			"capacity", cap(e.queue),
		)
		e.finishLocked(old, false)
	default:
	}
}

// Drain waits until no job is queued or active, or ctx ends. It reports
// whether the engine went idle.
func (e *Engine) Drain(ctx context.Context) bool {
	ticker := time.NewTicker(drainPollInterval)
	defer ticker.Stop()

	for {
		if e.pending.Load() == 0 {
			return true
		}
		select {
		case <-ctx.Done():
			return e.pending.Load() == 0
		case <-ticker.C:
		}
	}
}

func (e *Engine) work() {
	for {
		q := e.dequeue()
		if q == nil {
			select {
			case <-e.ctx.Done():
				return
			case <-e.wake:
			}
			continue
		}

		if e.ctx.Err() != nil {
			e.finish(q, false)
			continue
		}
		e.finish(q, e.runJob(q))
	}
}

// dequeue takes the oldest queued job under e.mu, or returns nil when the
// queue is empty.
func (e *Engine) dequeue() *queuedJob {
	e.mu.Lock()
	defer e.mu.Unlock()

	select {
	case q := <-e.queue:
		return q
	default:
		return nil
	}
}

func (e *Engine) finish(q *queuedJob, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.finishLocked(q, ok)
}

func (e *Engine) finishLocked(q *queuedJob, ok bool) {
	if e.jobs[q.id] == q.future {
		delete(e.jobs, q.id)
	}
	q.future.resolve(ok)
	e.pending.Add(-1)
}

// runJob processes one job, converting failures and panics into a false
// outcome so the worker loop keeps going.
func (e *Engine) runJob(q *queuedJob) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			e.failed.Add(1)
			e.logger.Error("ingest job failed",
				"message_id", q.id,
				"panic", r,
			)
			ok = false
		}
	}()

	if err := e.processJob(e.ctx, q.job); err != nil {
		e.failed.Add(1)
		e.logger.Error("ingest job failed",
			"message_id", q.id,
			"error", err,
		)
		return false
	}

	e.processed.Add(1)
	return true
}

func (e *Engine) processJob(ctx context.Context, job IngestJob) error {
	if job.CreatedAt.IsZero() {
		job.CreatedAt = e.now()
	}
	trace := job.Trace
	if trace.Source == "" {
		trace.Source = "ingest"
	}
	if trace.GuildID == "" {
		trace.GuildID = job.GuildID
	}
	if trace.ChannelID == "" {
		trace.ChannelID = job.ChannelID
	}
	if trace.UserID == "" {
		trace.UserID = job.AuthorID
	}

	content := cleanContent(job.Content)
	journaled := e.appendJournal(job, content)
	e.recordMessage(ctx, job, content)

	var (
		inserted     int
		userInserted bool
	)
	for _, c := range e.extract(ctx, job, content, trace) {
		fact, reason := e.candidateFact(job, c, content)
		if reason != "" {
			e.rejected.Add(1)
			e.logger.Debug("fact rejected",
				"message_id", job.MessageID,
				"reason", string(reason),
			)
			continue
		}

		ok, err := e.store.AddFact(ctx, fact)
		if err != nil {
			return fmt.Errorf("storing fact: %w", err)
		}
		if !ok {
			continue
		}

		inserted++
		e.stored.Add(1)
		userInserted = userInserted || fact.IsUserSubject()
		e.logger.Info("fact stored",
			"fact_id", fact.ID,
			"guild_id", fact.GuildID,
			"subject", fact.Subject,
			"fact_type", string(fact.FactType),
		)
		e.publish(ctx, fact, eventstream.EventSource{
			Origin:    "ingest",
			UserID:    job.AuthorID,
			ChannelID: job.ChannelID,
			Trace:     trace.ID,
		})
	}

	if userInserted {
		if err := e.archive(ctx, job.GuildID, job.AuthorID); err != nil {
			return err
		}
	}

	if journaled || inserted > 0 {
		e.scheduleSnapshot()
	}

	e.logger.Debug("ingest job processed",
		"message_id", job.MessageID,
		"facts_stored", inserted,
	)
	return nil
}

func (e *Engine) appendJournal(job IngestJob, content string) bool {
	if e.journal == nil {
		return false
	}

	err := e.journal.Append(journal.Entry{
		Timestamp:  job.CreatedAt,
		AuthorName: job.AuthorName,
		AuthorID:   job.AuthorID,
		GuildID:    job.GuildID,
		ChannelID:  job.ChannelID,
		MessageID:  job.MessageID,
		Content:    content,
	})
	if err != nil {
		e.logger.Warn("journal append failed",
			"message_id", job.MessageID,
			"error", err,
		)
		return false
	}
	return true
}

func (e *Engine) recordMessage(ctx context.Context, job IngestJob, content string) {
	if content == "" {
		return
	}

	err := e.store.AddMessage(ctx, &storage.Message{
		MessageID:  job.MessageID,
		GuildID:    job.GuildID,
		ChannelID:  job.ChannelID,
		AuthorID:   job.AuthorID,
		AuthorName: job.AuthorName,
		Content:    content,
		CreatedAt:  job.CreatedAt,
	})
	if err != nil {
		e.logger.Warn("message log append failed",
			"message_id", job.MessageID,
			"error", err,
		)
	}
}

// extract asks the extractor for candidates. Extraction runs only for
// enabled settings, a known guild and author, and content long enough to
// hold a fact. Failures yield zero candidates.
func (e *Engine) extract(ctx context.Context, job IngestJob, content string, trace Trace) []ExtractedFact {
	if e.extractor == nil || !job.Settings.Enabled {
		return nil
	}
	if job.GuildID == "" || job.AuthorID == "" || len([]rune(content)) < minFactLength {
		return nil
	}

	candidates, err := e.extractor.ExtractMemoryFacts(ctx, ExtractRequest{
		Settings:       job.Settings,
		AuthorName:     job.AuthorName,
		MessageContent: content,
		MaxFacts:       e.maxFactsPerMessage,
		Trace:          trace,
	})
	if err != nil {
		e.logger.Warn("fact extraction failed",
			"message_id", job.MessageID,
			"error", err,
		)
		return nil
	}

	if len(candidates) > e.maxFactsPerMessage {
		candidates = candidates[:e.maxFactsPerMessage]
	}
	return candidates
}

// candidateFact validates an extracted candidate against the cleaned message
// and builds the row to store.
func (e *Engine) candidateFact(job IngestJob, c ExtractedFact, content string) (*storage.Fact, Rejection) {
	text := normalizeFact(c.Fact)
	if reason := ValidateCandidate(text, content); reason != "" {
		return nil, reason
	}

	return &storage.Fact{
		GuildID:         job.GuildID,
		ChannelID:       job.ChannelID,
		Subject:         job.AuthorID,
		Fact:            text,
		FactType:        storage.ParseFactType(string(c.Type)),
		EvidenceText:    groundedEvidence(c.Evidence, content),
		SourceMessageID: job.MessageID,
		Confidence:      confidenceScore(c.Confidence),
		CreatedAt:       e.now(),
	}, ""
}

func (e *Engine) archive(ctx context.Context, guildID, subject string) error {
	n, err := e.store.ArchiveOldFacts(ctx, guildID, subject, e.archiveKeep)
	if err != nil {
		return fmt.Errorf("archiving facts for %s: %w", subject, err)
	}
	if n > 0 {
		e.logger.Debug("archived old facts",
			"guild_id", guildID,
			"subject", subject,
			"archived", n,
		)
	}
	return nil
}

func (e *Engine) publish(ctx context.Context, fact *storage.Fact, source eventstream.EventSource) {
	if err := e.publisher.PublishFact(ctx, eventstream.NewFactPersistedEvent(fact, source)); err != nil {
		e.logger.Warn("fact event publish failed",
			"fact_id", fact.ID,
			"error", err,
		)
	}
}
