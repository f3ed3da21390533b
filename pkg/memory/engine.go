package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/papercomputeco/keepsake/pkg/eventstream"
	"github.com/papercomputeco/keepsake/pkg/eventstream/nop"
	"github.com/papercomputeco/keepsake/pkg/logger"
	"github.com/papercomputeco/keepsake/pkg/storage"
	"github.com/papercomputeco/keepsake/pkg/utils"
	"github.com/papercomputeco/keepsake/pkg/vector"
)

const (
	// DefaultCandidateLimit bounds how many facts the store returns for ranking.
	DefaultCandidateLimit = 200

	userFactsLimit        = 8
	relevantFactsLimit    = 10
	relevantMessagesLimit = 6

	directiveConfidence = 0.9
)

// Config is the configuration for an Engine.
type Config struct {
	// Store persists facts, messages, and the action log. Required.
	Store storage.Driver

	// Vectors stores and scores fact embeddings. Semantic ranking is disabled
	// unless both Vectors and Embeddings are set.
	Vectors vector.Driver

	// Embeddings embeds queries and facts.
	Embeddings EmbeddingProvider

	// Extractor proposes facts from ingested messages. Without one, ingestion
	// only journals and records messages.
	Extractor Extractor

	// Journal receives one line per ingested message.
	Journal Journal

	// Publisher is notified after every stored fact. Defaults to a no-op.
	Publisher eventstream.Publisher

	// SnapshotPath is where the Markdown snapshot is written. Empty disables it.
	SnapshotPath string

	MaxIngestQueue     int
	ArchiveKeep        int
	MaxFactsPerMessage int
	SnapshotDebounce   time.Duration
	CandidateLimit     int
	BackfillLimit      int
	QueryCacheTTL      time.Duration
	QueryCacheSize     int

	Logger *slog.Logger

	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
}

// Engine is the durable memory ingestion and hybrid retrieval engine.
type Engine struct {
	store      storage.Driver
	vectors    vector.Driver
	embeddings EmbeddingProvider
	extractor  Extractor
	journal    Journal
	publisher  eventstream.Publisher
	cache      *QueryEmbeddingCache
	logger     *slog.Logger
	now        func() time.Time

	snapshotPath       string
	snapshotDebounce   time.Duration
	archiveKeep        int
	maxFactsPerMessage int
	candidateLimit     int
	backfillLimit      int

	ctx    context.Context
	cancel context.CancelFunc
	closed atomic.Bool

	// mu guards jobs and every send to and receive from queue, so a failed
	// send means the queue really is full.
	mu         sync.Mutex
	jobs       map[string]*Future
	queue      chan *queuedJob
	wake       chan struct{}
	workerOnce sync.Once
	pending    atomic.Int64

	snapshotScheduled atomic.Bool
	timerMu           sync.Mutex
	snapshotTimer     *time.Timer

	processed atomic.Int64
	dropped   atomic.Int64
	failed    atomic.Int64
	stored    atomic.Int64
	rejected  atomic.Int64
	snapshots atomic.Int64
}

// NewEngine creates an engine. The ingestion worker starts on first use.
func NewEngine(c *Config) (*Engine, error) {
	if c == nil || c.Store == nil {
		return nil, ErrNotConfigured
	}

	log := c.Logger
	if log == nil {
		log = logger.Nop()
	}
	now := c.Now
	if now == nil {
		now = time.Now
	}
	publisher := c.Publisher
	if publisher == nil {
		publisher = nop.NewPublisher()
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		store:              c.Store,
		vectors:            c.Vectors,
		embeddings:         c.Embeddings,
		extractor:          c.Extractor,
		journal:            c.Journal,
		publisher:          publisher,
		logger:             log,
		now:                now,
		snapshotPath:       c.SnapshotPath,
		snapshotDebounce:   orDefault(c.SnapshotDebounce, DefaultSnapshotDebounce),
		archiveKeep:        orDefault(c.ArchiveKeep, DefaultArchiveKeep),
		maxFactsPerMessage: orDefault(c.MaxFactsPerMessage, DefaultMaxFactsPerMessage),
		candidateLimit:     orDefault(c.CandidateLimit, DefaultCandidateLimit),
		backfillLimit:      orDefault(c.BackfillLimit, DefaultBackfillLimit),
		ctx:                ctx,
		cancel:             cancel,
		jobs:               make(map[string]*Future),
		queue:              make(chan *queuedJob, orDefault(c.MaxIngestQueue, DefaultMaxIngestQueue)),
		wake:               make(chan struct{}, 1),
	}

	if c.Embeddings != nil {
		e.cache = NewQueryEmbeddingCache(c.Embeddings, CacheConfig{
			TTL:        c.QueryCacheTTL,
			MaxEntries: c.QueryCacheSize,
			Logger:     log,
			Now:        now,
		})
	}

	return e, nil
}

func orDefault[T int | time.Duration](v, def T) T {
	if v <= 0 {
		return def
	}
	return v
}

// Close stops accepting jobs and waits for queued work until ctx ends. Jobs
// still queued after that resolve false. A snapshot refresh that was scheduled
// but not yet run is written before Close returns.
func (e *Engine) Close(ctx context.Context) error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}

	drained := e.Drain(ctx)
	e.cancel()

	e.mu.Lock()
	for {
		var q *queuedJob
		select {
		case q = <-e.queue:
		default:
		}
		if q == nil {
			break
		}
		e.finishLocked(q, false)
	}
	e.mu.Unlock()

	if e.stopSnapshotTimer() {
		if err := e.RefreshMemoryMarkdown(context.WithoutCancel(ctx)); err != nil {
			e.logger.Error("snapshot refresh failed", "error", err)
		}
	}

	if !drained {
		return fmt.Errorf("draining ingest queue: %w", ctx.Err())
	}
	return nil
}

// Stats returns the engine counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Pending:          e.pending.Load(),
		Queued:           len(e.queue),
		Processed:        e.processed.Load(),
		Dropped:          e.dropped.Load(),
		Failed:           e.failed.Load(),
		FactsStored:      e.stored.Load(),
		FactsRejected:    e.rejected.Load(),
		SnapshotsWritten: e.snapshots.Load(),
	}
}

// SearchRequest is a scope-wide fact search.
type SearchRequest struct {
	GuildID   string   `json:"guild_id"`
	ChannelID string   `json:"channel_id,omitempty"`
	QueryText string   `json:"query"`
	Settings  Settings `json:"settings"`
	Trace     Trace    `json:"trace,omitzero"`
	Limit     int      `json:"limit,omitempty"`
}

// SearchDurableFacts ranks every live fact in the guild against the query and
// returns the gated top results. When the gate removes every candidate the
// result is empty.
func (e *Engine) SearchDurableFacts(ctx context.Context, req SearchRequest) ([]FactDTO, error) {
	candidates, err := e.store.FactsForScope(ctx, storage.FactQuery{
		GuildID: req.GuildID,
		Limit:   e.candidateLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("listing facts: %w", err)
	}

	ranking := e.rank(ctx, candidates, req.QueryText, req.ChannelID, req.Settings, req.Trace)
	return project(ranking.Gated(), clampLimit(req.Limit)), nil
}

// HybridRequest is a subject-scoped fact selection.
type HybridRequest struct {
	Subjects  []string `json:"subjects"`
	GuildID   string   `json:"guild_id,omitempty"`
	ChannelID string   `json:"channel_id,omitempty"`
	QueryText string   `json:"query"`
	Settings  Settings `json:"settings"`
	Trace     Trace    `json:"trace,omitzero"`
	Limit     int      `json:"limit,omitempty"`
}

// SelectHybridFacts ranks the subjects' live facts against the query. When
// the gate removes every candidate it falls back to the ungated ranking so a
// subject lookup still surfaces something.
func (e *Engine) SelectHybridFacts(ctx context.Context, req HybridRequest) ([]FactDTO, error) {
	candidates, err := e.store.FactsForSubjects(ctx, req.Subjects, storage.FactQuery{
		GuildID: req.GuildID,
		Limit:   e.candidateLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("listing subject facts: %w", err)
	}

	ranking := e.rank(ctx, candidates, req.QueryText, req.ChannelID, req.Settings, req.Trace)
	gated := ranking.Gated()
	if len(gated) == 0 {
		gated = ranking.Facts
	}
	return project(gated, clampLimit(req.Limit)), nil
}

func (e *Engine) rank(ctx context.Context, candidates []*storage.Fact, query, channelID string, settings Settings, trace Trace) Ranking {
	semantic := e.semanticScores(ctx, candidates, query, settings, trace)
	return Rank(candidates, Query{Text: query, ChannelID: channelID}, semantic, e.now())
}

// SliceRequest describes the conversation a prompt is being built for.
type SliceRequest struct {
	UserID    string   `json:"user_id"`
	GuildID   string   `json:"guild_id"`
	ChannelID string   `json:"channel_id,omitempty"`
	QueryText string   `json:"query"`
	Settings  Settings `json:"settings"`
	Trace     Trace    `json:"trace,omitzero"`
}

// MemorySlice is the bounded memory context handed to prompt building.
type MemorySlice struct {
	UserFacts        []FactDTO    `json:"user_facts"`
	RelevantFacts    []FactDTO    `json:"relevant_facts"`
	RelevantMessages []MessageDTO `json:"relevant_messages"`
}

// BuildPromptMemorySlice gathers the user's own facts, other relevant facts
// in the guild, and recent messages matching the query.
func (e *Engine) BuildPromptMemorySlice(ctx context.Context, req SliceRequest) (*MemorySlice, error) {
	slice := &MemorySlice{
		UserFacts:        []FactDTO{},
		RelevantFacts:    []FactDTO{},
		RelevantMessages: []MessageDTO{},
	}

	if req.UserID != "" {
		userFacts, err := e.SelectHybridFacts(ctx, HybridRequest{
			Subjects:  []string{req.UserID},
			GuildID:   req.GuildID,
			ChannelID: req.ChannelID,
			QueryText: req.QueryText,
			Settings:  req.Settings,
			Trace:     req.Trace,
			Limit:     userFactsLimit,
		})
		if err != nil {
			return nil, err
		}
		slice.UserFacts = userFacts
	}

	relevant, err := e.SearchDurableFacts(ctx, SearchRequest{
		GuildID:   req.GuildID,
		ChannelID: req.ChannelID,
		QueryText: req.QueryText,
		Settings:  req.Settings,
		Trace:     req.Trace,
		Limit:     relevantFactsLimit + len(slice.UserFacts),
	})
	if err != nil {
		return nil, err
	}

	seen := make(map[int64]struct{}, len(slice.UserFacts))
	for _, f := range slice.UserFacts {
		seen[f.ID] = struct{}{}
	}
	for _, f := range relevant {
		if _, ok := seen[f.ID]; ok {
			continue
		}
		if len(slice.RelevantFacts) == relevantFactsLimit {
			break
		}
		slice.RelevantFacts = append(slice.RelevantFacts, f)
	}

	if tokens := QueryTokens(req.QueryText); len(tokens) > 0 {
		msgs, err := e.store.SearchMessages(ctx, storage.MessageQuery{
			GuildID: req.GuildID,
			Tokens:  tokens,
			Limit:   relevantMessagesLimit,
		})
		if err != nil {
			e.logger.Warn("message search failed", "guild_id", req.GuildID, "error", err)
		}
		for _, m := range msgs {
			slice.RelevantMessages = append(slice.RelevantMessages, MessageDTO{
				MessageID:  m.MessageID,
				ChannelID:  m.ChannelID,
				AuthorID:   m.AuthorID,
				AuthorName: m.AuthorName,
				Content:    m.Content,
				CreatedAt:  m.CreatedAt,
			})
		}
	}

	return slice, nil
}

// DirectiveScope selects whose memory an explicit "remember this" line goes to.
type DirectiveScope string

const (
	ScopeUser DirectiveScope = "user"
	ScopeSelf DirectiveScope = "self"
	ScopeLore DirectiveScope = "lore"
)

// ParseDirectiveScope maps a label onto a scope, defaulting to ScopeUser.
func ParseDirectiveScope(s string) DirectiveScope {
	switch DirectiveScope(strings.ToLower(strings.TrimSpace(s))) {
	case ScopeSelf:
		return ScopeSelf
	case ScopeLore:
		return ScopeLore
	default:
		return ScopeUser
	}
}

// RememberRequest is an explicit request to remember one line.
type RememberRequest struct {
	Line            string         `json:"line"`
	SourceMessageID string         `json:"source_message_id"`
	UserID          string         `json:"user_id"`
	GuildID         string         `json:"guild_id"`
	ChannelID       string         `json:"channel_id,omitempty"`
	SourceText      string         `json:"source_text,omitempty"`
	Scope           DirectiveScope `json:"scope,omitempty"`
}

// RememberDirectiveLine stores line as a fact after the same validation
// extracted facts go through, grounded against SourceText (or the line
// itself). It returns true when the fact is stored or already known.
func (e *Engine) RememberDirectiveLine(ctx context.Context, req RememberRequest) (bool, error) {
	if e.closed.Load() {
		return false, ErrEngineClosed
	}

	text := normalizeFact(req.Line)
	source := utils.CollapseWhitespace(req.SourceText)
	if source == "" {
		source = utils.CollapseWhitespace(req.Line)
	}

	if reason := ValidateCandidate(text, source); reason != "" {
		e.rejected.Add(1)
		e.logger.Debug("fact rejected", "source", "directive", "reason", string(reason))
		return false, nil
	}

	subject, factType := directiveSubject(req)
	if subject == "" || req.GuildID == "" {
		return false, nil
	}

	_, err := e.store.GetFactBySubjectAndFact(ctx, req.GuildID, subject, text)
	if err == nil {
		return true, nil
	}
	var nf storage.NotFoundError
	if !errors.As(err, &nf) {
		return false, fmt.Errorf("looking up fact: %w", err)
	}

	fact := &storage.Fact{
		GuildID:         req.GuildID,
		ChannelID:       req.ChannelID,
		Subject:         subject,
		Fact:            text,
		FactType:        factType,
		EvidenceText:    groundedEvidence("", source),
		SourceMessageID: req.SourceMessageID,
		Confidence:      directiveConfidence,
		CreatedAt:       e.now(),
	}

	inserted, err := e.store.AddFact(ctx, fact)
	if err != nil {
		return false, fmt.Errorf("storing fact: %w", err)
	}
	if !inserted {
		return true, nil
	}

	e.stored.Add(1)
	e.publish(ctx, fact, eventstream.EventSource{
		Origin:    "directive",
		UserID:    req.UserID,
		ChannelID: req.ChannelID,
	})

	if fact.IsUserSubject() {
		if err := e.archive(ctx, req.GuildID, subject); err != nil {
			return true, err
		}
	}
	e.scheduleSnapshot()

	err = e.store.LogAction(ctx, storage.ActionEntry{
		Kind:      "memory_remember",
		GuildID:   req.GuildID,
		ChannelID: req.ChannelID,
		UserID:    req.UserID,
		MessageID: req.SourceMessageID,
		Content:   text,
		Metadata: map[string]any{
			"scope":   string(ParseDirectiveScope(string(req.Scope))),
			"fact_id": fact.ID,
			"subject": subject,
		},
	})
	if err != nil {
		e.logger.Warn("action log append failed", "error", err)
	}

	e.logger.Info("fact stored",
		"fact_id", fact.ID,
		"guild_id", fact.GuildID,
		"subject", subject,
		"fact_type", string(factType),
		"source", "directive",
	)
	return true, nil
}

func directiveSubject(req RememberRequest) (string, storage.FactType) {
	switch ParseDirectiveScope(string(req.Scope)) {
	case ScopeSelf:
		return storage.SubjectSelf, storage.FactTypeSelf
	case ScopeLore:
		return storage.SubjectLore, storage.FactTypeLore
	default:
		return req.UserID, storage.FactTypeProfile
	}
}
