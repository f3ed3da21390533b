package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/papercomputeco/keepsake/pkg/storage"
	"github.com/papercomputeco/keepsake/pkg/vector"
)

// DefaultBackfillLimit caps how many missing fact vectors one ranking call
// computes.
const DefaultBackfillLimit = 8

// CanonicalFactText is the text embedded for a fact vector.
func CanonicalFactText(f *storage.Fact) string {
	var b strings.Builder
	b.WriteString("type: ")
	b.WriteString(string(f.FactType))
	b.WriteString("\nfact: ")
	b.WriteString(f.Fact)
	if f.EvidenceText != "" {
		b.WriteString("\nevidence: ")
		b.WriteString(f.EvidenceText)
	}
	return b.String()
}

// semanticScores returns native vector scores for the candidates, backfilling
// up to the configured number of missing vectors first. It returns nil when
// no embedding is available; ranking then degrades to lexical only.
func (e *Engine) semanticScores(ctx context.Context, candidates []*storage.Fact, query string, settings Settings, trace Trace) map[int64]float64 {
	if e.vectors == nil || e.cache == nil || len(candidates) == 0 {
		return nil
	}

	emb := e.cache.Get(ctx, query, settings, trace)
	if emb == nil {
		return nil
	}

	ids := make([]int64, len(candidates))
	for i, f := range candidates {
		ids[i] = f.ID
	}

	scores, err := e.vectors.Scores(ctx, vector.ScoreQuery{
		FactIDs:        ids,
		Model:          emb.Model,
		QueryEmbedding: emb.Embedding,
	})
	if err != nil {
		e.logger.Warn("vector scoring failed", "model", emb.Model, "error", err)
		return nil
	}

	out := make(map[int64]float64, len(candidates))
	for _, s := range scores {
		out[s.FactID] = s.Score
	}

	backfilled := e.backfill(ctx, candidates, out, emb.Model, settings, trace)
	if len(backfilled) == 0 {
		return out
	}

	rescored, err := e.vectors.Scores(ctx, vector.ScoreQuery{
		FactIDs:        backfilled,
		Model:          emb.Model,
		QueryEmbedding: emb.Embedding,
	})
	if err != nil {
		e.logger.Warn("vector scoring failed", "model", emb.Model, "error", err)
		return out
	}
	for _, s := range rescored {
		out[s.FactID] = s.Score
	}

	return out
}

// backfill embeds and stores vectors for candidates the scorer had no score
// for, in candidate order, stopping after the backfill limit. Facts that
// already have a vector are never re-embedded. Returns the ids it stored.
func (e *Engine) backfill(ctx context.Context, candidates []*storage.Fact, scored map[int64]float64, model string, settings Settings, trace Trace) []int64 {
	var stored []int64
	for _, f := range candidates {
		if len(stored) >= e.backfillLimit {
			break
		}
		if _, ok := scored[f.ID]; ok {
			continue
		}

		ok, err := e.backfillFact(ctx, f, model, settings, trace)
		if err != nil {
			e.logger.Warn("vector backfill failed", "fact_id", f.ID, "model", model, "error", err)
			break
		}
		if ok {
			stored = append(stored, f.ID)
		}
	}

	if len(stored) > 0 {
		e.logger.Debug("backfilled fact vectors", "count", len(stored), "model", model)
	}
	return stored
}

// backfillFact stores a vector for f under model unless one exists. It
// reports whether a vector was written.
func (e *Engine) backfillFact(ctx context.Context, f *storage.Fact, model string, settings Settings, trace Trace) (bool, error) {
	existing, err := e.vectors.Get(ctx, f.ID, model)
	if err != nil {
		return false, fmt.Errorf("looking up vector: %w", err)
	}
	if len(existing) > 0 {
		return false, nil
	}

	emb, err := e.embeddings.EmbedText(ctx, EmbedRequest{
		Settings: settings,
		Text:     CanonicalFactText(f),
		Trace:    trace,
	})
	if err != nil {
		return false, fmt.Errorf("embedding fact: %w", err)
	}
	if len(emb.Embedding) == 0 {
		return false, errInvalidEmbedding
	}
	if emb.Model != "" && emb.Model != model {
		return false, fmt.Errorf("embedding model changed from %s to %s", model, emb.Model)
	}

	if err := e.vectors.Upsert(ctx, vector.Record{
		FactID:    f.ID,
		Model:     model,
		Embedding: emb.Embedding,
	}); err != nil {
		return false, fmt.Errorf("storing vector: %w", err)
	}
	return true, nil
}

// BackfillResult summarizes a bulk backfill run.
type BackfillResult struct {
	Model    string `json:"model"`
	Scanned  int    `json:"scanned"`
	Embedded int    `json:"embedded"`
	Skipped  int    `json:"skipped"`
}

// BackfillScope embeds every live fact in a guild that lacks a vector under
// the resolved model, in batches of the backfill limit.
func (e *Engine) BackfillScope(ctx context.Context, guildID string, settings Settings) (*BackfillResult, error) {
	if e.closed.Load() {
		return nil, ErrEngineClosed
	}
	if e.vectors == nil || e.embeddings == nil {
		return nil, fmt.Errorf("%w: vector store and embedder are required for backfill", ErrNotConfigured)
	}

	facts, err := e.store.FactsForScope(ctx, storage.FactQuery{GuildID: guildID})
	if err != nil {
		return nil, fmt.Errorf("listing facts: %w", err)
	}

	model := e.embeddings.ResolveEmbeddingModel(settings)
	result := &BackfillResult{Model: model, Scanned: len(facts)}
	trace := Trace{Source: "backfill", GuildID: guildID}

	for start := 0; start < len(facts); start += e.backfillLimit {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		end := min(start+e.backfillLimit, len(facts))
		for _, f := range facts[start:end] {
			ok, err := e.backfillFact(ctx, f, model, settings, trace)
			if err != nil {
				return result, fmt.Errorf("backfilling fact %d: %w", f.ID, err)
			}
			if ok {
				result.Embedded++
			} else {
				result.Skipped++
			}
		}

		e.logger.Debug("backfill batch complete",
			"guild_id", guildID,
			"embedded", result.Embedded,
			"skipped", result.Skipped,
		)
	}

	return result, nil
}
