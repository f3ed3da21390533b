package memory

import (
	"math"
	"slices"
	"strings"
	"time"

	"github.com/papercomputeco/keepsake/pkg/storage"
	"github.com/papercomputeco/keepsake/pkg/vector"
)

const (
	// DefaultSearchLimit is used when a caller passes a non-positive limit.
	DefaultSearchLimit = 10

	maxSearchLimit = 24

	recencyHalfLifeDays = 45.0
	unknownAgeDays      = 3650.0
	defaultConfidence   = 0.5
	semanticEpsilon     = 0.0001

	channelMatch   = 1.0
	channelUnknown = 0.25
)

// Query is the text and locality a ranking is computed against.
type Query struct {
	Text      string
	ChannelID string
}

// RankedFact is a candidate with every component score and the combined
// score. All scores are in [0, 1].
type RankedFact struct {
	Fact       *storage.Fact
	Lexical    float64
	Semantic   float64
	Recency    float64
	Confidence float64
	Channel    float64
	Score      float64
}

// Ranking is a scored, sorted candidate set.
type Ranking struct {
	Facts []RankedFact

	// QueryTokens is the number of usable lexical tokens in the query.
	QueryTokens int

	// Semantic is true when any candidate received a non-trivial semantic score.
	Semantic bool
}

// Rank scores candidates against q. semantic maps fact ids to native vector
// scores and may be nil. The result is sorted by descending score, newer facts
// first on ties.
func Rank(candidates []*storage.Fact, q Query, semantic map[int64]float64, now time.Time) Ranking {
	normQuery := normalizeText(q.Text)
	tokens := QueryTokens(q.Text)

	useSemantic := false
	for _, f := range candidates {
		if semantic[f.ID] > semanticEpsilon {
			useSemantic = true
			break
		}
	}

	ranked := make([]RankedFact, 0, len(candidates))
	for _, f := range candidates {
		r := RankedFact{
			Fact:       f,
			Lexical:    lexicalScore(f, normQuery, tokens),
			Semantic:   vector.ClampScore(semantic[f.ID]),
			Recency:    recencyScore(f.CreatedAt, now),
			Confidence: confidenceScore(f.Confidence),
			Channel:    channelScore(f.ChannelID, q.ChannelID),
		}

		if useSemantic {
			r.Score = 0.50*r.Semantic + 0.28*r.Lexical + 0.10*r.Confidence + 0.07*r.Recency + 0.05*r.Channel
		} else {
			r.Score = 0.75*r.Lexical + 0.10*r.Confidence + 0.10*r.Recency + 0.05*r.Channel
		}
		r.Score = vector.ClampScore(r.Score)

		ranked = append(ranked, r)
	}

	slices.SortStableFunc(ranked, func(a, b RankedFact) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		if c := b.Fact.CreatedAt.Compare(a.Fact.CreatedAt); c != 0 {
			return c
		}
		switch {
		case a.Fact.ID > b.Fact.ID:
			return -1
		case a.Fact.ID < b.Fact.ID:
			return 1
		}
		return 0
	})

	return Ranking{
		Facts:       ranked,
		QueryTokens: len(tokens),
		Semantic:    useSemantic,
	}
}

// Gated applies the relevance gate. With no query tokens and no semantic
// signal there is nothing to filter on and every fact passes.
func (r Ranking) Gated() []RankedFact {
	if r.QueryTokens == 0 && !r.Semantic {
		return r.Facts
	}

	out := make([]RankedFact, 0, len(r.Facts))
	for _, f := range r.Facts {
		if r.passes(f) {
			out = append(out, f)
		}
	}
	return out
}

func (r Ranking) passes(f RankedFact) bool {
	if r.Semantic {
		if f.Semantic >= 0.20 || f.Lexical >= 0.22 {
			return true
		}
		return f.Score >= 0.52 && (f.Semantic >= 0.08 || f.Lexical >= 0.10)
	}
	return f.Lexical >= 0.24 || f.Score >= 0.62
}

func lexicalScore(f *storage.Fact, normQuery string, tokens []string) float64 {
	text := f.Fact + " " + f.EvidenceText
	if normQuery != "" && strings.Contains(normalizeText(text), normQuery) {
		return 1
	}
	if len(tokens) == 0 {
		return 0
	}

	factTokens := tokenSet(text)
	hits := 0
	for _, t := range tokens {
		if _, ok := factTokens[t]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(tokens))
}

func recencyScore(createdAt, now time.Time) float64 {
	ageDays := unknownAgeDays
	if !createdAt.IsZero() {
		ageDays = max(0, now.Sub(createdAt).Hours()/24)
	}
	return 1 / (1 + ageDays/recencyHalfLifeDays)
}

func confidenceScore(c float64) float64 {
	if math.IsNaN(c) || c < 0 || c > 1 {
		return defaultConfidence
	}
	return c
}

func channelScore(factChannel, queryChannel string) float64 {
	switch {
	case queryChannel == "":
		return 0
	case factChannel == "":
		return channelUnknown
	case factChannel == queryChannel:
		return channelMatch
	default:
		return 0
	}
}

func clampLimit(limit int) int {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	return min(limit, maxSearchLimit)
}

func project(ranked []RankedFact, limit int) []FactDTO {
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	out := make([]FactDTO, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, FactDTO{
			ID:         r.Fact.ID,
			Subject:    r.Fact.Subject,
			Fact:       r.Fact.Fact,
			FactType:   r.Fact.FactType,
			Evidence:   r.Fact.EvidenceText,
			ChannelID:  r.Fact.ChannelID,
			Confidence: r.Fact.Confidence,
			CreatedAt:  r.Fact.CreatedAt,
			Score:      r.Score,
		})
	}
	return out
}
