// Package inmemory provides an in-process vector.Driver that scores with exact
// cosine similarity.
package inmemory

import (
	"context"
	"slices"
	"sync"

	"github.com/papercomputeco/keepsake/pkg/vector"
)

type key struct {
	factID int64
	model  string
}

// Driver implements vector.Driver using a map keyed by (fact id, model).
type Driver struct {
	mu      sync.RWMutex
	vectors map[key][]float32
}

// NewDriver creates an empty in-memory vector driver.
func NewDriver() *Driver {
	return &Driver{
		vectors: make(map[key][]float32),
	}
}

// Get returns a copy of the stored embedding, or nil.
func (d *Driver) Get(_ context.Context, factID int64, model string) ([]float32, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	emb, ok := d.vectors[key{factID, model}]
	if !ok {
		return nil, nil
	}
	return slices.Clone(emb), nil
}

// Upsert stores a copy of the record's embedding.
func (d *Driver) Upsert(_ context.Context, rec vector.Record) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.vectors[key{rec.FactID, rec.Model}] = slices.Clone(rec.Embedding)
	return nil
}

// Scores computes cosine similarity for each requested fact with a vector.
func (d *Driver) Scores(_ context.Context, q vector.ScoreQuery) ([]vector.Score, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	scores := make([]vector.Score, 0, len(q.FactIDs))
	for _, id := range q.FactIDs {
		emb, ok := d.vectors[key{id, q.Model}]
		if !ok {
			continue
		}
		scores = append(scores, vector.Score{
			FactID: id,
			Score:  vector.ClampScore(vector.CosineSimilarity(emb, q.QueryEmbedding)),
		})
	}
	return scores, nil
}

// Len returns the number of stored vectors.
func (d *Driver) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return len(d.vectors)
}

// Close is a no-op for the in-memory driver.
func (d *Driver) Close() error {
	return nil
}

var _ vector.Driver = (*Driver)(nil)
