// Package vector provides the fact vector collaborator: storage and native
// similarity scoring of fact embeddings keyed by (fact id, model).
package vector

import "context"

// Record associates a fact with its embedding under one embedding model.
type Record struct {
	// FactID is the id of the fact the embedding was computed from.
	FactID int64

	// Model is the embedding model that produced Embedding.
	Model string

	// Embedding is the vector representation of the fact's canonical text.
	Embedding []float32
}

// Score is a native similarity score for one fact.
type Score struct {
	FactID int64

	// Score is the cosine similarity between the fact vector and the query,
	// clamped to [0, 1].
	Score float64
}

// ScoreQuery asks for similarity scores of specific facts against a query embedding.
type ScoreQuery struct {
	FactIDs        []int64
	Model          string
	QueryEmbedding []float32
}

// Driver handles storage and scoring of fact embeddings.
type Driver interface {
	// Get returns the stored embedding for a fact under model, or nil when the
	// fact has no vector under that model.
	Get(ctx context.Context, factID int64, model string) ([]float32, error)

	// Upsert stores a fact vector, replacing any existing vector for the same
	// (fact id, model).
	Upsert(ctx context.Context, rec Record) error

	// Scores returns similarity scores for the requested facts that have a
	// vector under the model. Facts without a vector are omitted.
	Scores(ctx context.Context, q ScoreQuery) ([]Score, error)

	// Close releases any resources held by the driver.
	Close() error
}
