package vector

import "errors"

var (
	// ErrEmbedding is returned when embedding generation fails.
	ErrEmbedding = errors.New("embedding failed")

	// ErrConnection is returned when the vector store connection fails.
	ErrConnection = errors.New("vector store connection failed")

	// ErrDimensionMismatch is returned when an embedding does not match the
	// dimensions the store was configured with.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)
