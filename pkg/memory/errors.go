package memory

import "errors"

var (
	// ErrNotConfigured is returned when an engine is built without a fact store.
	ErrNotConfigured = errors.New("memory not configured")

	// ErrEngineClosed is returned by operations attempted after Close.
	ErrEngineClosed = errors.New("memory engine closed")

	// ErrEmptyMessageID marks an ingest request without a message id.
	ErrEmptyMessageID = errors.New("empty message id")
)
