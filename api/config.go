// Package api provides the HTTP API server exposing the keepsake memory engine.
package api

import (
	"log/slog"

	"github.com/papercomputeco/keepsake/pkg/memory"
)

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8082")
	ListenAddr string

	// Settings returns the memory settings current at request time, typically
	// config.Watcher.Settings. Nil means memory enabled with default models.
	Settings func() memory.Settings

	// MCP enables the MCP tool server under /mcp.
	MCP bool

	// Logger is the configured slog logger
	Logger *slog.Logger
}
