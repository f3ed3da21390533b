package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/keepsake/api/mcp"
	"github.com/papercomputeco/keepsake/pkg/logger"
	"github.com/papercomputeco/keepsake/pkg/memory"
)

// Memory is the memory engine surface the API serves.
type Memory interface {
	mcp.Memory

	IngestMessage(job memory.IngestJob) *memory.Future
	RefreshMemoryMarkdown(ctx context.Context) error
	SnapshotMarkdown(ctx context.Context) (string, error)
	BackfillScope(ctx context.Context, guildID string, settings memory.Settings) (*memory.BackfillResult, error)
	Stats() memory.Stats
}

// Server is the API server for ingesting messages into and querying the
// keepsake memory engine.
type Server struct {
	config Config
	memory Memory
	logger *slog.Logger
	app    *fiber.App
}

// NewServer creates a new API server around engine.
func NewServer(config Config, engine Memory) (*Server, error) {
	if engine == nil {
		return nil, fmt.Errorf("memory engine is required")
	}
	if config.Logger == nil {
		config.Logger = logger.Nop()
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})

	s := &Server{
		config: config,
		memory: engine,
		logger: config.Logger,
		app:    app,
	}

	app.Get("/ping", s.handlePing)
	app.Get("/v1/stats", s.handleStats)
	app.Post("/v1/messages", s.handleIngest)
	app.Get("/v1/facts/search", s.handleSearch)
	app.Post("/v1/facts/remember", s.handleRemember)
	app.Post("/v1/memory/slice", s.handleSlice)
	app.Get("/v1/memory/snapshot", s.handleGetSnapshot)
	app.Post("/v1/memory/snapshot", s.handleRefreshSnapshot)
	app.Post("/v1/backfill", s.handleBackfill)

	if config.MCP {
		mcpServer, err := mcp.NewServer(mcp.Config{
			Memory:   engine,
			Settings: config.Settings,
			Logger:   config.Logger,
		})
		if err != nil {
			return nil, fmt.Errorf("creating MCP server: %w", err)
		}
		app.All("/mcp", adaptor.HTTPHandler(mcpServer.Handler()))
	}

	return s, nil
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server",
		"listen", s.config.ListenAddr,
	)
	return s.app.Listen(s.config.ListenAddr)
}

// Handler exposes the server as a net/http handler.
func (s *Server) Handler() http.Handler {
	return adaptor.FiberApp(s.app)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func (s *Server) settings() memory.Settings {
	if s.config.Settings == nil {
		return memory.Settings{Enabled: true}
	}
	return s.config.Settings()
}
