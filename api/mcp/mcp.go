// Package mcp provides an MCP (Model Context Protocol) server exposing the
// keepsake memory engine as agent tools.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/keepsake/pkg/memory"
	"github.com/papercomputeco/keepsake/pkg/utils"
)

// Memory is the subset of the memory engine the tools call.
type Memory interface {
	SearchDurableFacts(ctx context.Context, req memory.SearchRequest) ([]memory.FactDTO, error)
	BuildPromptMemorySlice(ctx context.Context, req memory.SliceRequest) (*memory.MemorySlice, error)
	RememberDirectiveLine(ctx context.Context, req memory.RememberRequest) (bool, error)
}

type Config struct {
	// Memory answers tool calls.
	Memory Memory

	// Settings returns the memory settings current at call time. Nil means
	// memory enabled with provider default models.
	Settings func() memory.Settings

	// Noop for empty MCP server
	Noop bool

	// Logger is the configured slog logger
	Logger *slog.Logger
}

type Server struct {
	config    Config
	mcpServer *mcp.Server
	handler   *mcp.StreamableHTTPHandler
}

// NewServer creates a new MCP server with the memory tools.
func NewServer(c Config) (*Server, error) {
	s := &Server{
		config: c,
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "keepsake",
			Version: utils.Version,
		},
		&mcp.ServerOptions{},
	)
	s.mcpServer = mcpServer

	if !c.Noop {
		if c.Memory == nil {
			return nil, errors.New("memory engine is required")
		}
		if c.Logger == nil {
			return nil, errors.New("logger is required")
		}

		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        searchToolName,
			Description: searchDescription,
		}, s.handleSearch)

		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        sliceToolName,
			Description: sliceDescription,
		}, s.handleSlice)

		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        rememberToolName,
			Description: rememberDescription,
		}, s.handleRemember)
	}

	// Create a streamable HTTP net/http handler for stateless operations
	s.handler = mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server {
			return mcpServer
		},
		&mcp.StreamableHTTPOptions{
			Stateless: true,
		},
	)

	return s, nil
}

// Handler returns the HTTP handler for the MCP server.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Connect serves the tools over an arbitrary MCP transport, such as stdio.
func (s *Server) Connect(ctx context.Context, t mcp.Transport) (*mcp.ServerSession, error) {
	return s.mcpServer.Connect(ctx, t, nil)
}

func (s *Server) settings() memory.Settings {
	if s.config.Settings == nil {
		return memory.Settings{Enabled: true}
	}
	return s.config.Settings()
}

// toolResult serializes out as JSON text alongside the structured output.
// Tools returning structured content also return serialized JSON in a
// TextContent block for clients that ignore structured content.
func toolResult[T any](out T) (*mcp.CallToolResult, T, error) {
	jsonBytes, err := json.Marshal(out)
	if err != nil {
		var zero T
		return toolError(fmt.Sprintf("Failed to serialize results: %v", err)), zero, nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(jsonBytes)},
		},
	}, out, nil
}

func toolError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: msg},
		},
	}
}
