package api

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/papercomputeco/keepsake/pkg/memory"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// IngestRequest is the body of POST /v1/messages.
type IngestRequest struct {
	MessageID  string    `json:"message_id"`
	AuthorID   string    `json:"author_id"`
	AuthorName string    `json:"author_name"`
	GuildID    string    `json:"guild_id,omitempty"`
	ChannelID  string    `json:"channel_id,omitempty"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at,omitzero"`
}

// IngestResponse reports the queued or final state of an ingest job.
type IngestResponse struct {
	MessageID string `json:"message_id"`
	Queued    bool   `json:"queued"`
	Done      bool   `json:"done"`
	Ingested  bool   `json:"ingested"`
}

// SearchResponse is the body of GET /v1/facts/search.
type SearchResponse struct {
	Query string           `json:"query"`
	Facts []memory.FactDTO `json:"facts"`
	Count int              `json:"count"`
}

// SliceRequest is the body of POST /v1/memory/slice.
type SliceRequest struct {
	UserID    string `json:"user_id"`
	GuildID   string `json:"guild_id,omitempty"`
	ChannelID string `json:"channel_id,omitempty"`
	Query     string `json:"query,omitempty"`
}

// RememberRequest is the body of POST /v1/facts/remember.
type RememberRequest struct {
	Line            string `json:"line"`
	Scope           string `json:"scope,omitempty"`
	UserID          string `json:"user_id,omitempty"`
	GuildID         string `json:"guild_id"`
	ChannelID       string `json:"channel_id,omitempty"`
	SourceMessageID string `json:"source_message_id,omitempty"`
	SourceText      string `json:"source_text,omitempty"`
}

// RememberResponse reports whether the directive line is stored.
type RememberResponse struct {
	Stored bool `json:"stored"`
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// handleStats returns the engine counters.
func (s *Server) handleStats(c *fiber.Ctx) error {
	return c.JSON(s.memory.Stats())
}

// handleIngest queues a chat message. With ?wait=true the handler blocks
// until the job resolves.
func (s *Server) handleIngest(c *fiber.Ctx) error {
	var req IngestRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	job := memory.IngestJob{
		MessageID:  req.MessageID,
		AuthorID:   req.AuthorID,
		AuthorName: req.AuthorName,
		GuildID:    req.GuildID,
		ChannelID:  req.ChannelID,
		Content:    req.Content,
		CreatedAt:  req.CreatedAt,
		Settings:   s.settings(),
		Trace:      newTrace("api", req.GuildID, req.ChannelID, req.AuthorID),
	}
	if err := job.Validate(); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "message_id is required")
	}

	future := s.memory.IngestMessage(job)
	resp := IngestResponse{MessageID: strings.TrimSpace(req.MessageID), Queued: true}

	if c.QueryBool("wait") {
		ok, err := future.Wait(c.Context())
		if err != nil {
			return fiber.NewError(fiber.StatusGatewayTimeout, "ingest did not finish")
		}
		resp.Done = true
		resp.Ingested = ok
		return c.JSON(resp)
	}

	resp.Ingested, resp.Done = future.Result()
	return c.Status(fiber.StatusAccepted).JSON(resp)
}

// handleSearch handles GET /v1/facts/search requests.
// Query parameters:
//   - query (optional): the text to match facts against
//   - guild_id, channel_id (optional): scope and locality
//   - limit (optional, default 10, at most 24): number of facts to return
func (s *Server) handleSearch(c *fiber.Ctx) error {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "limit must be a positive integer")
		}
		limit = parsed
	}

	query := c.Query("query")
	guildID := c.Query("guild_id")
	channelID := c.Query("channel_id")

	facts, err := s.memory.SearchDurableFacts(c.Context(), memory.SearchRequest{
		GuildID:   guildID,
		ChannelID: channelID,
		QueryText: query,
		Settings:  s.settings(),
		Trace:     newTrace("api", guildID, channelID, ""),
		Limit:     limit,
	})
	if err != nil {
		s.logger.Error("fact search failed", "error", err)
		return fiber.NewError(fiber.StatusInternalServerError, "fact search failed")
	}

	if facts == nil {
		facts = []memory.FactDTO{}
	}
	return c.JSON(SearchResponse{Query: query, Facts: facts, Count: len(facts)})
}

// handleSlice builds the memory slice for a reply.
func (s *Server) handleSlice(c *fiber.Ctx) error {
	var req SliceRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.UserID) == "" {
		return fiber.NewError(fiber.StatusBadRequest, "user_id is required")
	}

	slice, err := s.memory.BuildPromptMemorySlice(c.Context(), memory.SliceRequest{
		UserID:    req.UserID,
		GuildID:   req.GuildID,
		ChannelID: req.ChannelID,
		QueryText: req.Query,
		Settings:  s.settings(),
		Trace:     newTrace("api", req.GuildID, req.ChannelID, req.UserID),
	})
	if err != nil {
		s.logger.Error("memory slice failed", "error", err)
		return fiber.NewError(fiber.StatusInternalServerError, "memory slice failed")
	}

	return c.JSON(slice)
}

// handleRemember stores an explicit directive line.
func (s *Server) handleRemember(c *fiber.Ctx) error {
	var req RememberRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Line) == "" {
		return fiber.NewError(fiber.StatusBadRequest, "line is required")
	}

	stored, err := s.memory.RememberDirectiveLine(c.Context(), memory.RememberRequest{
		Line:            req.Line,
		SourceMessageID: req.SourceMessageID,
		UserID:          req.UserID,
		GuildID:         req.GuildID,
		ChannelID:       req.ChannelID,
		SourceText:      req.SourceText,
		Scope:           memory.ParseDirectiveScope(req.Scope),
	})
	if err != nil {
		return s.engineError(err, "remember failed")
	}

	return c.JSON(RememberResponse{Stored: stored})
}

// handleGetSnapshot renders the current Markdown snapshot without writing it.
func (s *Server) handleGetSnapshot(c *fiber.Ctx) error {
	md, err := s.memory.SnapshotMarkdown(c.Context())
	if err != nil {
		return s.engineError(err, "snapshot failed")
	}

	c.Set(fiber.HeaderContentType, "text/markdown; charset=utf-8")
	return c.SendString(md)
}

// handleRefreshSnapshot rewrites the snapshot file now.
func (s *Server) handleRefreshSnapshot(c *fiber.Ctx) error {
	if err := s.memory.RefreshMemoryMarkdown(c.Context()); err != nil {
		return s.engineError(err, "snapshot refresh failed")
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// handleBackfill embeds every fact in a guild that lacks a vector.
func (s *Server) handleBackfill(c *fiber.Ctx) error {
	result, err := s.memory.BackfillScope(c.Context(), c.Query("guild_id"), s.settings())
	if err != nil {
		return s.engineError(err, "backfill failed")
	}
	return c.JSON(result)
}

func (s *Server) engineError(err error, msg string) error {
	switch {
	case errors.Is(err, memory.ErrEngineClosed):
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	case errors.Is(err, memory.ErrNotConfigured):
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	}

	s.logger.Error(msg, "error", err)
	return fiber.NewError(fiber.StatusInternalServerError, msg)
}

// errorHandler renders every error as an ErrorResponse.
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(ErrorResponse{Error: err.Error()})
}

func newTrace(source, guildID, channelID, userID string) memory.Trace {
	return memory.Trace{
		ID:        uuid.NewString(),
		Source:    source,
		GuildID:   guildID,
		ChannelID: channelID,
		UserID:    userID,
	}
}
