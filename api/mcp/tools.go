package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/keepsake/pkg/memory"
)

var (
	searchToolName    = "memory_search"
	searchDescription = "Search durable memory facts for a guild. Facts are ranked by lexical overlap, semantic similarity, recency, confidence, and channel affinity; only facts that clear the relevance gate are returned."

	sliceToolName    = "memory_slice"
	sliceDescription = "Build the memory context for a reply: durable facts about the user, other relevant facts in the guild, and recent messages matching the query."

	rememberToolName    = "memory_remember"
	rememberDescription = "Store an explicit memory line about a user (scope user), the agent itself (scope self), or the server (scope lore). Instruction-like text is rejected. Returns whether the fact is now stored."
)

// SearchInput represents the input arguments for the memory_search tool.
type SearchInput struct {
	Query     string `json:"query" jsonschema:"the text to match facts against; empty returns the strongest facts by recency and confidence"`
	GuildID   string `json:"guild_id,omitempty" jsonschema:"guild to search; empty searches every guild"`
	ChannelID string `json:"channel_id,omitempty" jsonschema:"channel the question was asked in; facts from it rank higher"`
	Limit     int    `json:"limit,omitempty" jsonschema:"number of facts to return (default 10, at most 24)"`
}

// SearchOutput represents the output of the memory_search tool.
type SearchOutput struct {
	Query string `json:"query"`
	Facts []Fact `json:"facts"`
	Count int    `json:"count"`
}

func (s *Server) handleSearch(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	logger := s.config.Logger
	logger.Debug("MCP memory search request",
		"query", input.Query,
		"guild_id", input.GuildID,
		"limit", input.Limit,
	)

	facts, err := s.config.Memory.SearchDurableFacts(ctx, memory.SearchRequest{
		GuildID:   input.GuildID,
		ChannelID: input.ChannelID,
		QueryText: input.Query,
		Settings:  s.settings(),
		Trace:     newTrace(input.GuildID, input.ChannelID, ""),
		Limit:     input.Limit,
	})
	if err != nil {
		logger.Error("memory search failed", "error", err)
		return toolError(fmt.Sprintf("Memory search failed: %v", err)), SearchOutput{}, nil
	}

	return toolResult(SearchOutput{
		Query: input.Query,
		Facts: toFacts(facts),
		Count: len(facts),
	})
}

// SliceInput represents the input arguments for the memory_slice tool.
type SliceInput struct {
	UserID    string `json:"user_id" jsonschema:"id of the user being replied to"`
	GuildID   string `json:"guild_id,omitempty" jsonschema:"guild of the conversation"`
	ChannelID string `json:"channel_id,omitempty" jsonschema:"channel of the conversation"`
	Query     string `json:"query,omitempty" jsonschema:"the message being replied to"`
}

// SliceOutput represents the output of the memory_slice tool.
type SliceOutput struct {
	UserFacts        []Fact    `json:"user_facts"`
	RelevantFacts    []Fact    `json:"relevant_facts"`
	RelevantMessages []Message `json:"relevant_messages"`
}

func (s *Server) handleSlice(ctx context.Context, _ *mcp.CallToolRequest, input SliceInput) (*mcp.CallToolResult, SliceOutput, error) {
	if strings.TrimSpace(input.UserID) == "" {
		return toolError("user_id is required"), SliceOutput{}, nil
	}

	slice, err := s.config.Memory.BuildPromptMemorySlice(ctx, memory.SliceRequest{
		UserID:    input.UserID,
		GuildID:   input.GuildID,
		ChannelID: input.ChannelID,
		QueryText: input.Query,
		Settings:  s.settings(),
		Trace:     newTrace(input.GuildID, input.ChannelID, input.UserID),
	})
	if err != nil {
		s.config.Logger.Error("memory slice failed", "error", err)
		return toolError(fmt.Sprintf("Memory slice failed: %v", err)), SliceOutput{}, nil
	}

	return toolResult(SliceOutput{
		UserFacts:        toFacts(slice.UserFacts),
		RelevantFacts:    toFacts(slice.RelevantFacts),
		RelevantMessages: toMessages(slice.RelevantMessages),
	})
}

// RememberInput represents the input arguments for the memory_remember tool.
type RememberInput struct {
	Line            string `json:"line" jsonschema:"the fact to remember, phrased as a statement"`
	Scope           string `json:"scope,omitempty" jsonschema:"user, self, or lore (default user)"`
	UserID          string `json:"user_id,omitempty" jsonschema:"the user the fact is about; required for scope user"`
	GuildID         string `json:"guild_id" jsonschema:"guild the fact belongs to"`
	ChannelID       string `json:"channel_id,omitempty" jsonschema:"channel the fact was stated in"`
	SourceMessageID string `json:"source_message_id,omitempty" jsonschema:"id of the message that asked for the fact to be remembered"`
	SourceText      string `json:"source_text,omitempty" jsonschema:"full text of that message, used to ground the evidence quote"`
}

// RememberOutput represents the output of the memory_remember tool.
type RememberOutput struct {
	Stored bool `json:"stored"`
}

func (s *Server) handleRemember(ctx context.Context, _ *mcp.CallToolRequest, input RememberInput) (*mcp.CallToolResult, RememberOutput, error) {
	if strings.TrimSpace(input.Line) == "" {
		return toolError("line is required"), RememberOutput{}, nil
	}

	stored, err := s.config.Memory.RememberDirectiveLine(ctx, memory.RememberRequest{
		Line:            input.Line,
		SourceMessageID: input.SourceMessageID,
		UserID:          input.UserID,
		GuildID:         input.GuildID,
		ChannelID:       input.ChannelID,
		SourceText:      input.SourceText,
		Scope:           memory.ParseDirectiveScope(input.Scope),
	})
	if err != nil {
		s.config.Logger.Error("memory remember failed", "error", err)
		return toolError(fmt.Sprintf("Memory remember failed: %v", err)), RememberOutput{}, nil
	}

	return toolResult(RememberOutput{Stored: stored})
}

func newTrace(guildID, channelID, userID string) memory.Trace {
	return memory.Trace{
		ID:        uuid.NewString(),
		Source:    "mcp",
		GuildID:   guildID,
		ChannelID: channelID,
		UserID:    userID,
	}
}
