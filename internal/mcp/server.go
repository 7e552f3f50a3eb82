// Package mcp exposes the memory engine as Model Context Protocol tools
// over stdio. Replies are human-readable strings shaped for an agent to
// relay, not JSON payloads. Nothing may write to stdout before Run, or the
// client's framing breaks.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/openclaw/openclaw-memory/internal/engine"
	memerr "github.com/openclaw/openclaw-memory/internal/errors"
	"github.com/openclaw/openclaw-memory/internal/primer"
	"github.com/openclaw/openclaw-memory/internal/writer"
	"github.com/openclaw/openclaw-memory/pkg/version"
)

// Server bridges MCP clients with the memory engine.
type Server struct {
	mcp    *mcp.Server
	engine *engine.Engine
	logger *slog.Logger
}

// NewServer creates the server and registers the six memory tools.
func NewServer(eng *engine.Engine, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{engine: eng, logger: logger}
	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "openclaw-memory",
			Version: version.Version,
		},
		nil,
	)
	s.registerTools()
	return s
}

// Run serves MCP over stdio until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting MCP server", slog.String("transport", "stdio"))
	err := s.mcp.Run(ctx, &mcp.StdioTransport{})
	if err != nil && err != context.Canceled {
		s.logger.Error("MCP server stopped with error", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("MCP server stopped")
	return nil
}

// PrimerInput is empty; the primer takes no arguments.
type PrimerInput struct{}

// SearchInput is the memory_search argument schema.
type SearchInput struct {
	Query     string `json:"query" jsonschema:"the natural-language query"`
	Scope     string `json:"scope,omitempty" jsonschema:"restrict to one scope: global, project, user, agent, journal"`
	MaxTokens int    `json:"max_tokens,omitempty" jsonschema:"token budget for results, default 1500"`
	Detail    bool   `json:"detail,omitempty" jsonschema:"return full content instead of the compact index"`
}

// LogInput is the memory_log argument schema.
type LogInput struct {
	Content string `json:"content" jsonschema:"the memory to save, one established fact"`
	Type    string `json:"type,omitempty" jsonschema:"override routing: instruction, decision, pattern, preference, entity, event"`
}

// TasksInput is the memory_update_tasks argument schema.
type TasksInput struct {
	Tasks []primer.Task `json:"tasks" jsonschema:"the full task list; replaces TASKS.md"`
}

// ReadInput is the memory_read argument schema.
type ReadInput struct {
	Path string `json:"path" jsonschema:"scope-relative path, e.g. user/preferences.md or journal/2026-08-25.md"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "memory_primer",
		Description: "Load full session context: user identity, project info, preferences, recent activity, active tasks. Call once at the start of every session.",
	}, s.handlePrimer)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "memory_search",
		Description: "Search memories with hybrid semantic and keyword retrieval under a token budget. Category queries (preferences, instructions, tasks) return the whole file; recency phrasing reads the journal timeline.",
	}, s.handleSearch)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "memory_log",
		Description: "Save one memory: a fact, decision, preference, or pattern worth keeping across sessions. Near-duplicates reinforce the existing memory instead of appending.",
	}, s.handleLog)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "memory_session_end",
		Description: "Write a structured end-of-session summary to today's journal and refresh PRIMER.md and TASKS.md.",
	}, s.handleSessionEnd)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "memory_update_tasks",
		Description: "Replace the task list in TASKS.md so the next session's primer shows current work. Mark finished tasks as done.",
	}, s.handleUpdateTasks)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "memory_read",
		Description: "Read one memory file in full, untruncated. Tries the project scope first, then global.",
	}, s.handleRead)
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func (s *Server) handlePrimer(ctx context.Context, _ *mcp.CallToolRequest, _ PrimerInput) (*mcp.CallToolResult, any, error) {
	content, err := s.engine.Primer(ctx)
	if err != nil {
		return nil, nil, err
	}
	return textResult(content), nil, nil
}

func (s *Server) handleSearch(ctx context.Context, _ *mcp.CallToolRequest, in SearchInput) (*mcp.CallToolResult, any, error) {
	if in.Query == "" {
		return nil, nil, fmt.Errorf("query is required")
	}
	resp, err := s.engine.Search(ctx, in.Query, in.Scope, in.MaxTokens)
	if err != nil {
		return nil, nil, err
	}
	if len(resp.Results) == 0 {
		return textResult("No matching memories found."), nil, nil
	}
	if in.Detail || resp.FastPath {
		return textResult(formatDetail(resp)), nil, nil
	}
	return textResult(formatCompact(resp)), nil, nil
}

func (s *Server) handleLog(ctx context.Context, _ *mcp.CallToolRequest, in LogInput) (*mcp.CallToolResult, any, error) {
	if in.Content == "" {
		return nil, nil, fmt.Errorf("content is required")
	}
	res, err := s.engine.Log(ctx, in.Content, in.Type)
	if err != nil {
		// Gate refusals are replies, not protocol errors.
		switch memerr.CodeOf(err) {
		case memerr.CodeQualityRejected, memerr.CodePrivacyRejected:
			return textResult("Rejected: " + rejectionReason(err)), nil, nil
		}
		return nil, nil, err
	}

	var reply string
	switch res.Action {
	case writer.ActionReinforced:
		reply = fmt.Sprintf("Existing memory reinforced (score=%.2f) in %s", res.Score, res.URI)
	case writer.ActionReplaced:
		reply = fmt.Sprintf("Conflicting memory updated (score=%.2f) in %s", res.Score, res.URI)
	default:
		reply = fmt.Sprintf("Memory saved to %s (type: %s)", res.URI, res.Type)
	}
	return textResult(reply), nil, nil
}

func (s *Server) handleSessionEnd(ctx context.Context, _ *mcp.CallToolRequest, in primer.SessionSummary) (*mcp.CallToolResult, any, error) {
	name, err := s.engine.SessionEnd(ctx, in)
	if err != nil {
		return nil, nil, err
	}
	return textResult(fmt.Sprintf(
		"Session summary written to %s. PRIMER.md and TASKS.md updated.", name)), nil, nil
}

func (s *Server) handleUpdateTasks(ctx context.Context, _ *mcp.CallToolRequest, in TasksInput) (*mcp.CallToolResult, any, error) {
	if err := s.engine.UpdateTasks(ctx, in.Tasks); err != nil {
		return nil, nil, err
	}
	return textResult(fmt.Sprintf(
		"TASKS.md updated with %d tasks. PRIMER.md refreshed.", len(in.Tasks))), nil, nil
}

func (s *Server) handleRead(ctx context.Context, _ *mcp.CallToolRequest, in ReadInput) (*mcp.CallToolResult, any, error) {
	if in.Path == "" {
		return nil, nil, fmt.Errorf("path is required")
	}
	content, err := s.engine.Read(ctx, in.Path)
	if err != nil {
		return nil, nil, err
	}
	return textResult(content), nil, nil
}

// rejectionReason pulls the human-readable reason off a gate rejection.
func rejectionReason(err error) string {
	var me *memerr.MemoryError
	if !errors.As(err, &me) {
		return err.Error()
	}
	if reason, ok := me.Details["reason"]; ok {
		return reason
	}
	return me.Message
}
