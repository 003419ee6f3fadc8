// Package mcp exposes the library over the Model Context Protocol. Every
// tool is read-only: the remote store is the single writer, this process only
// mirrors it.
package mcp

import (
	"errors"
	"fmt"
	"log/slog"

	json "github.com/goccy/go-json"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/wavyrai/rm-mcp/internal/application"
	"github.com/wavyrai/rm-mcp/internal/config"
	"github.com/wavyrai/rm-mcp/internal/domain"
)

// Services bundles everything the tool handlers call into.
type Services struct {
	Resolver *application.PathResolver
	Cache    *application.CacheStore
	Search   *application.SearchService
	Sync     *application.SyncEngine
	Config   config.Config
	Log      *slog.Logger
}

// Register adds all library tools to the MCP server.
func Register(s *server.MCPServer, svc Services) {
	if svc.Log == nil {
		svc.Log = slog.Default()
	}
	s.AddTool(browseTool(), browseHandler(svc))
	s.AddTool(readTool(), readHandler(svc))
	s.AddTool(searchTool(), searchHandler(svc))
	s.AddTool(recentTool(), recentHandler(svc))
	s.AddTool(statusTool(), statusHandler(svc))
}

// --- helpers ---

func toolError(err error) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultError(friendly(err)), nil
}

// friendly maps the error taxonomy to messages an agent can act on.
func friendly(err error) string {
	switch {
	case errors.Is(err, domain.ErrAuthExpired):
		return "authentication expired: the device token was rejected; re-register the device and restart"
	case errors.Is(err, domain.ErrSourceUnavailable):
		return "cloud unreachable after retries; try again shortly: " + err.Error()
	case errors.Is(err, domain.ErrNotFound):
		return err.Error()
	default:
		return err.Error()
	}
}

// envelope is the JSON shape every structured tool result uses. Hint tells
// the caller what to do next (fetch the following page, narrow a search).
type envelope struct {
	Result any    `json:"result"`
	Hint   string `json:"hint,omitempty"`
}

func jsonResult(result any, hint string) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(envelope{Result: result, Hint: hint}, "", "  ")
	if err != nil {
		return toolError(fmt.Errorf("encoding result: %w", err))
	}
	return mcp.NewToolResultText(string(b)), nil
}

// clip truncates s to at most max characters, marking the cut.
func clip(s string, max int) (string, bool) {
	if max <= 0 || len([]rune(s)) <= max {
		return s, false
	}
	return string([]rune(s)[:max]) + "\n[truncated]", true
}
