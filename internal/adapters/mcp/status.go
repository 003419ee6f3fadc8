package mcp

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

func statusTool() mcp.Tool {
	return mcp.NewTool("remarkable_status",
		mcp.WithDescription("Report sync state, library size, and index coverage."),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}

type statusResult struct {
	State     string `json:"state"`
	SyncedAt  string `json:"syncedAt,omitempty"`
	Documents int    `json:"documents"`
	Folders   int    `json:"folders"`
	Indexed   int    `json:"indexed"`
	RootScope string `json:"rootScope"`
	IndexPath string `json:"indexPath"`
}

func statusHandler(svc Services) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		t, err := svc.Sync.Tree(ctx)
		if err != nil {
			return toolError(err)
		}

		res := statusResult{
			State:     svc.Sync.State().String(),
			RootScope: svc.Config.RootPath,
			IndexPath: svc.Config.IndexPath,
		}
		if at := svc.Sync.SyncedAt(); !at.IsZero() {
			res.SyncedAt = at.UTC().Format(time.RFC3339)
		}
		for _, m := range t.All() {
			if m.IsFolder() {
				res.Folders++
			} else {
				res.Documents++
			}
		}
		if n, err := svc.Search.Indexed(ctx); err == nil {
			res.Indexed = n
		}
		hint := ""
		if t.Partial {
			hint = "last sync was partial; some documents may be missing"
		}
		return jsonResult(res, hint)
	}
}
