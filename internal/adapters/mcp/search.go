package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const (
	maxSearchResults = 5
	snippetCap       = 2000
)

func searchTool() mcp.Tool {
	return mcp.NewTool("remarkable_search",
		mcp.WithDescription("Full-text search across documents that have been read at least once. Returns ranked matches with snippets."),
		mcp.WithString("query",
			mcp.Description("Search terms. FTS operators (AND, OR, \"quoted phrases\") are supported."),
			mcp.Required(),
		),
		mcp.WithString("path",
			mcp.Description("Restrict matches to documents under this folder path."),
		),
		mcp.WithNumber("limit",
			mcp.Description(fmt.Sprintf("Maximum results, up to %d. Defaults to %d.", maxSearchResults, maxSearchResults)),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}

type searchHit struct {
	Path    string  `json:"path"`
	Score   float64 `json:"score"`
	Snippet string  `json:"snippet"`
}

type searchResult struct {
	NameMatches []string    `json:"nameMatches,omitempty"`
	Results     []searchHit `json:"results"`
}

func searchHandler(svc Services) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query := req.GetString("query", "")
		if query == "" {
			return toolError(fmt.Errorf("query is required"))
		}
		limit := req.GetInt("limit", maxSearchResults)
		if limit < 1 || limit > maxSearchResults {
			limit = maxSearchResults
		}
		pathPrefix := req.GetString("path", "")

		hits, err := svc.Search.Search(ctx, query, pathPrefix, limit)
		if err != nil {
			return toolError(err)
		}

		out := searchResult{Results: make([]searchHit, 0, len(hits))}
		for _, h := range hits {
			snippet, _ := clip(h.Snippet, snippetCap)
			out.Results = append(out.Results, searchHit{Path: h.Path, Score: h.Score, Snippet: snippet})
		}
		out.NameMatches = nameMatches(ctx, svc, query, pathPrefix)

		hint := ""
		if len(out.Results) == 0 && len(out.NameMatches) == 0 {
			hint = "no matches; only documents that have been read are searchable, use remarkable_read to index more"
		}
		return jsonResult(out, hint)
	}
}

// nameMatches lists document paths whose name contains the query, regardless
// of whether their content is indexed.
func nameMatches(ctx context.Context, svc Services, query, pathPrefix string) []string {
	metas, err := svc.Resolver.Find(ctx, query, maxSearchResults)
	if err != nil {
		return nil
	}
	var paths []string
	for _, m := range metas {
		if m.IsFolder() {
			continue
		}
		p, err := svc.Resolver.PathOf(ctx, m.ID)
		if err != nil {
			continue
		}
		if pathPrefix != "" && p != pathPrefix && !strings.HasPrefix(p, pathPrefix+"/") {
			continue
		}
		paths = append(paths, p)
	}
	return paths
}
