package mcp

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/wavyrai/rm-mcp/internal/domain"
)

// entry is the listing shape shared by browse and recent.
type entry struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	Kind     string `json:"kind"`
	FileType string `json:"fileType,omitempty"`
	Modified string `json:"modified"`
	Pinned   bool   `json:"pinned,omitempty"`
	Preview  string `json:"preview,omitempty"`
}

func toEntry(m domain.DocumentMeta, path string) entry {
	e := entry{
		Name:     m.Name,
		Path:     path,
		Kind:     string(m.Kind),
		Modified: m.ModifiedAt.UTC().Format(time.RFC3339),
		Pinned:   m.Pinned,
	}
	if !m.IsFolder() {
		e.FileType = string(m.FileType)
	}
	return e
}

// --- remarkable_browse ---

func browseTool() mcp.Tool {
	return mcp.NewTool("remarkable_browse",
		mcp.WithDescription("List the folders and documents under a path, or find items by name. Use '/' for the top level."),
		mcp.WithString("path",
			mcp.Description("Folder path to list, e.g. '/' or '/Work/Projects'."),
		),
		mcp.WithString("query",
			mcp.Description("Name to look for anywhere in the library instead of listing a folder."),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}

const maxBrowseMatches = 25

func browseHandler(svc Services) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		path := req.GetString("path", "/")
		if query := req.GetString("query", ""); query != "" {
			return findByName(ctx, svc, query)
		}

		entries, err := svc.Resolver.List(ctx, path)
		if errors.Is(err, domain.ErrNotFound) {
			if hint := didYouMean(ctx, svc, path); hint != "" {
				return jsonResult([]entry{}, hint)
			}
			return toolError(err)
		}
		if err != nil {
			return toolError(err)
		}

		base := strings.TrimSuffix(path, "/")
		out := make([]entry, 0, len(entries))
		for _, m := range entries {
			out = append(out, toEntry(m, base+"/"+m.Name))
		}
		hint := ""
		if len(out) == 0 {
			hint = "folder is empty"
		}
		return jsonResult(out, hint)
	}
}

func findByName(ctx context.Context, svc Services, query string) (*mcp.CallToolResult, error) {
	matches, err := svc.Resolver.Find(ctx, query, maxBrowseMatches)
	if err != nil {
		return toolError(err)
	}
	out := make([]entry, 0, len(matches))
	for _, m := range matches {
		p, err := svc.Resolver.PathOf(ctx, m.ID)
		if err != nil {
			continue
		}
		out = append(out, toEntry(m, p))
	}
	hint := ""
	if len(out) == 0 {
		hint = fmt.Sprintf("nothing named like %q", query)
	}
	return jsonResult(out, hint)
}

// didYouMean suggests paths for a segment that failed to resolve.
func didYouMean(ctx context.Context, svc Services, path string) string {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	last := segments[len(segments)-1]
	if last == "" {
		return ""
	}
	matches, err := svc.Resolver.Find(ctx, last, 3)
	if err != nil || len(matches) == 0 {
		return ""
	}
	var paths []string
	for _, m := range matches {
		if p, err := svc.Resolver.PathOf(ctx, m.ID); err == nil {
			paths = append(paths, p)
		}
	}
	if len(paths) == 0 {
		return ""
	}
	return fmt.Sprintf("%q not found; did you mean %s?", path, strings.Join(paths, ", "))
}

// --- remarkable_read ---

func readTool() mcp.Tool {
	return mcp.NewTool("remarkable_read",
		mcp.WithDescription("Read a document's extracted text. Long documents are returned one page at a time; pass 'grep' to get only matching lines instead."),
		mcp.WithString("path",
			mcp.Description("Document path, e.g. '/Work/Plan'."),
			mcp.Required(),
		),
		mcp.WithNumber("page",
			mcp.Description("1-based page of the paginated text. Defaults to 1."),
		),
		mcp.WithString("grep",
			mcp.Description("Case-insensitive regular expression; returns matching lines with line numbers instead of pages."),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}

type readResult struct {
	Path    string `json:"path"`
	Page    int    `json:"page,omitempty"`
	Pages   int    `json:"pages,omitempty"`
	Content string `json:"content"`
	Error   string `json:"error,omitempty"`
}

func readHandler(svc Services) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		path := req.GetString("path", "")
		if path == "" {
			return toolError(fmt.Errorf("path is required"))
		}
		page := req.GetInt("page", 1)
		grep := req.GetString("grep", "")

		meta, err := svc.Resolver.Resolve(ctx, path)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				if hint := didYouMean(ctx, svc, path); hint != "" {
					return toolError(fmt.Errorf("%s", hint))
				}
			}
			return toolError(err)
		}
		if meta.IsFolder() {
			return toolError(fmt.Errorf("%q is a folder; use remarkable_browse", path))
		}

		art, err := svc.Cache.Get(ctx, meta.ID, domain.ArtifactText)
		if err != nil {
			var ee *domain.ExtractionError
			if errors.As(err, &ee) {
				// Partial result: the document exists but its content
				// cannot be decoded.
				return jsonResult(readResult{Path: path, Error: ee.Reason},
					"content unavailable for this document type")
			}
			return toolError(err)
		}
		text := string(art.Data)

		if grep != "" {
			return grepResult(svc, path, text, grep)
		}

		pages := paginate(text, svc.Config.PageSize)
		if page < 1 || page > len(pages) {
			return toolError(fmt.Errorf("page %d out of range: document has %d pages", page, len(pages)))
		}
		content, _ := clip(pages[page-1], svc.Config.MaxOutputChars)
		hint := ""
		if page < len(pages) {
			hint = fmt.Sprintf("page %d of %d; request page=%d for more", page, len(pages), page+1)
		}
		return jsonResult(readResult{
			Path:    path,
			Page:    page,
			Pages:   len(pages),
			Content: content,
		}, hint)
	}
}

func grepResult(svc Services, path, text, pattern string) (*mcp.CallToolResult, error) {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return toolError(fmt.Errorf("invalid grep pattern: %w", err))
	}
	var b strings.Builder
	matches := 0
	for i, line := range strings.Split(text, "\n") {
		if !re.MatchString(line) {
			continue
		}
		fmt.Fprintf(&b, "%d: %s\n", i+1, line)
		matches++
	}
	content, truncated := clip(b.String(), svc.Config.MaxOutputChars)
	hint := fmt.Sprintf("%d matching lines", matches)
	if matches == 0 {
		hint = "no lines match"
	}
	if truncated {
		hint += "; output truncated, narrow the pattern"
	}
	return jsonResult(readResult{Path: path, Content: content}, hint)
}

// paginate splits text into fixed-size character chunks. Even an empty
// document has one page so page 1 always exists.
func paginate(text string, size int) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return []string{""}
	}
	var pages []string
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		pages = append(pages, string(runes[start:end]))
	}
	return pages
}

// --- remarkable_recent ---

const previewChars = 200

func recentTool() mcp.Tool {
	return mcp.NewTool("remarkable_recent",
		mcp.WithDescription("List the most recently modified documents, newest first."),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of documents to return. Defaults to 10."),
		),
		mcp.WithBoolean("preview",
			mcp.Description("Include the opening text of documents that have been read before."),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}

func recentHandler(svc Services) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := req.GetInt("limit", 10)
		if limit < 1 {
			limit = 10
		}
		preview := req.GetBool("preview", false)

		docs, err := svc.Resolver.Recent(ctx, limit)
		if err != nil {
			return toolError(err)
		}
		out := make([]entry, 0, len(docs))
		for _, m := range docs {
			p, err := svc.Resolver.PathOf(ctx, m.ID)
			if err != nil {
				continue
			}
			e := toEntry(m, p)
			if preview {
				if text, ok, err := svc.Search.Preview(ctx, m.ID, previewChars); err == nil && ok {
					e.Preview = text
				}
			}
			out = append(out, e)
		}
		return jsonResult(out, "")
	}
}
