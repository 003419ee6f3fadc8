package application

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/wavyrai/rm-mcp/internal/domain"
)

// PathResolver maps between display paths and document IDs over the live
// metadata tree. An optional root scope restricts the visible subtree: paths
// are presented relative to the scope folder, and nodes outside it do not
// exist as far as callers are concerned. Name matching is case-insensitive,
// mirroring how people actually type paths.
type PathResolver struct {
	sync *SyncEngine
	root string
}

// NewPathResolver builds a resolver scoped to root, a normalized display path
// ("/" for the whole library).
func NewPathResolver(sync *SyncEngine, root string) *PathResolver {
	if root == "" {
		root = "/"
	}
	return &PathResolver{sync: sync, root: root}
}

// scopeRoot resolves the configured root scope to its folder ID ("" for the
// library root).
func (r *PathResolver) scopeRoot(t *domain.MetadataTree) (string, error) {
	if r.root == "/" {
		return "", nil
	}
	id := ""
	for _, name := range splitPath(r.root) {
		m, ok := pickChild(t, id, name, domain.KindFolder)
		if !ok {
			return "", fmt.Errorf("root scope %q: %w", r.root, domain.ErrNotFound)
		}
		id = m.ID
	}
	return id, nil
}

// Resolve maps a display path to its node. "/" resolves to the scope root
// folder itself.
func (r *PathResolver) Resolve(ctx context.Context, path string) (domain.DocumentMeta, error) {
	t, err := r.sync.Tree(ctx)
	if err != nil {
		return domain.DocumentMeta{}, err
	}
	id, err := r.scopeRoot(t)
	if err != nil {
		return domain.DocumentMeta{}, err
	}
	segments := splitPath(path)
	if len(segments) == 0 {
		if id == "" {
			return domain.DocumentMeta{Kind: domain.KindFolder, Name: "/"}, nil
		}
		m, _ := t.Lookup(id)
		return m, nil
	}
	var m domain.DocumentMeta
	for i, name := range segments {
		kind := domain.Kind("")
		if i < len(segments)-1 {
			kind = domain.KindFolder
		}
		var ok bool
		m, ok = pickChild(t, id, name, kind)
		if !ok {
			return domain.DocumentMeta{}, fmt.Errorf("path %q: %w", path, domain.ErrNotFound)
		}
		id = m.ID
	}
	return m, nil
}

// PathOf maps a node ID back to its display path, relative to the root scope.
// IDs whose ancestor chain does not pass through the scope are not found.
func (r *PathResolver) PathOf(ctx context.Context, docID string) (string, error) {
	t, err := r.sync.Tree(ctx)
	if err != nil {
		return "", err
	}
	scope, err := r.scopeRoot(t)
	if err != nil {
		return "", err
	}
	return pathWithin(t, docID, scope)
}

func pathWithin(t *domain.MetadataTree, docID, scope string) (string, error) {
	if docID == scope {
		return "/", nil
	}
	var names []string
	id := docID
	for {
		if id == scope {
			break
		}
		m, ok := t.Lookup(id)
		if !ok {
			return "", fmt.Errorf("document %q: %w", docID, domain.ErrNotFound)
		}
		names = append(names, m.Name)
		if m.ParentID == "" {
			if scope != "" {
				// Chain reached the true root without crossing the scope.
				return "", fmt.Errorf("document %q outside root scope: %w",
					docID, domain.ErrNotFound)
			}
			break
		}
		id = m.ParentID
	}
	var b strings.Builder
	for i := len(names) - 1; i >= 0; i-- {
		b.WriteByte('/')
		b.WriteString(names[i])
	}
	return b.String(), nil
}

// List returns the entries directly under a display path, folders first, each
// sorted by name.
func (r *PathResolver) List(ctx context.Context, path string) ([]domain.DocumentMeta, error) {
	t, err := r.sync.Tree(ctx)
	if err != nil {
		return nil, err
	}
	m, err := r.Resolve(ctx, path)
	if err != nil {
		return nil, err
	}
	if !m.IsFolder() {
		return nil, fmt.Errorf("path %q is a document, not a folder: %w", path, domain.ErrNotFound)
	}
	out := t.Children(m.ID)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].IsFolder() != out[j].IsFolder() {
			return out[i].IsFolder()
		}
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out, nil
}

// Recent returns the most recently modified documents within the scope,
// newest first.
func (r *PathResolver) Recent(ctx context.Context, limit int) ([]domain.DocumentMeta, error) {
	t, err := r.sync.Tree(ctx)
	if err != nil {
		return nil, err
	}
	scope, err := r.scopeRoot(t)
	if err != nil {
		return nil, err
	}
	var docs []domain.DocumentMeta
	for _, m := range t.All() {
		if m.IsFolder() {
			continue
		}
		if scope != "" {
			if _, err := pathWithin(t, m.ID, scope); err != nil {
				continue
			}
		}
		docs = append(docs, m)
	}
	sort.Slice(docs, func(i, j int) bool {
		if !docs[i].ModifiedAt.Equal(docs[j].ModifiedAt) {
			return docs[i].ModifiedAt.After(docs[j].ModifiedAt)
		}
		return docs[i].ID < docs[j].ID
	})
	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
	}
	return docs, nil
}

// Find returns the nodes in scope whose name contains query,
// case-insensitively, most recently modified first.
func (r *PathResolver) Find(ctx context.Context, query string, limit int) ([]domain.DocumentMeta, error) {
	t, err := r.sync.Tree(ctx)
	if err != nil {
		return nil, err
	}
	scope, err := r.scopeRoot(t)
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(query)
	var out []domain.DocumentMeta
	for _, m := range t.All() {
		if !strings.Contains(strings.ToLower(m.Name), q) {
			continue
		}
		if scope != "" {
			if _, err := pathWithin(t, m.ID, scope); err != nil {
				continue
			}
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ModifiedAt.Equal(out[j].ModifiedAt) {
			return out[i].ModifiedAt.After(out[j].ModifiedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// pickChild finds the child of parentID named name. Siblings can share a
// name; the most recently modified one wins. wantKind narrows the match
// ("" accepts any kind).
func pickChild(t *domain.MetadataTree, parentID, name string, wantKind domain.Kind) (domain.DocumentMeta, bool) {
	var (
		best  domain.DocumentMeta
		found bool
	)
	for _, c := range t.Children(parentID) {
		if wantKind != "" && c.Kind != wantKind {
			continue
		}
		if !strings.EqualFold(c.Name, name) {
			continue
		}
		if !found || c.ModifiedAt.After(best.ModifiedAt) {
			best, found = c, true
		}
	}
	return best, found
}

func splitPath(path string) []string {
	var out []string
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
