package application

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/wavyrai/rm-mcp/internal/domain"
	"github.com/wavyrai/rm-mcp/internal/ports"
)

// SearchService layers freshness over the persistent index: hits whose
// indexed version no longer matches the live tree are excluded from results
// rather than served stale. They are not deleted either; the next read of the
// document re-indexes it.
type SearchService struct {
	sync  *SyncEngine
	index ports.SearchIndex
	store ports.ArtifactStore
	paths *PathResolver
	log   *slog.Logger
}

// NewSearchService builds the service. store is only needed for Rebuild.
func NewSearchService(sync *SyncEngine, index ports.SearchIndex, store ports.ArtifactStore, paths *PathResolver, log *slog.Logger) *SearchService {
	if log == nil {
		log = slog.Default()
	}
	return &SearchService{sync: sync, index: index, store: store, paths: paths, log: log}
}

// Search runs a ranked full-text query, optionally restricted to paths under
// pathPrefix, returning at most limit fresh hits.
func (s *SearchService) Search(ctx context.Context, term, pathPrefix string, limit int) ([]domain.SearchHit, error) {
	t, err := s.sync.Tree(ctx)
	if err != nil {
		return nil, err
	}
	// Over-fetch so stale hits filtered below do not shrink the page.
	raw, err := s.index.Query(ctx, term, pathPrefix, limit*2)
	if err != nil {
		return nil, err
	}
	hits := make([]domain.SearchHit, 0, limit)
	for _, h := range raw {
		meta, ok := t.Lookup(h.DocID)
		if !ok || meta.Version != h.Version {
			continue
		}
		hits = append(hits, h)
		if len(hits) == limit {
			break
		}
	}
	return hits, nil
}

// Preview returns the opening characters of a document's indexed text, or
// false when the document has no index entry fresh against the live tree.
func (s *SearchService) Preview(ctx context.Context, docID string, maxChars int) (string, bool, error) {
	t, err := s.sync.Tree(ctx)
	if err != nil {
		return "", false, err
	}
	meta, ok := t.Lookup(docID)
	if !ok {
		return "", false, nil
	}
	rec, ok, err := s.index.Lookup(ctx, docID)
	if err != nil || !ok {
		return "", false, err
	}
	if rec.Version != meta.Version {
		return "", false, nil
	}
	text := strings.TrimSpace(rec.Text)
	if runes := []rune(text); maxChars > 0 && len(runes) > maxChars {
		text = string(runes[:maxChars])
	}
	return text, true, nil
}

// Indexed reports how many documents the index currently holds.
func (s *SearchService) Indexed(ctx context.Context) (int, error) {
	return s.index.Count(ctx)
}

// Rebuild drops the index and re-derives it from the extracted text already
// in the persistent store. Only artifacts matching a document's live version
// are re-indexed; everything else waits for its next read. Returns the number
// of documents indexed.
func (s *SearchService) Rebuild(ctx context.Context) (int, error) {
	t, err := s.sync.Tree(ctx)
	if err != nil {
		return 0, err
	}
	if err := s.index.Reset(ctx); err != nil {
		return 0, err
	}
	count := 0
	err = s.store.Texts(ctx, func(key domain.ArtifactKey, text string) error {
		meta, ok := t.Lookup(key.DocID)
		if !ok || meta.Version != key.Version {
			return nil
		}
		path, err := s.paths.PathOf(ctx, key.DocID)
		if err != nil {
			s.log.Warn("rebuild: path unresolved", "doc", key.DocID, "err", err)
			return nil
		}
		rec := domain.IndexRecord{
			DocID:     key.DocID,
			Version:   key.Version,
			Path:      path,
			Text:      text,
			IndexedAt: time.Now(),
		}
		if err := s.index.Upsert(ctx, rec); err != nil {
			return err
		}
		count++
		return nil
	})
	if err != nil {
		return count, err
	}
	s.log.Info("index rebuilt", "documents", count)
	return count, nil
}
