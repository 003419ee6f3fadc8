package application

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/wavyrai/rm-mcp/internal/domain"
	"github.com/wavyrai/rm-mcp/internal/ports"
)

const defaultMemoryEntries = 128

// CacheStore serves document artifacts through three tiers: an in-memory LRU,
// the persistent store, and finally the remote source plus the extraction or
// rendering collaborator. Keys carry the document's current version, so a
// version bump makes every old entry unreachable without explicit
// invalidation; stale persistent rows are swept on access. Concurrent reads
// of one key coalesce into a single download and extraction.
type CacheStore struct {
	sync    *SyncEngine
	remote  ports.RemoteSource
	store   ports.ArtifactStore
	index   ports.SearchIndex
	paths   *PathResolver
	extract ports.Extractor
	render  ports.Renderer
	log     *slog.Logger

	mem   *memoryCache
	group singleflight.Group
}

// CacheDeps collects the collaborators a CacheStore needs.
type CacheDeps struct {
	Sync       *SyncEngine
	Remote     ports.RemoteSource
	Store      ports.ArtifactStore
	Index      ports.SearchIndex
	Paths      *PathResolver
	Extract    ports.Extractor
	Render     ports.Renderer
	Logger     *slog.Logger
	MemorySize int
}

// NewCacheStore builds the cache. MemorySize bounds the in-memory tier in
// entries; zero means the default.
func NewCacheStore(deps CacheDeps) *CacheStore {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	size := deps.MemorySize
	if size <= 0 {
		size = defaultMemoryEntries
	}
	return &CacheStore{
		sync:    deps.Sync,
		remote:  deps.Remote,
		store:   deps.Store,
		index:   deps.Index,
		paths:   deps.Paths,
		extract: deps.Extract,
		render:  deps.Render,
		log:     deps.Logger,
		mem:     newMemoryCache(size),
	}
}

// Get returns the artifact of the given kind for the document's current
// version. A cached extraction-failure sentinel is returned as the artifact
// plus an ExtractionFailed error, so callers can show the partial result with
// its explanation instead of retrying the collaborator.
func (c *CacheStore) Get(ctx context.Context, docID string, kind domain.ArtifactKind) (domain.Artifact, error) {
	t, err := c.sync.Tree(ctx)
	if err != nil {
		return domain.Artifact{}, err
	}
	meta, ok := t.Lookup(docID)
	if !ok {
		return domain.Artifact{}, fmt.Errorf("document %q: %w", docID, domain.ErrNotFound)
	}
	if meta.IsFolder() {
		return domain.Artifact{}, fmt.Errorf("document %q is a folder: %w", docID, domain.ErrNotFound)
	}

	key := domain.ArtifactKey{DocID: docID, Version: meta.Version, Kind: kind}
	if art, ok := c.mem.get(key); ok {
		return c.deliver(key, art)
	}

	ch := c.group.DoChan(key.String(), func() (any, error) {
		return c.build(ctx, key, meta)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return domain.Artifact{}, res.Err
		}
		return c.deliver(key, res.Val.(domain.Artifact))
	case <-ctx.Done():
		return domain.Artifact{}, ctx.Err()
	}
}

// deliver translates a stored failure sentinel back into its error form.
func (c *CacheStore) deliver(key domain.ArtifactKey, art domain.Artifact) (domain.Artifact, error) {
	if art.Failed {
		return art, &domain.ExtractionError{DocID: key.DocID, Reason: art.FailReason}
	}
	return art, nil
}

// build populates one key from the lower tiers. It runs once per key under
// the single-flight group.
func (c *CacheStore) build(ctx context.Context, key domain.ArtifactKey, meta domain.DocumentMeta) (domain.Artifact, error) {
	art, ok, err := c.store.Get(ctx, key)
	if err != nil {
		return domain.Artifact{}, err
	}
	if ok {
		c.mem.put(key, art)
		return art, nil
	}

	raw, err := c.fetchRaw(ctx, key, meta)
	if err != nil {
		return domain.Artifact{}, err
	}
	if key.Kind == domain.ArtifactRaw {
		return c.finish(ctx, key, domain.Artifact{Data: raw})
	}

	data, derr := c.derive(ctx, key, raw, meta)
	if derr != nil {
		if errors.Is(derr, domain.ErrExtractionFailed) {
			// Remember the failure so repeat reads of this version do not
			// re-invoke the collaborator.
			art := domain.Artifact{Failed: true, FailReason: reasonOf(derr)}
			if art, err = c.finish(ctx, key, art); err != nil {
				return domain.Artifact{}, err
			}
			return art, nil
		}
		return domain.Artifact{}, derr
	}

	art, err = c.finish(ctx, key, domain.Artifact{Data: data})
	if err != nil {
		return domain.Artifact{}, err
	}
	if key.Kind == domain.ArtifactText {
		c.indexText(ctx, key, string(data))
	}
	return art, nil
}

// fetchRaw returns the document's raw bundle. For a derived kind it reuses a
// cached bundle when one exists, and caches the bundle it had to download so
// deriving another kind of the same version costs no second download.
func (c *CacheStore) fetchRaw(ctx context.Context, key domain.ArtifactKey, meta domain.DocumentMeta) ([]byte, error) {
	if key.Kind == domain.ArtifactRaw {
		return c.remote.FetchContent(ctx, key.DocID, meta.Version)
	}

	rawKey := domain.ArtifactKey{DocID: key.DocID, Version: key.Version, Kind: domain.ArtifactRaw}
	if art, ok := c.mem.get(rawKey); ok && !art.Failed {
		return art.Data, nil
	}
	if art, ok, err := c.store.Get(ctx, rawKey); err == nil && ok && !art.Failed {
		c.mem.put(rawKey, art)
		return art.Data, nil
	}
	raw, err := c.remote.FetchContent(ctx, key.DocID, meta.Version)
	if err != nil {
		return nil, err
	}
	if _, err := c.finish(ctx, rawKey, domain.Artifact{Data: raw}); err != nil {
		c.log.Warn("caching raw bundle", "doc", key.DocID, "err", err)
	}
	return raw, nil
}

// derive invokes the extraction or rendering collaborator for a non-raw kind.
func (c *CacheStore) derive(ctx context.Context, key domain.ArtifactKey, raw []byte, meta domain.DocumentMeta) ([]byte, error) {
	if key.Kind == domain.ArtifactText {
		text, err := c.extract.Extract(ctx, raw, meta.FileType)
		if err != nil {
			return nil, err
		}
		return []byte(text), nil
	}
	if page, ok := key.Kind.Page(); ok {
		return c.render.Render(ctx, raw, page, "white")
	}
	return nil, fmt.Errorf("artifact kind %q: %w", key.Kind, domain.ErrNotFound)
}

// finish writes through both tiers and reclaims rows for superseded versions
// of the document.
func (c *CacheStore) finish(ctx context.Context, key domain.ArtifactKey, art domain.Artifact) (domain.Artifact, error) {
	art.StoredAt = time.Now()
	if err := c.store.Put(ctx, key, art); err != nil {
		return domain.Artifact{}, err
	}
	if err := c.store.Sweep(ctx, key.DocID, key.Version); err != nil {
		c.log.Warn("sweeping stale artifacts", "doc", key.DocID, "err", err)
	}
	c.mem.put(key, art)
	return art, nil
}

// indexText hands freshly extracted text to the search index. Indexing is
// best effort; a read never fails because the index write did.
func (c *CacheStore) indexText(ctx context.Context, key domain.ArtifactKey, text string) {
	path, err := c.paths.PathOf(ctx, key.DocID)
	if err != nil {
		c.log.Warn("skipping index update, path unresolved", "doc", key.DocID, "err", err)
		return
	}
	rec := domain.IndexRecord{
		DocID:     key.DocID,
		Version:   key.Version,
		Path:      path,
		Text:      text,
		IndexedAt: time.Now(),
	}
	if err := c.index.Upsert(ctx, rec); err != nil {
		c.log.Warn("index update failed", "doc", key.DocID, "err", err)
	}
}

func reasonOf(err error) string {
	var ee *domain.ExtractionError
	if errors.As(err, &ee) {
		return ee.Reason
	}
	return err.Error()
}

// memoryCache is the capacity-bounded in-memory tier. Entries never expire;
// they are displaced least-recently-used or become unreachable when the
// document's version moves on.
type memoryCache struct {
	mu    sync.Mutex
	cap   int
	ll    *list.List
	items map[domain.ArtifactKey]*list.Element
}

type memoryEntry struct {
	key domain.ArtifactKey
	art domain.Artifact
}

func newMemoryCache(capacity int) *memoryCache {
	return &memoryCache{
		cap:   capacity,
		ll:    list.New(),
		items: make(map[domain.ArtifactKey]*list.Element, capacity),
	}
}

func (m *memoryCache) get(key domain.ArtifactKey) (domain.Artifact, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	el, ok := m.items[key]
	if !ok {
		return domain.Artifact{}, false
	}
	m.ll.MoveToFront(el)
	return el.Value.(*memoryEntry).art, true
}

func (m *memoryCache) put(key domain.ArtifactKey, art domain.Artifact) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if el, ok := m.items[key]; ok {
		el.Value.(*memoryEntry).art = art
		m.ll.MoveToFront(el)
		return
	}
	m.items[key] = m.ll.PushFront(&memoryEntry{key: key, art: art})
	for m.ll.Len() > m.cap {
		oldest := m.ll.Back()
		m.ll.Remove(oldest)
		delete(m.items, oldest.Value.(*memoryEntry).key)
	}
}

func (m *memoryCache) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ll.Len()
}
