package application

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wavyrai/rm-mcp/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeRemote is an in-memory RemoteSource with call counters, used to assert
// how many round trips an operation really makes.
type fakeRemote struct {
	mu          sync.Mutex
	fingerprint domain.StateFingerprint
	items       []domain.DocumentMeta
	content     map[string][]byte // docID@version -> bytes
	err         error

	fingerprintCalls atomic.Int32
	treeCalls        atomic.Int32
	contentCalls     atomic.Int32

	gate chan struct{} // when set, FetchContent blocks until closed
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{fingerprint: "fp-1", content: map[string][]byte{}}
}

func (r *fakeRemote) setItems(fp string, items ...domain.DocumentMeta) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fingerprint = domain.StateFingerprint(fp)
	r.items = items
}

func (r *fakeRemote) setContent(docID, version string, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.content[docID+"@"+version] = data
}

func (r *fakeRemote) FetchFingerprint(ctx context.Context) (domain.StateFingerprint, error) {
	r.fingerprintCalls.Add(1)
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fingerprint, r.err
}

func (r *fakeRemote) FetchTree(ctx context.Context) (*domain.MetadataTree, error) {
	r.treeCalls.Add(1)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	return domain.BuildTree(r.items, r.fingerprint), nil
}

func (r *fakeRemote) FetchContent(ctx context.Context, docID, version string) ([]byte, error) {
	r.contentCalls.Add(1)
	if r.gate != nil {
		select {
		case <-r.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	data, ok := r.content[docID+"@"+version]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return data, nil
}

// fakeStore is a map-backed ArtifactStore.
type fakeStore struct {
	mu      sync.Mutex
	entries map[domain.ArtifactKey]domain.Artifact
	gets    atomic.Int32
}

func newFakeStore() *fakeStore {
	return &fakeStore{entries: map[domain.ArtifactKey]domain.Artifact{}}
}

func (s *fakeStore) Get(ctx context.Context, key domain.ArtifactKey) (domain.Artifact, bool, error) {
	s.gets.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	art, ok := s.entries[key]
	return art, ok, nil
}

func (s *fakeStore) Put(ctx context.Context, key domain.ArtifactKey, art domain.Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = art
	return nil
}

func (s *fakeStore) Sweep(ctx context.Context, docID, current string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.entries {
		if key.DocID == docID && key.Version != current {
			delete(s.entries, key)
		}
	}
	return nil
}

func (s *fakeStore) Texts(ctx context.Context, fn func(key domain.ArtifactKey, text string) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, art := range s.entries {
		if key.Kind != domain.ArtifactText || art.Failed {
			continue
		}
		if err := fn(key, string(art.Data)); err != nil {
			return err
		}
	}
	return nil
}

func (s *fakeStore) Close() error { return nil }

// fakeIndex is a map-backed SearchIndex matching on simple substring.
type fakeIndex struct {
	mu      sync.Mutex
	records map[string]domain.IndexRecord
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{records: map[string]domain.IndexRecord{}}
}

func (i *fakeIndex) Upsert(ctx context.Context, rec domain.IndexRecord) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.records[rec.DocID] = rec
	return nil
}

func (i *fakeIndex) Query(ctx context.Context, term, pathPrefix string, limit int) ([]domain.SearchHit, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	var hits []domain.SearchHit
	for _, rec := range i.records {
		if !strings.Contains(rec.Text, term) {
			continue
		}
		if pathPrefix != "" && rec.Path != pathPrefix && !strings.HasPrefix(rec.Path, pathPrefix+"/") {
			continue
		}
		hits = append(hits, domain.SearchHit{
			DocID:     rec.DocID,
			Path:      rec.Path,
			Version:   rec.Version,
			Score:     1,
			Snippet:   rec.Text,
			IndexedAt: rec.IndexedAt,
		})
		if limit > 0 && len(hits) == limit {
			break
		}
	}
	return hits, nil
}

func (i *fakeIndex) Invalidate(ctx context.Context, docID string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.records, docID)
	return nil
}

func (i *fakeIndex) Lookup(ctx context.Context, docID string) (domain.IndexRecord, bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	rec, ok := i.records[docID]
	return rec, ok, nil
}

func (i *fakeIndex) Count(ctx context.Context) (int, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.records), nil
}

func (i *fakeIndex) Reset(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.records = map[string]domain.IndexRecord{}
	return nil
}

func (i *fakeIndex) Close() error { return nil }

// fakeExtractor upcases the raw bytes; extraction failures are injectable.
type fakeExtractor struct {
	calls atomic.Int32
	fail  bool
	gate  chan struct{}
}

func (e *fakeExtractor) Extract(ctx context.Context, data []byte, fileType domain.FileType) (string, error) {
	e.calls.Add(1)
	if e.gate != nil {
		select {
		case <-e.gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if e.fail {
		return "", &domain.ExtractionError{Reason: "undecodable"}
	}
	return "text:" + string(data), nil
}

type fakeRenderer struct {
	calls atomic.Int32
}

func (r *fakeRenderer) Render(ctx context.Context, data []byte, page int, background string) ([]byte, error) {
	r.calls.Add(1)
	if page > 0 {
		return nil, domain.ErrNotFound
	}
	return append([]byte("png:"), data...), nil
}

func folderMeta(id, parent, name string) domain.DocumentMeta {
	return domain.DocumentMeta{
		ID: id, ParentID: parent, Kind: domain.KindFolder, Name: name,
		ModifiedAt: time.Unix(1700000000, 0),
	}
}

func docMeta(id, parent, name, version string) domain.DocumentMeta {
	return domain.DocumentMeta{
		ID: id, ParentID: parent, Kind: domain.KindDocument,
		FileType: domain.FileTypeNotebook, Name: name, Version: version,
		ModifiedAt: time.Unix(1700000000, 0),
	}
}
