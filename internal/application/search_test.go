package application

import (
	"context"
	"testing"
	"time"

	"github.com/wavyrai/rm-mcp/internal/domain"
)

type searchFixture struct {
	remote *fakeRemote
	store  *fakeStore
	index  *fakeIndex
	svc    *SearchService
}

func newSearchFixture() *searchFixture {
	remote := newFakeRemote()
	remote.setItems("fp-1",
		folderMeta("F1", "", "Work"),
		docMeta("D1", "F1", "Plan", "v2"),
		docMeta("D2", "F1", "Notes", "v1"))
	engine := NewSyncEngine(remote, time.Minute, testLogger())
	store := newFakeStore()
	index := newFakeIndex()
	paths := NewPathResolver(engine, "/")
	return &searchFixture{
		remote: remote,
		store:  store,
		index:  index,
		svc:    NewSearchService(engine, index, store, paths, testLogger()),
	}
}

func TestSearchExcludesStaleVersions(t *testing.T) {
	ctx := context.Background()
	f := newSearchFixture()

	// D1 was indexed at v1 but the library has since moved it to v2; D2 is
	// current.
	f.index.Upsert(ctx, domain.IndexRecord{
		DocID: "D1", Version: "v1", Path: "/Work/Plan",
		Text: "deadline friday", IndexedAt: time.Now(),
	})
	f.index.Upsert(ctx, domain.IndexRecord{
		DocID: "D2", Version: "v1", Path: "/Work/Notes",
		Text: "deadline monday", IndexedAt: time.Now(),
	})

	hits, err := f.svc.Search(ctx, "deadline", "", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 {
		t.Fatalf("hits = %d, want 1 (stale D1 excluded)", len(hits))
	}
	if hits[0].DocID != "D2" {
		t.Errorf("hit = %q, want D2", hits[0].DocID)
	}

	// The stale record is not deleted; re-reading the document supersedes it.
	if _, ok, _ := f.index.Lookup(ctx, "D1"); !ok {
		t.Error("stale record should survive until re-indexed")
	}
}

func TestSearchDropsRemovedDocuments(t *testing.T) {
	ctx := context.Background()
	f := newSearchFixture()

	f.index.Upsert(ctx, domain.IndexRecord{
		DocID: "gone", Version: "v1", Path: "/Old",
		Text: "deadline", IndexedAt: time.Now(),
	})

	hits, err := f.svc.Search(ctx, "deadline", "", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 0 {
		t.Errorf("hits = %d, want 0 for a document no longer in the tree", len(hits))
	}
}

func TestPreview(t *testing.T) {
	ctx := context.Background()
	f := newSearchFixture()

	f.index.Upsert(ctx, domain.IndexRecord{
		DocID: "D2", Version: "v1", Path: "/Work/Notes",
		Text: "  deadline monday, then the retro  ", IndexedAt: time.Now(),
	})
	f.index.Upsert(ctx, domain.IndexRecord{
		DocID: "D1", Version: "v1", Path: "/Work/Plan",
		Text: "stale", IndexedAt: time.Now(),
	})

	text, ok, err := f.svc.Preview(ctx, "D2", 8)
	if err != nil {
		t.Fatal(err)
	}
	if !ok || text != "deadline" {
		t.Errorf("preview = %q ok=%v, want trimmed 8-char prefix", text, ok)
	}

	// D1's record is for v1 but the live tree has v2.
	if _, ok, _ := f.svc.Preview(ctx, "D1", 8); ok {
		t.Error("stale record must not produce a preview")
	}
	if _, ok, _ := f.svc.Preview(ctx, "ghost", 8); ok {
		t.Error("unknown document must not produce a preview")
	}
}

func TestRebuildReindexesCurrentTexts(t *testing.T) {
	ctx := context.Background()
	f := newSearchFixture()

	put := func(doc, version, text string) {
		f.store.Put(ctx, domain.ArtifactKey{
			DocID: doc, Version: version, Kind: domain.ArtifactText,
		}, domain.Artifact{Data: []byte(text)})
	}
	put("D1", "v2", "current plan")   // matches live version
	put("D1", "v1", "obsolete plan")  // superseded
	put("gone", "v1", "deleted text") // no longer in the tree
	put("D2", "v1", "current notes")

	// Pre-rebuild garbage must not survive.
	f.index.Upsert(ctx, domain.IndexRecord{DocID: "junk", Version: "v9", Text: "junk"})

	n, err := f.svc.Rebuild(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("rebuilt = %d, want 2", n)
	}

	if rec, ok, _ := f.index.Lookup(ctx, "D1"); !ok || rec.Version != "v2" || rec.Text != "current plan" {
		t.Errorf("D1 record = %+v ok=%v", rec, ok)
	}
	if rec, ok, _ := f.index.Lookup(ctx, "D2"); !ok || rec.Path != "/Work/Notes" {
		t.Errorf("D2 record = %+v ok=%v", rec, ok)
	}
	if _, ok, _ := f.index.Lookup(ctx, "junk"); ok {
		t.Error("reset did not clear the old index")
	}
}
