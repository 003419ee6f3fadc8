package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wavyrai/rm-mcp/internal/domain"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, recreated, err := Open(filepath.Join(t.TempDir(), "index.db"), nil)
	require.NoError(t, err)
	require.False(t, recreated)
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestStore(t *testing.T, db *DB) *Store {
	t.Helper()
	store, err := NewStore(db)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func textKey(doc, version string) domain.ArtifactKey {
	return domain.ArtifactKey{DocID: doc, Version: version, Kind: domain.ArtifactText}
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, openTestDB(t))

	key := textKey("D1", "v1")
	want := []byte("extracted text with\nmultiple lines")
	require.NoError(t, store.Put(ctx, key, domain.Artifact{Data: want}))

	got, ok, err := store.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, want, got.Data)
	require.False(t, got.Failed)
	require.False(t, got.StoredAt.IsZero())

	// Unknown key and unknown version are plain misses.
	_, ok, err = store.Get(ctx, textKey("D1", "v2"))
	require.NoError(t, err)
	require.False(t, ok)
	_, ok, err = store.Get(ctx, textKey("other", "v1"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index.db")

	db, _, err := Open(path, nil)
	require.NoError(t, err)
	store, err := NewStore(db)
	require.NoError(t, err)
	key := textKey("D1", "v1")
	require.NoError(t, store.Put(ctx, key, domain.Artifact{Data: []byte("persisted")}))
	require.NoError(t, store.Close())
	require.NoError(t, db.Close())

	db2, recreated, err := Open(path, nil)
	require.NoError(t, err)
	require.False(t, recreated)
	defer db2.Close()
	store2 := newTestStore(t, db2)

	got, ok, err := store2.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("persisted"), got.Data)
}

func TestStoreFailedSentinel(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, openTestDB(t))

	key := textKey("D1", "v1")
	require.NoError(t, store.Put(ctx, key, domain.Artifact{
		Failed:     true,
		FailReason: "unreadable strokes",
	}))

	got, ok, err := store.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, got.Failed)
	require.Equal(t, "unreadable strokes", got.FailReason)
	require.Empty(t, got.Data)
}

func TestStoreChecksumMismatchReadsAsMiss(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	store := newTestStore(t, db)

	key := textKey("D1", "v1")
	require.NoError(t, store.Put(ctx, key, domain.Artifact{Data: []byte("good bytes")}))

	// Damage the stored blob behind the store's back.
	_, err := db.sql.Exec(`UPDATE artifacts SET data = X'00010203' WHERE doc_id = 'D1'`)
	require.NoError(t, err)

	_, ok, err := store.Get(ctx, key)
	require.NoError(t, err)
	require.False(t, ok, "damaged blob must read as absent, never served")
}

func TestStoreSweep(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, openTestDB(t))

	require.NoError(t, store.Put(ctx, textKey("D1", "v1"), domain.Artifact{Data: []byte("old")}))
	require.NoError(t, store.Put(ctx, textKey("D1", "v2"), domain.Artifact{Data: []byte("new")}))
	require.NoError(t, store.Put(ctx, textKey("D2", "v1"), domain.Artifact{Data: []byte("other")}))

	require.NoError(t, store.Sweep(ctx, "D1", "v2"))

	_, ok, _ := store.Get(ctx, textKey("D1", "v1"))
	require.False(t, ok)
	got, ok, _ := store.Get(ctx, textKey("D1", "v2"))
	require.True(t, ok)
	require.Equal(t, []byte("new"), got.Data)
	_, ok, _ = store.Get(ctx, textKey("D2", "v1"))
	require.True(t, ok, "sweep must not touch other documents")
}

func TestStoreTexts(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, openTestDB(t))

	require.NoError(t, store.Put(ctx, textKey("D1", "v1"), domain.Artifact{Data: []byte("alpha")}))
	require.NoError(t, store.Put(ctx, textKey("D2", "v3"), domain.Artifact{Data: []byte("beta")}))
	require.NoError(t, store.Put(ctx, textKey("D3", "v1"), domain.Artifact{Failed: true, FailReason: "bad"}))
	require.NoError(t, store.Put(ctx,
		domain.ArtifactKey{DocID: "D1", Version: "v1", Kind: domain.ArtifactRaw},
		domain.Artifact{Data: []byte("zipbytes")}))

	seen := map[string]string{}
	err := store.Texts(ctx, func(key domain.ArtifactKey, text string) error {
		seen[key.DocID] = text
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, map[string]string{"D1": "alpha", "D2": "beta"}, seen)
}

func TestOpenRecreatesCorruptDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	require.NoError(t, os.WriteFile(path, []byte("this is not a sqlite database at all"), 0o644))

	db, recreated, err := Open(path, nil)
	require.NoError(t, err)
	require.True(t, recreated)
	defer db.Close()

	// Fresh database must be fully usable.
	store := newTestStore(t, db)
	require.NoError(t, store.Put(context.Background(), textKey("D1", "v1"),
		domain.Artifact{Data: []byte("fresh")}))
}
