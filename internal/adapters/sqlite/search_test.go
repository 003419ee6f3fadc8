package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wavyrai/rm-mcp/internal/domain"
)

func newTestIndex(t *testing.T, db *DB) *Index {
	t.Helper()
	idx := NewIndex(db)
	t.Cleanup(func() { idx.Close() })
	return idx
}

func record(doc, version, path, text string, at time.Time) domain.IndexRecord {
	return domain.IndexRecord{DocID: doc, Version: version, Path: path, Text: text, IndexedAt: at}
}

func TestIndexQueryMatchesAndSnippets(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t, openTestDB(t))

	now := time.Now()
	require.NoError(t, idx.Upsert(ctx, record("D1", "v1", "/Work/Plan",
		"the project deadline moved to friday after the review", now)))
	require.NoError(t, idx.Upsert(ctx, record("D2", "v1", "/Work/Notes",
		"groceries and errands for the weekend", now)))

	hits, err := idx.Query(ctx, "deadline", "", 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, "D1", hits[0].DocID)
	require.Equal(t, "/Work/Plan", hits[0].Path)
	require.Equal(t, "v1", hits[0].Version)
	require.Contains(t, hits[0].Snippet, ">>>deadline<<<")

	hits, err = idx.Query(ctx, "zeppelin", "", 5)
	require.NoError(t, err)
	require.Empty(t, hits)
}

func TestIndexUpsertSupersedes(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t, openTestDB(t))

	require.NoError(t, idx.Upsert(ctx, record("D1", "v1", "/Work/Plan",
		"draft schedule with the deadline", time.Now())))
	require.NoError(t, idx.Upsert(ctx, record("D1", "v2", "/Work/Plan",
		"final schedule, nothing pending", time.Now())))

	// Old content must no longer match; a doc appears at most once.
	hits, err := idx.Query(ctx, "deadline", "", 5)
	require.NoError(t, err)
	require.Empty(t, hits)

	hits, err = idx.Query(ctx, "schedule", "", 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, "v2", hits[0].Version)

	n, err := idx.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestIndexPathPrefixFilter(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t, openTestDB(t))

	now := time.Now()
	require.NoError(t, idx.Upsert(ctx, record("D1", "v1", "/Work/Plan", "quarterly budget", now)))
	require.NoError(t, idx.Upsert(ctx, record("D2", "v1", "/Personal/Budget", "household budget", now)))
	require.NoError(t, idx.Upsert(ctx, record("D3", "v1", "/Workshop/Ideas", "budget workshop", now)))

	hits, err := idx.Query(ctx, "budget", "/Work", 5)
	require.NoError(t, err)
	require.Len(t, hits, 1, "prefix must match whole path segments, not substrings")
	require.Equal(t, "D1", hits[0].DocID)
}

func TestIndexTiesOrderByMostRecentlyIndexed(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t, openTestDB(t))

	older := time.Now().Add(-time.Hour)
	newer := time.Now()
	text := "meeting notes about the launch"
	require.NoError(t, idx.Upsert(ctx, record("D1", "v1", "/A", text, older)))
	require.NoError(t, idx.Upsert(ctx, record("D2", "v1", "/B", text, newer)))

	hits, err := idx.Query(ctx, "launch", "", 5)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	require.Equal(t, "D2", hits[0].DocID)
	require.Equal(t, "D1", hits[1].DocID)
}

func TestIndexQuotesBadSyntax(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t, openTestDB(t))

	require.NoError(t, idx.Upsert(ctx, record("D1", "v1", "/Work/Plan",
		"call mom (after lunch)", time.Now())))

	// Raw FTS5 would choke on the parenthesis; the term is retried quoted.
	hits, err := idx.Query(ctx, "(after", "", 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, "D1", hits[0].DocID)
}

func TestIndexQuerySurfacesStorageErrors(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	idx := newTestIndex(t, db)

	require.NoError(t, idx.Upsert(ctx, record("D1", "v1", "/A", "alpha", time.Now())))
	require.NoError(t, db.Close())

	// A failure that is not bad query syntax must not read as "no matches".
	_, err := idx.Query(ctx, "alpha", "", 5)
	require.Error(t, err)
}

func TestIndexInvalidateAndLookup(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t, openTestDB(t))

	require.NoError(t, idx.Upsert(ctx, record("D1", "v1", "/Work/Plan", "some text", time.Now())))

	rec, ok, err := idx.Lookup(ctx, "D1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v1", rec.Version)
	require.Equal(t, "/Work/Plan", rec.Path)

	require.NoError(t, idx.Invalidate(ctx, "D1"))

	_, ok, err = idx.Lookup(ctx, "D1")
	require.NoError(t, err)
	require.False(t, ok)

	hits, err := idx.Query(ctx, "text", "", 5)
	require.NoError(t, err)
	require.Empty(t, hits)
}

func TestIndexReset(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t, openTestDB(t))

	require.NoError(t, idx.Upsert(ctx, record("D1", "v1", "/A", "alpha", time.Now())))
	require.NoError(t, idx.Upsert(ctx, record("D2", "v1", "/B", "beta", time.Now())))

	require.NoError(t, idx.Reset(ctx))

	n, err := idx.Count(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
	hits, err := idx.Query(ctx, "alpha", "", 5)
	require.NoError(t, err)
	require.Empty(t, hits)
}
