package ports

import (
	"context"

	"github.com/wavyrai/rm-mcp/internal/domain"
)

// SearchIndex is the persistent full-text index over extracted document text.
//
// Records are keyed by document ID: Upsert supersedes any prior record so a
// document never appears twice across versions. Staleness filtering against
// the live tree is the caller's concern; the index only stores and ranks.
type SearchIndex interface {
	Upsert(ctx context.Context, rec domain.IndexRecord) error

	// Query returns ranked matches with context snippets. pathPrefix
	// restricts matches to documents under that path; empty means all.
	// Ties rank most-recently-indexed first.
	Query(ctx context.Context, term, pathPrefix string, limit int) ([]domain.SearchHit, error)

	// Invalidate removes a document's record.
	Invalidate(ctx context.Context, docID string) error

	// Lookup returns the stored record for a document, if any.
	Lookup(ctx context.Context, docID string) (domain.IndexRecord, bool, error)

	// Count reports how many documents are indexed.
	Count(ctx context.Context) (int, error)

	// Reset drops all records, for manual or corruption-triggered
	// rebuilds.
	Reset(ctx context.Context) error

	Close() error
}
