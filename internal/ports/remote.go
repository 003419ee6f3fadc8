package ports

import (
	"context"

	"github.com/wavyrai/rm-mcp/internal/domain"
)

// RemoteSource is the authenticated transport to the cloud library.
//
// Implementations handle auth refresh, retries with backoff, and connection
// reuse internally; transient failures surface only as
// domain.ErrSourceUnavailable once retries are exhausted.
type RemoteSource interface {
	// FetchFingerprint is a cheap change check. It never downloads the
	// full metadata listing.
	FetchFingerprint(ctx context.Context) (domain.StateFingerprint, error)

	// FetchTree downloads and assembles the full metadata listing.
	// Called only when the fingerprint changed.
	FetchTree(ctx context.Context) (*domain.MetadataTree, error)

	// FetchContent downloads the raw content bundle for a specific
	// document version. Returns domain.ErrNotFound if the remote has
	// advanced past that version.
	FetchContent(ctx context.Context, docID, version string) ([]byte, error)
}
