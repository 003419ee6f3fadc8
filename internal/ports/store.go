package ports

import (
	"context"

	"github.com/wavyrai/rm-mcp/internal/domain"
)

// ArtifactStore is the persistent cache tier. Entries are keyed by
// (document, version, artifact kind) and survive process restarts.
//
// Writes are serialized through a single writer internally; reads may
// proceed concurrently against the last-committed state.
type ArtifactStore interface {
	// Get returns the stored artifact, or ok=false when the key is
	// absent or the stored blob failed verification.
	Get(ctx context.Context, key domain.ArtifactKey) (domain.Artifact, bool, error)

	// Put stores an artifact under its key, replacing any prior value.
	Put(ctx context.Context, key domain.ArtifactKey, art domain.Artifact) error

	// Sweep removes entries of a document whose version differs from
	// current, reclaiming space held by invalidated versions.
	Sweep(ctx context.Context, docID, current string) error

	// Texts streams every stored extracted-text artifact, for index
	// rebuilds.
	Texts(ctx context.Context, fn func(key domain.ArtifactKey, text string) error) error

	Close() error
}
