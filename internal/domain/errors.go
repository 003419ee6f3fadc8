package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for programmatic handling. Callers use errors.Is to
// distinguish recoverable conditions (ErrNotFound, ErrSourceUnavailable)
// from ones requiring intervention (ErrAuthExpired).
var (
	// ErrSourceUnavailable means transient network/server failures
	// exhausted the retry budget. Retrying later may succeed.
	ErrSourceUnavailable = errors.New("remote source unavailable")

	// ErrAuthExpired means the credential was rejected even after a
	// transparent refresh. The caller must re-register.
	ErrAuthExpired = errors.New("authentication expired")

	// ErrNotFound means the requested document or version no longer
	// exists remotely or locally.
	ErrNotFound = errors.New("not found")

	// ErrTreeInconsistent marks structural anomalies (cycles, orphans)
	// found during sync. Offending nodes are dropped, sync proceeds.
	ErrTreeInconsistent = errors.New("metadata tree inconsistent")

	// ErrExtractionFailed means the content collaborator could not decode
	// a document. The failure is cached so the collaborator is not
	// re-invoked for the same version.
	ErrExtractionFailed = errors.New("extraction failed")

	// ErrIndexCorrupt means the persistent index failed its integrity
	// check and is being rebuilt.
	ErrIndexCorrupt = errors.New("search index corrupt")
)

// ExtractionError carries the collaborator's explanation for a decode
// failure. It is surfaced to tool callers as partial content.
type ExtractionError struct {
	DocID  string
	Reason string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed for %s: %s", e.DocID, e.Reason)
}

func (e *ExtractionError) Is(target error) bool {
	return target == ErrExtractionFailed
}
