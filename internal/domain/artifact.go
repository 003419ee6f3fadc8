package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ArtifactKind names a derived representation of a document version.
type ArtifactKind string

const (
	// ArtifactRaw is the document's raw content bundle as downloaded.
	ArtifactRaw ArtifactKind = "raw"
	// ArtifactText is the extracted plain text of the whole document.
	ArtifactText ArtifactKind = "text"
)

// PageArtifact is the rendered image of a single zero-based page.
func PageArtifact(page int) ArtifactKind {
	return ArtifactKind(fmt.Sprintf("page-%d", page))
}

// Page reports the page index for rendered-page kinds.
func (k ArtifactKind) Page() (int, bool) {
	s, ok := strings.CutPrefix(string(k), "page-")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// ArtifactKey identifies one cache entry. Entries are immutable: a new
// document version yields new keys, old entries simply stop being referenced.
type ArtifactKey struct {
	DocID   string
	Version string
	Kind    ArtifactKind
}

func (k ArtifactKey) String() string {
	return k.DocID + "@" + k.Version + "/" + string(k.Kind)
}

// Artifact is the value stored per key. Failed entries record that the
// extraction collaborator rejected this version's content, so repeated reads
// do not re-invoke it; FailReason carries the explanation shown to callers.
type Artifact struct {
	Data       []byte
	Failed     bool
	FailReason string
	StoredAt   time.Time
}

// IndexRecord is the search index's view of one document. Records are keyed
// by document ID and superseded on re-index, never duplicated across
// versions. A record is fresh only while Version matches the live tree.
type IndexRecord struct {
	DocID     string
	Version   string
	Path      string
	Text      string
	IndexedAt time.Time
}

// SearchHit is one ranked full-text match.
type SearchHit struct {
	DocID     string
	Path      string
	Version   string
	Score     float64
	Snippet   string
	IndexedAt time.Time
}
