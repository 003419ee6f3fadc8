package domain

import (
	"strings"
	"time"
)

// Kind distinguishes documents from folders in the library tree.
type Kind string

const (
	KindDocument Kind = "document"
	KindFolder   Kind = "folder"
)

// FileType is the content format of a document. Folders have none.
type FileType string

const (
	FileTypeNotebook FileType = "notebook"
	FileTypePDF      FileType = "pdf"
	FileTypeEPUB     FileType = "epub"
)

// StateFingerprint is an opaque token summarizing the entire remote library
// state. Two equal fingerprints guarantee identical trees; the only supported
// operation is comparison.
type StateFingerprint string

// TrashID is the synthetic parent ID the remote assigns to discarded items.
const TrashID = "trash"

// DocumentMeta describes one node (document or folder) of the library.
//
// Version is the per-item revision token supplied by the remote; it changes
// whenever the item's content or metadata changes. Cache entries and index
// records are valid only while their version equals the current one.
type DocumentMeta struct {
	ID         string
	ParentID   string // empty = library root
	Kind       Kind
	FileType   FileType // documents only
	Name       string
	Version    string
	ModifiedAt time.Time
	Pinned     bool
	Size       int64
}

// IsFolder reports whether the node is a folder.
func (d DocumentMeta) IsFolder() bool {
	return d.Kind == KindFolder
}

// InferFileType derives the document format from its visible name.
// Anything that is not a PDF or EPUB is a native notebook.
func InferFileType(name string) FileType {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".pdf"):
		return FileTypePDF
	case strings.HasSuffix(lower, ".epub"):
		return FileTypeEPUB
	default:
		return FileTypeNotebook
	}
}
