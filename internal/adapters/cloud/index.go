package cloud

import (
	"strconv"
	"strings"
)

// indexEntry is one line of a sync index file. The wire format is
// colon-separated: hash:type:id:subfiles:size, with the first line of the
// file carrying the schema version.
type indexEntry struct {
	Hash     string
	Type     string
	ID       string
	Subfiles int
	Size     int64
}

// parseIndex decodes an index file body. Malformed lines are skipped and
// counted so the caller can log them; the remote occasionally ships partial
// lines and a single bad entry must not fail the listing.
func parseIndex(body []byte) (entries []indexEntry, skipped int) {
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	if len(lines) < 2 {
		return nil, 0
	}
	for _, line := range lines[1:] {
		parts := strings.Split(line, ":")
		if len(parts) < 5 {
			skipped++
			continue
		}
		subfiles, err := strconv.Atoi(parts[3])
		if err != nil {
			skipped++
			continue
		}
		size, err := strconv.ParseInt(parts[4], 10, 64)
		if err != nil {
			skipped++
			continue
		}
		entries = append(entries, indexEntry{
			Hash:     parts[0],
			Type:     parts[1],
			ID:       parts[2],
			Subfiles: subfiles,
			Size:     size,
		})
	}
	return entries, skipped
}

// itemMetadata is the JSON metadata blob stored per item.
type itemMetadata struct {
	VisibleName  string `json:"visibleName"`
	Type         string `json:"type"` // DocumentType or CollectionType
	Parent       string `json:"parent"`
	Deleted      bool   `json:"deleted"`
	Pinned       bool   `json:"pinned"`
	LastModified string `json:"lastModified"` // milliseconds since epoch
}

// rootState is the fingerprint endpoint response.
type rootState struct {
	Hash       string `json:"hash"`
	Generation int64  `json:"generation"`
}
