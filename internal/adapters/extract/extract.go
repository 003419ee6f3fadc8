// Package extract derives plain text from downloaded document bundles. A
// bundle is a zip of the document's files; for EPUBs the embedded book is
// itself a zip of XHTML chapters, which are flattened to text. Notebook
// strokes and PDF layouts need decoders this process does not carry, so those
// kinds fail extraction and get cached as such upstream.
package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"

	"golang.org/x/net/html"

	"github.com/wavyrai/rm-mcp/internal/domain"
	"github.com/wavyrai/rm-mcp/internal/ports"
)

// Extractor implements ports.Extractor over raw bundle bytes.
type Extractor struct {
	log *slog.Logger
}

var _ ports.Extractor = (*Extractor)(nil)

func New(log *slog.Logger) *Extractor {
	if log == nil {
		log = slog.Default()
	}
	return &Extractor{log: log}
}

// Extract returns the document's plain text.
func (e *Extractor) Extract(ctx context.Context, data []byte, fileType domain.FileType) (string, error) {
	switch fileType {
	case domain.FileTypeEPUB:
		return e.extractEpub(data)
	case domain.FileTypePDF:
		return "", &domain.ExtractionError{Reason: "pdf text layer extraction is not supported"}
	default:
		return "", &domain.ExtractionError{Reason: "handwritten notebook strokes cannot be decoded to text"}
	}
}

func (e *Extractor) extractEpub(bundle []byte) (string, error) {
	book, err := findEntry(bundle, ".epub")
	if err != nil {
		return "", &domain.ExtractionError{Reason: "no epub in bundle: " + err.Error()}
	}

	zr, err := zip.NewReader(bytes.NewReader(book), int64(len(book)))
	if err != nil {
		return "", &domain.ExtractionError{Reason: "malformed epub: " + err.Error()}
	}

	var chapters []string
	for _, f := range zr.File {
		name := strings.ToLower(f.Name)
		if !strings.HasSuffix(name, ".xhtml") && !strings.HasSuffix(name, ".html") &&
			!strings.HasSuffix(name, ".htm") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			e.log.Warn("skipping unreadable chapter", "chapter", f.Name, "err", err)
			continue
		}
		text, err := htmlText(rc)
		rc.Close()
		if err != nil {
			e.log.Warn("skipping undecodable chapter", "chapter", f.Name, "err", err)
			continue
		}
		if text != "" {
			chapters = append(chapters, text)
		}
	}
	if len(chapters) == 0 {
		return "", &domain.ExtractionError{Reason: "epub contains no readable text"}
	}
	return strings.Join(chapters, "\n\n"), nil
}

// findEntry returns the first bundle file whose name has the suffix.
func findEntry(bundle []byte, suffix string) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(bundle), int64(len(bundle)))
	if err != nil {
		return nil, err
	}
	for _, f := range zr.File {
		if !strings.HasSuffix(strings.ToLower(f.Name), suffix) {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, io.EOF
}

// htmlText flattens a chapter to its visible text, paragraph breaks
// preserved as newlines.
func htmlText(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.ElementNode:
			switch n.Data {
			case "script", "style", "head":
				return
			case "p", "div", "br", "h1", "h2", "h3", "h4", "h5", "h6", "li", "tr":
				b.WriteByte('\n')
			}
		case html.TextNode:
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return tidy(b.String()), nil
}

// tidy collapses runs of blank lines and trims trailing space per line.
func tidy(s string) string {
	lines := strings.Split(s, "\n")
	var out []string
	blank := true
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			if !blank {
				out = append(out, "")
			}
			blank = true
			continue
		}
		out = append(out, line)
		blank = false
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
