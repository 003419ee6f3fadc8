package ports

import (
	"context"

	"github.com/wavyrai/rm-mcp/internal/domain"
)

// Extractor converts a raw content bundle into plain text. It is a pure
// function of its inputs: it either fully succeeds or fails with
// domain.ErrExtractionFailed, never partially.
type Extractor interface {
	Extract(ctx context.Context, data []byte, fileType domain.FileType) (string, error)
}

// Renderer rasterizes one zero-based page of a raw content bundle to an
// image. background is a color name or hex value.
type Renderer interface {
	Render(ctx context.Context, data []byte, page int, background string) ([]byte, error)
}
