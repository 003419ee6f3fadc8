package extract

import (
	"context"

	"github.com/wavyrai/rm-mcp/internal/domain"
	"github.com/wavyrai/rm-mcp/internal/ports"
)

// Renderer implements ports.Renderer. Rasterizing notebook pages needs the
// stroke decoder this process does not carry, so every render fails and is
// cached as a sentinel like any other failed derivation.
type Renderer struct{}

var _ ports.Renderer = (*Renderer)(nil)

func NewRenderer() *Renderer {
	return &Renderer{}
}

func (Renderer) Render(ctx context.Context, data []byte, page int, background string) ([]byte, error) {
	return nil, &domain.ExtractionError{Reason: "page rendering is not supported"}
}
