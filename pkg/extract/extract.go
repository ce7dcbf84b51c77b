package extract

import (
	"context"
	"strings"

	"github.com/glanceassist/glance/pkg/domain"
)

// TextExtractor resolves a selection payload to the text it refers to.
type TextExtractor interface {
	ExtractText(ctx context.Context, handle domain.Payload) (string, error)
}

// ImageCapturer resolves a selection payload to raw image bytes.
type ImageCapturer interface {
	CaptureImage(ctx context.Context, handle domain.Payload) ([]byte, error)
}

// Passthrough reads the payload the content script already shipped with the
// selection event. The core treats both forms as opaque; this adapter only
// validates presence.
type Passthrough struct{}

func NewPassthrough() *Passthrough { return &Passthrough{} }

func (p *Passthrough) ExtractText(_ context.Context, handle domain.Payload) (string, error) {
	text := strings.TrimSpace(handle.Text)
	if text == "" {
		return "", domain.ErrNoContent
	}
	return text, nil
}

func (p *Passthrough) CaptureImage(_ context.Context, handle domain.Payload) ([]byte, error) {
	if len(handle.Image) == 0 {
		return nil, domain.ErrNoContent
	}
	return handle.Image, nil
}
