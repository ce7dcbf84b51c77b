package classifier

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/glanceassist/glance/pkg/domain"
)

// Classifier inspects raw host selection events and produces normalized
// selection contexts. It never extracts content itself; the payload is an
// opaque reference owned by the extraction collaborators.
type Classifier struct {
	now func() time.Time
}

func New() *Classifier {
	return &Classifier{now: time.Now}
}

// Classify returns a fresh SelectionContext for the event, or
// domain.ErrEmptySelection / domain.ErrUnsupportedSource.
//
// A selection carrying both text and an image region classifies as text:
// text selections are structurally more common and cheaper to process.
func (c *Classifier) Classify(event *domain.SelectionEvent) (domain.SelectionContext, error) {
	if event == nil {
		return domain.SelectionContext{}, domain.ErrEmptySelection
	}
	if event.CrossOrigin {
		return domain.SelectionContext{}, domain.ErrUnsupportedSource
	}

	kind := event.SourceKind
	if kind == "" {
		kind = domain.SourceKindWebpage
	}
	if kind != domain.SourceKindWebpage && kind != domain.SourceKindPDF {
		return domain.SelectionContext{}, domain.ErrUnsupportedSource
	}

	text := strings.TrimSpace(event.Text)

	var selType domain.SelectionType
	switch {
	case text != "":
		selType = domain.SelectionTypeText
	case len(event.Image) > 0:
		selType = domain.SelectionTypeImage
	default:
		return domain.SelectionContext{}, domain.ErrEmptySelection
	}

	return domain.SelectionContext{
		ID:   uuid.NewString(),
		Type: selType,
		Content: domain.Payload{
			Text:   text,
			Image:  event.Image,
			Format: event.ImageFormat,
		},
		SourceURL:  event.SourceURL,
		SourceKind: kind,
		CreatedAt:  c.now(),
	}, nil
}
