package openai

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/glanceassist/glance/pkg/domain"
)

type textPayload struct {
	Content    string  `json:"content"`
	BeyondText bool    `json:"beyond_text"`
	Confidence float64 `json:"confidence,omitempty"`
}

type visionPayload struct {
	Description string          `json:"description"`
	Concepts    []string        `json:"concepts"`
	Markers     []markerPayload `json:"markers"`
}

type markerPayload struct {
	Label       string  `json:"label"`
	Description string  `json:"description"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	W           float64 `json:"w"`
	H           float64 `json:"h"`
}

func (v visionPayload) toResult() domain.VisionResult {
	markers := make([]domain.DiagramMarker, 0, len(v.Markers))
	for i, m := range v.Markers {
		label := m.Label
		if label == "" {
			label = fmt.Sprintf("area %d", i+1)
		}
		markers = append(markers, domain.DiagramMarker{
			ID:                  uuid.NewString(),
			Label:               label,
			Description:         m.Description,
			ApproximatePosition: domain.Point{X: m.X + m.W/2, Y: m.Y + m.H/2},
			ConceptualArea:      domain.Rect{X: m.X, Y: m.Y, Width: m.W, Height: m.H},
		})
	}

	return domain.VisionResult{
		Description: v.Description,
		Markers:     markers,
		Concepts:    v.Concepts,
	}
}
