package router

import (
	"fmt"

	"github.com/glanceassist/glance/pkg/domain"
)

// Route maps a selection context to exactly one processing pipeline. It is
// pure and total: text goes to text-extraction, image to vision-processing,
// anything else fails with domain.ErrUnroutableSelection rather than
// silently defaulting.
func Route(selection domain.SelectionContext) (domain.Pipeline, error) {
	switch selection.Type {
	case domain.SelectionTypeText:
		return domain.PipelineTextExtraction, nil
	case domain.SelectionTypeImage:
		return domain.PipelineVisionProcessing, nil
	default:
		return "", fmt.Errorf("type %q: %w", selection.Type, domain.ErrUnroutableSelection)
	}
}
