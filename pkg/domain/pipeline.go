package domain

// Pipeline is one of the two mutually exclusive processing paths a selection
// can take. A selection is never routed to both.
type Pipeline string

const (
	PipelineTextExtraction   Pipeline = "text-extraction"
	PipelineVisionProcessing Pipeline = "vision-processing"
)
