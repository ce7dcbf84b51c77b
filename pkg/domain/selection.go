package domain

import "time"

type SelectionType string

const (
	SelectionTypeText  SelectionType = "text"
	SelectionTypeImage SelectionType = "image"
)

type SourceKind string

const (
	SourceKindWebpage SourceKind = "webpage"
	SourceKindPDF     SourceKind = "pdf"
)

// Payload is the opaque content reference shipped with a selection. The core
// never interprets it; extraction collaborators do.
type Payload struct {
	Text   string `json:"text,omitempty"`
	Image  []byte `json:"image,omitempty"`
	Format string `json:"format,omitempty"`
}

// SelectionContext is an immutable record of what the user selected and where
// it came from. A new selection always produces a new context, never a
// mutation of a prior one.
type SelectionContext struct {
	ID         string
	Type       SelectionType
	Content    Payload
	SourceURL  string
	SourceKind SourceKind
	CreatedAt  time.Time
}
