package domain

import "time"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type ResponseSource string

const (
	ResponseSourceTextDerived         ResponseSource = "text-derived"
	ResponseSourceVisualUnderstanding ResponseSource = "visual-understanding"
	ResponseSourceInferred            ResponseSource = "inferred"
)

type ChatMessage struct {
	Role      Role           `json:"role"`
	Content   string         `json:"content"`
	Source    ResponseSource `json:"responseSource,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// ChatSession is the isolated conversational state scoped to exactly one
// SelectionContext. The session exclusively owns its context and messages;
// only the session manager mutates it.
type ChatSession struct {
	ID             string
	Selection      SelectionContext
	Pipeline       Pipeline
	Messages       []ChatMessage
	Markers        []DiagramMarker
	Failure        *SessionFailure
	Active         bool
	Expanded       bool
	CreatedAt      time.Time
	LastActivityAt time.Time
}

// SessionFailure is the typed, user-facing failure state a session ends up
// in when a pipeline request cannot be satisfied. Nothing escapes the core
// as an unhandled fault; it lands here instead.
type SessionFailure struct {
	Reason    string
	Retryable bool
	At        time.Time
}

// AssistantReply is what an AI text adapter returns. Source is the adapter's
// own classification, never derived from content inspection.
type AssistantReply struct {
	Content    string
	Source     ResponseSource
	Confidence float64
}

// VisionResult is what a vision adapter returns for an analyzed image.
type VisionResult struct {
	Description string
	Markers     []DiagramMarker
	Concepts    []string
}
