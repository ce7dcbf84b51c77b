package domain

type UpdateKind string

const (
	UpdateOverlayShown     UpdateKind = "overlay-shown"
	UpdateOverlayDismissed UpdateKind = "overlay-dismissed"
	UpdateLoading          UpdateKind = "loading"
	UpdateMessage          UpdateKind = "message"
	UpdateMarkers          UpdateKind = "markers"
	UpdateReposition       UpdateKind = "reposition"
	UpdateScopeChanged     UpdateKind = "scope-changed"
	UpdateError            UpdateKind = "error"
)

// Update is a render event for the UI layer. Every asynchronous result
// reaches the UI only as an Update; the core never calls into rendering.
type Update struct {
	Kind      UpdateKind
	SessionID string
	Position  *Point
	Message   *ChatMessage
	Markers   []DiagramMarker
	Retryable bool
	Err       error
}
