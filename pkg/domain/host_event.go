package domain

type HostEventType string

const (
	HostEventSelection   HostEventType = "selection"
	HostEventScroll      HostEventType = "scroll"
	HostEventResize      HostEventType = "resize"
	HostEventMutation    HostEventType = "mutation"
	HostEventDismiss     HostEventType = "dismiss"
	HostEventMarkerClick HostEventType = "marker-click"
	HostEventFollowUp    HostEventType = "follow-up"
)

// HostEvent is a notification from the host document. The host is an
// untrusted, mutable external system: events may be incomplete, duplicated
// or imperfectly ordered.
type HostEvent struct {
	Type        HostEventType     `json:"type"`
	Selection   *SelectionEvent   `json:"selection,omitempty"`
	Scroll      *ScrollEvent      `json:"scroll,omitempty"`
	Resize      *ResizeEvent      `json:"resize,omitempty"`
	Mutation    *MutationEvent    `json:"mutation,omitempty"`
	MarkerClick *MarkerClickEvent `json:"markerClick,omitempty"`
	FollowUp    *FollowUpEvent    `json:"followUp,omitempty"`
}

type SelectionEvent struct {
	Text         string     `json:"text,omitempty"`
	Image        []byte     `json:"image,omitempty"`
	ImageFormat  string     `json:"imageFormat,omitempty"`
	ElementID    string     `json:"elementId"`
	BoundingRect Rect       `json:"boundingRect"`
	ScrollOffset Point      `json:"scrollOffset"`
	SourceURL    string     `json:"sourceUrl"`
	SourceKind   SourceKind `json:"sourceKind"`
	CrossOrigin  bool       `json:"crossOrigin,omitempty"`
}

type ScrollEvent struct {
	Offset Point `json:"offset"`
}

type ResizeEvent struct {
	Viewport Rect `json:"viewport"`
}

type MutationEvent struct {
	ElementID    string `json:"elementId"`
	Removed      bool   `json:"removed,omitempty"`
	BoundingRect *Rect  `json:"boundingRect,omitempty"`
}

type MarkerClickEvent struct {
	MarkerID string `json:"markerId"`
}

type FollowUpEvent struct {
	Text string `json:"text"`
}
