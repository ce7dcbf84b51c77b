package bridge

import (
	"time"

	"github.com/russross/blackfriday"

	"github.com/glanceassist/glance/pkg/domain"
)

type wireUpdate struct {
	Kind      string                 `json:"kind"`
	SessionID string                 `json:"sessionId,omitempty"`
	Position  *domain.Point          `json:"position,omitempty"`
	Message   *wireMessage           `json:"message,omitempty"`
	Markers   []domain.DiagramMarker `json:"markers,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Retryable bool                   `json:"retryable,omitempty"`
}

type wireMessage struct {
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	ContentHTML    string    `json:"contentHtml,omitempty"`
	ResponseSource string    `json:"responseSource,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// encodeUpdate flattens a core update into its wire form. Assistant markdown
// is rendered to HTML here so the content script can inject it directly.
func encodeUpdate(update *domain.Update) wireUpdate {
	out := wireUpdate{
		Kind:      string(update.Kind),
		SessionID: update.SessionID,
		Position:  update.Position,
		Markers:   update.Markers,
		Retryable: update.Retryable,
	}
	if update.Err != nil {
		out.Error = update.Err.Error()
	}
	if update.Message != nil {
		out.Message = &wireMessage{
			Role:           string(update.Message.Role),
			Content:        update.Message.Content,
			ResponseSource: string(update.Message.Source),
			Timestamp:      update.Message.Timestamp,
		}
		if update.Message.Role == domain.RoleAssistant {
			out.Message.ContentHTML = string(blackfriday.MarkdownCommon([]byte(update.Message.Content)))
		}
	}
	return out
}
