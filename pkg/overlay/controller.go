package overlay

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/samber/lo"

	"github.com/glanceassist/glance/pkg/anchor"
	"github.com/glanceassist/glance/pkg/domain"
	"github.com/glanceassist/glance/pkg/logger"
	"github.com/glanceassist/glance/pkg/router"
)

type State string

const (
	StateIdle       State = "idle"
	StateAcquiring  State = "acquiring"
	StateActive     State = "active"
	StateDismissing State = "dismissing"
)

type Classifier interface {
	Classify(event *domain.SelectionEvent) (domain.SelectionContext, error)
}

type SessionManager interface {
	Open(selection domain.SelectionContext, pipeline domain.Pipeline) domain.ChatSession
	Append(sessionID string, msg domain.ChatMessage) error
	Expand(sessionID string) error
	Marker(sessionID, markerID string) (domain.DiagramMarker, error)
	Active() (domain.ChatSession, bool)
	IdleExpired() (string, bool)
	Deactivate()
	Destroy(sessionID string)
	Teardown()
}

type Submitter interface {
	Submit(ctx context.Context, pipeline domain.Pipeline, sessionID string, payload domain.Payload)
	SubmitFollowUp(ctx context.Context, sessionID string, history []domain.ChatMessage, prompt string)
}

// Controller enforces the singleton-overlay invariant and mediates every
// show/hide/replace transition. All its methods run on the single host-event
// goroutine; nothing else mutates lifecycle state.
type Controller struct {
	state      State
	classifier Classifier
	sessions   SessionManager
	coord      Submitter
	tracker    *anchor.Tracker
	updateCh   chan<- domain.Update

	showBudget time.Duration
	now        func() time.Time
}

func NewController(
	classifier Classifier,
	sessions SessionManager,
	coord Submitter,
	tracker *anchor.Tracker,
	updateCh chan<- domain.Update,
	showBudget time.Duration,
) *Controller {
	return &Controller{
		state:      StateIdle,
		classifier: classifier,
		sessions:   sessions,
		coord:      coord,
		tracker:    tracker,
		updateCh:   updateCh,
		showBudget: lo.Ternary(showBudget > 0, showBudget, 200*time.Millisecond),
		now:        time.Now,
	}
}

func (c *Controller) State() State { return c.state }

// HandleEvent dispatches one host-document notification.
func (c *Controller) HandleEvent(ctx context.Context, event domain.HostEvent) {
	switch event.Type {
	case domain.HostEventSelection:
		c.Trigger(ctx, event.Selection)
	case domain.HostEventScroll:
		if event.Scroll != nil {
			c.tracker.ApplyScroll(event.Scroll.Offset)
		}
		c.Reposition(ctx)
	case domain.HostEventResize:
		if event.Resize != nil {
			c.tracker.ApplyResize(event.Resize.Viewport)
		}
		c.Reposition(ctx)
	case domain.HostEventMutation:
		c.tracker.ApplyMutation(event.Mutation)
		c.Reposition(ctx)
	case domain.HostEventDismiss:
		c.Dismiss(ctx, true)
	case domain.HostEventMarkerClick:
		if event.MarkerClick != nil {
			c.MarkerClick(ctx, event.MarkerClick.MarkerID)
		}
	case domain.HostEventFollowUp:
		if event.FollowUp != nil {
			c.FollowUp(ctx, event.FollowUp.Text)
		}
	default:
		slog.WarnContext(ctx, "Ignoring unknown host event", "type", event.Type)
	}
}

// Trigger runs the full acquisition path for a qualifying selection. An
// already-active overlay is dismissed synchronously first: a new trigger
// always replaces, never stacks. The transition to Active never waits on the
// AI response; the overlay shows a loading state immediately.
func (c *Controller) Trigger(ctx context.Context, event *domain.SelectionEvent) {
	selection, err := c.classifier.Classify(event)
	if err != nil {
		slog.InfoContext(ctx, "Selection rejected", logger.Err(err))
		c.emit(domain.Update{Kind: domain.UpdateError, Err: err})
		return
	}

	pipeline, err := router.Route(selection)
	if err != nil {
		slog.WarnContext(ctx, "Selection unroutable", logger.Err(err))
		c.emit(domain.Update{Kind: domain.UpdateError, Err: err})
		return
	}

	if c.state == StateActive {
		c.Dismiss(ctx, false)
	}

	started := c.now()
	c.state = StateAcquiring

	c.tracker.Bind(event.ElementID, event.BoundingRect, event.ScrollOffset)
	position, lost := c.tracker.Position()
	if lost {
		position = c.tracker.Fallback()
	}

	sess := c.sessions.Open(selection, pipeline)
	c.state = StateActive

	c.emit(domain.Update{Kind: domain.UpdateOverlayShown, SessionID: sess.ID, Position: &position})
	c.emit(domain.Update{Kind: domain.UpdateLoading, SessionID: sess.ID})

	if elapsed := c.now().Sub(started); elapsed > c.showBudget {
		slog.WarnContext(ctx, "Overlay show latency exceeded budget",
			"elapsed", elapsed.String(),
			"budget", c.showBudget.String(),
		)
	}

	userMsg := domain.ChatMessage{
		Role: domain.RoleUser,
		Content: lo.Ternary(selection.Type == domain.SelectionTypeText,
			selection.Content.Text,
			"[selected image region]"),
		Timestamp: c.now(),
	}
	if err := c.sessions.Append(sess.ID, userMsg); err == nil {
		c.emit(domain.Update{Kind: domain.UpdateMessage, SessionID: sess.ID, Message: &userMsg})
	}

	c.coord.Submit(ctx, pipeline, sess.ID, selection.Content)

	slog.InfoContext(ctx, "Overlay acquired",
		"sessionID", sess.ID,
		"pipeline", pipeline,
		"anchorLost", lost,
	)
}

// Dismiss releases the overlay. Destroy distinguishes an explicit user
// dismissal (session destroyed) from a programmatic replace (session only
// deactivated so snapshot readers can still see it). Dismissing a non-active
// overlay is a silent no-op.
func (c *Controller) Dismiss(ctx context.Context, destroy bool) {
	if c.state != StateActive {
		return
	}

	c.state = StateDismissing

	sess, ok := c.sessions.Active()
	if ok && destroy {
		c.sessions.Destroy(sess.ID)
	} else {
		c.sessions.Deactivate()
	}

	c.tracker.Release()
	c.emit(domain.Update{Kind: domain.UpdateOverlayDismissed, SessionID: sess.ID})

	c.state = StateIdle

	slog.InfoContext(ctx, "Overlay dismissed", "sessionID", sess.ID, "destroyed", destroy)
}

// Reposition re-derives the overlay position after a host tick. Ticks are
// coalesced per frame; a lost anchor degrades to the center fallback rather
// than failing the overlay.
func (c *Controller) Reposition(ctx context.Context) {
	if c.state != StateActive {
		return
	}
	if !c.tracker.ShouldEmit() {
		return
	}

	position, lost := c.tracker.Position()
	if lost {
		position = c.tracker.Fallback()
	}

	sessionID := ""
	if sess, ok := c.sessions.Active(); ok {
		sessionID = sess.ID
	}
	c.emit(domain.Update{Kind: domain.UpdateReposition, SessionID: sessionID, Position: &position})
}

// MarkerClick handles a diagram-marker follow-up. It broadens the session
// scope and asks the text adapter to elaborate on the clicked marker;
// sibling markers are left untouched.
func (c *Controller) MarkerClick(ctx context.Context, markerID string) {
	if c.state != StateActive {
		return
	}

	sess, ok := c.sessions.Active()
	if !ok {
		return
	}

	marker, err := c.sessions.Marker(sess.ID, markerID)
	if err != nil {
		slog.WarnContext(ctx, "Marker lookup failed", "markerID", markerID, logger.Err(err))
		return
	}

	if err := c.sessions.Expand(sess.ID); err != nil {
		return
	}

	userMsg := domain.ChatMessage{
		Role:      domain.RoleUser,
		Content:   fmt.Sprintf("Tell me more about %q", marker.Label),
		Timestamp: c.now(),
	}
	if err := c.sessions.Append(sess.ID, userMsg); err != nil {
		return
	}
	c.emit(domain.Update{Kind: domain.UpdateMessage, SessionID: sess.ID, Message: &userMsg})

	prompt := fmt.Sprintf("The user clicked the diagram marker %q. Marker description: %s. Elaborate on this part of the diagram.",
		marker.Label, marker.Description)
	c.coord.SubmitFollowUp(ctx, sess.ID, append(sess.Messages, userMsg), prompt)
}

// FollowUp handles a typed user question on the open overlay.
func (c *Controller) FollowUp(ctx context.Context, text string) {
	if c.state != StateActive || text == "" {
		return
	}

	sess, ok := c.sessions.Active()
	if !ok {
		return
	}

	userMsg := domain.ChatMessage{
		Role:      domain.RoleUser,
		Content:   text,
		Timestamp: c.now(),
	}
	if err := c.sessions.Append(sess.ID, userMsg); err != nil {
		return
	}
	c.emit(domain.Update{Kind: domain.UpdateMessage, SessionID: sess.ID, Message: &userMsg})

	c.coord.SubmitFollowUp(ctx, sess.ID, sess.Messages, text)
}

// EvictIdle dismisses the overlay once its session has gone idle. Eviction
// deactivates the session rather than destroying it; the UI observes the same
// overlay-dismissed update as for any other dismissal.
func (c *Controller) EvictIdle(ctx context.Context) {
	if c.state != StateActive {
		return
	}

	sessionID, expired := c.sessions.IdleExpired()
	if !expired {
		return
	}

	slog.InfoContext(ctx, "Evicting idle session", "sessionID", sessionID)
	c.Dismiss(ctx, false)
}

// Teardown dismisses whatever is showing and drains the session manager;
// used on shutdown.
func (c *Controller) Teardown(ctx context.Context) {
	c.Dismiss(ctx, true)
	c.sessions.Teardown()
}

func (c *Controller) emit(update domain.Update) {
	select {
	case c.updateCh <- update:
	default:
		slog.Warn("Update channel full, dropping update", "kind", update.Kind)
	}
}
