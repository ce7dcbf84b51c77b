package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/glanceassist/glance/pkg/domain"
	"github.com/glanceassist/glance/pkg/logger"
)

// SnapshotSink receives session-end snapshots for optional persistence.
// The manager never depends on a sink succeeding for its own correctness.
type SnapshotSink interface {
	SaveSnapshot(ctx context.Context, session domain.ChatSession) error
}

const snapshotTimeout = 5 * time.Second

// Manager owns the single active ChatSession. Only the manager mutates
// session state, and at most one session is active system-wide at any
// instant. Sessions are isolated: opening a new one never copies messages
// forward.
type Manager struct {
	mu         sync.Mutex
	snapshotWG sync.WaitGroup

	active *domain.ChatSession
	recent []*domain.ChatSession

	messageCap  int
	recentCap   int
	idleTimeout time.Duration

	updateCh chan<- domain.Update
	sink     SnapshotSink
	now      func() time.Time
}

func NewManager(messageCap int, idleTimeout time.Duration, updateCh chan<- domain.Update, sink SnapshotSink) *Manager {
	return &Manager{
		messageCap:  lo.Ternary(messageCap > 0, messageCap, 50),
		recentCap:   8,
		idleTimeout: idleTimeout,
		updateCh:    updateCh,
		sink:        sink,
		now:         time.Now,
	}
}

// Open deactivates and evicts the previous active session, if any, and
// constructs a brand-new session scoped only to the given selection.
func (m *Manager) Open(selection domain.SelectionContext, pipeline domain.Pipeline) domain.ChatSession {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.deactivateLocked()

	now := m.now()
	m.active = &domain.ChatSession{
		ID:             uuid.NewString(),
		Selection:      selection,
		Pipeline:       pipeline,
		Active:         true,
		CreatedAt:      now,
		LastActivityAt: now,
	}

	return copySession(m.active)
}

// Append adds a message to the session identified by sessionID. It fails with
// domain.ErrSessionNotActive when the id does not match the current active
// session; this is the guard against stale async responses racing a newer
// selection.
func (m *Manager) Append(sessionID string, msg domain.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil || m.active.ID != sessionID {
		return domain.ErrSessionNotActive
	}

	m.active.Messages = append(m.active.Messages, msg)
	if len(m.active.Messages) > m.messageCap {
		// Bounded FIFO retention, oldest first.
		m.active.Messages = m.active.Messages[len(m.active.Messages)-m.messageCap:]
	}
	m.active.LastActivityAt = m.now()

	return nil
}

// Expand marks the session's scope as explicitly broadened and notifies the
// UI layer that the conversational boundary moved.
func (m *Manager) Expand(sessionID string) error {
	m.mu.Lock()

	if m.active == nil || m.active.ID != sessionID {
		m.mu.Unlock()
		return domain.ErrSessionNotActive
	}

	alreadyExpanded := m.active.Expanded
	m.active.Expanded = true
	m.mu.Unlock()

	if !alreadyExpanded {
		m.emit(domain.Update{Kind: domain.UpdateScopeChanged, SessionID: sessionID})
	}
	return nil
}

// SetMarkers attaches the current vision response's diagram markers to the
// session. Markers are owned by the session and die with it.
func (m *Manager) SetMarkers(sessionID string, markers []domain.DiagramMarker) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil || m.active.ID != sessionID {
		return domain.ErrSessionNotActive
	}

	m.active.Markers = append([]domain.DiagramMarker(nil), markers...)
	return nil
}

// RecordFailure stores a typed failure state on the active session. A stale
// sessionID is a silent no-op, matching the stale-response drop rule.
func (m *Manager) RecordFailure(sessionID string, failure domain.SessionFailure) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil || m.active.ID != sessionID {
		return domain.ErrSessionNotActive
	}

	m.active.Failure = &failure
	m.active.LastActivityAt = m.now()
	return nil
}

// Marker looks up one diagram marker on the active session.
func (m *Manager) Marker(sessionID, markerID string) (domain.DiagramMarker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil || m.active.ID != sessionID {
		return domain.DiagramMarker{}, domain.ErrSessionNotActive
	}
	for _, marker := range m.active.Markers {
		if marker.ID == markerID {
			return marker, nil
		}
	}
	return domain.DiagramMarker{}, domain.ErrSessionNotFound
}

// ActiveID returns the id of the currently active session, if any.
func (m *Manager) ActiveID() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil {
		return "", false
	}
	return m.active.ID, true
}

// Active returns a copy of the active session for readers. The copy shares
// no mutable state with the manager's own reference.
func (m *Manager) Active() (domain.ChatSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil {
		return domain.ChatSession{}, false
	}
	return copySession(m.active), true
}

// Deactivate releases the active session reference without destroying it:
// snapshot readers may still consume it from the recent ring.
func (m *Manager) Deactivate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deactivateLocked()
}

// Destroy fully removes the session identified by sessionID, whether active
// or recently deactivated.
func (m *Manager) Destroy(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil && m.active.ID == sessionID {
		m.snapshotLocked(m.active)
		m.active = nil
	}
	m.recent = lo.Reject(m.recent, func(s *domain.ChatSession, _ int) bool {
		return s.ID == sessionID
	})
}

// IdleExpired reports the active session once it has seen no activity for the
// idle timeout. Eviction itself runs through the lifecycle controller so the
// overlay is dismissed on the same path as any other deactivation.
func (m *Manager) IdleExpired() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil || m.idleTimeout <= 0 {
		return "", false
	}
	if m.now().Sub(m.active.LastActivityAt) <= m.idleTimeout {
		return "", false
	}
	return m.active.ID, true
}

// Teardown destroys everything the manager holds and waits for in-flight
// snapshot writes to finish.
func (m *Manager) Teardown() {
	m.mu.Lock()
	if m.active != nil {
		m.snapshotLocked(m.active)
	}
	m.active = nil
	m.recent = nil
	m.mu.Unlock()

	m.snapshotWG.Wait()
}

// Recent returns copies of recently deactivated sessions, newest first.
func (m *Manager) Recent() []domain.ChatSession {
	m.mu.Lock()
	defer m.mu.Unlock()

	return lo.Map(m.recent, func(s *domain.ChatSession, _ int) domain.ChatSession {
		return copySession(s)
	})
}

func (m *Manager) deactivateLocked() {
	if m.active == nil {
		return
	}

	m.active.Active = false
	m.snapshotLocked(m.active)

	m.recent = append([]*domain.ChatSession{m.active}, m.recent...)
	if len(m.recent) > m.recentCap {
		m.recent = m.recent[:m.recentCap]
	}
	m.active = nil
}

// snapshotLocked hands the session off to the sink without blocking any
// lifecycle transition. Failures are logged and otherwise ignored.
func (m *Manager) snapshotLocked(session *domain.ChatSession) {
	if m.sink == nil {
		return
	}

	snapshot := copySession(session)
	m.snapshotWG.Add(1)
	go func() {
		defer m.snapshotWG.Done()

		ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
		defer cancel()

		if err := m.sink.SaveSnapshot(ctx, snapshot); err != nil {
			slog.Error("Saving session snapshot", "sessionID", snapshot.ID, logger.Err(err))
		}
	}()
}

func (m *Manager) emit(update domain.Update) {
	select {
	case m.updateCh <- update:
	default:
		slog.Warn("Update channel full, dropping update", "kind", update.Kind)
	}
}

func copySession(s *domain.ChatSession) domain.ChatSession {
	out := *s
	out.Messages = append([]domain.ChatMessage(nil), s.Messages...)
	out.Markers = append([]domain.DiagramMarker(nil), s.Markers...)
	return out
}
