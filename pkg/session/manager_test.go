package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glanceassist/glance/pkg/domain"
)

type recordingSink struct {
	mu        sync.Mutex
	snapshots []domain.ChatSession
}

func (r *recordingSink) SaveSnapshot(_ context.Context, session domain.ChatSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, session)
	return nil
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snapshots)
}

func newTestManager(t *testing.T) (*Manager, chan domain.Update) {
	t.Helper()
	updateCh := make(chan domain.Update, 32)
	return NewManager(5, time.Hour, updateCh, nil), updateCh
}

func textSelection(text string) domain.SelectionContext {
	return domain.SelectionContext{
		ID:        "sel-" + text,
		Type:      domain.SelectionTypeText,
		Content:   domain.Payload{Text: text},
		CreatedAt: time.Now(),
	}
}

func TestOpenStartsEmptyAndIsolated(t *testing.T) {
	m, _ := newTestManager(t)

	first := m.Open(textSelection("one"), domain.PipelineTextExtraction)
	require.NoError(t, m.Append(first.ID, domain.ChatMessage{Role: domain.RoleUser, Content: "hello"}))

	second := m.Open(textSelection("two"), domain.PipelineTextExtraction)

	assert.Empty(t, second.Messages, "a new session never inherits messages")
	assert.NotEqual(t, first.ID, second.ID)
	assert.NotEqual(t, first.Selection.ID, second.Selection.ID,
		"a session's selection context is never shared with a prior session")
}

func TestSingleActiveSession(t *testing.T) {
	m, _ := newTestManager(t)

	m.Open(textSelection("one"), domain.PipelineTextExtraction)
	second := m.Open(textSelection("two"), domain.PipelineTextExtraction)

	activeID, ok := m.ActiveID()
	require.True(t, ok)
	assert.Equal(t, second.ID, activeID)

	for _, recent := range m.Recent() {
		assert.False(t, recent.Active, "replaced sessions must be deactivated")
	}
}

func TestAppendToStaleSessionFails(t *testing.T) {
	m, _ := newTestManager(t)

	stale := m.Open(textSelection("one"), domain.PipelineTextExtraction)
	m.Open(textSelection("two"), domain.PipelineTextExtraction)

	err := m.Append(stale.ID, domain.ChatMessage{Role: domain.RoleAssistant, Content: "late", Source: domain.ResponseSourceTextDerived})
	assert.ErrorIs(t, err, domain.ErrSessionNotActive)

	active, ok := m.Active()
	require.True(t, ok)
	assert.Empty(t, active.Messages, "a stale append must not leak into the new session")
}

func TestMessagesPreserveInsertionOrder(t *testing.T) {
	m, _ := newTestManager(t)
	sess := m.Open(textSelection("order"), domain.PipelineTextExtraction)

	for i := 0; i < 5; i++ {
		require.NoError(t, m.Append(sess.ID, domain.ChatMessage{
			Role:    domain.RoleUser,
			Content: fmt.Sprintf("turn %d", i),
		}))
	}

	active, _ := m.Active()
	require.Len(t, active.Messages, 5)
	for i, msg := range active.Messages {
		assert.Equal(t, fmt.Sprintf("turn %d", i), msg.Content)
	}
}

func TestMessageCapEvictsOldestFirst(t *testing.T) {
	m, _ := newTestManager(t)
	sess := m.Open(textSelection("cap"), domain.PipelineTextExtraction)

	for i := 0; i < 8; i++ {
		require.NoError(t, m.Append(sess.ID, domain.ChatMessage{
			Role:    domain.RoleUser,
			Content: fmt.Sprintf("turn %d", i),
		}))
	}

	active, _ := m.Active()
	require.Len(t, active.Messages, 5)
	assert.Equal(t, "turn 3", active.Messages[0].Content)
	assert.Equal(t, "turn 7", active.Messages[4].Content)
}

func TestExpandEmitsScopeChangeOnce(t *testing.T) {
	m, updateCh := newTestManager(t)
	sess := m.Open(textSelection("scope"), domain.PipelineVisionProcessing)

	require.NoError(t, m.Expand(sess.ID))
	require.NoError(t, m.Expand(sess.ID))

	select {
	case update := <-updateCh:
		assert.Equal(t, domain.UpdateScopeChanged, update.Kind)
		assert.Equal(t, sess.ID, update.SessionID)
	default:
		t.Fatal("expected a scope-changed update")
	}

	select {
	case update := <-updateCh:
		t.Fatalf("expected a single scope-changed notification, got another %s", update.Kind)
	default:
	}
}

func TestExpandStaleSessionFails(t *testing.T) {
	m, _ := newTestManager(t)
	stale := m.Open(textSelection("one"), domain.PipelineTextExtraction)
	m.Open(textSelection("two"), domain.PipelineTextExtraction)

	assert.ErrorIs(t, m.Expand(stale.ID), domain.ErrSessionNotActive)
}

func TestMarkerLookup(t *testing.T) {
	m, _ := newTestManager(t)
	sess := m.Open(textSelection("diagram"), domain.PipelineVisionProcessing)

	markers := []domain.DiagramMarker{
		{ID: "m1", Label: "inlet"},
		{ID: "m2", Label: "valve"},
	}
	require.NoError(t, m.SetMarkers(sess.ID, markers))

	marker, err := m.Marker(sess.ID, "m2")
	require.NoError(t, err)
	assert.Equal(t, "valve", marker.Label)

	_, err = m.Marker(sess.ID, "m9")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestIdleExpiredReportsStaleSession(t *testing.T) {
	m, _ := newTestManager(t)
	sess := m.Open(textSelection("idle"), domain.PipelineTextExtraction)

	now := time.Now()
	m.now = func() time.Time { return now.Add(2 * time.Hour) }

	sessionID, expired := m.IdleExpired()
	require.True(t, expired)
	assert.Equal(t, sess.ID, sessionID)
}

func TestIdleExpiredKeepsFreshSessions(t *testing.T) {
	m, _ := newTestManager(t)
	m.Open(textSelection("fresh"), domain.PipelineTextExtraction)

	_, expired := m.IdleExpired()
	assert.False(t, expired)
}

func TestDestroyRemovesSessionEntirely(t *testing.T) {
	m, _ := newTestManager(t)
	sess := m.Open(textSelection("gone"), domain.PipelineTextExtraction)

	m.Destroy(sess.ID)

	_, ok := m.ActiveID()
	assert.False(t, ok)
	assert.Empty(t, m.Recent())
}

func TestDeactivateSnapshotsToSink(t *testing.T) {
	sink := &recordingSink{}
	updateCh := make(chan domain.Update, 8)
	m := NewManager(5, time.Hour, updateCh, sink)

	sess := m.Open(textSelection("saved"), domain.PipelineTextExtraction)
	require.NoError(t, m.Append(sess.ID, domain.ChatMessage{Role: domain.RoleUser, Content: "keep me"}))

	m.Deactivate()

	assert.Eventually(t, func() bool { return sink.count() == 1 }, time.Second, 10*time.Millisecond)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Len(t, sink.snapshots[0].Messages, 1)
	assert.Equal(t, "keep me", sink.snapshots[0].Messages[0].Content)
}

type slowSink struct {
	recordingSink
	delay time.Duration
}

func (s *slowSink) SaveSnapshot(ctx context.Context, session domain.ChatSession) error {
	time.Sleep(s.delay)
	return s.recordingSink.SaveSnapshot(ctx, session)
}

func TestTeardownWaitsForSnapshots(t *testing.T) {
	sink := &slowSink{delay: 50 * time.Millisecond}
	updateCh := make(chan domain.Update, 8)
	m := NewManager(5, time.Hour, updateCh, sink)

	sess := m.Open(textSelection("shutdown"), domain.PipelineTextExtraction)
	require.NoError(t, m.Append(sess.ID, domain.ChatMessage{Role: domain.RoleUser, Content: "last words"}))

	m.Teardown()

	assert.Equal(t, 1, sink.count(), "teardown must not abandon in-flight snapshot writes")
}

func TestRecordFailure(t *testing.T) {
	m, _ := newTestManager(t)
	sess := m.Open(textSelection("broken"), domain.PipelineTextExtraction)

	require.NoError(t, m.RecordFailure(sess.ID, domain.SessionFailure{Reason: "rate limited", Retryable: true}))

	active, _ := m.Active()
	require.NotNil(t, active.Failure)
	assert.True(t, active.Failure.Retryable)

	m.Open(textSelection("next"), domain.PipelineTextExtraction)
	err := m.RecordFailure(sess.ID, domain.SessionFailure{Reason: "late failure"})
	assert.ErrorIs(t, err, domain.ErrSessionNotActive)
}
