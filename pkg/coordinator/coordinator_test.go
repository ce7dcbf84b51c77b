package coordinator

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/glanceassist/glance/pkg/domain"
	"github.com/glanceassist/glance/pkg/extract"
	"github.com/glanceassist/glance/pkg/session"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type stubTextAdapter struct {
	summarizeFn func(ctx context.Context, text string) (domain.AssistantReply, error)
	chatFn      func(ctx context.Context, history []domain.ChatMessage, prompt string) (domain.AssistantReply, error)
}

func (s *stubTextAdapter) Summarize(ctx context.Context, text string) (domain.AssistantReply, error) {
	return s.summarizeFn(ctx, text)
}

func (s *stubTextAdapter) Chat(ctx context.Context, history []domain.ChatMessage, prompt string) (domain.AssistantReply, error) {
	if s.chatFn == nil {
		return domain.AssistantReply{}, domain.NewPermanentError("no chat stub", nil)
	}
	return s.chatFn(ctx, history, prompt)
}

type stubVisionAdapter struct {
	analyzeFn func(ctx context.Context, image []byte) (domain.VisionResult, error)
}

func (s *stubVisionAdapter) Analyze(ctx context.Context, image []byte) (domain.VisionResult, error) {
	return s.analyzeFn(ctx, image)
}

type fixture struct {
	coord    *Coordinator
	sessions *session.Manager
	updateCh chan domain.Update
}

func newFixture(t *testing.T, text TextAdapter, vision VisionAdapter) *fixture {
	t.Helper()

	updateCh := make(chan domain.Update, 32)
	sessions := session.NewManager(50, time.Hour, updateCh, nil)
	passthrough := extract.NewPassthrough()

	coord := New(text, vision, passthrough, passthrough, sessions, updateCh, Config{
		TextTimeout:   time.Second,
		VisionTimeout: time.Second,
		RetryLimit:    2,
		BaseBackoff:   time.Millisecond,
	})

	return &fixture{coord: coord, sessions: sessions, updateCh: updateCh}
}

func waitUpdate(t *testing.T, ch <-chan domain.Update, kind domain.UpdateKind) domain.Update {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case update := <-ch:
			if update.Kind == kind {
				return update
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s update", kind)
		}
	}
}

func TestTextPipelineDeliversAssistantMessage(t *testing.T) {
	text := &stubTextAdapter{
		summarizeFn: func(_ context.Context, selected string) (domain.AssistantReply, error) {
			assert.Equal(t, "Photosynthesis converts light into chemical energy", selected)
			return domain.AssistantReply{
				Content: "Plants turn light into usable energy.",
				Source:  domain.ResponseSourceTextDerived,
			}, nil
		},
	}
	f := newFixture(t, text, nil)
	defer f.coord.Close()

	sess := f.sessions.Open(domain.SelectionContext{
		ID:      "sel-1",
		Type:    domain.SelectionTypeText,
		Content: domain.Payload{Text: "Photosynthesis converts light into chemical energy"},
	}, domain.PipelineTextExtraction)

	f.coord.Submit(context.Background(), domain.PipelineTextExtraction, sess.ID, sess.Selection.Content)

	update := waitUpdate(t, f.updateCh, domain.UpdateMessage)
	require.NotNil(t, update.Message)
	assert.Equal(t, domain.RoleAssistant, update.Message.Role)
	assert.Equal(t, domain.ResponseSourceTextDerived, update.Message.Source)

	active, _ := f.sessions.Active()
	require.Len(t, active.Messages, 1)
	assert.Equal(t, domain.ResponseSourceTextDerived, active.Messages[0].Source)
}

func TestInferredSourcePropagatesFromAdapter(t *testing.T) {
	text := &stubTextAdapter{
		summarizeFn: func(context.Context, string) (domain.AssistantReply, error) {
			return domain.AssistantReply{Content: "Beyond the text.", Source: domain.ResponseSourceInferred}, nil
		},
	}
	f := newFixture(t, text, nil)
	defer f.coord.Close()

	sess := f.sessions.Open(domain.SelectionContext{Content: domain.Payload{Text: "short"}}, domain.PipelineTextExtraction)
	f.coord.Submit(context.Background(), domain.PipelineTextExtraction, sess.ID, sess.Selection.Content)

	update := waitUpdate(t, f.updateCh, domain.UpdateMessage)
	assert.Equal(t, domain.ResponseSourceInferred, update.Message.Source)
}

func TestStaleResponseIsDiscarded(t *testing.T) {
	release := make(chan struct{})
	text := &stubTextAdapter{
		summarizeFn: func(ctx context.Context, _ string) (domain.AssistantReply, error) {
			select {
			case <-release:
			case <-ctx.Done():
			}
			return domain.AssistantReply{Content: "too late", Source: domain.ResponseSourceTextDerived}, nil
		},
	}
	f := newFixture(t, text, nil)

	sessionA := f.sessions.Open(domain.SelectionContext{Content: domain.Payload{Text: "first"}}, domain.PipelineTextExtraction)
	f.coord.Submit(context.Background(), domain.PipelineTextExtraction, sessionA.ID, sessionA.Selection.Content)

	// A new selection replaces session A before its response resolves.
	sessionB := f.sessions.Open(domain.SelectionContext{Content: domain.Payload{Text: "second"}}, domain.PipelineTextExtraction)
	close(release)
	f.coord.Close()

	active, ok := f.sessions.Active()
	require.True(t, ok)
	assert.Equal(t, sessionB.ID, active.ID)
	assert.Empty(t, active.Messages, "the stale response must produce no visible state change")

	select {
	case update := <-f.updateCh:
		t.Fatalf("expected no update from the stale response, got %s", update.Kind)
	default:
	}
}

func TestTransientFailuresRetryToSuccess(t *testing.T) {
	var attempts atomic.Int32
	text := &stubTextAdapter{
		summarizeFn: func(context.Context, string) (domain.AssistantReply, error) {
			if attempts.Add(1) <= 2 {
				return domain.AssistantReply{}, domain.NewTransientError("rate limited", nil)
			}
			return domain.AssistantReply{Content: "third time lucky", Source: domain.ResponseSourceTextDerived}, nil
		},
	}
	f := newFixture(t, text, nil)
	defer f.coord.Close()

	sess := f.sessions.Open(domain.SelectionContext{Content: domain.Payload{Text: "retry me"}}, domain.PipelineTextExtraction)
	f.coord.Submit(context.Background(), domain.PipelineTextExtraction, sess.ID, sess.Selection.Content)

	update := waitUpdate(t, f.updateCh, domain.UpdateMessage)
	assert.Equal(t, "third time lucky", update.Message.Content)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestTransientFailuresSurfaceAfterRetryCeiling(t *testing.T) {
	var attempts atomic.Int32
	text := &stubTextAdapter{
		summarizeFn: func(context.Context, string) (domain.AssistantReply, error) {
			attempts.Add(1)
			return domain.AssistantReply{}, domain.NewTransientError("connectivity failure", nil)
		},
	}
	f := newFixture(t, text, nil)
	defer f.coord.Close()

	sess := f.sessions.Open(domain.SelectionContext{Content: domain.Payload{Text: "doomed"}}, domain.PipelineTextExtraction)
	f.coord.Submit(context.Background(), domain.PipelineTextExtraction, sess.ID, sess.Selection.Content)

	update := waitUpdate(t, f.updateCh, domain.UpdateError)
	assert.True(t, update.Retryable)
	assert.Equal(t, int32(3), attempts.Load(), "retry ceiling is initial attempt plus two retries")

	active, _ := f.sessions.Active()
	require.NotNil(t, active.Failure)
	assert.True(t, active.Failure.Retryable)
}

func TestPermanentFailuresDoNotRetry(t *testing.T) {
	var attempts atomic.Int32
	text := &stubTextAdapter{
		summarizeFn: func(context.Context, string) (domain.AssistantReply, error) {
			attempts.Add(1)
			return domain.AssistantReply{}, domain.NewPermanentError("unprocessable input", nil)
		},
	}
	f := newFixture(t, text, nil)
	defer f.coord.Close()

	sess := f.sessions.Open(domain.SelectionContext{Content: domain.Payload{Text: "rejected"}}, domain.PipelineTextExtraction)
	f.coord.Submit(context.Background(), domain.PipelineTextExtraction, sess.ID, sess.Selection.Content)

	update := waitUpdate(t, f.updateCh, domain.UpdateError)
	assert.False(t, update.Retryable)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestExtractionFailureSurfacesWithRetryAffordance(t *testing.T) {
	var adapterCalled atomic.Bool
	text := &stubTextAdapter{
		summarizeFn: func(context.Context, string) (domain.AssistantReply, error) {
			adapterCalled.Store(true)
			return domain.AssistantReply{}, nil
		},
	}
	f := newFixture(t, text, nil)
	defer f.coord.Close()

	sess := f.sessions.Open(domain.SelectionContext{Content: domain.Payload{}}, domain.PipelineTextExtraction)
	f.coord.Submit(context.Background(), domain.PipelineTextExtraction, sess.ID, sess.Selection.Content)

	update := waitUpdate(t, f.updateCh, domain.UpdateError)
	assert.ErrorIs(t, update.Err, domain.ErrNoContent)
	assert.True(t, update.Retryable)
	assert.False(t, adapterCalled.Load(), "the adapter must not be called when extraction fails")
}

func TestVisionPipelineAttachesMarkers(t *testing.T) {
	vision := &stubVisionAdapter{
		analyzeFn: func(_ context.Context, image []byte) (domain.VisionResult, error) {
			assert.NotEmpty(t, image)
			return domain.VisionResult{
				Description: "A cell diagram.",
				Markers: []domain.DiagramMarker{
					{ID: "m1", Label: "nucleus", Description: "control center"},
					{ID: "m2", Label: "mitochondrion", Description: "energy production"},
					{ID: "m3", Label: "membrane", Description: "outer boundary"},
				},
				Concepts: []string{"cell biology"},
			}, nil
		},
	}
	f := newFixture(t, nil, vision)
	defer f.coord.Close()

	sess := f.sessions.Open(domain.SelectionContext{
		Type:    domain.SelectionTypeImage,
		Content: domain.Payload{Image: []byte{0xFF, 0xD8}},
	}, domain.PipelineVisionProcessing)
	f.coord.Submit(context.Background(), domain.PipelineVisionProcessing, sess.ID, sess.Selection.Content)

	markersUpdate := waitUpdate(t, f.updateCh, domain.UpdateMarkers)
	assert.Len(t, markersUpdate.Markers, 3)

	messageUpdate := waitUpdate(t, f.updateCh, domain.UpdateMessage)
	assert.Equal(t, domain.ResponseSourceVisualUnderstanding, messageUpdate.Message.Source)

	active, _ := f.sessions.Active()
	require.Len(t, active.Markers, 3)
	assert.Equal(t, "mitochondrion", active.Markers[1].Label)
}

func TestFollowUpUsesChatAdapter(t *testing.T) {
	text := &stubTextAdapter{
		chatFn: func(_ context.Context, history []domain.ChatMessage, prompt string) (domain.AssistantReply, error) {
			assert.Len(t, history, 1)
			assert.Equal(t, "and chlorophyll?", prompt)
			return domain.AssistantReply{Content: "Chlorophyll absorbs light.", Source: domain.ResponseSourceTextDerived}, nil
		},
	}
	f := newFixture(t, text, nil)
	defer f.coord.Close()

	sess := f.sessions.Open(domain.SelectionContext{Content: domain.Payload{Text: "photosynthesis"}}, domain.PipelineTextExtraction)
	require.NoError(t, f.sessions.Append(sess.ID, domain.ChatMessage{Role: domain.RoleUser, Content: "photosynthesis"}))

	history := []domain.ChatMessage{{Role: domain.RoleUser, Content: "photosynthesis"}}
	f.coord.SubmitFollowUp(context.Background(), sess.ID, history, "and chlorophyll?")

	update := waitUpdate(t, f.updateCh, domain.UpdateMessage)
	assert.Equal(t, "Chlorophyll absorbs light.", update.Message.Content)
}
