package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/glanceassist/glance/pkg/domain"
	"github.com/glanceassist/glance/pkg/extract"
	"github.com/glanceassist/glance/pkg/logger"
)

type TextAdapter interface {
	Summarize(ctx context.Context, text string) (domain.AssistantReply, error)
	Chat(ctx context.Context, history []domain.ChatMessage, prompt string) (domain.AssistantReply, error)
}

type VisionAdapter interface {
	Analyze(ctx context.Context, image []byte) (domain.VisionResult, error)
}

type SessionStore interface {
	ActiveID() (string, bool)
	Append(sessionID string, msg domain.ChatMessage) error
	SetMarkers(sessionID string, markers []domain.DiagramMarker) error
	RecordFailure(sessionID string, failure domain.SessionFailure) error
}

// Coordinator issues pipeline requests to the AI adapters and merges results
// back into the active session. Submission never blocks the caller: all
// waiting happens inside the coordinator's own goroutines, and a result that
// completes after its originating session was replaced is discarded, never
// applied.
type Coordinator struct {
	text      TextAdapter
	vision    VisionAdapter
	extractor extract.TextExtractor
	capturer  extract.ImageCapturer
	sessions  SessionStore
	updateCh  chan<- domain.Update

	textTimeout   time.Duration
	visionTimeout time.Duration
	retryLimit    int
	baseBackoff   time.Duration

	wg sync.WaitGroup
}

type Config struct {
	TextTimeout   time.Duration
	VisionTimeout time.Duration
	RetryLimit    int
	BaseBackoff   time.Duration
}

func New(
	text TextAdapter,
	vision VisionAdapter,
	extractor extract.TextExtractor,
	capturer extract.ImageCapturer,
	sessions SessionStore,
	updateCh chan<- domain.Update,
	cfg Config,
) *Coordinator {
	if cfg.TextTimeout <= 0 {
		cfg.TextTimeout = 5 * time.Second
	}
	if cfg.VisionTimeout <= 0 {
		cfg.VisionTimeout = 10 * time.Second
	}
	if cfg.RetryLimit < 0 {
		cfg.RetryLimit = 0
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 500 * time.Millisecond
	}

	return &Coordinator{
		text:          text,
		vision:        vision,
		extractor:     extractor,
		capturer:      capturer,
		sessions:      sessions,
		updateCh:      updateCh,
		textTimeout:   cfg.TextTimeout,
		visionTimeout: cfg.VisionTimeout,
		retryLimit:    cfg.RetryLimit,
		baseBackoff:   cfg.BaseBackoff,
	}
}

// Submit runs the initial pipeline request for a freshly opened session.
func (c *Coordinator) Submit(ctx context.Context, pipeline domain.Pipeline, sessionID string, payload domain.Payload) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		switch pipeline {
		case domain.PipelineTextExtraction:
			c.runText(ctx, sessionID, payload)
		case domain.PipelineVisionProcessing:
			c.runVision(ctx, sessionID, payload)
		default:
			slog.WarnContext(ctx, "Dropping submission for unknown pipeline", "pipeline", pipeline)
		}
	}()
}

// SubmitFollowUp runs a conversational turn against the text adapter with
// the session's prior messages as context.
func (c *Coordinator) SubmitFollowUp(ctx context.Context, sessionID string, history []domain.ChatMessage, prompt string) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		reply, err := withRetry(ctx, c, sessionID, c.textTimeout, func(ctx context.Context) (domain.AssistantReply, error) {
			return c.text.Chat(ctx, history, prompt)
		})
		if err != nil {
			c.fail(ctx, sessionID, err)
			return
		}

		c.deliver(ctx, sessionID, domain.ChatMessage{
			Role:      domain.RoleAssistant,
			Content:   reply.Content,
			Source:    reply.Source,
			Timestamp: time.Now(),
		}, nil)
	}()
}

// Close waits for in-flight submissions to finish.
func (c *Coordinator) Close() {
	c.wg.Wait()
}

func (c *Coordinator) runText(ctx context.Context, sessionID string, payload domain.Payload) {
	text, err := c.extractor.ExtractText(ctx, payload)
	if err != nil {
		c.fail(ctx, sessionID, fmt.Errorf("extracting text: %w", err))
		return
	}

	reply, err := withRetry(ctx, c, sessionID, c.textTimeout, func(ctx context.Context) (domain.AssistantReply, error) {
		return c.text.Summarize(ctx, text)
	})
	if err != nil {
		c.fail(ctx, sessionID, err)
		return
	}

	// Source comes from the adapter's own classification: text-derived, or
	// inferred when the backend flags the answer as going beyond the text.
	c.deliver(ctx, sessionID, domain.ChatMessage{
		Role:      domain.RoleAssistant,
		Content:   reply.Content,
		Source:    reply.Source,
		Timestamp: time.Now(),
	}, nil)
}

func (c *Coordinator) runVision(ctx context.Context, sessionID string, payload domain.Payload) {
	image, err := c.capturer.CaptureImage(ctx, payload)
	if err != nil {
		c.fail(ctx, sessionID, fmt.Errorf("capturing image: %w", err))
		return
	}

	result, err := withRetry(ctx, c, sessionID, c.visionTimeout, func(ctx context.Context) (domain.VisionResult, error) {
		return c.vision.Analyze(ctx, image)
	})
	if err != nil {
		c.fail(ctx, sessionID, err)
		return
	}

	if err := c.sessions.SetMarkers(sessionID, result.Markers); err != nil {
		slog.DebugContext(ctx, "Discarding stale vision result", "sessionID", sessionID)
		return
	}

	c.deliver(ctx, sessionID, domain.ChatMessage{
		Role:      domain.RoleAssistant,
		Content:   result.Description,
		Source:    domain.ResponseSourceVisualUnderstanding,
		Timestamp: time.Now(),
	}, result.Markers)
}

// deliver commits an assistant message to the originating session. The
// session store rejects the append when that session is no longer active;
// the result is then dropped without any visible state change.
func (c *Coordinator) deliver(ctx context.Context, sessionID string, msg domain.ChatMessage, markers []domain.DiagramMarker) {
	if err := c.sessions.Append(sessionID, msg); err != nil {
		if errors.Is(err, domain.ErrSessionNotActive) {
			slog.DebugContext(ctx, "Discarding stale response", "sessionID", sessionID)
			return
		}
		slog.ErrorContext(ctx, "Appending assistant message", "sessionID", sessionID, logger.Err(err))
		return
	}

	if len(markers) > 0 {
		c.emit(domain.Update{Kind: domain.UpdateMarkers, SessionID: sessionID, Markers: markers})
	}
	c.emit(domain.Update{Kind: domain.UpdateMessage, SessionID: sessionID, Message: &msg})
}

func (c *Coordinator) fail(ctx context.Context, sessionID string, err error) {
	retryable := errors.Is(err, domain.ErrNoContent) ||
		errors.Is(err, domain.ErrSourceUnavailable) ||
		domain.IsTransient(err)

	failure := domain.SessionFailure{
		Reason:    err.Error(),
		Retryable: retryable,
		At:        time.Now(),
	}
	if recordErr := c.sessions.RecordFailure(sessionID, failure); recordErr != nil {
		slog.DebugContext(ctx, "Discarding stale failure", "sessionID", sessionID, logger.Err(err))
		return
	}

	slog.WarnContext(ctx, "Pipeline request failed", "sessionID", sessionID, "retryable", retryable, logger.Err(err))
	c.emit(domain.Update{Kind: domain.UpdateError, SessionID: sessionID, Err: err, Retryable: retryable})
}

func (c *Coordinator) stale(sessionID string) bool {
	activeID, ok := c.sessions.ActiveID()
	return !ok || activeID != sessionID
}

func (c *Coordinator) emit(update domain.Update) {
	select {
	case c.updateCh <- update:
	default:
		slog.Warn("Update channel full, dropping update", "kind", update.Kind)
	}
}

// withRetry applies the bounded-retry policy: each attempt gets its own
// deadline, only transient failures retry, backoff doubles between attempts,
// and interest is abandoned outright once the originating session is stale.
func withRetry[T any](ctx context.Context, c *Coordinator, sessionID string, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error
	backoff := c.baseBackoff

	for attempt := 0; attempt <= c.retryLimit; attempt++ {
		if c.stale(sessionID) {
			return zero, domain.ErrSessionNotActive
		}

		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		result, err := fn(attemptCtx)
		cancel()

		if err == nil {
			return result, nil
		}
		if errors.Is(err, context.DeadlineExceeded) {
			err = domain.NewTransientError("adapter deadline exceeded", err)
		}
		lastErr = err

		if !domain.IsTransient(err) {
			return zero, err
		}

		if attempt < c.retryLimit {
			slog.Debug("Retrying transient adapter failure",
				"sessionID", sessionID,
				"attempt", attempt+1,
				"backoff", backoff.String(),
				logger.Err(err),
			)
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
	}

	return zero, lastErr
}
