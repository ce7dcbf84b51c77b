package workers

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/glanceassist/glance/pkg/domain"
	"github.com/glanceassist/glance/pkg/logger"
)

type HostBridge interface {
	Events() <-chan domain.HostEvent
	SendUpdate(ctx context.Context, update *domain.Update)
}

type LifecycleController interface {
	HandleEvent(ctx context.Context, event domain.HostEvent)
	EvictIdle(ctx context.Context)
	Teardown(ctx context.Context)
}

type ResponseCoordinator interface {
	Close()
}

// hostEventListener is the single logical thread of control for all overlay
// and session state: it drains host events one at a time into the lifecycle
// controller, sweeps idle sessions on the same path, and forwards render
// updates back to the host. No state transition ever runs concurrently with
// another.
type hostEventListener struct {
	bridge        HostBridge
	controller    LifecycleController
	coord         ResponseCoordinator
	updateCh      <-chan domain.Update
	sweepInterval time.Duration
}

func NewHostEventListener(
	bridge HostBridge,
	controller LifecycleController,
	coord ResponseCoordinator,
	updateCh <-chan domain.Update,
	sweepInterval time.Duration,
) (*hostEventListener, error) {
	if sweepInterval <= 0 {
		sweepInterval = time.Minute
	}
	return &hostEventListener{
		bridge:        bridge,
		controller:    controller,
		coord:         coord,
		updateCh:      updateCh,
		sweepInterval: sweepInterval,
	}, nil
}

func (l *hostEventListener) Name() string { return "host_event_listener" }

func (l *hostEventListener) Start(ctx context.Context) error {
	slog.Info("Starting worker", "name", l.Name(), "sweepInterval", l.sweepInterval.String())
	defer slog.Info("Worker stopped", "name", l.Name())

	ticker := time.NewTicker(l.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.controller.Teardown(context.WithoutCancel(ctx))
			l.coord.Close()
			return nil
		case event := <-l.bridge.Events():
			eventCtx := logger.ContextWithTraceID(ctx, uuid.NewString()[:8])
			slog.DebugContext(eventCtx, "Processing host event", "type", event.Type)
			l.controller.HandleEvent(eventCtx, event)
		case <-ticker.C:
			l.controller.EvictIdle(ctx)
		case update := <-l.updateCh:
			l.bridge.SendUpdate(ctx, &update)
		}
	}
}
