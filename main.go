package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v9"

	"github.com/glanceassist/glance/pkg/anchor"
	"github.com/glanceassist/glance/pkg/bridge"
	"github.com/glanceassist/glance/pkg/classifier"
	"github.com/glanceassist/glance/pkg/coordinator"
	"github.com/glanceassist/glance/pkg/database"
	"github.com/glanceassist/glance/pkg/domain"
	"github.com/glanceassist/glance/pkg/extract"
	"github.com/glanceassist/glance/pkg/hub"
	"github.com/glanceassist/glance/pkg/logger"
	"github.com/glanceassist/glance/pkg/openai"
	"github.com/glanceassist/glance/pkg/overlay"
	"github.com/glanceassist/glance/pkg/session"
	"github.com/glanceassist/glance/pkg/workers"
)

type Config struct {
	OpenAIToken       string  `env:"OPEN_AI_TOKEN,required"`
	OpenAITextModel   string  `env:"OPEN_AI_TEXT_MODEL" envDefault:"gpt-4o-mini"`
	OpenAIVisionModel string  `env:"OPEN_AI_VISION_MODEL" envDefault:"gpt-4o"`
	ListenAddr        string  `env:"LISTEN_ADDR" envDefault:":8568"`
	PgURL             string  `env:"DATABASE_URL"`
	ViewportWidth     float64 `env:"VIEWPORT_WIDTH" envDefault:"1280"`
	ViewportHeight    float64 `env:"VIEWPORT_HEIGHT" envDefault:"800"`

	OverlayShowTimeout    time.Duration `env:"OVERLAY_SHOW_TIMEOUT" envDefault:"200ms"`
	TextPipelineTimeout   time.Duration `env:"TEXT_PIPELINE_TIMEOUT" envDefault:"5s"`
	VisionPipelineTimeout time.Duration `env:"VISION_PIPELINE_TIMEOUT" envDefault:"10s"`
	ResponseRetryLimit    int           `env:"RESPONSE_RETRY_LIMIT" envDefault:"2"`
	SessionIdleTimeout    time.Duration `env:"SESSION_IDLE_TIMEOUT" envDefault:"1h"`
	SessionSweepInterval  time.Duration `env:"SESSION_SWEEP_INTERVAL" envDefault:"1m"`
	SessionMessageCap     int           `env:"SESSION_MESSAGE_CAP" envDefault:"50"`
}

func main() {
	slog.SetDefault(slog.New(logger.NewHandler(os.Stderr, logger.DefaultOptions)))

	if err := runMain(); err != nil {
		slog.Error("shutting down due to error", logger.Err(err))
		os.Exit(1)
	}
	slog.Info("shutdown complete")
}

func runMain() error {
	workerGroup, err := setupWorkers()
	if err != nil {
		return err
	}

	ctx, cancelFn := context.WithCancel(context.Background())
	defer cancelFn()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		select {
		case s := <-sigCh:
			slog.Info("shutting down due to signal", "signal", s.String())
			cancelFn()
		case <-ctx.Done():
		}
	}()

	return workerGroup.Start(ctx)
}

func setupWorkers() (workers.Group, error) {
	cfg := Config{}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parsing env config: %w", err)
	}

	var worker workers.Worker
	var workerGroup workers.Group

	openAIClient, err := openai.NewClient(cfg.OpenAIToken, cfg.OpenAITextModel, cfg.OpenAIVisionModel)
	if err != nil {
		return nil, fmt.Errorf("creating open ai client: %w", err)
	}

	// The hub is optional: it runs whenever DATABASE_URL is set.
	var snapshotSink session.SnapshotSink
	if cfg.PgURL != "" {
		db, err := database.NewPostgres(cfg.PgURL)
		if err != nil {
			return nil, fmt.Errorf("creating db: %w", err)
		}
		snapshotSink = hub.NewRepository(db)
	}

	updateCh := make(chan domain.Update, 128)

	sessionManager := session.NewManager(
		cfg.SessionMessageCap,
		cfg.SessionIdleTimeout,
		updateCh,
		snapshotSink,
	)

	extractor := extract.NewPassthrough()

	responseCoordinator := coordinator.New(
		openAIClient,
		openAIClient,
		extractor,
		extractor,
		sessionManager,
		updateCh,
		coordinator.Config{
			TextTimeout:   cfg.TextPipelineTimeout,
			VisionTimeout: cfg.VisionPipelineTimeout,
			RetryLimit:    cfg.ResponseRetryLimit,
		},
	)

	anchorTracker := anchor.NewTracker(domain.Rect{
		Width:  cfg.ViewportWidth,
		Height: cfg.ViewportHeight,
	})

	lifecycleController := overlay.NewController(
		classifier.New(),
		sessionManager,
		responseCoordinator,
		anchorTracker,
		updateCh,
		cfg.OverlayShowTimeout,
	)

	hostBridge := bridge.NewServer()

	if worker, err = workers.NewHostEventListener(hostBridge, lifecycleController, responseCoordinator, updateCh, cfg.SessionSweepInterval); err == nil {
		workerGroup = append(workerGroup, worker)
	} else {
		return nil, err
	}

	if worker, err = workers.NewWebServer(cfg.ListenAddr, hostBridge); err == nil {
		workerGroup = append(workerGroup, worker)
	} else {
		return nil, err
	}

	return workerGroup, nil
}
