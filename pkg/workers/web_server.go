package workers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"
)

// webServer hosts the websocket endpoint the content script connects to.
type webServer struct {
	addr    string
	handler http.Handler
}

func NewWebServer(addr string, bridge http.Handler) (*webServer, error) {
	mux := http.NewServeMux()
	mux.Handle("/ws", bridge)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return &webServer{addr: addr, handler: mux}, nil
}

func (s *webServer) Name() string { return "web_server" }

func (s *webServer) Start(ctx context.Context) error {
	slog.Info("Starting worker", "name", s.Name(), "addr", s.addr)
	defer slog.Info("Worker stopped", "name", s.Name())

	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}
