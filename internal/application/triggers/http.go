package triggers

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// HTTPServer is the part of the echo server the trigger drives
type HTTPServer interface {
	Start(address string) error
	Shutdown(ctx context.Context) error
}

// HTTPTrigger serves the notification endpoints until ctx is cancelled
type HTTPTrigger struct {
	server          HTTPServer
	address         string
	shutdownTimeout time.Duration
}

func NewHTTPTrigger(server HTTPServer, address string) *HTTPTrigger {
	return &HTTPTrigger{server: server, address: address, shutdownTimeout: 30 * time.Second}
}

func (t *HTTPTrigger) Name() string { return "http" }

func (t *HTTPTrigger) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- t.server.Start(t.address)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), t.shutdownTimeout)
	defer cancel()
	if err := t.server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
