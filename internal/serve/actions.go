package serve

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/dtnitsch/persona-ingest/internal/app"
	"github.com/dtnitsch/persona-ingest/pkg/ingest"
)

// ServeAction runs the HTTP API until SIGINT or SIGTERM.
func ServeAction(c *cli.Context) error {
	a, err := app.FromCLI(c)
	if err != nil {
		return err
	}
	if c.IsSet("addr") {
		a.Config.Server.Addr = c.String("addr")
	}
	if err := a.InitPipeline(); err != nil {
		_ = a.Close(context.Background())
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc := ingest.NewService(ctx, a.Pipeline)
	server := NewServer(svc, a.Assets, a.History, Options{
		MaxUploadBytes: a.Config.Server.MaxUploadBytes,
		Logger:         a.Logger,
	})
	httpServer := &http.Server{
		Addr:              a.Config.Server.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		a.Logger.Info("shutting down")
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout.Duration)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		a.Logger.Warn("http shutdown", "error", err)
	}
	svc.Close()
	if err := a.Close(shutdownCtx); err != nil {
		a.Logger.Warn("close", "error", err)
	}

	if serveErr != nil {
		return fmt.Errorf("http server: %w", serveErr)
	}
	return nil
}
