package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iliamunaev/checkout-engine/internal/app"
	"github.com/iliamunaev/checkout-engine/internal/config"
	"github.com/iliamunaev/checkout-engine/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

// run loads the configuration, wires the application and serves until
// SIGINT or SIGTERM. The write timeout leaves room for the per-request
// deadline so slow upstream calls fail with a structured error instead of
// a dropped connection.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceName: cfg.ServiceName,
		Endpoint:    cfg.OTelEndpoint,
		Enabled:     cfg.OTelEnabled,
	})
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Printf("tracing shutdown err=%v", err)
		}
	}()

	a, err := app.New(cfg, log.Default())
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	go a.Warm(ctx)

	srv := newServer(cfg.Addr, a)

	errCh := make(chan error, 1)
	go func() {
		log.Printf("listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(sctx)
}

func newServer(addr string, a *app.App) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           a.Handler,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 3 * time.Second,
		WriteTimeout:      a.RequestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
