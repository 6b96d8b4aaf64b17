// Package app wires the checkout service from its configuration.
package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/iliamunaev/checkout-engine/internal/address"
	"github.com/iliamunaev/checkout-engine/internal/commerce"
	"github.com/iliamunaev/checkout-engine/internal/config"
	"github.com/iliamunaev/checkout-engine/internal/middleware"
	"github.com/iliamunaev/checkout-engine/internal/session"
	httptransport "github.com/iliamunaev/checkout-engine/internal/transport/http"
	"github.com/iliamunaev/checkout-engine/internal/validation"
)

// App holds the wired service.
type App struct {
	Handler        http.Handler
	RequestTimeout time.Duration

	resolver       *address.Resolver
	defaultCountry string
	db             *session.DB
	logger         *log.Logger
}

// New builds the App. The caller must Close it.
func New(cfg config.Server, logger *log.Logger) (*App, error) {
	if logger == nil {
		logger = log.Default()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 2 * time.Second
	}

	client, err := commerce.New(commerce.Config{
		BaseURL: cfg.CommerceBaseURL,
		APIKey:  cfg.CommerceAPIKey,
		Timeout: cfg.CommerceTimeout,
	}, logger)
	if err != nil {
		return nil, err
	}

	resolver := address.NewResolver(client, address.Config{
		ClearAfter:   cfg.StatesClearAfter,
		FetchTimeout: cfg.CommerceTimeout,
	}, logger)

	db, err := session.Open(cfg.SessionDBPath)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}

	h := httptransport.New(httptransport.Deps{
		Resolver: resolver,
		Engine:   validation.New(resolver),
		Sessions: func(id string) session.Store { return db.Session(id) },
		Checkout: cfg.Checkout(),
		Logger:   logger,
	}, cfg.RequestTimeout)

	return &App{
		Handler:        middleware.Logging(logger, h.Routes()),
		RequestTimeout: cfg.RequestTimeout,
		resolver:       resolver,
		defaultCountry: cfg.Checkout().DefaultCountry,
		db:             db,
		logger:         logger,
	}, nil
}

// Warm fetches the country list and the default country's states in
// parallel so the first checkout page does not wait on them. Failures are
// logged and not fatal.
func (a *App) Warm(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		countries, err := a.resolver.GetCountries(gctx)
		if err != nil {
			a.logger.Printf("warm step=countries err=%v", err)
			return nil
		}
		a.logger.Printf("warm step=countries count=%d", len(countries))
		return nil
	})
	g.Go(func() error {
		res, err := a.resolver.GetStatesFor(gctx, a.defaultCountry)
		if err != nil {
			a.logger.Printf("warm step=states country=%s err=%v", a.defaultCountry, err)
			return nil
		}
		a.logger.Printf("warm step=states country=%s count=%d", a.defaultCountry, len(res.States))
		return nil
	})

	_ = g.Wait()
}

// Close releases the session store.
func (a *App) Close() error {
	return a.db.Close()
}
