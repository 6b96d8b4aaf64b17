// Package guard warns a returning customer that their last checkout
// already produced an order, so the Back button cannot lead to a second
// charge without them noticing.
package guard

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/iliamunaev/checkout-engine/internal/model"
	"github.com/iliamunaev/checkout-engine/internal/pagemeta"
	"github.com/iliamunaev/checkout-engine/internal/session"
)

// ErrNoConfirmationURL is returned when the customer chooses to go back
// but no confirmation page is configured.
var ErrNoConfirmationURL = errors.New("no confirmation url configured")

// Trigger says why the page became active.
type Trigger int

const (
	TriggerLoad Trigger = iota
	TriggerPageShow
	TriggerCacheRestore
)

func (t Trigger) String() string {
	switch t {
	case TriggerLoad:
		return "load"
	case TriggerPageShow:
		return "pageshow"
	case TriggerCacheRestore:
		return "bfcache_restore"
	default:
		return "unknown"
	}
}

// Choice is the customer's answer to the duplicate-order warning.
type Choice int

const (
	ChoiceGoBack Choice = iota
	ChoiceStartOver
)

// Prompter shows the blocking warning and returns the customer's choice.
type Prompter interface {
	ConfirmDuplicate(ctx context.Context, last model.CompletedOrder) (Choice, error)
}

// Redirector navigates away from the checkout page.
type Redirector interface {
	Redirect(ctx context.Context, target string) error
}

// Resetter clears every checkout field and restores defaults.
type Resetter interface {
	ResetForm(ctx context.Context) error
}

// Result reports what Check did.
type Result struct {
	Trigger Trigger
	Shown   bool
	Choice  Choice
	RefID   string
}

// Guard runs on every page activation, before submit is re-enabled.
type Guard struct {
	store           session.Store
	prompter        Prompter
	redirector      Redirector
	resetter        Resetter
	confirmationURL string
	now             func() time.Time
	logger          *log.Logger
}

// Config wires a Guard. ConfirmationURL is the page the "go back" choice
// returns to; the stored reference id is appended as ref_id.
type Config struct {
	Store           session.Store
	Prompter        Prompter
	Redirector      Redirector
	Resetter        Resetter
	ConfirmationURL string
	Now             func() time.Time
	Logger          *log.Logger
}

// New returns a Guard.
//
// It panics if any collaborator is nil.
func New(cfg Config) *Guard {
	if cfg.Store == nil || cfg.Prompter == nil || cfg.Redirector == nil || cfg.Resetter == nil {
		panic("guard.New: nil collaborator")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	return &Guard{
		store:           cfg.Store,
		prompter:        cfg.Prompter,
		redirector:      cfg.Redirector,
		resetter:        cfg.Resetter,
		confirmationURL: strings.TrimSpace(cfg.ConfirmationURL),
		now:             cfg.Now,
		logger:          cfg.Logger,
	}
}

// Check shows the warning when a completed order exists whose warning has
// not been shown in this session. The reference id is marked as shown
// before the customer answers, so the warning appears at most once per
// order even if the prompt fails or the page is left mid-prompt.
func (g *Guard) Check(ctx context.Context, trigger Trigger) (Result, error) {
	last, ok, err := g.store.LastOrder(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("load last order: %w", err)
	}
	refID := strings.TrimSpace(last.RefID)
	if !ok || refID == "" {
		return Result{Trigger: trigger}, nil
	}

	shown, err := g.store.WarningShown(ctx, refID)
	if err != nil {
		return Result{}, fmt.Errorf("load shown warnings: %w", err)
	}
	if shown {
		g.logger.Printf("duplicate_guard_suppressed ref_id=%s trigger=%s", refID, trigger)
		return Result{Trigger: trigger, RefID: refID}, nil
	}

	if err := g.store.MarkWarningShown(ctx, refID); err != nil {
		return Result{}, fmt.Errorf("mark warning shown: %w", err)
	}

	g.logger.Printf("duplicate_guard_shown ref_id=%s trigger=%s", refID, trigger)
	choice, err := g.prompter.ConfirmDuplicate(ctx, last)
	if err != nil {
		return Result{Trigger: trigger, Shown: true, RefID: refID}, fmt.Errorf("confirm duplicate: %w", err)
	}

	res := Result{Trigger: trigger, Shown: true, Choice: choice, RefID: refID}
	switch choice {
	case ChoiceGoBack:
		if g.confirmationURL == "" {
			g.logger.Printf("duplicate_guard_go_back_unavailable ref_id=%s", refID)
			return res, ErrNoConfirmationURL
		}
		if err := g.redirector.Redirect(ctx, pagemeta.WithRefID(g.confirmationURL, refID)); err != nil {
			return res, fmt.Errorf("redirect to confirmation: %w", err)
		}
	default:
		if err := g.resetter.ResetForm(ctx); err != nil {
			return res, fmt.Errorf("reset form: %w", err)
		}
	}
	return res, nil
}

// Record stores o as the last completed order of this session.
func (g *Guard) Record(ctx context.Context, o model.Order) error {
	if strings.TrimSpace(o.RefID) == "" {
		return fmt.Errorf("record completed order: empty ref_id")
	}
	err := g.store.SaveLastOrder(ctx, model.CompletedOrder{
		RefID:       o.RefID,
		Number:      o.Number,
		CompletedAt: g.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("record completed order: %w", err)
	}
	return nil
}
