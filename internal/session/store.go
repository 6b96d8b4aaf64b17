// Package session persists the per-browser-session checkout records: the
// last completed order, the set of reference ids whose duplicate-order
// warning has been shown, and the transient prospect cart.
package session

import (
	"context"
	"errors"

	"github.com/iliamunaev/checkout-engine/internal/model"
)

// Storage keys of the persisted state layout.
const (
	KeyLastOrder     = "checkout:last-order"
	KeyShownWarnings = "checkout:duplicate-warnings-shown"
	KeyProspectCart  = "checkout:prospect-cart"
)

// ErrNotConfigured is returned by a store that was never opened.
var ErrNotConfigured = errors.New("session: storage is not configured")

// Store is the session storage collaborator. Implementations are safe for
// concurrent use.
type Store interface {
	LastOrder(ctx context.Context) (model.CompletedOrder, bool, error)
	SaveLastOrder(ctx context.Context, o model.CompletedOrder) error

	WarningShown(ctx context.Context, refID string) (bool, error)
	MarkWarningShown(ctx context.Context, refID string) error

	// ProspectCart returns the stored prospect cart unless it has expired;
	// expired records are dropped on read.
	ProspectCart(ctx context.Context) (model.ProspectCart, bool, error)
	SaveProspectCart(ctx context.Context, c model.ProspectCart) error
}
