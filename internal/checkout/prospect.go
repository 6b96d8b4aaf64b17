package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/iliamunaev/checkout-engine/internal/model"
	"github.com/iliamunaev/checkout-engine/internal/order"
	"github.com/iliamunaev/checkout-engine/internal/validation"
)

// startProspect creates the prospect cart in the background, at most once
// per page session. Nothing is spent until the form holds a valid email.
func (o *Orchestrator) startProspect() {
	o.mu.Lock()
	if o.prospectTried || !validation.ValidEmail(o.form.Get(model.FieldEmail)) {
		o.mu.Unlock()
		return
	}
	o.prospectTried = true
	o.mu.Unlock()

	o.goBackground(func(ctx context.Context) {
		if _, err := o.CreateProspectCart(ctx); err != nil {
			o.logger.Printf("prospect_cart_failed err=%v", err)
		}
	})
}

// CreateProspectCart creates a prospect cart from the contact details
// entered so far. An unexpired stored cart is returned instead of creating
// another. A valid email is required.
func (o *Orchestrator) CreateProspectCart(ctx context.Context) (model.ProspectCart, error) {
	if c, ok, err := o.store.ProspectCart(ctx); err != nil {
		return model.ProspectCart{}, fmt.Errorf("load prospect cart: %w", err)
	} else if ok {
		return c, nil
	}

	o.mu.Lock()
	form := o.form.Clone()
	cur := o.currencySources()
	o.mu.Unlock()

	email := form.Get(model.FieldEmail)
	if !validation.ValidEmail(email) {
		return model.ProspectCart{}, errors.New("prospect cart needs a valid email")
	}

	id, err := o.api.CreateCart(ctx, order.ProspectRequest(form, o.cart.Snapshot(), cur))
	if err != nil {
		return model.ProspectCart{}, fmt.Errorf("create prospect cart: %w", err)
	}

	now := o.now().UTC()
	c := model.ProspectCart{ID: id, Email: email, CreatedAt: now, ExpiresAt: now.Add(o.cfg.Prospect.TTL)}
	if err := o.store.SaveProspectCart(ctx, c); err != nil {
		return model.ProspectCart{}, fmt.Errorf("save prospect cart: %w", err)
	}
	o.logger.Printf("prospect_cart_created cart_id=%s", id)
	return c, nil
}

// currencySources must be called with o.mu held.
func (o *Orchestrator) currencySources() order.CurrencySources {
	cur := o.cfg.Currency
	if o.selectedCur != "" {
		cur.Selected = o.selectedCur
	}
	return cur
}
