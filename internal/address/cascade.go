package address

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/iliamunaev/checkout-engine/internal/model"
)

// ErrSuperseded is returned for a lookup whose country is no longer the
// latest selection.
var ErrSuperseded = errors.New("country selection superseded")

// Lookup is a tagged state-list answer.
type Lookup struct {
	Seq     uint64
	Country string
	Result  model.StatesResult
}

// Cascade tags every country selection so that only the latest one may
// apply its state list. Shipping and billing each own a Cascade.
type Cascade struct {
	r *Resolver

	mu       sync.Mutex
	seq      uint64
	selected string
}

// NewCascade returns a Cascade over r.
func NewCascade(r *Resolver) *Cascade {
	return &Cascade{r: r}
}

// Select records code as the current selection and resolves its states. If
// another Select started before this one finished, the result is discarded
// and ErrSuperseded is returned.
func (c *Cascade) Select(ctx context.Context, code string) (Lookup, error) {
	code = NormalizeCode(code)

	c.mu.Lock()
	c.seq++
	seq := c.seq
	c.selected = code
	c.mu.Unlock()

	res, err := c.r.GetStatesFor(ctx, code)
	if !c.IsCurrent(seq) {
		return Lookup{}, fmt.Errorf("%s: %w", code, ErrSuperseded)
	}
	if err != nil {
		return Lookup{}, err
	}
	return Lookup{Seq: seq, Country: code, Result: res}, nil
}

// Invalidate supersedes any selection in flight without starting a new
// one. It is used when the target stops owning its country, as billing
// does when it starts mirroring shipping.
func (c *Cascade) Invalidate() {
	c.mu.Lock()
	c.seq++
	c.selected = ""
	c.mu.Unlock()
}

// IsCurrent reports whether seq is still the latest selection.
func (c *Cascade) IsCurrent(seq uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq == seq
}

// Selected returns the latest selected country code.
func (c *Cascade) Selected() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selected
}
