package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/iliamunaev/checkout-engine/internal/model"
)

// MemoryStore keeps one session's records in process memory.
type MemoryStore struct {
	mu       sync.Mutex
	now      func() time.Time
	last     *model.CompletedOrder
	shown    map[string]struct{}
	prospect *model.ProspectCart
}

// NewMemoryStore returns an empty store. A nil clock means time.Now.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{now: now, shown: make(map[string]struct{})}
}

func (s *MemoryStore) LastOrder(ctx context.Context) (model.CompletedOrder, bool, error) {
	if err := ctx.Err(); err != nil {
		return model.CompletedOrder{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return model.CompletedOrder{}, false, nil
	}
	return *s.last, true, nil
}

func (s *MemoryStore) SaveLastOrder(ctx context.Context, o model.CompletedOrder) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = &o
	return nil
}

func (s *MemoryStore) WarningShown(ctx context.Context, refID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.shown[strings.TrimSpace(refID)]
	return ok, nil
}

func (s *MemoryStore) MarkWarningShown(ctx context.Context, refID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shown[strings.TrimSpace(refID)] = struct{}{}
	return nil
}

func (s *MemoryStore) ProspectCart(ctx context.Context) (model.ProspectCart, bool, error) {
	if err := ctx.Err(); err != nil {
		return model.ProspectCart{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.prospect == nil {
		return model.ProspectCart{}, false, nil
	}
	if s.prospect.Expired(s.now()) {
		s.prospect = nil
		return model.ProspectCart{}, false, nil
	}
	return *s.prospect, true, nil
}

func (s *MemoryStore) SaveProspectCart(ctx context.Context, c model.ProspectCart) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prospect = &c
	return nil
}
