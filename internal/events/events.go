// Package events carries checkout lifecycle notifications to UI and
// analytics observers.
package events

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Name identifies a lifecycle event.
type Name string

const (
	CheckoutStarted         Name = "checkout:started"
	CheckoutFormInitialized Name = "checkout:form-initialized"
	PaymentTokenized        Name = "payment:tokenized"
	PaymentError            Name = "payment:error"
	OrderCompleted          Name = "order:completed"
	OrderRedirectMissing    Name = "order:redirect-missing"
)

// Event is one lifecycle notification. Fields that do not apply to Name
// are left empty.
type Event struct {
	Name      Name
	At        time.Time
	AttemptID string
	Method    string
	RefID     string
	Kind      string
	Message   string
	CardLast4 string
	// Total and Currency are set on OrderCompleted.
	Total    decimal.Decimal
	Currency string
}

// Observer receives events. Observers are called synchronously in
// subscription order and must not block.
type Observer interface {
	Notify(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) Notify(e Event) { f(e) }

// Bus fans events out to its observers.
type Bus struct {
	mu        sync.RWMutex
	next      int
	observers map[int]Observer
	order     []int
	now       func() time.Time
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{observers: make(map[int]Observer), now: time.Now}
}

// Subscribe registers o and returns a function that removes it.
func (b *Bus) Subscribe(o Observer) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	b.observers[id] = o
	b.order = append(b.order, id)

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.observers, id)
			for i, v := range b.order {
				if v == id {
					b.order = append(b.order[:i], b.order[i+1:]...)
					break
				}
			}
		})
	}
}

// Publish stamps e and delivers it. A nil bus drops the event.
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	if e.At.IsZero() {
		e.At = b.now()
	}

	b.mu.RLock()
	targets := make([]Observer, 0, len(b.order))
	for _, id := range b.order {
		targets = append(targets, b.observers[id])
	}
	b.mu.RUnlock()

	for _, o := range targets {
		o.Notify(e)
	}
}
