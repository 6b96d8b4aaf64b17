package validation

import "sync"

// ErrorTable is the side-table of field errors that drives the UI. It is
// kept apart from validity computation so that validating never mutates it.
type ErrorTable struct {
	mu     sync.Mutex
	errors map[string]string
}

// NewErrorTable returns an empty table.
func NewErrorTable() *ErrorTable {
	return &ErrorTable{errors: make(map[string]string)}
}

// Set records message for field.
func (t *ErrorTable) Set(field, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.errors[field] = message
}

// Clear removes any message for field and reports whether one existed.
func (t *ErrorTable) Clear(field string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.errors[field]
	delete(t.errors, field)
	return ok
}

// Get returns the message recorded for field.
func (t *ErrorTable) Get(field string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	msg, ok := t.errors[field]
	return msg, ok
}

// Reset drops every recorded message.
func (t *ErrorTable) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.errors = make(map[string]string)
}

// Snapshot returns a copy of the table.
func (t *ErrorTable) Snapshot() map[string]string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]string, len(t.errors))
	for k, v := range t.errors {
		out[k] = v
	}
	return out
}
