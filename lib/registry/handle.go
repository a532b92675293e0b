package registry

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Handle is passed to Registrant.Register. It is valid only for the
// duration of that call.
type Handle struct {
	key      string
	token    uuid.UUID
	registry *Registry

	mu      sync.Mutex
	closed  bool
	pending []Entry
}

// Key returns the key of the unit being registered.
func (h *Handle) Key() string {
	return h.key
}

// Token identifies this registration.
func (h *Handle) Token() uuid.UUID {
	return h.token
}

// Provide announces value under name. An empty name defaults to the key.
func (h *Handle) Provide(name string, value any) error {
	if name == "" {
		name = h.key
	}
	if value == nil {
		return fmt.Errorf("provide %q: nil value", name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return fmt.Errorf("provide %q: %w", name, ErrHandleClosed)
	}
	for _, e := range h.pending {
		if e.Name == name {
			return fmt.Errorf("provide %q: %w", name, ErrNameTaken)
		}
	}
	h.pending = append(h.pending, Entry{Name: name, Key: h.key, Token: h.token, Value: value})
	return nil
}

func (h *Handle) close() {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
}
