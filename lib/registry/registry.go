// Package registry holds the extensions announced by activated code units.
//
// A code unit becomes registrable by implementing Registrant. The loader
// calls Register exactly once with a Handle scoped to the unit's key; the
// unit announces its capabilities through Handle.Provide. The registry only
// keeps lookup references; the live values belong to the host namespace.
package registry

import (
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"

	"github.com/google/uuid"
)

var (
	// ErrNameTaken is returned when a name is already provided by another key.
	ErrNameTaken = errors.New("extension name already registered")
	// ErrAlreadyAdmitted is returned when a key is admitted twice.
	ErrAlreadyAdmitted = errors.New("key already admitted")
	// ErrHandleClosed is returned by Provide after Register has returned.
	ErrHandleClosed = errors.New("registration handle closed")
)

// Registrant is the contract every loadable code unit satisfies.
// Register is not idempotent; callers invoke it once.
type Registrant interface {
	Register(h *Handle) error
}

// RegistrantFunc adapts a function to Registrant.
type RegistrantFunc func(h *Handle) error

// Register implements Registrant.
func (f RegistrantFunc) Register(h *Handle) error {
	return f(h)
}

// Entry is a lookup reference to a provided extension.
type Entry struct {
	Name  string
	Key   string
	Token uuid.UUID
	Value any
}

// Registry stores extension entries by name.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
	byKey   map[string][]string
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		entries: make(map[string]Entry),
		byKey:   make(map[string][]string),
	}
}

// Admit invokes r.Register with a handle scoped to key. Entries provided
// during the call become visible only if Register succeeds.
func (reg *Registry) Admit(key string, r Registrant) (err error) {
	if r == nil {
		return fmt.Errorf("admit %q: nil registrant", key)
	}

	reg.mu.RLock()
	_, exists := reg.byKey[key]
	reg.mu.RUnlock()
	if exists {
		return fmt.Errorf("admit %q: %w", key, ErrAlreadyAdmitted)
	}

	token, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("admit %q: failed to generate token: %w", key, err)
	}
	h := &Handle{key: key, token: token, registry: reg}

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("register %q panicked: %v\n%s", key, rec, debug.Stack())
		}
		h.close()
		if err != nil {
			return
		}
		err = reg.commit(h)
	}()

	if err := r.Register(h); err != nil {
		return fmt.Errorf("register %q: %w", key, err)
	}
	return nil
}

func (reg *Registry) commit(h *Handle) error {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if _, exists := reg.byKey[h.key]; exists {
		return fmt.Errorf("admit %q: %w", h.key, ErrAlreadyAdmitted)
	}
	for _, e := range h.pending {
		if owner, taken := reg.entries[e.Name]; taken {
			return fmt.Errorf("provide %q from %q: %w (owned by %q)", e.Name, h.key, ErrNameTaken, owner.Key)
		}
	}

	names := make([]string, 0, len(h.pending))
	for _, e := range h.pending {
		reg.entries[e.Name] = e
		names = append(names, e.Name)
	}
	reg.byKey[h.key] = names
	return nil
}

// Lookup returns the entry provided under name.
func (reg *Registry) Lookup(name string) (Entry, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	e, ok := reg.entries[name]
	return e, ok
}

// Names returns all provided names in sorted order.
func (reg *Registry) Names() []string {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	names := make([]string, 0, len(reg.entries))
	for name := range reg.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Keys returns the admitted keys in sorted order.
func (reg *Registry) Keys() []string {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	keys := make([]string, 0, len(reg.byKey))
	for k := range reg.byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Remove drops every entry provided by key.
func (reg *Registry) Remove(key string) bool {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	names, ok := reg.byKey[key]
	if !ok {
		return false
	}
	for _, name := range names {
		delete(reg.entries, name)
	}
	delete(reg.byKey, key)
	return true
}
