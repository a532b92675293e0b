// Package namespace provides the host-side mapping that makes activated
// extensions addressable by key. Each key is a single slot that is written
// at most once until it is released.
package namespace

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// ErrOccupied is returned by Bind when the slot already holds an unrelated value.
var ErrOccupied = errors.New("namespace slot already bound")

// Namespace is a collision-checked key -> value mapping.
type Namespace struct {
	mu    sync.RWMutex
	slots map[string]any
}

// New creates an empty Namespace.
func New() *Namespace {
	return &Namespace{
		slots: make(map[string]any),
	}
}

// Bind writes value into the slot named by key. Binding the same comparable
// value twice is a no-op; any other occupant yields ErrOccupied.
func (n *Namespace) Bind(key string, value any) error {
	if value == nil {
		return fmt.Errorf("bind %q: nil value", key)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if existing, ok := n.slots[key]; ok {
		if sameValue(existing, value) {
			return nil
		}
		return fmt.Errorf("bind %q: %w (holds %T)", key, ErrOccupied, existing)
	}

	n.slots[key] = value
	return nil
}

// Lookup returns the value bound under key.
func (n *Namespace) Lookup(key string) (any, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	v, ok := n.slots[key]
	return v, ok
}

// Holds reports whether the slot named by key currently holds value.
func (n *Namespace) Holds(key string, value any) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	existing, ok := n.slots[key]
	return ok && value != nil && sameValue(existing, value)
}

// Release frees the slot named by key and returns the value it held.
func (n *Namespace) Release(key string) (any, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	v, ok := n.slots[key]
	if ok {
		delete(n.slots, key)
	}
	return v, ok
}

// Keys returns the bound keys in sorted order.
func (n *Namespace) Keys() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()

	keys := make([]string, 0, len(n.slots))
	for k := range n.slots {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sameValue(a, b any) bool {
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Type() != vb.Type() || !va.Comparable() {
		return false
	}
	return va.Equal(vb)
}
