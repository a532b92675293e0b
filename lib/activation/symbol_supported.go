//go:build (linux || darwin || freebsd) && cgo

package activation

import (
	"context"
	"fmt"
	"os"
	"plugin"
	"reflect"
)

// Activate implements Activator.
func (a *SymbolActivator) Activate(ctx context.Context, key string, payload []byte) (any, error) {
	path, err := writePayload(a.Dir, key, ".so", payload, 0o600)
	if err != nil {
		return nil, err
	}

	// the runtime keeps the object mapped; the file stays for its lifetime
	raw, err := plugin.Open(path)
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("failed to open shared object %s: %w", path, err)
	}

	name := a.symbolName(key)
	sym, err := raw.Lookup(name)
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("lookup %s: %w", name, err)
	}

	// variables are exported as pointers; unwrap *T where T is an interface
	if v := reflect.ValueOf(sym); v.Kind() == reflect.Pointer && !v.IsNil() && v.Elem().Kind() == reflect.Interface {
		if v.Elem().IsNil() {
			os.Remove(path)
			return nil, fmt.Errorf("symbol %s is a nil interface", name)
		}
		return v.Elem().Interface(), nil
	}
	return sym, nil
}
