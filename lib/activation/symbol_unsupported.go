//go:build !((linux || darwin || freebsd) && cgo)

package activation

import (
	"context"
	"fmt"
)

// Activate implements Activator.
func (a *SymbolActivator) Activate(ctx context.Context, key string, payload []byte) (any, error) {
	return nil, fmt.Errorf("shared object %s: %w", a.symbolName(key), ErrUnsupported)
}
