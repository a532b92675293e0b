// Package activation turns a fetched payload into a live value that can be
// bound in the host namespace and registered.
package activation

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"
)

// ErrUnsupported is returned by strategies that cannot run on this platform.
var ErrUnsupported = errors.New("activation strategy not supported on this platform")

// Activator materializes payload as an executable unit and returns the
// value it exports for key. It is called at most once per unit.
type Activator interface {
	Activate(ctx context.Context, key string, payload []byte) (any, error)
}

// ActivatorFunc adapts a function to Activator.
type ActivatorFunc func(ctx context.Context, key string, payload []byte) (any, error)

// Activate implements Activator.
func (f ActivatorFunc) Activate(ctx context.Context, key string, payload []byte) (any, error) {
	return f(ctx, key, payload)
}

// writePayload stores payload in dir under a name derived from key.
func writePayload(dir, key, suffix string, payload []byte, perm os.FileMode) (string, error) {
	if len(payload) == 0 {
		return "", errors.New("empty payload")
	}
	if dir == "" {
		dir = os.TempDir()
	}
	f, err := os.CreateTemp(dir, "extload-"+sanitize(key)+"-*"+suffix)
	if err != nil {
		return "", fmt.Errorf("failed to create payload file: %w", err)
	}
	path := f.Name()

	if _, err := f.Write(payload); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("failed to write payload file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to close payload file: %w", err)
	}
	if err := os.Chmod(path, perm); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to chmod payload file: %w", err)
	}
	return filepath.Clean(path), nil
}

func sanitize(key string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' {
			return r
		}
		return '_'
	}, key)
}

// SymbolName returns the Go exported identifier for key: non identifier
// characters are dropped and the following letter is upper-cased, so
// "alien" becomes "Alien" and "fx-loader" becomes "FxLoader".
func SymbolName(key string) string {
	var b strings.Builder
	upper := true
	for _, r := range key {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			upper = true
			continue
		}
		if b.Len() == 0 && unicode.IsDigit(r) {
			b.WriteRune('X')
		}
		if upper {
			r = unicode.ToUpper(r)
			upper = false
		}
		b.WriteRune(r)
	}
	return b.String()
}
