package transport

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// Files reads payloads from the local filesystem. Relative locators are
// resolved against Root; file:// URLs are accepted.
type Files struct {
	Root string
}

// Fetch implements Transport.
func (t *Files) Fetch(ctx context.Context, locator string, opts Options, done Done) {
	go func() {
		payload, err := t.read(ctx, locator, opts)
		done(payload, err)
	}()
}

func (t *Files) path(locator string) (string, error) {
	if strings.HasPrefix(locator, "file://") {
		u, err := url.Parse(locator)
		if err != nil {
			return "", fmt.Errorf("invalid locator %q: %w", locator, err)
		}
		return filepath.FromSlash(u.Path), nil
	}
	p := filepath.FromSlash(locator)
	if filepath.IsAbs(p) || t.Root == "" {
		return p, nil
	}
	return filepath.Join(t.Root, p), nil
}

func (t *Files) read(ctx context.Context, locator string, opts Options) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p, err := t.path(locator)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(p)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", p, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", p)
	}
	if err := checkSize(info.Size(), opts); err != nil {
		return nil, fmt.Errorf("%s: %w", p, err)
	}

	payload, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", p, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return payload, nil
}
