package activation

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/snowmerak/extload/lib/ctxlog"
	"github.com/snowmerak/extload/lib/process"
	"github.com/snowmerak/extload/lib/remote"
)

// DefaultReadyTimeout bounds the wait for a forked plugin's ready signal.
const DefaultReadyTimeout = 5 * time.Second

// ProcessActivator activates a payload by running it as a plugin executable that
// speaks the remote protocol. The returned value is a *remote.Extension.
type ProcessActivator struct {
	// Dir receives the executable; os.TempDir() when empty.
	Dir string
	// ReadyTimeout defaults to DefaultReadyTimeout.
	ReadyTimeout time.Duration
	// Stderr receives the plugin's stderr; discarded when nil.
	Stderr io.Writer
}

// Activate implements Activator.
func (a *ProcessActivator) Activate(ctx context.Context, key string, payload []byte) (any, error) {
	logger := ctxlog.FromContext(ctx).With("key", key)

	path, err := writePayload(a.Dir, key, "", payload, 0o700)
	if err != nil {
		return nil, err
	}

	p, err := process.Fork(path, a.Stderr)
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("failed to fork plugin: %w", err)
	}
	logger.Debug("Plugin process started.", "pid", p.Pid(), "path", path)

	closer := &processCloser{p: p, path: path}
	host, err := remote.NewHost(p.Stdout(), p.Stdin(), closer, logger.With("pid", p.Pid()))
	if err != nil {
		closer.Close()
		return nil, err
	}

	timeout := a.ReadyTimeout
	if timeout <= 0 {
		timeout = DefaultReadyTimeout
	}
	readyCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := host.WaitReady(readyCtx); err != nil {
		host.Close()
		return nil, fmt.Errorf("plugin %s did not become ready: %w", key, err)
	}

	ext := remote.NewExtension(host)
	return ext, nil
}

// processCloser kills the plugin and removes its executable.
type processCloser struct {
	p    *process.Process
	path string
}

func (c *processCloser) Close() error {
	err := c.p.Close()
	if rmErr := os.Remove(c.path); rmErr != nil && !os.IsNotExist(rmErr) {
		slog.Default().Debug("Failed to remove plugin executable.", "path", c.path, "error", rmErr)
	}
	return err
}
