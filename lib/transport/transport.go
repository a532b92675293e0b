// Package transport fetches raw code payloads for loadable units.
//
// A Transport is asynchronous: Fetch returns immediately and invokes the
// completion callback at most once. Cancellation is carried by the context
// passed to Fetch.
package transport

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTooLarge is returned when a payload exceeds Options.MaxBytes.
var ErrTooLarge = errors.New("payload exceeds size limit")

// Options are forwarded verbatim from the unit configuration to the transport.
type Options struct {
	Headers  map[string]string
	Timeout  time.Duration
	User     string
	Password string
	MaxBytes int64
}

// Done receives the outcome of a fetch.
type Done func(payload []byte, err error)

// Transport performs the network (or filesystem) fetch for a locator.
type Transport interface {
	Fetch(ctx context.Context, locator string, opts Options, done Done)
}

// Func adapts a synchronous fetch function to Transport. The function runs
// on its own goroutine.
type Func func(ctx context.Context, locator string, opts Options) ([]byte, error)

// Fetch implements Transport.
func (f Func) Fetch(ctx context.Context, locator string, opts Options, done Done) {
	go func() {
		payload, err := f(ctx, locator, opts)
		done(payload, err)
	}()
}

// withTimeout derives the fetch context from opts.Timeout.
func withTimeout(ctx context.Context, opts Options) (context.Context, context.CancelFunc) {
	if opts.Timeout > 0 {
		return context.WithTimeout(ctx, opts.Timeout)
	}
	return context.WithCancel(ctx)
}

func checkSize(n int64, opts Options) error {
	if opts.MaxBytes > 0 && n > opts.MaxBytes {
		return fmt.Errorf("%w: %d > %d bytes", ErrTooLarge, n, opts.MaxBytes)
	}
	return nil
}
