package queue

import (
	"log/slog"

	"github.com/snowmerak/extload/lib/unit"
)

// DefaultMaxParallel is the number of transfers allowed in flight.
const DefaultMaxParallel = 32

// Option configures a Driver.
type Option func(*Driver)

// WithMaxParallel limits concurrent transfers. Values below 1 are ignored.
func WithMaxParallel(n int) Option {
	return func(d *Driver) {
		if n > 0 {
			d.maxParallel = int64(n)
		}
	}
}

// WithLogger sets the driver logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Driver) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithOnComplete is called for every unit that reaches StateComplete.
func WithOnComplete(fn func(u *unit.Unit)) Option {
	return func(d *Driver) {
		d.onComplete = fn
	}
}

// WithOnError is called for every unit that ends in StateErrored.
func WithOnError(fn func(u *unit.Unit, err error)) Option {
	return func(d *Driver) {
		d.onError = fn
	}
}
