// Package queue drives a set of units to a terminal state. Transfers run
// concurrently up to a slot limit; processing runs strictly one unit at a
// time, in the order transfers complete.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/snowmerak/extload/lib/unit"
)

var (
	// ErrDuplicateKey is returned by AddFile when the key is already queued.
	ErrDuplicateKey = errors.New("key already queued")
	// ErrNotPending is returned by AddFile for units that already left Pending.
	ErrNotPending = errors.New("unit is not pending")
	// ErrStarted is returned by AddFile after Start.
	ErrStarted = errors.New("queue already started")
)

// Summary is the outcome of a run.
type Summary struct {
	// Complete lists keys in the order they finished.
	Complete []string
	// Failed maps keys to the error that moved them to StateErrored.
	Failed map[string]error
	// Destroyed lists keys cancelled before they finished.
	Destroyed []string
}

type entry struct {
	u        *unit.Unit
	inFlight bool
	settled  bool
}

// Driver is the queue driver.
type Driver struct {
	maxParallel int64
	logger      *slog.Logger
	onComplete  func(*unit.Unit)
	onError     func(*unit.Unit, error)

	mu      sync.Mutex
	entries []*entry
	byKey   map[string]*entry
	summary Summary

	slots    *semaphore.Weighted
	ready    chan *entry
	pending  sync.WaitGroup
	started  atomic.Bool
	finished chan struct{}
}

// New creates an empty Driver.
func New(opts ...Option) *Driver {
	d := &Driver{
		maxParallel: DefaultMaxParallel,
		logger:      slog.Default(),
		byKey:       make(map[string]*entry),
		summary:     Summary{Failed: make(map[string]error)},
		finished:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.slots = semaphore.NewWeighted(d.maxParallel)
	return d
}

// AddFile enqueues u. Pre-activated units are accepted in their terminal
// state and recorded right away.
func (d *Driver) AddFile(u *unit.Unit) error {
	if u == nil {
		return errors.New("nil unit")
	}
	if d.started.Load() {
		return fmt.Errorf("add %q: %w", u.Key(), ErrStarted)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.byKey[u.Key()]; exists {
		return fmt.Errorf("add %q: %w", u.Key(), ErrDuplicateKey)
	}

	e := &entry{u: u}
	switch state := u.State(); {
	case state == unit.StatePending:
		d.pending.Add(1)
	case u.Preactivated() && state.Terminal():
		e.settled = true
		d.record(e, u.Err())
	default:
		return fmt.Errorf("add %q: %w (%s)", u.Key(), ErrNotPending, state)
	}

	d.entries = append(d.entries, e)
	d.byKey[u.Key()] = e
	return nil
}

// Len returns the number of queued units.
func (d *Driver) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

// Start runs every queued unit to a terminal state and returns the outcome.
// Cancelling ctx destroys every unit that has not finished. Calling Start
// again waits for the first run and returns its summary.
func (d *Driver) Start(ctx context.Context) Summary {
	if !d.started.CompareAndSwap(false, true) {
		<-d.finished
		return d.Summary()
	}
	defer close(d.finished)

	d.mu.Lock()
	entries := append([]*entry(nil), d.entries...)
	d.mu.Unlock()

	d.ready = make(chan *entry, len(entries))
	stop := context.AfterFunc(ctx, d.cancelAll)
	defer stop()

	processed := make(chan struct{})
	go d.processLoop(ctx, processed)

	d.logger.Debug("Queue started.", "units", len(entries), "max_parallel", d.maxParallel)

	for _, e := range entries {
		if d.isSettled(e) {
			continue
		}
		if err := d.slots.Acquire(ctx, 1); err != nil {
			// cancelAll settles the rest
			break
		}

		d.mu.Lock()
		if e.settled {
			d.mu.Unlock()
			d.slots.Release(1)
			continue
		}
		e.inFlight = true
		d.mu.Unlock()

		if err := e.u.StartTransfer(ctx, d.transferDone(e)); err != nil {
			d.releaseSlot(e)
			d.settle(e, err)
		}
	}

	d.pending.Wait()
	close(d.ready)
	<-processed

	summary := d.Summary()
	d.logger.Info("Queue finished.",
		"complete", len(summary.Complete),
		"failed", len(summary.Failed),
		"destroyed", len(summary.Destroyed),
	)
	return summary
}

func (d *Driver) transferDone(e *entry) unit.DoneFunc {
	return func(u *unit.Unit, err error) {
		d.releaseSlot(e)
		if err != nil {
			d.settle(e, err)
			return
		}

		// an unsettled entry keeps ready open; the buffer holds every entry
		d.mu.Lock()
		defer d.mu.Unlock()
		if !e.settled {
			d.ready <- e
		}
	}
}

// processLoop is the only caller of Process, so activation never overlaps.
func (d *Driver) processLoop(ctx context.Context, processed chan<- struct{}) {
	defer close(processed)
	for e := range d.ready {
		if d.isSettled(e) {
			continue
		}
		d.settle(e, d.process(ctx, e.u))
	}
}

func (d *Driver) process(ctx context.Context, u *unit.Unit) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("process %q panicked: %v\n%s", u.Key(), r, debug.Stack())
		}
	}()
	return u.Process(ctx)
}

// Cancel destroys the unit queued under key. It reports whether a unit
// was destroyed.
func (d *Driver) Cancel(key string) bool {
	d.mu.Lock()
	e, ok := d.byKey[key]
	d.mu.Unlock()
	if !ok {
		return false
	}
	return d.cancel(e)
}

func (d *Driver) cancel(e *entry) bool {
	if !e.u.Destroy() {
		return false
	}
	d.releaseSlot(e)
	d.settle(e, nil)
	return true
}

func (d *Driver) cancelAll() {
	d.mu.Lock()
	entries := append([]*entry(nil), d.entries...)
	d.mu.Unlock()

	n := 0
	for _, e := range entries {
		if d.cancel(e) {
			n++
		}
	}
	if n > 0 {
		d.logger.Warn("Queue cancelled.", "destroyed", n)
	}
}

func (d *Driver) releaseSlot(e *entry) {
	d.mu.Lock()
	held := e.inFlight
	e.inFlight = false
	d.mu.Unlock()
	if held {
		d.slots.Release(1)
	}
}

func (d *Driver) isSettled(e *entry) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return e.settled
}

// settle records the final outcome of e once.
func (d *Driver) settle(e *entry, err error) {
	d.mu.Lock()
	if e.settled {
		d.mu.Unlock()
		return
	}
	e.settled = true
	state := d.record(e, err)
	d.mu.Unlock()
	defer d.pending.Done()

	switch state {
	case unit.StateComplete:
		if d.onComplete != nil {
			d.callback(e.u, func() { d.onComplete(e.u) })
		}
	case unit.StateErrored:
		if d.onError != nil {
			d.callback(e.u, func() { d.onError(e.u, e.u.Err()) })
		}
	}
}

// record must be called with d.mu held.
func (d *Driver) record(e *entry, err error) unit.State {
	key := e.u.Key()
	state := e.u.State()
	switch state {
	case unit.StateComplete:
		d.summary.Complete = append(d.summary.Complete, key)
	case unit.StateDestroyed:
		d.summary.Destroyed = append(d.summary.Destroyed, key)
	default:
		if ue := e.u.Err(); ue != nil {
			err = ue
		}
		if err == nil {
			err = fmt.Errorf("unit %q stopped in state %s", key, state)
		}
		d.summary.Failed[key] = err
		d.logger.Error("Unit failed.", "key", key, "error", err)
	}
	return state
}

func (d *Driver) callback(u *unit.Unit, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Callback panicked.", "key", u.Key(), "panic", r, "stack", string(debug.Stack()))
		}
	}()
	fn()
}

// Summary returns a copy of the outcome recorded so far.
func (d *Driver) Summary() Summary {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := Summary{
		Complete:  append([]string(nil), d.summary.Complete...),
		Destroyed: append([]string(nil), d.summary.Destroyed...),
		Failed:    make(map[string]error, len(d.summary.Failed)),
	}
	for k, v := range d.summary.Failed {
		out.Failed[k] = v
	}
	return out
}
