// Package unit implements the lifecycle of one loadable code unit: a
// plugin that is fetched by a transport, activated exactly once, and
// handed to the extension registry.
//
//	Pending --StartTransfer--> Loading --Process--> Processing --> Complete
//	   |                          |                     |
//	   +------> Destroyed <-------+---------------------+----> Errored
//
// The queue driver owns scheduling. A Unit only guarantees that its own
// transitions are forward-only, that activation happens at most once, and
// that a destroyed unit ignores late transfer completions.
package unit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/google/uuid"

	"github.com/snowmerak/extload/lib/activation"
	"github.com/snowmerak/extload/lib/namespace"
	"github.com/snowmerak/extload/lib/registry"
	"github.com/snowmerak/extload/lib/transport"
)

// Env holds the collaborators a Unit talks to.
type Env struct {
	Namespace *namespace.Namespace
	Registry  *registry.Registry
	Activator activation.Activator
	Transport transport.Transport
	// DefaultExtension overrides DefaultExtension when deriving URLs.
	DefaultExtension string
	Logger           *slog.Logger
}

// DoneFunc is called once when a transfer started by StartTransfer finishes.
type DoneFunc func(u *Unit, err error)

// Unit is one pending, loading or loaded code unit.
type Unit struct {
	id     uuid.UUID
	cfg    Config
	env    Env
	logger *slog.Logger

	mu           sync.Mutex
	state        State
	payload      []byte
	transferDone bool
	attempted    bool
	cancel       context.CancelFunc
	err          error
}

// New creates a Unit from a record configuration. When cfg.Value is set the
// unit is activated immediately and returned in StateComplete, or in
// StateErrored together with the activation error.
func New(cfg Config, env Env) (*Unit, error) {
	cfg, err := cfg.Normalize(env.DefaultExtension)
	if err != nil {
		return nil, err
	}
	if err := env.validate(cfg); err != nil {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate unit id: %w", err)
	}

	logger := env.Logger
	if logger == nil {
		logger = slog.Default()
	}

	u := &Unit{
		id:     id,
		cfg:    cfg,
		env:    env,
		logger: logger.With("key", cfg.Key, "unit", id.String()),
		state:  StatePending,
	}

	if cfg.Value != nil {
		return u, u.activateValue(cfg.Value)
	}
	return u, nil
}

// NewPositional creates a Unit from the positional form. source is a string
// locator or a live registry.Registrant.
func NewPositional(key string, source any, opts transport.Options, env Env) (*Unit, error) {
	cfg, err := FromArgs(key, source, opts)
	if err != nil {
		return nil, err
	}
	return New(cfg, env)
}

// NewBatch creates one independent Unit per configuration, in order. All
// configurations are validated first; a configuration error returns no
// units. Activation failures of pre-activated units are reported through
// the unit's state and Err.
func NewBatch(cfgs []Config, env Env) ([]*Unit, error) {
	for i, cfg := range cfgs {
		n, err := cfg.Normalize(env.DefaultExtension)
		if err != nil {
			return nil, fmt.Errorf("config %d: %w", i, err)
		}
		if err := env.validate(n); err != nil {
			return nil, fmt.Errorf("config %d: %w", i, err)
		}
	}

	units := make([]*Unit, 0, len(cfgs))
	for i, cfg := range cfgs {
		u, err := New(cfg, env)
		if u == nil {
			return nil, fmt.Errorf("config %d: %w", i, err)
		}
		units = append(units, u)
	}
	return units, nil
}

func (env Env) validate(cfg Config) error {
	switch {
	case env.Namespace == nil:
		return &ConfigurationError{Key: cfg.Key, Field: "namespace", Err: errors.New("namespace is required")}
	case env.Registry == nil:
		return &ConfigurationError{Key: cfg.Key, Field: "registry", Err: errors.New("registry is required")}
	case cfg.Value != nil:
		return nil
	case env.Activator == nil:
		return &ConfigurationError{Key: cfg.Key, Field: "activator", Err: errors.New("activator is required")}
	case env.Transport == nil:
		return &ConfigurationError{Key: cfg.Key, Field: "transport", Err: errors.New("transport is required")}
	}
	return nil
}

// StartTransfer moves the unit from Pending to Loading and hands the fetch
// to the transport. It returns without waiting; done is invoked once when
// the transfer finishes, unless the unit was destroyed first.
func (u *Unit) StartTransfer(ctx context.Context, done DoneFunc) error {
	u.mu.Lock()
	if u.state == StateDestroyed {
		u.mu.Unlock()
		return fmt.Errorf("start transfer %q: %w", u.cfg.Key, ErrDestroyed)
	}
	if from := u.state; !u.advance(StateLoading) {
		u.mu.Unlock()
		return fmt.Errorf("start transfer %q: %w: %s -> %s", u.cfg.Key, ErrInvalidTransition, from, StateLoading)
	}
	fetchCtx, cancel := context.WithCancel(ctx)
	u.cancel = cancel
	u.mu.Unlock()

	u.logger.Debug("Transfer started.", "url", u.cfg.URL)
	u.env.Transport.Fetch(fetchCtx, u.cfg.URL, u.cfg.TransferOptions, func(payload []byte, err error) {
		u.finishTransfer(payload, err, done)
	})
	return nil
}

func (u *Unit) finishTransfer(payload []byte, err error, done DoneFunc) {
	u.mu.Lock()
	if u.state != StateLoading || u.transferDone {
		state := u.state
		u.mu.Unlock()
		u.logger.Debug("Ignoring late transfer completion.", "state", state)
		return
	}
	u.transferDone = true
	cancel := u.cancel
	u.cancel = nil

	var result error
	if err != nil {
		result = &TransferError{Key: u.cfg.Key, URL: u.cfg.URL, Err: err}
		u.advance(StateErrored)
		u.err = result
	} else {
		u.payload = bytes.Clone(payload)
		if u.payload == nil {
			u.payload = []byte{}
		}
	}
	u.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	if result != nil {
		u.logger.Warn("Transfer failed.", "url", u.cfg.URL, "error", err)
	} else {
		u.logger.Debug("Transfer finished.", "bytes", len(payload))
	}

	if done != nil {
		done(u, result)
	}
}

// Process activates the transferred payload and registers it. It runs
// synchronously and at most once; later calls return ErrAlreadyProcessed
// without invoking Register again.
func (u *Unit) Process(ctx context.Context) error {
	u.mu.Lock()
	switch {
	case u.state == StateDestroyed:
		u.mu.Unlock()
		return fmt.Errorf("process %q: %w", u.cfg.Key, ErrDestroyed)
	case u.attempted || u.state == StateComplete || u.state == StateErrored:
		u.mu.Unlock()
		return fmt.Errorf("process %q: %w", u.cfg.Key, ErrAlreadyProcessed)
	case u.state != StateLoading || !u.transferDone:
		from := u.state
		u.mu.Unlock()
		return fmt.Errorf("process %q: %w: %s -> %s (transfer not finished)", u.cfg.Key, ErrInvalidTransition, from, StateProcessing)
	}
	u.advance(StateProcessing)
	u.attempted = true
	payload := u.payload
	u.mu.Unlock()

	u.logger.Debug("Activating payload.", "bytes", len(payload))

	value, err := u.activate(ctx, payload)
	if err != nil {
		return u.fail(&ActivationError{Key: u.cfg.Key, Err: err})
	}
	if value == nil {
		return u.fail(&ActivationError{Key: u.cfg.Key, Err: errors.New("activator returned no value")})
	}

	// a unit destroyed while activating never reaches Register
	u.mu.Lock()
	destroyed := u.state == StateDestroyed
	u.mu.Unlock()
	if destroyed {
		if !u.env.Namespace.Holds(u.cfg.Key, value) {
			closeValue(value)
		}
		return fmt.Errorf("process %q: %w", u.cfg.Key, ErrDestroyed)
	}

	wrote, err := u.register(value, true)
	if err != nil {
		return u.fail(err)
	}

	u.mu.Lock()
	if !u.advance(StateComplete) {
		u.mu.Unlock()
		u.undo(wrote)
		return fmt.Errorf("process %q: %w", u.cfg.Key, ErrDestroyed)
	}
	u.mu.Unlock()

	u.logger.Info("Extension registered.")
	return nil
}

func (u *Unit) activate(ctx context.Context, payload []byte) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			value = nil
			err = fmt.Errorf("activator panicked: %v\n%s", r, debug.Stack())
		}
	}()
	return u.env.Activator.Activate(ctx, u.cfg.Key, payload)
}

// activateValue runs the pre-activated short-circuit: Pending -> Complete
// without a transfer.
func (u *Unit) activateValue(value registry.Registrant) error {
	u.mu.Lock()
	u.attempted = true
	u.mu.Unlock()

	if _, err := u.register(value, false); err != nil {
		return u.fail(err)
	}

	u.mu.Lock()
	u.advance(StateComplete)
	u.mu.Unlock()

	u.logger.Info("Extension registered without transfer.")
	return nil
}

// register binds value under the unit key and invokes its Register entry
// point. It reports whether this unit wrote the slot. A slot the unit wrote
// is released again on failure, and owned values produced by the activator
// are closed.
func (u *Unit) register(value any, owned bool) (bool, error) {
	key := u.cfg.Key
	ns := u.env.Namespace

	_, existed := ns.Lookup(key)
	if err := ns.Bind(key, value); err != nil {
		if owned {
			closeValue(value)
		}
		return false, &NamespaceCollisionError{Key: key, Err: err}
	}

	bound, _ := ns.Lookup(key)
	r, ok := bound.(registry.Registrant)
	if !ok {
		if !existed {
			ns.Release(key)
			if owned {
				closeValue(value)
			}
		}
		return false, &ActivationError{Key: key, Err: fmt.Errorf("%w: %T", ErrNotRegistrant, bound)}
	}

	if err := u.env.Registry.Admit(key, r); err != nil {
		if !existed {
			ns.Release(key)
			if owned {
				closeValue(value)
			}
		}
		return false, &ActivationError{Key: key, Err: err}
	}
	return !existed, nil
}

// undo reverses a registration that raced with Destroy. A slot bound
// before the unit ran keeps its value.
func (u *Unit) undo(wrote bool) {
	u.env.Registry.Remove(u.cfg.Key)
	if !wrote {
		return
	}
	if v, ok := u.env.Namespace.Release(u.cfg.Key); ok {
		closeValue(v)
	}
}

// advance moves to state to if the transition table allows it. u.mu must
// be held.
func (u *Unit) advance(to State) bool {
	if !canAdvance(u.state, to) {
		return false
	}
	u.state = to
	return true
}

func (u *Unit) fail(err error) error {
	u.mu.Lock()
	if u.advance(StateErrored) {
		u.err = err
	}
	u.payload = nil
	u.mu.Unlock()

	u.logger.Error("Activation failed.", "error", err)
	return err
}

// Destroy cancels the unit. An in-flight transfer is aborted and any later
// completion is ignored. It reports whether the state changed.
func (u *Unit) Destroy() bool {
	u.mu.Lock()
	from := u.state
	if !u.advance(StateDestroyed) {
		u.payload = nil
		u.mu.Unlock()
		return false
	}
	u.payload = nil
	cancel := u.cancel
	u.cancel = nil
	u.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	u.logger.Debug("Unit destroyed.", "from", from)
	return true
}

func closeValue(v any) {
	if c, ok := v.(io.Closer); ok {
		_ = c.Close()
	}
}

// ID returns the unit instance id.
func (u *Unit) ID() uuid.UUID { return u.id }

// Key returns the unit key.
func (u *Unit) Key() string { return u.cfg.Key }

// URL returns the source locator.
func (u *Unit) URL() string { return u.cfg.URL }

// Extension returns the extension used to derive the locator.
func (u *Unit) Extension() string { return u.cfg.Extension }

// TransferOptions returns the options forwarded to the transport.
func (u *Unit) TransferOptions() transport.Options { return u.cfg.TransferOptions }

// Preactivated reports whether the unit was built from a live value.
func (u *Unit) Preactivated() bool { return u.cfg.Value != nil }

// State returns the current lifecycle state.
func (u *Unit) State() State {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.state
}

// Payload returns a copy of the received payload while the unit is
// Processing or Complete, and nil otherwise.
func (u *Unit) Payload() []byte {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.state != StateProcessing && u.state != StateComplete {
		return nil
	}
	return bytes.Clone(u.payload)
}

// Err returns the error that moved the unit to StateErrored.
func (u *Unit) Err() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.err
}
