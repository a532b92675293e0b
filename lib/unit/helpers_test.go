package unit

import (
	"context"
	"sync"

	"github.com/snowmerak/extload/lib/activation"
	"github.com/snowmerak/extload/lib/namespace"
	"github.com/snowmerak/extload/lib/registry"
	"github.com/snowmerak/extload/lib/transport"
)

// fetchCall is one recorded Transport.Fetch.
type fetchCall struct {
	ctx     context.Context
	locator string
	opts    transport.Options
	done    transport.Done
}

// manualTransport records fetches and completes them only when asked.
type manualTransport struct {
	mu    sync.Mutex
	calls []fetchCall
}

func (t *manualTransport) Fetch(ctx context.Context, locator string, opts transport.Options, done transport.Done) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = append(t.calls, fetchCall{ctx: ctx, locator: locator, opts: opts, done: done})
}

func (t *manualTransport) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls)
}

func (t *manualTransport) call(i int) fetchCall {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls[i]
}

// countingRegistrant counts Register calls and provides itself under the key.
type countingRegistrant struct {
	mu    sync.Mutex
	calls int
	err   error
	panic any
	// during runs inside Register before it returns
	during func()
}

func (r *countingRegistrant) Register(h *registry.Handle) error {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	if r.during != nil {
		r.during()
	}
	if r.panic != nil {
		panic(r.panic)
	}
	if r.err != nil {
		return r.err
	}
	return h.Provide("", r)
}

func (r *countingRegistrant) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// closingRegistrant records Close.
type closingRegistrant struct {
	countingRegistrant
	closed bool
}

func (r *closingRegistrant) Close() error {
	r.closed = true
	return nil
}

func newEnv(activate func(ctx context.Context, key string, payload []byte) (any, error)) (Env, *manualTransport) {
	tr := &manualTransport{}
	env := Env{
		Namespace: namespace.New(),
		Registry:  registry.New(),
		Transport: tr,
	}
	if activate != nil {
		env.Activator = activation.ActivatorFunc(activate)
	}
	return env, tr
}
