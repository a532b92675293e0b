package transport

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// Router dispatches fetches by locator scheme. Locators without a scheme
// go to Default.
type Router struct {
	Schemes map[string]Transport
	Default Transport
}

// NewRouter creates a Router with http, https and file handlers wired.
func NewRouter(baseURL, root string) *Router {
	h := NewHTTP(baseURL)
	f := &Files{Root: root}

	var def Transport = f
	if baseURL != "" {
		def = h
	}

	return &Router{
		Schemes: map[string]Transport{
			"http":  h,
			"https": h,
			"file":  f,
		},
		Default: def,
	}
}

// Fetch implements Transport.
func (r *Router) Fetch(ctx context.Context, locator string, opts Options, done Done) {
	t, err := r.route(locator)
	if err != nil {
		go done(nil, err)
		return
	}
	t.Fetch(ctx, locator, opts, done)
}

func (r *Router) route(locator string) (Transport, error) {
	scheme := ""
	if u, err := url.Parse(locator); err == nil {
		scheme = strings.ToLower(u.Scheme)
	}
	// single-letter schemes are Windows drive letters
	if len(scheme) <= 1 {
		if r.Default == nil {
			return nil, fmt.Errorf("no default transport for %q", locator)
		}
		return r.Default, nil
	}
	t, ok := r.Schemes[scheme]
	if !ok {
		return nil, fmt.Errorf("unsupported scheme %q in %q", scheme, locator)
	}
	return t, nil
}
