package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// StatusError reports a non-2xx response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// HTTP fetches payloads over HTTP(S). Relative locators are resolved
// against BaseURL.
type HTTP struct {
	Client  *http.Client
	BaseURL string
}

// NewHTTP creates an HTTP transport with its own client.
func NewHTTP(baseURL string) *HTTP {
	return &HTTP{
		Client:  &http.Client{},
		BaseURL: baseURL,
	}
}

// Fetch implements Transport.
func (t *HTTP) Fetch(ctx context.Context, locator string, opts Options, done Done) {
	go func() {
		payload, err := t.get(ctx, locator, opts)
		done(payload, err)
	}()
}

func (t *HTTP) resolve(locator string) (string, error) {
	ref, err := url.Parse(locator)
	if err != nil {
		return "", fmt.Errorf("invalid locator %q: %w", locator, err)
	}
	if ref.IsAbs() || t.BaseURL == "" {
		return ref.String(), nil
	}
	base, err := url.Parse(t.BaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL %q: %w", t.BaseURL, err)
	}
	return base.ResolveReference(ref).String(), nil
}

func (t *HTTP) get(ctx context.Context, locator string, opts Options) ([]byte, error) {
	target, err := t.resolve(locator)
	if err != nil {
		return nil, err
	}

	ctx, cancel := withTimeout(ctx, opts)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for %s: %w", target, err)
	}
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}
	if opts.User != "" || opts.Password != "" {
		req.SetBasicAuth(opts.User, opts.Password)
	}

	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{URL: target, StatusCode: resp.StatusCode}
	}

	if err := checkSize(resp.ContentLength, opts); err != nil {
		return nil, fmt.Errorf("GET %s: %w", target, err)
	}

	var body io.Reader = resp.Body
	if opts.MaxBytes > 0 {
		body = io.LimitReader(resp.Body, opts.MaxBytes+1)
	}
	payload, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("GET %s: failed to read body: %w", target, err)
	}
	if err := checkSize(int64(len(payload)), opts); err != nil {
		return nil, fmt.Errorf("GET %s: %w", target, err)
	}
	return payload, nil
}
