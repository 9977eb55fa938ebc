package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

const (
	defaultTimeout  = 10 * time.Second
	defaultMaxBytes = 1 << 20
)

// Result is the outcome of a single probe.
//
// StatusCode is 0 when no response was received; Err then describes the
// transport failure.
type Result struct {
	Succeeded  bool
	StatusCode int
	Body       string
	Err        error
}

// Prober issues one request against a URL.
type Prober interface {
	Probe(ctx context.Context, url string) Result
}

// HTTPProber implements Prober with a single GET and no retries.
type HTTPProber struct {
	client   *retryablehttp.Client
	timeout  time.Duration
	maxBytes int64
}

// Option customizes an HTTPProber.
type Option func(*HTTPProber)

// WithMaxBytes caps how much of the response body is kept.
func WithMaxBytes(maxBytes int64) Option {
	return func(p *HTTPProber) {
		if maxBytes > 0 {
			p.maxBytes = maxBytes
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(p *HTTPProber) {
		if client != nil {
			p.client.HTTPClient = client
		}
	}
}

// NewHTTPProber returns a prober whose requests time out after timeout.
func NewHTTPProber(timeout time.Duration, opts ...Option) *HTTPProber {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	client := retryablehttp.NewClient()
	client.RetryMax = 0
	client.CheckRetry = func(_ context.Context, _ *http.Response, _ error) (bool, error) {
		return false, nil
	}
	// Keep transport errors unwrapped instead of "giving up after N attempt(s)".
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler
	client.Logger = nil
	client.HTTPClient = &http.Client{Timeout: timeout}

	p := &HTTPProber{
		client:   client,
		timeout:  timeout,
		maxBytes: defaultMaxBytes,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Probe performs exactly one GET. It never returns an error; failures are
// reported in the Result.
func (p *HTTPProber) Probe(ctx context.Context, url string) Result {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Result{Err: fmt.Errorf("build request: %w", err)}
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return Result{Err: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	result := Result{
		Succeeded:  resp.StatusCode >= 200 && resp.StatusCode <= 299,
		StatusCode: resp.StatusCode,
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, p.maxBytes))
	result.Body = string(body)
	if err != nil && !errors.Is(err, io.EOF) {
		result.Err = fmt.Errorf("read body: %w", err)
	}
	return result
}

// Describe renders a short human-readable summary of a result.
func Describe(r Result) string {
	var b strings.Builder
	if r.StatusCode > 0 {
		fmt.Fprintf(&b, "status %d", r.StatusCode)
	} else {
		b.WriteString("no response")
	}
	if r.Err != nil {
		fmt.Fprintf(&b, " (%v)", r.Err)
	}
	return b.String()
}
