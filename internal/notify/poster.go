package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const httpErrorBodyLimit = 1024

type timingConfig struct {
	timeout           time.Duration
	rateInterval      time.Duration
	rateBurst         int
	backoffMaxElapsed time.Duration
	backoffMax        time.Duration
	backoffInitial    time.Duration
}

var defaultTiming = timingConfig{
	timeout:           10 * time.Second,
	rateInterval:      time.Second,
	rateBurst:         1,
	backoffMaxElapsed: 30 * time.Second,
	backoffMax:        10 * time.Second,
	backoffInitial:    time.Second,
}

// httpPoster delivers JSON payloads to a single endpoint. Requests are rate
// limited per report key and retried on 5xx, 429 and transport errors.
type httpPoster struct {
	logger      zerolog.Logger
	target      string
	endpoint    string
	contentType string
	client      *retryablehttp.Client
	timing      timingConfig

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func newHTTPPoster(logger zerolog.Logger, target, endpoint, contentType string, timing timingConfig) *httpPoster {
	// Retries are driven by postWithRetry so Retry-After can be honored.
	client := retryablehttp.NewClient()
	client.RetryMax = 0
	client.CheckRetry = func(context.Context, *http.Response, error) (bool, error) {
		return false, nil
	}
	client.Logger = nil
	client.HTTPClient = &http.Client{Timeout: timing.timeout}

	return &httpPoster{
		logger:      logger.With().Str("target", target).Logger(),
		target:      target,
		endpoint:    endpoint,
		contentType: contentType,
		client:      client,
		timing:      timing,
		limiters:    make(map[string]*rate.Limiter),
	}
}

func (p *httpPoster) waitForRateLimit(ctx context.Context, key string) error {
	p.mu.Lock()
	limiter, ok := p.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(p.timing.rateInterval), p.timing.rateBurst)
		p.limiters[key] = limiter
	}
	p.mu.Unlock()

	return limiter.Wait(ctx)
}

func (p *httpPoster) postWithRetry(ctx context.Context, payload []byte) error {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.timing.backoffInitial
	exp.MaxInterval = p.timing.backoffMax
	exp.MaxElapsedTime = p.timing.backoffMaxElapsed
	policy := &retryAfterBackOff{BackOff: exp}

	attempt := 0
	op := func() error {
		attempt++
		err := p.postOnce(ctx, payload)
		var retryAfter *retryAfterError
		if errors.As(err, &retryAfter) {
			policy.next = retryAfter.Duration
		}
		return err
	}
	onRetry := func(err error, wait time.Duration) {
		p.logger.Debug().Err(err).Int("attempt", attempt).Dur("wait", wait).Msg("retrying notification")
	}

	return backoff.RetryNotify(op, backoff.WithContext(policy, ctx), onRetry)
}

// postOnce sends the payload once. Errors that must not be retried are
// wrapped with backoff.Permanent.
func (p *httpPoster) postOnce(ctx context.Context, payload []byte) error {
	reqCtx, cancel := context.WithTimeout(ctx, p.timing.timeout)
	defer cancel()

	req, err := retryablehttp.NewRequestWithContext(reqCtx, http.MethodPost, p.endpoint, bytes.NewReader(payload))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("build %s request: %w", p.target, err))
	}
	req.Header.Set("Content-Type", p.contentType)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", p.target, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		rateErr := fmt.Errorf("%s rate limited: %s", p.target, resp.Status)
		if wait, ok := parseRetryAfter(resp.Header.Get("Retry-After")); ok {
			return &retryAfterError{Duration: wait, err: rateErr}
		}
		return rateErr
	case resp.StatusCode >= http.StatusInternalServerError:
		return fmt.Errorf("%s server error: %s", p.target, resp.Status)
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, httpErrorBodyLimit))
	if text := strings.TrimSpace(string(body)); text != "" {
		return backoff.Permanent(fmt.Errorf("%s request failed: %s (%s)", p.target, resp.Status, text))
	}
	return backoff.Permanent(fmt.Errorf("%s request failed: %s", p.target, resp.Status))
}

// retryAfterBackOff lets a server-provided Retry-After replace the next
// exponential interval.
type retryAfterBackOff struct {
	backoff.BackOff
	next time.Duration
}

func (b *retryAfterBackOff) NextBackOff() time.Duration {
	if b.next > 0 {
		wait := b.next
		b.next = 0
		return wait
	}
	return b.BackOff.NextBackOff()
}

func parseRetryAfter(value string) (time.Duration, bool) {
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds <= 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		if wait := time.Until(when); wait > 0 {
			return wait, true
		}
	}
	return 0, false
}

type retryAfterError struct {
	Duration time.Duration
	err      error
}

func (e *retryAfterError) Error() string {
	return fmt.Sprintf("rate limited; retry after %s", e.Duration)
}

func (e *retryAfterError) Unwrap() error {
	return e.err
}
