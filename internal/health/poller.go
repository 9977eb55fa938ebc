package health

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/nholik/deploy-verifier/internal/probe"
	"github.com/rs/zerolog"
)

const defaultInterval = time.Second

// Poller probes a health endpoint until it reports 2xx or a deadline passes.
type Poller struct {
	logger     zerolog.Logger
	prober     probe.Prober
	interval   time.Duration
	newBackOff func() backoff.BackOff
	now        func() time.Time
	sleep      func(context.Context, time.Duration) bool
}

// Option customizes poller behavior.
type Option func(*Poller)

// WithInterval sets the fixed delay between attempts.
func WithInterval(interval time.Duration) Option {
	return func(p *Poller) {
		if interval > 0 {
			p.interval = interval
		}
	}
}

// WithBackOff overrides the delay policy between attempts. A policy that
// returns backoff.Stop ends polling early with an unhealthy outcome.
func WithBackOff(factory func() backoff.BackOff) Option {
	return func(p *Poller) {
		p.newBackOff = factory
	}
}

// WithClock overrides the time source and sleep function (primarily for testing).
func WithClock(now func() time.Time, sleep func(context.Context, time.Duration) bool) Option {
	return func(p *Poller) {
		if now != nil {
			p.now = now
		}
		if sleep != nil {
			p.sleep = sleep
		}
	}
}

// NewPoller constructs a Poller on top of the given prober.
func NewPoller(logger zerolog.Logger, prober probe.Prober, opts ...Option) *Poller {
	p := &Poller{
		logger:   logger,
		prober:   prober,
		interval: defaultInterval,
		now:      time.Now,
		sleep:    sleepWithContext,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.newBackOff == nil {
		interval := p.interval
		p.newBackOff = func() backoff.BackOff {
			return backoff.NewConstantBackOff(interval)
		}
	}
	return p
}

// PollUntilHealthy returns true as soon as one probe succeeds. A timeout of
// zero or less allows exactly one attempt. Each call owns its own deadline.
func (p *Poller) PollUntilHealthy(ctx context.Context, url string, timeout time.Duration) bool {
	deadline := p.now().Add(timeout)
	policy := p.newBackOff()
	policy.Reset()

	for attempt := 1; ; attempt++ {
		result := p.prober.Probe(ctx, url)
		if result.Succeeded {
			p.logger.Info().
				Str("url", url).
				Int("attempt", attempt).
				Int("status", result.StatusCode).
				Msg("health check passed")
			return true
		}

		event := p.logger.Debug().
			Str("url", url).
			Int("attempt", attempt).
			Int("status", result.StatusCode)
		if result.Err != nil {
			event = event.Err(result.Err)
		}
		event.Msg("health check attempt failed")

		if timeout <= 0 || !p.now().Before(deadline) {
			p.logger.Warn().
				Str("url", url).
				Int("attempts", attempt).
				Dur("timeout", timeout).
				Msg("health deadline reached")
			return false
		}

		wait := policy.NextBackOff()
		if wait == backoff.Stop {
			p.logger.Warn().Str("url", url).Int("attempts", attempt).Msg("health polling stopped by policy")
			return false
		}
		if !p.sleep(ctx, wait) {
			p.logger.Warn().Str("url", url).Err(ctx.Err()).Msg("health polling canceled")
			return false
		}
	}
}

func sleepWithContext(ctx context.Context, wait time.Duration) bool {
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
