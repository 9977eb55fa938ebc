package recovery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/nholik/deploy-verifier/internal/appservice"
	"github.com/nholik/deploy-verifier/internal/metrics"
	"github.com/nholik/deploy-verifier/internal/report"
	"github.com/nholik/deploy-verifier/internal/version"
	"github.com/rs/zerolog"
)

// HealthPoller waits for a health endpoint to report 2xx.
type HealthPoller interface {
	PollUntilHealthy(ctx context.Context, url string, timeout time.Duration) bool
}

// VersionChecker checks a version endpoint once.
type VersionChecker interface {
	Check(ctx context.Context, url string, expected string) version.Result
}

// Target describes the deployment being verified.
type Target struct {
	Slot            appservice.Slot
	HealthURL       string
	VersionURL      string
	ExpectedVersion string
	HealthTimeout   time.Duration
}

// Orchestrator sequences health and version checks and performs at most one
// restart-and-recheck cycle per run.
type Orchestrator struct {
	logger    zerolog.Logger
	poller    HealthPoller
	checker   VersionChecker
	restarter appservice.Restarter
	metrics   *metrics.Metrics
	now       func() time.Time

	inflight   sync.WaitGroup
	restartMu  sync.Mutex
	restartErr error
}

// Option customizes orchestrator behavior.
type Option func(*Orchestrator)

// WithMetrics records stage timings, restarts and failures.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithNow overrides the time source used for stage timings.
func WithNow(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// New constructs an Orchestrator.
func New(logger zerolog.Logger, poller HealthPoller, checker VersionChecker, restarter appservice.Restarter, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		logger:    logger,
		poller:    poller,
		checker:   checker,
		restarter: restarter,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run verifies the target. It returns a *Failure for every terminal failure;
// the report is filled in either way.
func (o *Orchestrator) Run(ctx context.Context, target Target) (report.Report, error) {
	rep := report.Report{
		App:             target.Slot.App,
		Slot:            target.Slot.Name,
		HealthURL:       target.HealthURL,
		VersionURL:      target.VersionURL,
		ExpectedVersion: target.ExpectedVersion,
		StartedAt:       o.now().UTC(),
	}
	app := target.Slot.App

	if !o.pollHealth(ctx, &rep, report.StageInitialHealthCheck, target) {
		return o.fail(&rep, &Failure{Kind: KindUnhealthyTimeout, Stage: report.StageInitialHealthCheck, App: app})
	}

	first := o.checkVersion(ctx, &rep, report.StageInitialVersionCheck, target)
	rep.InitialVersion = snapshot(first)
	rep.FinalVersion = rep.InitialVersion

	if !first.IsMatched {
		o.restart(ctx, &rep, target)

		if !o.pollHealth(ctx, &rep, report.StagePostRestartHealthCheck, target) {
			return o.fail(&rep, &Failure{Kind: KindUnhealthyTimeout, Stage: report.StagePostRestartHealthCheck, App: app})
		}

		second := o.checkVersion(ctx, &rep, report.StagePostRestartVersionCheck, target)
		rep.FinalVersion = snapshot(second)

		if second.Status != http.StatusOK {
			return o.fail(&rep, statusFailure(app, report.StagePostRestartVersionCheck, second))
		}
		if !second.IsMatched {
			return o.fail(&rep, &Failure{
				Kind:     KindVersionContentMismatch,
				Stage:    report.StagePostRestartVersionCheck,
				App:      app,
				Status:   second.Status,
				Expected: target.ExpectedVersion,
				Actual:   second.Response,
			})
		}

		o.logger.Info().
			Str("expected", target.ExpectedVersion).
			Str("actual", second.Response).
			Msg("expected version found after restart")
	}

	// The first result is re-validated even when the post-restart check passed.
	if first.Status != http.StatusOK {
		return o.fail(&rep, statusFailure(app, report.StageInitialVersionCheck, first))
	}

	return o.succeed(&rep)
}

// Wait blocks until an in-flight restart request settles or ctx ends. It
// returns the restart error, if any.
func (o *Orchestrator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("waiting for restart request: %w", ctx.Err())
	}

	o.restartMu.Lock()
	defer o.restartMu.Unlock()
	return o.restartErr
}

func (o *Orchestrator) pollHealth(ctx context.Context, rep *report.Report, stage report.Stage, target Target) bool {
	o.logger.Info().
		Str("stage", string(stage)).
		Str("url", target.HealthURL).
		Dur("timeout", target.HealthTimeout).
		Msg("waiting for app to become healthy")

	var healthy bool
	o.record(rep, stage, func() (bool, string) {
		healthy = o.poller.PollUntilHealthy(ctx, target.HealthURL, target.HealthTimeout)
		if !healthy {
			return false, "no 2xx response before the deadline"
		}
		return true, ""
	})
	return healthy
}

func (o *Orchestrator) checkVersion(ctx context.Context, rep *report.Report, stage report.Stage, target Target) version.Result {
	var result version.Result
	o.record(rep, stage, func() (bool, string) {
		result = o.checker.Check(ctx, target.VersionURL, target.ExpectedVersion)
		if result.TransportFailed() && result.Err != nil {
			return false, result.Err.Error()
		}
		return result.IsMatched, fmt.Sprintf("status %d", result.Status)
	})
	return result
}

// restart issues the restart without waiting for it so health polling starts
// while the request is still in flight.
func (o *Orchestrator) restart(ctx context.Context, rep *report.Report, target Target) {
	slot := target.Slot
	o.record(rep, report.StageRestarting, func() (bool, string) {
		o.logger.Info().
			Str("app", slot.App).
			Str("slot", slot.Name).
			Str("resource_group", slot.ResourceGroup).
			Msg("sending restart command")

		rep.Restarted = true
		o.metrics.IncRestarts()

		if o.restarter == nil {
			err := errors.New("no restarter configured")
			o.logger.Error().Err(err).Msg("restart command skipped")
			o.recordRestartError(err)
			return false, err.Error()
		}

		o.inflight.Add(1)
		go func() {
			defer o.inflight.Done()
			if err := o.restarter.Restart(ctx, slot); err != nil {
				o.logger.Error().Err(err).Str("app", slot.App).Str("slot", slot.Name).Msg("restart command failed")
				o.recordRestartError(err)
				return
			}
			o.logger.Info().Str("app", slot.App).Str("slot", slot.Name).Msg("restart command accepted")
		}()

		o.logger.Info().Msg("restart command sent")
		return true, "restart requested"
	})
}

func (o *Orchestrator) recordRestartError(err error) {
	o.restartMu.Lock()
	defer o.restartMu.Unlock()
	if o.restartErr == nil {
		o.restartErr = err
	}
}

func (o *Orchestrator) record(rep *report.Report, stage report.Stage, fn func() (bool, string)) {
	started := o.now()
	passed, detail := fn()
	duration := o.now().Sub(started)

	rep.Stages = append(rep.Stages, report.StageRecord{
		Stage:     stage,
		StartedAt: started.UTC(),
		Duration:  duration,
		Passed:    passed,
		Detail:    detail,
	})
	o.metrics.ObserveStageDuration(string(stage), duration)
}

func (o *Orchestrator) fail(rep *report.Report, failure *Failure) (report.Report, error) {
	messages := failure.Messages()
	for _, msg := range messages {
		o.logger.Error().
			Str("stage", string(failure.Stage)).
			Str("kind", string(failure.Kind)).
			Msg(msg)
	}

	rep.Outcome = report.OutcomeFailed
	rep.FailureKind = string(failure.Kind)
	rep.Messages = messages
	o.finish(rep)
	o.metrics.IncFailures(string(failure.Kind))
	return *rep, failure
}

func (o *Orchestrator) succeed(rep *report.Report) (report.Report, error) {
	final := rep.FinalVersion
	actual := ""
	if final != nil {
		actual = final.Response
	}
	rep.Outcome = report.OutcomeSucceeded
	rep.Messages = []string{
		fmt.Sprintf("%s's expected_version_string was found in the response body", rep.App),
		fmt.Sprintf("Expect %s", rep.ExpectedVersion),
		fmt.Sprintf("Actual %s", actual),
	}
	for _, msg := range rep.Messages {
		o.logger.Info().Msg(msg)
	}
	o.finish(rep)
	return *rep, nil
}

func (o *Orchestrator) finish(rep *report.Report) {
	rep.Stages = append(rep.Stages, report.StageRecord{Stage: report.StageDone, StartedAt: o.now().UTC(), Passed: rep.Outcome == report.OutcomeSucceeded})
	rep.FinishedAt = o.now().UTC()
	o.metrics.SetRunResult(rep.Succeeded(), rep.Duration(), rep.FinishedAt)
}

func snapshot(result version.Result) *report.VersionCheck {
	check := &report.VersionCheck{
		Status:    result.Status,
		IsMatched: result.IsMatched,
		Response:  result.Response,
	}
	if result.Err != nil {
		check.Error = result.Err.Error()
	}
	return check
}
