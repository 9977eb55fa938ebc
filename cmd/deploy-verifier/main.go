package main

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/nholik/deploy-verifier/internal/appservice"
	"github.com/nholik/deploy-verifier/internal/config"
	"github.com/nholik/deploy-verifier/internal/ghaction"
	"github.com/nholik/deploy-verifier/internal/health"
	"github.com/nholik/deploy-verifier/internal/logging"
	"github.com/nholik/deploy-verifier/internal/metrics"
	"github.com/nholik/deploy-verifier/internal/notify"
	"github.com/nholik/deploy-verifier/internal/probe"
	"github.com/nholik/deploy-verifier/internal/recovery"
	"github.com/nholik/deploy-verifier/internal/report"
	"github.com/nholik/deploy-verifier/internal/version"
	"github.com/rs/zerolog"
)

const (
	exitSuccess     = 0
	exitFailure     = 1
	exitConfigError = 2
)

// reportingTimeout bounds notification, report and metrics delivery after a run.
const reportingTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger := logging.New()
		logger.Error().Err(err).Msg("failed to load configuration")
		_ = ghaction.New(os.Stdout, "").Error(err.Error())
		os.Exit(exitConfigError)
	}

	logger := logging.NewWithFormat(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, cfg, logger, os.Stdout, appservice.NewAzureRestarter(0))
	stop()
	os.Exit(code)
}

func run(ctx context.Context, cfg config.Config, logger zerolog.Logger, stdout io.Writer, restarter appservice.Restarter) int {
	logInputs(logger, cfg.Inputs)

	slot := appservice.Slot{
		SubscriptionID: cfg.Inputs.SubscriptionID,
		ResourceGroup:  cfg.Inputs.ResourceGroup,
		App:            cfg.Inputs.AppName,
		Name:           cfg.Inputs.SlotName,
	}
	baseURL := slot.BaseURL()
	if cfg.BaseURL != "" {
		baseURL = cfg.BaseURL
	}
	target := recovery.Target{
		Slot:            slot,
		HealthURL:       baseURL + cfg.Inputs.HealthURI,
		VersionURL:      baseURL + cfg.Inputs.VersionURI,
		ExpectedVersion: cfg.Inputs.ExpectedVersion,
		HealthTimeout:   cfg.HealthTimeout(),
	}

	m := metrics.New()
	prober := probe.NewHTTPProber(cfg.ProbeTimeout)
	poller := health.NewPoller(logger, m.InstrumentProber("health", prober), health.WithInterval(cfg.PollInterval))
	checker := version.NewChecker(logger, m.InstrumentProber("version", prober))

	orchestrator := recovery.New(logger, poller, checker, restarter, recovery.WithMetrics(m))
	rep, runErr := orchestrator.Run(ctx, target)

	if rep.Restarted {
		drainCtx, cancel := context.WithTimeout(context.Background(), cfg.RestartDrainTimeout)
		if err := orchestrator.Wait(drainCtx); err != nil {
			rep.RestartError = err.Error()
		}
		cancel()
	}

	publish(cfg, logger, stdout, m, rep)

	if runErr != nil {
		var failure *recovery.Failure
		if !errors.As(runErr, &failure) {
			logger.Error().Err(runErr).Msg("verification aborted")
		}
		return exitFailure
	}
	return exitSuccess
}

// publish delivers the report to every configured sink. Sink errors are
// logged and never change the verdict.
func publish(cfg config.Config, logger zerolog.Logger, stdout io.Writer, m *metrics.Metrics, rep report.Report) {
	ctx, cancel := context.WithTimeout(context.Background(), reportingTimeout)
	defer cancel()

	sink := ghaction.New(stdout, cfg.GitHubOutput)
	if !rep.Succeeded() {
		if err := sink.Errors(rep.Messages); err != nil {
			logger.Warn().Err(err).Msg("failed to write workflow errors")
		}
	}
	outputs := map[string]string{
		"result":    string(rep.Outcome),
		"restarted": strconv.FormatBool(rep.Restarted),
		"stage":     string(rep.LastStage()),
	}
	if err := sink.SetOutputs(outputs); err != nil {
		logger.Warn().Err(err).Msg("failed to write step outputs")
	}

	if cfg.ReportFile != "" {
		var store report.Store = report.NewFileStore(cfg.ReportFile, logger)
		if err := store.Save(ctx, rep); err != nil {
			logger.Warn().Err(err).Str("path", cfg.ReportFile).Msg("failed to save report")
		}
	}

	notifier, err := buildNotifier(cfg, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("notifications disabled")
	} else if err := notifier.Notify(ctx, rep); err != nil {
		logger.Warn().Err(err).Msg("failed to send notification")
	}

	grouping := map[string]string{"app": rep.App, "slot": rep.Slot}
	if err := m.Push(ctx, cfg.PushgatewayURL, grouping); err != nil {
		logger.Warn().Err(err).Msg("failed to push metrics")
	}
}

func buildNotifier(cfg config.Config, logger zerolog.Logger) (notify.Notifier, error) {
	webhook, err := notify.NewWebhookNotifier(logger, cfg.WebhookURL, cfg.WebhookTemplate)
	if err != nil {
		return nil, err
	}

	var notifiers []notify.Notifier
	if cfg.SlackWebhookURL != "" {
		notifiers = append(notifiers, notify.NewSlackNotifier(logger, cfg.SlackWebhookURL))
	}
	if webhook != nil {
		notifiers = append(notifiers, webhook)
	}
	if len(notifiers) == 0 {
		return notify.NewNoop(logger, "no notification targets configured"), nil
	}

	multi := notify.NewMultiNotifier(notifiers...)
	if cfg.NotifyDryRun {
		return notify.NewDryRunNotifier(logger, multi), nil
	}
	return multi, nil
}

func logInputs(logger zerolog.Logger, in config.Inputs) {
	for _, input := range []struct{ name, value string }{
		{"azure_web_app_name", in.AppName},
		{"azure_web_app_slot_name", in.SlotName},
		{"azure_web_app_deploy_subscription_id", in.SubscriptionID},
		{"azure_web_app_resource_group_name", in.ResourceGroup},
		{"health_uri", in.HealthURI},
		{"version_uri", in.VersionURI},
		{"health_timeout_seconds", strconv.Itoa(in.HealthTimeoutSeconds)},
		{"expected_version_string", in.ExpectedVersion},
	} {
		logger.Info().Msgf("Input.%s: %s", input.name, input.value)
	}
}
