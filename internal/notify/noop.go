package notify

import (
	"context"

	"github.com/nholik/deploy-verifier/internal/report"
	"github.com/rs/zerolog"
)

// NoopNotifier drops reports, noting each one at debug level.
type NoopNotifier struct {
	logger zerolog.Logger
	reason string
}

// NewNoop returns a notifier that delivers nothing. reason explains why
// notifications are off.
func NewNoop(logger zerolog.Logger, reason string) *NoopNotifier {
	return &NoopNotifier{logger: logger, reason: reason}
}

// Notify implements Notifier.
func (n *NoopNotifier) Notify(_ context.Context, rep report.Report) error {
	n.logger.Debug().
		Str("report_key", reportKey(rep)).
		Str("reason", n.reason).
		Msg("notification skipped")
	return nil
}
