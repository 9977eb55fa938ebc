package notify

import (
	"context"

	"github.com/nholik/deploy-verifier/internal/report"
	"github.com/rs/zerolog"
)

// DryRunNotifier logs reports without sending notifications.
type DryRunNotifier struct {
	logger zerolog.Logger
	inner  Notifier
}

// NewDryRunNotifier returns a notifier that suppresses delivery and logs instead.
func NewDryRunNotifier(logger zerolog.Logger, inner Notifier) *DryRunNotifier {
	return &DryRunNotifier{logger: logger, inner: inner}
}

// Notify implements Notifier.
func (n *DryRunNotifier) Notify(_ context.Context, rep report.Report) error {
	n.logger.Info().
		Str("app", rep.App).
		Str("slot", rep.Slot).
		Str("outcome", string(rep.Outcome)).
		Bool("restarted", rep.Restarted).
		Strs("messages", rep.Messages).
		Msg("[DRY-RUN] Would notify")
	return nil
}
