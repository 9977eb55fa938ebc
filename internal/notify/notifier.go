package notify

import (
	"context"

	"github.com/nholik/deploy-verifier/internal/report"
)

// Notifier delivers verification reports to external systems.
type Notifier interface {
	Notify(ctx context.Context, rep report.Report) error
}

func reportKey(rep report.Report) string {
	if rep.App == "" {
		return "default"
	}
	if rep.Slot == "" {
		return rep.App
	}
	return rep.App + "/" + rep.Slot
}
