package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"text/template"
	"time"

	"github.com/nholik/deploy-verifier/internal/report"
	"github.com/rs/zerolog"
)

const defaultWebhookTemplate = `{"app":{{ toJson .Report.App }},"slot":{{ toJson .Report.Slot }},"outcome":{{ toJson .Report.Outcome }},"report":{{ toJson .Report }}}`

// WebhookPayload is the template context for webhook notifications.
type WebhookPayload struct {
	Report      report.Report
	GeneratedAt time.Time
}

// WebhookNotifier sends verification reports to a generic webhook.
type WebhookNotifier struct {
	logger   zerolog.Logger
	template *template.Template
	poster   *httpPoster
}

// NewWebhookNotifier creates a webhook notifier with the provided template.
// It returns nil when webhookURL is empty.
func NewWebhookNotifier(logger zerolog.Logger, webhookURL string, tmpl string) (*WebhookNotifier, error) {
	if webhookURL == "" {
		return nil, nil
	}
	if tmpl == "" {
		tmpl = defaultWebhookTemplate
	}

	parsed, err := template.New("webhook").Funcs(template.FuncMap{
		"toJson": func(v any) (string, error) {
			encoded, err := json.Marshal(v)
			if err != nil {
				return "", err
			}
			return string(encoded), nil
		},
	}).Parse(tmpl)
	if err != nil {
		return nil, fmt.Errorf("parse webhook template: %w", err)
	}

	return &WebhookNotifier{
		logger:   logger,
		template: parsed,
		poster:   newHTTPPoster(logger, "webhook", webhookURL, "application/json", defaultTiming),
	}, nil
}

// Notify implements Notifier.
func (n *WebhookNotifier) Notify(ctx context.Context, rep report.Report) error {
	if n == nil {
		return nil
	}

	key := reportKey(rep)
	if err := n.poster.waitForRateLimit(ctx, key); err != nil {
		return err
	}

	payload := WebhookPayload{
		Report:      rep,
		GeneratedAt: time.Now().UTC(),
	}

	var buf bytes.Buffer
	if err := n.template.Execute(&buf, payload); err != nil {
		return fmt.Errorf("render webhook template: %w", err)
	}

	if err := n.poster.postWithRetry(ctx, buf.Bytes()); err != nil {
		return err
	}

	n.logger.Debug().
		Str("report_key", key).
		Str("outcome", string(rep.Outcome)).
		Msg("webhook notification sent")

	return nil
}
