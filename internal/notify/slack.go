package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nholik/deploy-verifier/internal/report"
	"github.com/rs/zerolog"
	"github.com/slack-go/slack"
)

// slackMaxTextLen keeps section text under Slack's 3000 character limit.
const slackMaxTextLen = 2900

type SlackNotifier struct {
	logger     zerolog.Logger
	webhookURL string
	timing     timingConfig
	poster     *httpPoster
}

// SlackOption customizes SlackNotifier behavior.
type SlackOption func(*SlackNotifier)

// WithSlackTiming overrides timing parameters (primarily for testing).
func WithSlackTiming(rateInterval time.Duration, rateBurst int, backoffInitial, backoffMax, backoffMaxElapsed time.Duration) SlackOption {
	return func(s *SlackNotifier) {
		s.timing.rateInterval = rateInterval
		s.timing.rateBurst = rateBurst
		s.timing.backoffInitial = backoffInitial
		s.timing.backoffMax = backoffMax
		s.timing.backoffMaxElapsed = backoffMaxElapsed
	}
}

// NewSlackNotifier creates a Slack notifier or a noop notifier when the webhook is empty.
func NewSlackNotifier(logger zerolog.Logger, webhookURL string, opts ...SlackOption) Notifier {
	if webhookURL == "" {
		return NewNoop(logger, "slack webhook not configured; notifications disabled")
	}

	notifier := &SlackNotifier{
		logger:     logger,
		webhookURL: webhookURL,
		timing:     defaultTiming,
	}

	for _, opt := range opts {
		opt(notifier)
	}

	notifier.poster = newHTTPPoster(logger, "slack", webhookURL, "application/json", notifier.timing)

	return notifier
}

// Notify implements Notifier.
func (n *SlackNotifier) Notify(ctx context.Context, rep report.Report) error {
	key := reportKey(rep)
	if err := n.poster.waitForRateLimit(ctx, key); err != nil {
		return err
	}

	payload, err := json.Marshal(buildSlackMessage(rep))
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}
	if err := n.poster.postWithRetry(ctx, payload); err != nil {
		return err
	}

	n.logger.Debug().
		Str("report_key", key).
		Str("outcome", string(rep.Outcome)).
		Msg("slack notification sent")

	return nil
}

func (n *SlackNotifier) postOnce(ctx context.Context, payload []byte) error {
	return n.poster.postOnce(ctx, payload)
}

func buildSlackMessage(rep report.Report) slack.WebhookMessage {
	summary := fmt.Sprintf("Deployment verification %s: %s", outcomeLabel(rep.Outcome), reportKey(rep))
	header := slack.NewHeaderBlock(slack.NewTextBlockObject("plain_text", summary, false, false))

	contextElements := []slack.MixedElement{
		slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("App: *%s*", rep.App), false, false),
		slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("Slot: *%s*", slotLabel(rep.Slot)), false, false),
		slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("Expected: `%s`", rep.ExpectedVersion), false, false),
	}
	if rep.Restarted {
		contextElements = append(contextElements, slack.NewTextBlockObject("mrkdwn", "Restarted: *yes*", false, false))
	}
	contextBlock := slack.NewContextBlock("", contextElements...)

	blocks := []slack.Block{header, contextBlock, buildStagesBlock(rep.Stages)}
	if len(rep.Messages) > 0 {
		text := truncate(strings.Join(rep.Messages, "\n"), slackMaxTextLen)
		blocks = append(blocks, slack.NewSectionBlock(
			slack.NewTextBlockObject("mrkdwn", "```"+text+"```", false, false), nil, nil))
	}
	if rep.RestartError != "" {
		blocks = append(blocks, slack.NewSectionBlock(
			slack.NewTextBlockObject("mrkdwn", "*Restart error:* "+truncate(rep.RestartError, slackMaxTextLen), false, false), nil, nil))
	}

	blockSet := slack.Blocks{BlockSet: blocks}
	return slack.WebhookMessage{
		Text:   summary,
		Blocks: &blockSet,
	}
}

func buildStagesBlock(stages []report.StageRecord) slack.Block {
	fields := make([]*slack.TextBlockObject, 0, len(stages))
	for _, stage := range stages {
		if stage.Stage == report.StageDone {
			continue
		}
		mark := "✅"
		if !stage.Passed {
			mark = "❌"
		}
		text := fmt.Sprintf("%s *%s* (%s)", mark, stage.Stage, stage.Duration.Round(time.Millisecond))
		if stage.Detail != "" {
			text += "\n" + truncate(stage.Detail, 200)
		}
		fields = append(fields, slack.NewTextBlockObject("mrkdwn", text, false, false))
	}
	title := slack.NewTextBlockObject("mrkdwn", "*Stages*", false, false)
	if len(fields) == 0 {
		return slack.NewSectionBlock(title, nil, nil)
	}
	return slack.NewSectionBlock(title, fields, nil)
}

func outcomeLabel(outcome report.Outcome) string {
	if outcome == "" {
		return "UNKNOWN"
	}
	return string(outcome)
}

func slotLabel(slot string) string {
	if slot == "" {
		return "production"
	}
	return slot
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
