package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nholik/deploy-verifier/internal/report"
	"github.com/rs/zerolog"
)

func TestWebhookNotifierTemplateRendering(t *testing.T) {
	var body string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		body = string(data)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier, err := NewWebhookNotifier(zerolog.Nop(), server.URL, `{"target":"{{ .Report.App }}/{{ .Report.Slot }}","stages":{{ len .Report.Stages }}}`)
	if err != nil {
		t.Fatalf("NewWebhookNotifier error: %v", err)
	}

	if err := notifier.Notify(context.Background(), makeReport(report.OutcomeSucceeded)); err != nil {
		t.Fatalf("Notify error: %v", err)
	}

	if !strings.Contains(body, `"target":"shop/staging"`) {
		t.Fatalf("expected target in payload, got %s", body)
	}
	if !strings.Contains(body, `"stages":3`) {
		t.Fatalf("expected stage count in payload, got %s", body)
	}
}

func TestWebhookNotifierRetriesOnServerError(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count := atomic.AddInt32(&calls, 1)
		if count <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier, err := NewWebhookNotifier(zerolog.Nop(), server.URL, "")
	if err != nil {
		t.Fatalf("NewWebhookNotifier error: %v", err)
	}
	notifier.poster.timing.backoffInitial = time.Millisecond
	notifier.poster.timing.backoffMax = 2 * time.Millisecond
	notifier.poster.timing.backoffMaxElapsed = 20 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	if err := notifier.Notify(ctx, makeReport(report.OutcomeFailed)); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestWebhookNotifierInvalidTemplate(t *testing.T) {
	_, err := NewWebhookNotifier(zerolog.Nop(), "http://example.com", "{{")
	if err == nil {
		t.Fatalf("expected template error")
	}
}

func TestWebhookNotifierDefaultTemplate(t *testing.T) {
	var body []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier, err := NewWebhookNotifier(zerolog.Nop(), server.URL, "")
	if err != nil {
		t.Fatalf("NewWebhookNotifier error: %v", err)
	}
	if err := notifier.Notify(context.Background(), makeReport(report.OutcomeFailed)); err != nil {
		t.Fatalf("Notify error: %v", err)
	}

	var payload struct {
		App     string        `json:"app"`
		Slot    string        `json:"slot"`
		Outcome string        `json:"outcome"`
		Report  report.Report `json:"report"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("expected valid JSON, got %v (%s)", err, body)
	}
	if payload.App != "shop" || payload.Slot != "staging" || payload.Outcome != "FAILED" {
		t.Fatalf("unexpected payload header: %+v", payload)
	}
	if payload.Report.ExpectedVersion != "1.2.3" || len(payload.Report.Stages) != 3 {
		t.Fatalf("expected embedded report, got %+v", payload.Report)
	}
}

func TestWebhookNotifierDisabledWithoutURL(t *testing.T) {
	notifier, err := NewWebhookNotifier(zerolog.Nop(), "", "")
	if err != nil {
		t.Fatalf("NewWebhookNotifier error: %v", err)
	}
	if notifier != nil {
		t.Fatalf("expected nil notifier")
	}
	if err := notifier.Notify(context.Background(), report.Report{}); err != nil {
		t.Fatalf("nil notifier should be a no-op, got %v", err)
	}
}
