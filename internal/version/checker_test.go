package version

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nholik/deploy-verifier/internal/probe"
	"github.com/rs/zerolog"
)

type stubProber struct {
	result probe.Result
	calls  int
}

func (p *stubProber) Probe(context.Context, string) probe.Result {
	p.calls++
	return p.result
}

func TestCheck_MatchRules(t *testing.T) {
	cases := []struct {
		name     string
		result   probe.Result
		expected string
		want     Result
	}{
		{
			name:     "200 containing expected",
			result:   probe.Result{Succeeded: true, StatusCode: 200, Body: `{"build":"2024.05.1"}`},
			expected: "2024.05.1",
			want:     Result{Status: 200, IsMatched: true, Response: `{"build":"2024.05.1"}`},
		},
		{
			name:     "200 missing expected",
			result:   probe.Result{Succeeded: true, StatusCode: 200, Body: `{"build":"2024.04.9"}`},
			expected: "2024.05.1",
			want:     Result{Status: 200, Response: `{"build":"2024.04.9"}`},
		},
		{
			name:     "case sensitive",
			result:   probe.Result{Succeeded: true, StatusCode: 200, Body: "Release-ABC"},
			expected: "release-abc",
			want:     Result{Status: 200, Response: "Release-ABC"},
		},
		{
			name:     "other 2xx does not match",
			result:   probe.Result{Succeeded: true, StatusCode: 203, Body: "v1"},
			expected: "v1",
			want:     Result{Status: 203, Response: "v1"},
		},
		{
			name:     "500 with expected body does not match",
			result:   probe.Result{StatusCode: 500, Body: "v1 crashed"},
			expected: "v1",
			want:     Result{Status: 500, Response: "v1 crashed"},
		},
		{
			name:     "empty body",
			result:   probe.Result{Succeeded: true, StatusCode: 200},
			expected: "v1",
			want:     Result{Status: 200},
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			prober := &stubProber{result: tc.result}
			got := NewChecker(zerolog.Nop(), prober).Check(context.Background(), "http://app/version", tc.expected)

			if got != tc.want {
				t.Fatalf("got %+v, want %+v", got, tc.want)
			}
			if prober.calls != 1 {
				t.Fatalf("expected exactly one probe, got %d", prober.calls)
			}
		})
	}
}

func TestCheck_TransportFailureNeverMatches(t *testing.T) {
	transportErr := errors.New("dial tcp: connection refused")
	prober := &stubProber{result: probe.Result{Err: transportErr}}

	got := NewChecker(zerolog.Nop(), prober).Check(context.Background(), "http://app/version", "")
	if got.IsMatched {
		t.Fatalf("transport failure must never match")
	}
	if !got.TransportFailed() {
		t.Fatalf("expected transport sentinel status, got %d", got.Status)
	}
	if !errors.Is(got.Err, transportErr) {
		t.Fatalf("expected transport error to be kept, got %v", got.Err)
	}
}

func TestMatches_BodyWithoutSubstringNeverMatches(t *testing.T) {
	statuses := []int{0, 100, 200, 201, 204, 301, 404, 500, 503}
	bodies := []string{"", "v1.2", "V1.2.3", "build 1.2.4", "1.2 .3"}
	for _, status := range statuses {
		for _, body := range bodies {
			if Matches(status, body, "v1.2.3") {
				t.Fatalf("Matches(%d, %q) = true, want false", status, body)
			}
		}
	}
}

func TestMatches_OnlyStatus200(t *testing.T) {
	for status := 100; status < 600; status++ {
		got := Matches(status, "version v1.2.3 deployed", "v1.2.3")
		if got != (status == http.StatusOK) {
			t.Fatalf("Matches(%d) = %v", status, got)
		}
	}
}

func TestCheck_AgainstServer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"version":"1.4.0+sha.abc123"}`))
	}))
	defer server.Close()

	checker := NewChecker(zerolog.Nop(), probe.NewHTTPProber(time.Second))
	got := checker.Check(context.Background(), server.URL, "sha.abc123")
	if !got.IsMatched || got.Status != http.StatusOK {
		t.Fatalf("expected match, got %+v", got)
	}
	if !strings.Contains(got.Response, "1.4.0") {
		t.Fatalf("expected raw body, got %q", got.Response)
	}
}
