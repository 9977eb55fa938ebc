package version

import (
	"context"
	"net/http"
	"strings"

	"github.com/nholik/deploy-verifier/internal/probe"
	"github.com/rs/zerolog"
)

// StatusTransportFailure marks a check whose request never produced a response.
// No real HTTP status uses this value.
const StatusTransportFailure = 0

// Result is the outcome of a version check.
type Result struct {
	Status    int    `json:"status"`
	IsMatched bool   `json:"is_matched"`
	Response  string `json:"response"`
	Err       error  `json:"-"`
}

// TransportFailed reports whether the request failed before any response arrived.
func (r Result) TransportFailed() bool {
	return r.Status == StatusTransportFailure
}

// Checker fetches a version endpoint once and looks for an expected string.
type Checker struct {
	logger zerolog.Logger
	prober probe.Prober
}

// NewChecker constructs a Checker on top of the given prober.
func NewChecker(logger zerolog.Logger, prober probe.Prober) *Checker {
	return &Checker{logger: logger, prober: prober}
}

// Check performs exactly one probe. The match is exact and case-sensitive and
// only counts for a 200 response.
func (c *Checker) Check(ctx context.Context, url string, expected string) Result {
	outcome := c.prober.Probe(ctx, url)

	result := Result{
		Status:   outcome.StatusCode,
		Response: outcome.Body,
		Err:      outcome.Err,
	}
	if outcome.StatusCode <= 0 {
		result.Status = StatusTransportFailure
		result.Response = ""
	}
	result.IsMatched = Matches(result.Status, result.Response, expected)

	event := c.logger.Info().
		Str("url", url).
		Int("status", result.Status).
		Bool("matched", result.IsMatched)
	if result.Err != nil {
		event = event.Err(result.Err)
	}
	event.Msg("version check completed")

	return result
}

// Matches applies the version match rule to a status and body.
func Matches(status int, body, expected string) bool {
	return status == http.StatusOK && strings.Contains(body, expected)
}
