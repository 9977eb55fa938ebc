package recovery

import (
	"errors"
	"fmt"

	"github.com/nholik/deploy-verifier/internal/report"
	"github.com/nholik/deploy-verifier/internal/version"
)

// FailureKind classifies a terminal verification failure.
type FailureKind string

const (
	KindUnhealthyTimeout       FailureKind = "unhealthy_timeout"
	KindVersionStatusMismatch  FailureKind = "version_status_mismatch"
	KindVersionContentMismatch FailureKind = "version_content_mismatch"
)

var (
	ErrUnhealthyTimeout       = errors.New("never became healthy")
	ErrVersionStatusMismatch  = errors.New("version endpoint returned an unexpected status")
	ErrVersionContentMismatch = errors.New("version does not match the expected result")
)

// Failure is a terminal verification failure. Use errors.Is with the Err*
// sentinels to classify it.
type Failure struct {
	Kind     FailureKind
	Stage    report.Stage
	App      string
	Status   int
	Expected string
	Actual   string
	Cause    error
}

func (f *Failure) Error() string {
	return f.Messages()[0]
}

func (f *Failure) Unwrap() error {
	switch f.Kind {
	case KindUnhealthyTimeout:
		return ErrUnhealthyTimeout
	case KindVersionStatusMismatch:
		return ErrVersionStatusMismatch
	case KindVersionContentMismatch:
		return ErrVersionContentMismatch
	}
	return nil
}

// Messages returns the human-readable lines reported for the failure. Content
// mismatches quote both the expected and the received values.
func (f *Failure) Messages() []string {
	switch f.Kind {
	case KindUnhealthyTimeout:
		return []string{fmt.Sprintf("Error: %s never became healthy!", f.App)}
	case KindVersionStatusMismatch:
		if f.Status == version.StatusTransportFailure {
			msg := fmt.Sprintf("Error: %s version endpoint request failed", f.App)
			if f.Cause != nil {
				msg = fmt.Sprintf("%s: %v", msg, f.Cause)
			}
			return []string{msg}
		}
		return []string{fmt.Sprintf("Error: %s version endpoint returned a %d status code", f.App, f.Status)}
	case KindVersionContentMismatch:
		return []string{
			fmt.Sprintf("Error: %s version doesn't match the expected result", f.App),
			fmt.Sprintf("Error: Expect %q", f.Expected),
			fmt.Sprintf("Error: Received %q", f.Actual),
		}
	}
	return []string{fmt.Sprintf("Error: %s verification failed", f.App)}
}

func statusFailure(app string, stage report.Stage, result version.Result) *Failure {
	return &Failure{
		Kind:   KindVersionStatusMismatch,
		Stage:  stage,
		App:    app,
		Status: result.Status,
		Cause:  result.Err,
	}
}
