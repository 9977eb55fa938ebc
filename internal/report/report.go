package report

import (
	"context"
	"time"
)

// Outcome is the final verdict of a verification run.
type Outcome string

const (
	OutcomeSucceeded Outcome = "SUCCEEDED"
	OutcomeFailed    Outcome = "FAILED"
)

// Stage names a step of the verification state machine.
type Stage string

const (
	StageInitialHealthCheck      Stage = "initial_health_check"
	StageInitialVersionCheck     Stage = "initial_version_check"
	StageRestarting              Stage = "restarting"
	StagePostRestartHealthCheck  Stage = "post_restart_health_check"
	StagePostRestartVersionCheck Stage = "post_restart_version_check"
	StageDone                    Stage = "done"
)

// StageRecord captures one executed stage.
type StageRecord struct {
	Stage     Stage         `json:"stage"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration_ns"`
	Passed    bool          `json:"passed"`
	Detail    string        `json:"detail,omitempty"`
}

// VersionCheck is the persisted form of a version check result.
type VersionCheck struct {
	Status    int    `json:"status"`
	IsMatched bool   `json:"is_matched"`
	Response  string `json:"response"`
	Error     string `json:"error,omitempty"`
}

// Report summarizes a verification run.
type Report struct {
	App             string        `json:"app"`
	Slot            string        `json:"slot"`
	HealthURL       string        `json:"health_url"`
	VersionURL      string        `json:"version_url"`
	ExpectedVersion string        `json:"expected_version"`
	Outcome         Outcome       `json:"outcome"`
	FailureKind     string        `json:"failure_kind,omitempty"`
	Messages        []string      `json:"messages,omitempty"`
	Stages          []StageRecord `json:"stages"`
	Restarted       bool          `json:"restarted"`
	RestartError    string        `json:"restart_error,omitempty"`
	InitialVersion  *VersionCheck `json:"initial_version,omitempty"`
	FinalVersion    *VersionCheck `json:"final_version,omitempty"`
	StartedAt       time.Time     `json:"started_at"`
	FinishedAt      time.Time     `json:"finished_at"`
}

// Succeeded reports whether the run passed.
func (r Report) Succeeded() bool {
	return r.Outcome == OutcomeSucceeded
}

// LastStage returns the last stage entered, or StageInitialHealthCheck when none ran.
func (r Report) LastStage() Stage {
	for i := len(r.Stages) - 1; i >= 0; i-- {
		if r.Stages[i].Stage != StageDone {
			return r.Stages[i].Stage
		}
	}
	return StageInitialHealthCheck
}

// Duration is the wall time of the run.
func (r Report) Duration() time.Duration {
	if r.FinishedAt.IsZero() || r.StartedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Store persists run reports.
type Store interface {
	Save(ctx context.Context, rep Report) error
}
