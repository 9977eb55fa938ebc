package report

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestFileStore_Save(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "nested", "report.json")
	store := NewFileStore(path, zerolog.Nop())

	start := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	rep := Report{
		App:             "shop",
		Slot:            "staging",
		ExpectedVersion: "1.2.3",
		Outcome:         OutcomeFailed,
		FailureKind:     "version_content_mismatch",
		Messages:        []string{"Error: shop version doesn't match the expected result"},
		Restarted:       true,
		Stages: []StageRecord{
			{Stage: StageInitialHealthCheck, StartedAt: start, Passed: true},
			{Stage: StageInitialVersionCheck, StartedAt: start.Add(time.Second)},
		},
		InitialVersion: &VersionCheck{Status: 200, Response: "1.2.2"},
		StartedAt:      start,
		FinishedAt:     start.Add(5 * time.Second),
	}

	if err := store.Save(context.Background(), rep); err != nil {
		t.Fatalf("save report: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}

	var loaded Report
	if err := json.Unmarshal(data, &loaded); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if loaded.Outcome != OutcomeFailed || loaded.App != "shop" || !loaded.Restarted {
		t.Fatalf("unexpected report: %+v", loaded)
	}
	if loaded.InitialVersion == nil || loaded.InitialVersion.Response != "1.2.2" {
		t.Fatalf("initial version not persisted: %+v", loaded.InitialVersion)
	}
	if len(loaded.Stages) != 2 {
		t.Fatalf("expected 2 stages, got %d", len(loaded.Stages))
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected temp files to be cleaned up, got %d entries", len(entries))
	}
}

func TestFileStore_SaveCanceledContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	store := NewFileStore(path, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := store.Save(ctx, Report{}); err == nil {
		t.Fatalf("expected error for canceled context")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected no report file, got %v", err)
	}
}

func TestReport_LastStageAndDuration(t *testing.T) {
	var empty Report
	if empty.LastStage() != StageInitialHealthCheck {
		t.Fatalf("unexpected last stage for empty report: %s", empty.LastStage())
	}
	if empty.Duration() != 0 {
		t.Fatalf("expected zero duration")
	}

	start := time.Now()
	rep := Report{
		Stages: []StageRecord{
			{Stage: StageInitialHealthCheck},
			{Stage: StageInitialVersionCheck},
			{Stage: StageRestarting},
			{Stage: StageDone},
		},
		StartedAt:  start,
		FinishedAt: start.Add(3 * time.Second),
	}
	if rep.LastStage() != StageRestarting {
		t.Fatalf("expected restarting, got %s", rep.LastStage())
	}
	if rep.Duration() != 3*time.Second {
		t.Fatalf("unexpected duration %s", rep.Duration())
	}
}
