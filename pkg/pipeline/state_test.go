// pkg/pipeline/state_test.go
package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

func newState(t *testing.T) (*RunState, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "run_state.json")
	s, err := LoadRunState(path, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	return s, path
}

func TestFreshStateSkipsNothing(t *testing.T) {
	s, _ := newState(t)
	for _, stage := range StageOrder {
		if s.ShouldSkip(stage) {
			t.Errorf("fresh state skips %s", stage)
		}
	}
}

func TestShouldSkipEarlierAndCompletedStages(t *testing.T) {
	s, _ := newState(t)
	if err := s.SetRun("2026-08"); err != nil {
		t.Fatal(err)
	}
	if err := s.StartStage("consolidate"); err != nil {
		t.Fatal(err)
	}

	// Stored stage running: everything strictly before it skips, it does not.
	for _, stage := range []string{"check", "download", "extract"} {
		if !s.ShouldSkip(stage) {
			t.Errorf("stage %s before running consolidate must skip", stage)
		}
	}
	if s.ShouldSkip("consolidate") {
		t.Error("running stage must not skip")
	}
	if s.ShouldSkip("load") || s.ShouldSkip("constraints") {
		t.Error("later stages must not skip")
	}

	if err := s.CompleteStage("consolidate"); err != nil {
		t.Fatal(err)
	}
	if !s.ShouldSkip("consolidate") {
		t.Error("completed stage must skip")
	}
	if s.ShouldSkip("load") {
		t.Error("stage after completed one must not skip")
	}
}

func TestFailedStageDoesNotSkip(t *testing.T) {
	s, _ := newState(t)
	s.SetRun("2026-08")
	s.StartStage("load")
	s.FailStage("load")
	if s.ShouldSkip("load") {
		t.Error("failed stage must re-run")
	}
}

func TestStateSurvivesReload(t *testing.T) {
	s, path := newState(t)
	s.SetRun("2026-08")
	s.StartStage("download")
	s.CompleteStage("download")

	reloaded, err := LoadRunState(path, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.RunID() != "2026-08" {
		t.Errorf("run id = %q", reloaded.RunID())
	}
	if !reloaded.ShouldSkip("download") || !reloaded.ShouldSkip("check") {
		t.Error("resume lost completed progress")
	}
	if reloaded.ShouldSkip("extract") {
		t.Error("resume skips unfinished stage")
	}
	if reloaded.StageStatus("download") != StatusCompleted {
		t.Errorf("download status = %s", reloaded.StageStatus("download"))
	}
}

func TestNewRunIDResetsAllStages(t *testing.T) {
	s, _ := newState(t)
	s.SetRun("2026-07")
	s.StartStage("constraints")
	s.CompleteStage("constraints")

	if err := s.SetRun("2026-08"); err != nil {
		t.Fatal(err)
	}
	for _, stage := range StageOrder {
		if s.ShouldSkip(stage) {
			t.Errorf("new release still skips %s", stage)
		}
		if s.StageStatus(stage) != StatusPending {
			t.Errorf("stage %s status = %s, want pending", stage, s.StageStatus(stage))
		}
	}
}

func TestUnknownStageFailsSafe(t *testing.T) {
	s, _ := newState(t)
	s.SetRun("2026-08")
	s.data.Stage = "optimize" // as if written by a newer version
	s.data.Status = StatusCompleted

	for _, stage := range StageOrder {
		if s.ShouldSkip(stage) {
			t.Errorf("unknown stored stage must not skip %s", stage)
		}
	}
	if err := s.StartStage("optimize"); err == nil {
		t.Error("expected error recording unknown stage")
	}
}

func TestRunnerExecutesAndSkips(t *testing.T) {
	s, path := newState(t)
	r := NewRunner(s, zap.NewNop())

	var ran []string
	for _, stage := range []string{"check", "load"} {
		stage := stage
		if err := r.Register(stage, func(context.Context) error {
			ran = append(ran, stage)
			return nil
		}); err != nil {
			t.Fatal(err)
		}
	}

	if err := r.Run(context.Background(), "2026-08", false); err != nil {
		t.Fatal(err)
	}
	if len(ran) != 2 || ran[0] != "check" || ran[1] != "load" {
		t.Errorf("ran = %v", ran)
	}

	// A second invocation for the same release resumes past everything.
	s2, err := LoadRunState(path, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	r2 := NewRunner(s2, zap.NewNop())
	reran := false
	r2.Register("check", func(context.Context) error { reran = true; return nil })
	r2.Register("load", func(context.Context) error { reran = true; return nil })
	if err := r2.Run(context.Background(), "2026-08", false); err != nil {
		t.Fatal(err)
	}
	if reran {
		t.Error("resume re-ran completed stages")
	}

	// force overrides the skip.
	if err := r2.Run(context.Background(), "2026-08", true); err != nil {
		t.Fatal(err)
	}
	if !reran {
		t.Error("force did not re-run stages")
	}
}

func TestRunnerRecordsFailure(t *testing.T) {
	s, _ := newState(t)
	r := NewRunner(s, zap.NewNop())
	boom := errors.New("copy failed")
	r.Register("load", func(context.Context) error { return boom })

	err := r.Run(context.Background(), "2026-08", false)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if s.StageStatus("load") != StatusFailed {
		t.Errorf("load status = %s, want failed", s.StageStatus("load"))
	}
	if s.ShouldSkip("load") {
		t.Error("failed stage must not skip on retry")
	}
}

func TestRunnerRejectsUnknownStage(t *testing.T) {
	s, _ := newState(t)
	r := NewRunner(s, zap.NewNop())
	if err := r.Register("optimize", func(context.Context) error { return nil }); err == nil {
		t.Error("expected error for unknown stage")
	}
	if err := r.RunStage(context.Background(), "2026-08", "optimize", false); err == nil {
		t.Error("expected error for unknown stage")
	}
}
