// pkg/pipeline/state.go
package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// Status is a stage outcome in the run state file.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// StageOrder is the fixed stage sequence of one release run. Stages before
// load are external collaborators; the state machine orders and remembers
// them without knowing what they do.
var StageOrder = []string{
	"check",
	"download",
	"extract",
	"consolidate",
	"load",
	"constraints",
}

// stageIndex returns a stage's position, or -1 for unknown names.
func stageIndex(stage string) int {
	for i, s := range StageOrder {
		if s == stage {
			return i
		}
	}
	return -1
}

// stateData is the persisted document. Stage and Status track the furthest
// stage reached; Stages keeps per-stage outcomes for inspection.
type stateData struct {
	RunID     string            `json:"run_id"`
	Stage     string            `json:"stage"`
	Status    Status            `json:"status"`
	Stages    map[string]Status `json:"stages"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// RunState is the durable resume record of one release run. It is owned by
// a single process; concurrent writers are out of scope.
type RunState struct {
	path   string
	logger *zap.Logger
	data   stateData
}

// LoadRunState reads the state file, starting fresh when it does not exist.
func LoadRunState(path string, logger *zap.Logger) (*RunState, error) {
	s := &RunState{
		path:   path,
		logger: logger,
		data:   stateData{Stages: make(map[string]Status)},
	}
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading state file: %w", err)
	}
	if err := json.Unmarshal(raw, &s.data); err != nil {
		return nil, fmt.Errorf("decoding state file %s: %w", path, err)
	}
	if s.data.Stages == nil {
		s.data.Stages = make(map[string]Status)
	}
	return s, nil
}

// RunID returns the stored release identifier.
func (s *RunState) RunID() string {
	return s.data.RunID
}

// StageStatus returns the recorded status of a stage, defaulting to pending.
func (s *RunState) StageStatus(stage string) Status {
	if st, ok := s.data.Stages[stage]; ok {
		return st
	}
	return StatusPending
}

// SetRun binds the state to a release identifier. A different identifier
// than the stored one invalidates all prior progress.
func (s *RunState) SetRun(runID string) error {
	if s.data.RunID == runID {
		return nil
	}
	if s.logger != nil && s.data.RunID != "" {
		s.logger.Info("New release identifier, resetting stages",
			zap.String("previous", s.data.RunID),
			zap.String("current", runID))
	}
	s.data = stateData{
		RunID:  runID,
		Stages: make(map[string]Status),
	}
	return s.persist()
}

// StartStage records a stage as running and advances the stage pointer.
func (s *RunState) StartStage(stage string) error {
	return s.update(stage, StatusRunning)
}

// CompleteStage records a stage as completed.
func (s *RunState) CompleteStage(stage string) error {
	return s.update(stage, StatusCompleted)
}

// FailStage records a stage as failed.
func (s *RunState) FailStage(stage string) error {
	return s.update(stage, StatusFailed)
}

func (s *RunState) update(stage string, status Status) error {
	if stageIndex(stage) < 0 {
		return fmt.Errorf("unknown stage %q", stage)
	}
	s.data.Stage = stage
	s.data.Status = status
	s.data.Stages[stage] = status
	return s.persist()
}

// ShouldSkip reports whether a stage already ran for this release: true iff
// the stored stage sits strictly after the queried one in the fixed order,
// or is the same stage recorded as completed. Unrecognized stored stages
// fail safe to not skipping.
func (s *RunState) ShouldSkip(stage string) bool {
	stored := stageIndex(s.data.Stage)
	queried := stageIndex(stage)
	if stored < 0 || queried < 0 {
		return false
	}
	if stored > queried {
		return true
	}
	return stored == queried && s.data.Status == StatusCompleted
}

func (s *RunState) persist() error {
	s.data.UpdatedAt = time.Now().UTC()
	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating state directory: %w", err)
		}
	}
	// Write-then-rename keeps the state readable if the process dies
	// mid-write.
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("writing state file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replacing state file: %w", err)
	}
	return nil
}
