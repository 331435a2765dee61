// pkg/pipeline/runner.go
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// StageFunc executes one pipeline stage.
type StageFunc func(ctx context.Context) error

// Runner walks the fixed stage order against the persisted run state,
// skipping stages a previous invocation already completed for the same
// release. Stages with no registered function (external collaborators) are
// passed over without touching the state.
type Runner struct {
	state  *RunState
	logger *zap.Logger
	stages map[string]StageFunc
}

// NewRunner builds a runner over a run state.
func NewRunner(state *RunState, logger *zap.Logger) *Runner {
	return &Runner{
		state:  state,
		logger: logger.Named("runner"),
		stages: make(map[string]StageFunc),
	}
}

// Register binds a function to a stage name.
func (r *Runner) Register(stage string, fn StageFunc) error {
	if stageIndex(stage) < 0 {
		return fmt.Errorf("unknown stage %q", stage)
	}
	r.stages[stage] = fn
	return nil
}

// Run executes every registered stage in order for the given release.
// force re-runs stages the state already marks completed.
func (r *Runner) Run(ctx context.Context, runID string, force bool) error {
	if err := r.state.SetRun(runID); err != nil {
		return err
	}
	for _, stage := range StageOrder {
		if err := r.runStage(ctx, stage, force); err != nil {
			return err
		}
	}
	return nil
}

// RunStage executes a single stage for the given release, honoring the
// same skip rules as a full run.
func (r *Runner) RunStage(ctx context.Context, runID, stage string, force bool) error {
	if stageIndex(stage) < 0 {
		return fmt.Errorf("unknown stage %q", stage)
	}
	if err := r.state.SetRun(runID); err != nil {
		return err
	}
	return r.runStage(ctx, stage, force)
}

func (r *Runner) runStage(ctx context.Context, stage string, force bool) error {
	fn, registered := r.stages[stage]
	if !registered {
		r.logger.Debug("Stage has no registered function", zap.String("stage", stage))
		return nil
	}
	if !force && r.state.ShouldSkip(stage) {
		r.logger.Info("Skipping completed stage",
			zap.String("stage", stage),
			zap.String("run", r.state.RunID()))
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r.logger.Info("Starting stage",
		zap.String("stage", stage),
		zap.String("run", r.state.RunID()))
	if err := r.state.StartStage(stage); err != nil {
		return err
	}

	start := time.Now()
	if err := fn(ctx); err != nil {
		if serr := r.state.FailStage(stage); serr != nil {
			r.logger.Error("Failed to record stage failure", zap.Error(serr))
		}
		return fmt.Errorf("stage %s: %w", stage, err)
	}

	if err := r.state.CompleteStage(stage); err != nil {
		return err
	}
	r.logger.Info("Completed stage",
		zap.String("stage", stage),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}
