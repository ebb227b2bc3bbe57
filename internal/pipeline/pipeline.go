// Package pipeline executes the churn task graph: it plans the declared
// stages, runs them in dependency order, retries transient failures once,
// and reports a per-stage status summary for the whole run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/meridian-labs/meridian-go/internal/artifact"
	"github.com/meridian-labs/meridian-go/internal/domain"
	"github.com/meridian-labs/meridian-go/internal/pipeline/plan"
)

// StageFunc is the executable transform of a stage. It reads its declared
// inputs from the artifact store and writes its declared outputs; it must
// not mutate inputs in place.
type StageFunc func(ctx context.Context, rc *RunContext) error

// Stage couples the declarative spec with its transform.
type Stage struct {
	domain.StageSpec
	Run StageFunc
}

// RunParams are the run-scoped parameters propagated to every stage.
type RunParams struct {
	Mode domain.SourceMode
	Tag  string
}

// RunContext is handed to each stage invocation.
type RunContext struct {
	RunID  string
	Params RunParams
	Store  artifact.Store
	Logger *slog.Logger
}

// AttemptRecord is one stage invocation outcome, persisted by a Recorder.
type AttemptRecord struct {
	RunID        string
	Stage        string
	Attempt      int
	Status       string
	StartedAt    time.Time
	DurationMs   int64
	ErrorMessage string
}

// Recorder receives every stage attempt. Implementations must not fail the
// run; recording errors are logged and dropped.
type Recorder interface {
	RecordAttempt(ctx context.Context, record AttemptRecord) error
}

type nopRecorder struct{}

func (nopRecorder) RecordAttempt(context.Context, AttemptRecord) error { return nil }

// Runner drives one pipeline run at a time. Run-scoped state lives in the
// summary it returns; the Runner itself holds only wiring.
type Runner struct {
	logger            *slog.Logger
	store             artifact.Store
	recorder          Recorder
	continueOnWarning bool
	now               func() time.Time
	newRunID          func() string
}

type Option func(*Runner)

// WithRecorder attaches a stage attempt sink (for example the SQL run log).
func WithRecorder(recorder Recorder) Option {
	return func(r *Runner) {
		if recorder != nil {
			r.recorder = recorder
		}
	}
}

// WithContinueOnWarning downgrades validation failures from fatal to a
// warning outcome that does not block dependents.
func WithContinueOnWarning(enabled bool) Option {
	return func(r *Runner) { r.continueOnWarning = enabled }
}

func NewRunner(logger *slog.Logger, store artifact.Store, opts ...Option) (*Runner, error) {
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	if store == nil {
		return nil, errors.New("artifact store is required")
	}
	r := &Runner{
		logger:   logger,
		store:    store,
		recorder: nopRecorder{},
		now:      time.Now,
		newRunID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Execute plans and runs the stage collection. A cycle or other structural
// defect fails before any stage executes. Stage failures do not abort the
// walk: independent branches still run, dependents are skipped and marked
// upstream_failed, and the summary enumerates every stage's terminal status.
func (r *Runner) Execute(ctx context.Context, params RunParams, stages []Stage) (domain.RunSummary, error) {
	mode, err := domain.ParseSourceMode(string(params.Mode))
	if err != nil {
		return domain.RunSummary{}, err
	}
	params.Mode = mode

	specs := make([]domain.StageSpec, 0, len(stages))
	byName := make(map[string]Stage, len(stages))
	for _, stage := range stages {
		if stage.Run == nil {
			return domain.RunSummary{}, fmt.Errorf("stage %q has no transform", stage.Name)
		}
		specs = append(specs, stage.StageSpec)
		byName[stage.Name] = stage
	}

	built, err := plan.Build(specs)
	if err != nil {
		return domain.RunSummary{}, err
	}

	summary := domain.RunSummary{
		RunID:     r.newRunID(),
		Mode:      params.Mode,
		StartedAt: r.now().UTC(),
	}
	logger := r.logger.With("run_id", summary.RunID, "mode", string(params.Mode))
	logger.Info("pipeline run started", "stages", built.StageNames())

	rc := &RunContext{
		RunID:  summary.RunID,
		Params: params,
		Store:  r.store,
		Logger: logger,
	}

	outcomes := make(map[string]domain.StageOutcome, len(built.Ordered))
	for _, spec := range built.Ordered {
		// Cancellation is honored between stages only; completed artifacts
		// stay valid for a later run.
		if err := ctx.Err(); err != nil {
			summary.EndedAt = r.now().UTC()
			summary.Status = domain.RunStatusPartialFailure
			return summary, fmt.Errorf("run aborted before stage %q: %w", spec.Name, err)
		}

		result := r.executeStage(ctx, rc, logger, byName[spec.Name], built.Deps[spec.Name], outcomes)
		outcomes[spec.Name] = result.Outcome
		summary.Stages = append(summary.Stages, result)
	}

	summary.EndedAt = r.now().UTC()
	summary.Status = domain.RunStatusSuccess
	for _, result := range summary.Stages {
		if !result.Outcome.Success() {
			summary.Status = domain.RunStatusPartialFailure
			break
		}
	}
	logger.Info("pipeline run finished",
		"status", string(summary.Status),
		"duration", summary.EndedAt.Sub(summary.StartedAt).String(),
		"failed_stages", summary.Failed(),
	)
	return summary, nil
}

func (r *Runner) executeStage(ctx context.Context, rc *RunContext, logger *slog.Logger, stage Stage, deps []string, outcomes map[string]domain.StageOutcome) domain.StageResult {
	var blocked []string
	for _, dep := range deps {
		if !outcomes[dep].Success() {
			blocked = append(blocked, dep)
		}
	}
	if len(blocked) > 0 {
		logger.Warn("stage skipped", "stage", stage.Name, "failed_upstream", blocked)
		record := AttemptRecord{
			RunID:        rc.RunID,
			Stage:        stage.Name,
			Attempt:      0,
			Status:       string(domain.StageUpstreamFailed),
			StartedAt:    r.now().UTC(),
			ErrorMessage: "upstream failed: " + strings.Join(blocked, ", "),
		}
		r.record(ctx, logger, record)
		return domain.StageResult{
			Stage:   stage.Name,
			Outcome: domain.StageUpstreamFailed,
			Error:   record.ErrorMessage,
		}
	}

	if err := r.checkInputs(ctx, rc, stage); err != nil {
		logger.Error("stage inputs missing", "stage", stage.Name, "error", err)
		record := AttemptRecord{
			RunID:        rc.RunID,
			Stage:        stage.Name,
			Attempt:      1,
			Status:       string(domain.StageFailed),
			StartedAt:    r.now().UTC(),
			ErrorMessage: err.Error(),
		}
		r.record(ctx, logger, record)
		return domain.StageResult{
			Stage:    stage.Name,
			Outcome:  domain.StageFailed,
			Attempts: 1,
			Error:    err.Error(),
		}
	}

	maxAttempts := stage.MaxAttempts()
	var total time.Duration
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		start := r.now()
		logger.Info("stage started", "stage", stage.Name, "attempt", attempt)
		err := stage.Run(ctx, rc)
		duration := r.now().Sub(start)
		total += duration

		record := AttemptRecord{
			RunID:      rc.RunID,
			Stage:      stage.Name,
			Attempt:    attempt,
			StartedAt:  start.UTC(),
			DurationMs: duration.Milliseconds(),
		}

		switch {
		case err == nil:
			record.Status = string(domain.StageSucceeded)
			r.record(ctx, logger, record)
			logger.Info("stage succeeded", "stage", stage.Name, "attempt", attempt, "duration", duration.String())
			return domain.StageResult{
				Stage:    stage.Name,
				Outcome:  domain.StageSucceeded,
				Attempts: attempt,
				Duration: total,
			}

		case errors.Is(err, domain.ErrValidationFailed) && r.continueOnWarning:
			record.Status = string(domain.StageWarned)
			record.ErrorMessage = err.Error()
			r.record(ctx, logger, record)
			logger.Warn("stage reported data-quality warnings", "stage", stage.Name, "error", err)
			return domain.StageResult{
				Stage:    stage.Name,
				Outcome:  domain.StageWarned,
				Attempts: attempt,
				Duration: total,
				Error:    err.Error(),
			}

		case attempt < maxAttempts:
			record.Status = "retried"
			record.ErrorMessage = err.Error()
			r.record(ctx, logger, record)
			logger.Warn("stage failed, retrying", "stage", stage.Name, "attempt", attempt, "error", err)

		default:
			record.Status = string(domain.StageFailed)
			record.ErrorMessage = err.Error()
			r.record(ctx, logger, record)
			logger.Error("stage failed", "stage", stage.Name, "attempts", attempt, "error", err)
			return domain.StageResult{
				Stage:    stage.Name,
				Outcome:  domain.StageFailed,
				Attempts: attempt,
				Duration: total,
				Error:    err.Error(),
			}
		}
	}
	// Unreachable: the attempt loop always returns.
	return domain.StageResult{Stage: stage.Name, Outcome: domain.StageFailed}
}

func (r *Runner) checkInputs(ctx context.Context, rc *RunContext, stage Stage) error {
	for _, name := range stage.Consumes {
		exists, err := rc.Store.Exists(ctx, name)
		if err != nil {
			return fmt.Errorf("stat input %s: %w", name, err)
		}
		if !exists {
			return fmt.Errorf("%w: stage %q input %s", domain.ErrMissingInput, stage.Name, name)
		}
	}
	return nil
}

func (r *Runner) record(ctx context.Context, logger *slog.Logger, record AttemptRecord) {
	if err := r.recorder.RecordAttempt(ctx, record); err != nil {
		logger.Warn("attempt record dropped", "stage", record.Stage, "error", err)
	}
}
