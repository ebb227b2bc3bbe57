package domain

import (
	"fmt"
	"strings"
	"time"
)

// SourceMode selects where the pipeline acquires its raw inputs.
type SourceMode string

const (
	// ModeSynthetic generates raw records locally with a deterministic seed.
	ModeSynthetic SourceMode = "synthetic"
	// ModeExternal downloads the published churn dataset over HTTP.
	ModeExternal SourceMode = "external"
)

// ParseSourceMode maps a free-form flag value to a SourceMode.
func ParseSourceMode(value string) (SourceMode, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case string(ModeSynthetic), "":
		return ModeSynthetic, nil
	case string(ModeExternal):
		return ModeExternal, nil
	default:
		return "", fmt.Errorf("unknown data source %q (must be %q or %q)", value, ModeSynthetic, ModeExternal)
	}
}

// RunStatus is the terminal status of a whole pipeline run.
type RunStatus string

const (
	RunStatusSuccess        RunStatus = "success"
	RunStatusPartialFailure RunStatus = "partial_failure"
)

// StageOutcome is the terminal outcome of a single stage within a run.
type StageOutcome string

const (
	StageSucceeded StageOutcome = "succeeded"
	StageFailed    StageOutcome = "failed"
	// StageUpstreamFailed marks a stage that was never invoked because a
	// declared dependency did not succeed.
	StageUpstreamFailed StageOutcome = "upstream_failed"
	// StageWarned marks a validation stage whose checks failed while the run
	// was configured to continue on warning.
	StageWarned StageOutcome = "warned"
)

// Success reports whether the outcome allows dependents to execute.
func (o StageOutcome) Success() bool {
	return o == StageSucceeded || o == StageWarned
}

// StageResult is the per-stage entry of a run summary.
type StageResult struct {
	Stage    string
	Outcome  StageOutcome
	Attempts int
	Duration time.Duration
	Error    string
}

// RunSummary enumerates the terminal status of every stage of one run.
type RunSummary struct {
	RunID     string
	Mode      SourceMode
	Status    RunStatus
	StartedAt time.Time
	EndedAt   time.Time
	Stages    []StageResult
}

// Failed returns the names of stages that failed or were skipped because an
// upstream stage failed, in execution order.
func (s RunSummary) Failed() []string {
	var out []string
	for _, result := range s.Stages {
		if result.Outcome == StageFailed || result.Outcome == StageUpstreamFailed {
			out = append(out, result.Stage)
		}
	}
	return out
}

// Result returns the recorded result for a stage name, if present.
func (s RunSummary) Result(stage string) (StageResult, bool) {
	for _, result := range s.Stages {
		if result.Stage == stage {
			return result, true
		}
	}
	return StageResult{}, false
}
