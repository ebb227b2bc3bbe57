package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/meridian-labs/meridian-go/internal/artifact"
	"github.com/meridian-labs/meridian-go/internal/domain"
)

func testRunner(t *testing.T, opts ...Option) *Runner {
	t.Helper()
	store, err := artifact.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore() err=%v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	runner, err := NewRunner(logger, store, opts...)
	if err != nil {
		t.Fatalf("NewRunner() err=%v", err)
	}
	return runner
}

func succeed(ctx context.Context, rc *RunContext) error { return nil }

func produce(name string) StageFunc {
	return func(ctx context.Context, rc *RunContext) error {
		_, err := rc.Store.Put(ctx, artifact.PutRequest{
			Name: name, Stage: "test", Format: "csv", Body: strings.NewReader("a\n1\n"),
		})
		return err
	}
}

func TestExecuteUpstreamFailedSkipsDependent(t *testing.T) {
	runner := testRunner(t)

	invoked := 0
	stages := []Stage{
		{
			StageSpec: domain.StageSpec{Name: "a"},
			Run: func(ctx context.Context, rc *RunContext) error {
				return errors.New("boom")
			},
		},
		{
			StageSpec: domain.StageSpec{Name: "b", DependsOn: []string{"a"}},
			Run: func(ctx context.Context, rc *RunContext) error {
				invoked++
				return nil
			},
		},
	}

	summary, err := runner.Execute(context.Background(), RunParams{Mode: domain.ModeSynthetic}, stages)
	if err != nil {
		t.Fatalf("Execute() err=%v", err)
	}
	if summary.Status != domain.RunStatusPartialFailure {
		t.Fatalf("status=%q, want partial_failure", summary.Status)
	}
	if invoked != 0 {
		t.Fatalf("dependent transform invoked %d times, want 0", invoked)
	}

	result, ok := summary.Result("b")
	if !ok {
		t.Fatal("no result recorded for stage b")
	}
	if result.Outcome != domain.StageUpstreamFailed {
		t.Fatalf("outcome=%q, want upstream_failed", result.Outcome)
	}
	if got := summary.Failed(); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("Failed()=%v, want [a b]", got)
	}
}

func TestExecuteCycleRunsNothing(t *testing.T) {
	runner := testRunner(t)

	invoked := 0
	count := func(ctx context.Context, rc *RunContext) error {
		invoked++
		return nil
	}
	stages := []Stage{
		{StageSpec: domain.StageSpec{Name: "a", DependsOn: []string{"b"}}, Run: count},
		{StageSpec: domain.StageSpec{Name: "b", DependsOn: []string{"a"}}, Run: count},
	}

	_, err := runner.Execute(context.Background(), RunParams{Mode: domain.ModeSynthetic}, stages)
	if !errors.Is(err, domain.ErrGraphCycle) {
		t.Fatalf("err=%v, want ErrGraphCycle", err)
	}
	if invoked != 0 {
		t.Fatalf("stages invoked despite cycle: %d", invoked)
	}
}

func TestExecuteRetriesTransientOnce(t *testing.T) {
	runner := testRunner(t)

	attempts := 0
	stages := []Stage{
		{
			StageSpec: domain.StageSpec{Name: "fetch", Transient: true},
			Run: func(ctx context.Context, rc *RunContext) error {
				attempts++
				if attempts == 1 {
					return errors.New("connection reset")
				}
				return nil
			},
		},
	}

	summary, err := runner.Execute(context.Background(), RunParams{Mode: domain.ModeSynthetic}, stages)
	if err != nil {
		t.Fatalf("Execute() err=%v", err)
	}
	if attempts != 2 {
		t.Fatalf("attempts=%d, want 2", attempts)
	}
	if summary.Status != domain.RunStatusSuccess {
		t.Fatalf("status=%q, want success", summary.Status)
	}
	result, _ := summary.Result("fetch")
	if result.Attempts != 2 {
		t.Fatalf("recorded attempts=%d, want 2", result.Attempts)
	}
}

func TestExecuteDoesNotRetryPureStages(t *testing.T) {
	runner := testRunner(t)

	attempts := 0
	stages := []Stage{
		{
			StageSpec: domain.StageSpec{Name: "transform"},
			Run: func(ctx context.Context, rc *RunContext) error {
				attempts++
				return errors.New("bad arithmetic")
			},
		},
	}

	summary, err := runner.Execute(context.Background(), RunParams{Mode: domain.ModeSynthetic}, stages)
	if err != nil {
		t.Fatalf("Execute() err=%v", err)
	}
	if attempts != 1 {
		t.Fatalf("attempts=%d, want 1", attempts)
	}
	if summary.Status != domain.RunStatusPartialFailure {
		t.Fatalf("status=%q, want partial_failure", summary.Status)
	}
}

func TestExecuteMissingInputFailsWithoutInvoking(t *testing.T) {
	runner := testRunner(t)

	invoked := 0
	stages := []Stage{
		{StageSpec: domain.StageSpec{Name: "acquire", Produces: []string{"raw.csv"}},
			Run: func(ctx context.Context, rc *RunContext) error {
				// Declares raw.csv but never writes it.
				return nil
			}},
		{StageSpec: domain.StageSpec{Name: "ingest", Consumes: []string{"raw.csv"}},
			Run: func(ctx context.Context, rc *RunContext) error {
				invoked++
				return nil
			}},
	}

	summary, err := runner.Execute(context.Background(), RunParams{Mode: domain.ModeSynthetic}, stages)
	if err != nil {
		t.Fatalf("Execute() err=%v", err)
	}
	if invoked != 0 {
		t.Fatalf("transform invoked despite missing input")
	}
	result, _ := summary.Result("ingest")
	if result.Outcome != domain.StageFailed {
		t.Fatalf("outcome=%q, want failed", result.Outcome)
	}
	if !strings.Contains(result.Error, "input") {
		t.Fatalf("error=%q, want missing input", result.Error)
	}
}

func TestExecuteContinueOnWarning(t *testing.T) {
	runner := testRunner(t, WithContinueOnWarning(true))

	downstream := 0
	stages := []Stage{
		{StageSpec: domain.StageSpec{Name: "validate"},
			Run: func(ctx context.Context, rc *RunContext) error {
				return fmt.Errorf("%w: 2 checks failed", domain.ErrValidationFailed)
			}},
		{StageSpec: domain.StageSpec{Name: "prepare", DependsOn: []string{"validate"}},
			Run: func(ctx context.Context, rc *RunContext) error {
				downstream++
				return nil
			}},
	}

	summary, err := runner.Execute(context.Background(), RunParams{Mode: domain.ModeSynthetic}, stages)
	if err != nil {
		t.Fatalf("Execute() err=%v", err)
	}
	if downstream != 1 {
		t.Fatalf("dependent ran %d times, want 1", downstream)
	}
	if summary.Status != domain.RunStatusSuccess {
		t.Fatalf("status=%q, want success", summary.Status)
	}
	result, _ := summary.Result("validate")
	if result.Outcome != domain.StageWarned {
		t.Fatalf("outcome=%q, want warned", result.Outcome)
	}
}

func TestExecuteValidationFatalByDefault(t *testing.T) {
	runner := testRunner(t)

	stages := []Stage{
		{StageSpec: domain.StageSpec{Name: "validate"},
			Run: func(ctx context.Context, rc *RunContext) error {
				return fmt.Errorf("%w: 2 checks failed", domain.ErrValidationFailed)
			}},
	}

	summary, err := runner.Execute(context.Background(), RunParams{Mode: domain.ModeSynthetic}, stages)
	if err != nil {
		t.Fatalf("Execute() err=%v", err)
	}
	if summary.Status != domain.RunStatusPartialFailure {
		t.Fatalf("status=%q, want partial_failure", summary.Status)
	}
}

func TestExecuteIndependentBranchesComplete(t *testing.T) {
	runner := testRunner(t)

	stages := []Stage{
		{StageSpec: domain.StageSpec{Name: "left", Produces: []string{"left.csv"}}, Run: produce("left.csv")},
		{StageSpec: domain.StageSpec{Name: "left-child", Consumes: []string{"left.csv"}}, Run: succeed},
		{StageSpec: domain.StageSpec{Name: "right"},
			Run: func(ctx context.Context, rc *RunContext) error {
				return errors.New("boom")
			}},
	}

	summary, err := runner.Execute(context.Background(), RunParams{Mode: domain.ModeSynthetic}, stages)
	if err != nil {
		t.Fatalf("Execute() err=%v", err)
	}
	leftChild, _ := summary.Result("left-child")
	if leftChild.Outcome != domain.StageSucceeded {
		t.Fatalf("independent branch outcome=%q, want succeeded", leftChild.Outcome)
	}
	if got := summary.Failed(); len(got) != 1 || got[0] != "right" {
		t.Fatalf("Failed()=%v, want [right]", got)
	}
}

type captureRecorder struct {
	records []AttemptRecord
}

func (c *captureRecorder) RecordAttempt(_ context.Context, record AttemptRecord) error {
	c.records = append(c.records, record)
	return nil
}

func TestExecuteRecordsEveryAttempt(t *testing.T) {
	recorder := &captureRecorder{}
	runner := testRunner(t, WithRecorder(recorder))

	attempts := 0
	stages := []Stage{
		{StageSpec: domain.StageSpec{Name: "fetch", Transient: true},
			Run: func(ctx context.Context, rc *RunContext) error {
				attempts++
				return errors.New("connection reset")
			}},
		{StageSpec: domain.StageSpec{Name: "ingest", DependsOn: []string{"fetch"}}, Run: succeed},
	}

	if _, err := runner.Execute(context.Background(), RunParams{Mode: domain.ModeSynthetic}, stages); err != nil {
		t.Fatalf("Execute() err=%v", err)
	}

	var statuses []string
	for _, record := range recorder.records {
		statuses = append(statuses, record.Stage+":"+record.Status)
	}
	want := []string{"fetch:retried", "fetch:failed", "ingest:upstream_failed"}
	if strings.Join(statuses, ",") != strings.Join(want, ",") {
		t.Fatalf("records=%v, want %v", statuses, want)
	}
}

func TestExecuteRejectsUnknownMode(t *testing.T) {
	runner := testRunner(t)
	stages := []Stage{{StageSpec: domain.StageSpec{Name: "a"}, Run: succeed}}
	if _, err := runner.Execute(context.Background(), RunParams{Mode: "kaggle"}, stages); err == nil {
		t.Fatal("expected error for unknown source mode")
	}
}
