package stages

import (
	"bytes"
	"context"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/meridian-labs/meridian-go/internal/artifact"
	"github.com/meridian-labs/meridian-go/internal/domain"
	"github.com/meridian-labs/meridian-go/internal/pipeline"
)

// validateStage evaluates the check set against the ingested records and
// persists the findings as a report artifact. The report is written before
// the stage fails, so a blocked run still leaves evidence of why.
func validateStage(checks []CheckSpec) pipeline.StageFunc {
	return func(ctx context.Context, rc *pipeline.RunContext) error {
		tbl, err := artifact.ReadTable(ctx, rc.Store, ArtifactIngested)
		if err != nil {
			return err
		}

		report := Evaluate(checks, tbl)
		if err := writeReport(ctx, rc, report); err != nil {
			return err
		}

		switch {
		case report.Passed:
			rc.Logger.Info("validation passed", "rows", report.Rows, "checks", report.Checks)
			return nil
		case report.HasSeverity(SeverityError):
			return fmt.Errorf("%w: %d findings (%d fatal)",
				domain.ErrValidationFailed, len(report.Findings), fatalCount(report))
		default:
			// Warning-severity findings are recorded in the report but do
			// not gate the run.
			for _, finding := range report.Findings {
				rc.Logger.Warn("data-quality warning", "check", finding.Check, "detail", finding.Detail)
			}
			return nil
		}
	}
}

func fatalCount(report Report) int {
	n := 0
	for _, finding := range report.Findings {
		if finding.Severity == SeverityError {
			n++
		}
	}
	return n
}

func writeReport(ctx context.Context, rc *pipeline.RunContext, report Report) error {
	body, err := yaml.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode validation report: %w", err)
	}
	_, err = rc.Store.Put(ctx, artifact.PutRequest{
		Name:   ArtifactValidationReport,
		Stage:  "validate",
		Format: "yaml",
		Body:   bytes.NewReader(body),
	})
	return err
}
