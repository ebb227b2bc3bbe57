package stages

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/meridian-labs/meridian-go/internal/table"
)

// Check types understood by the validation engine.
const (
	CheckRequiredColumns = "required_columns"
	CheckMinRowCount     = "min_row_count"
	CheckNonNull         = "non_null"
	CheckNumericRange    = "numeric_range"
)

// Finding severities. Error findings gate the run; warning findings only do
// so when the continue-on-warning policy is off.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// CheckSpec is one declarative data-quality rule evaluated against the
// ingested table.
type CheckSpec struct {
	Name     string   `yaml:"name"`
	Type     string   `yaml:"type"`
	Severity string   `yaml:"severity"`
	Columns  []string `yaml:"columns,omitempty"`
	Column   string   `yaml:"column,omitempty"`
	MinRows  int      `yaml:"min_rows,omitempty"`
	Min      *float64 `yaml:"min,omitempty"`
	Max      *float64 `yaml:"max,omitempty"`
}

// Finding is one rule violation.
type Finding struct {
	Check    string `yaml:"check"`
	Severity string `yaml:"severity"`
	Detail   string `yaml:"detail"`
}

// Report is the persisted outcome of a validation pass.
type Report struct {
	Schema   string    `yaml:"schema"`
	Rows     int       `yaml:"rows"`
	Checks   int       `yaml:"checks"`
	Findings []Finding `yaml:"findings"`
	Passed   bool      `yaml:"passed"`
}

const reportSchema = "meridian.validation_report.v1"

// DefaultChecks is the standing rule set for churn records.
func DefaultChecks() []CheckSpec {
	min0 := 0.0
	return []CheckSpec{
		{
			Name:     "core columns present",
			Type:     CheckRequiredColumns,
			Severity: SeverityError,
			Columns:  []string{"customer_id", "tenure", "monthly_charges", "churn"},
		},
		{
			Name:     "dataset not empty",
			Type:     CheckMinRowCount,
			Severity: SeverityError,
			MinRows:  1,
		},
		{
			Name:     "customer id populated",
			Type:     CheckNonNull,
			Severity: SeverityError,
			Column:   "customer_id",
		},
		{
			Name:     "total charges populated",
			Type:     CheckNonNull,
			Severity: SeverityWarning,
			Column:   "total_charges",
		},
		{
			Name:     "tenure non-negative",
			Type:     CheckNumericRange,
			Severity: SeverityError,
			Column:   "tenure",
			Min:      &min0,
		},
		{
			Name:     "monthly charges non-negative",
			Type:     CheckNumericRange,
			Severity: SeverityError,
			Column:   "monthly_charges",
			Min:      &min0,
		},
	}
}

// LoadChecks reads a check set from a YAML file, replacing the default rule
// set for deployments with their own data contracts.
func LoadChecks(path string) ([]CheckSpec, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read checks: %w", err)
	}
	var file struct {
		Checks []CheckSpec `yaml:"checks"`
	}
	if err := yaml.Unmarshal(body, &file); err != nil {
		return nil, fmt.Errorf("parse checks %s: %w", path, err)
	}
	if len(file.Checks) == 0 {
		return nil, fmt.Errorf("checks file %s declares no checks", path)
	}
	for i, check := range file.Checks {
		if err := check.Validate(); err != nil {
			return nil, fmt.Errorf("checks file %s entry %d: %w", path, i, err)
		}
	}
	return file.Checks, nil
}

// Validate rejects structurally broken check declarations up front so a bad
// checks file fails configuration, not a pipeline run.
func (c CheckSpec) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("check name is required")
	}
	if c.Severity != SeverityError && c.Severity != SeverityWarning {
		return fmt.Errorf("check %q severity must be %s or %s", c.Name, SeverityError, SeverityWarning)
	}
	switch c.Type {
	case CheckRequiredColumns:
		if len(c.Columns) == 0 {
			return fmt.Errorf("check %q needs at least one column", c.Name)
		}
	case CheckMinRowCount:
		if c.MinRows < 1 {
			return fmt.Errorf("check %q needs min_rows >= 1", c.Name)
		}
	case CheckNonNull:
		if strings.TrimSpace(c.Column) == "" {
			return fmt.Errorf("check %q needs a column", c.Name)
		}
	case CheckNumericRange:
		if strings.TrimSpace(c.Column) == "" {
			return fmt.Errorf("check %q needs a column", c.Name)
		}
		if c.Min == nil && c.Max == nil {
			return fmt.Errorf("check %q needs min or max", c.Name)
		}
	default:
		return fmt.Errorf("check %q has unknown type %q", c.Name, c.Type)
	}
	return nil
}

// Evaluate runs every check and collects the findings into a report.
func Evaluate(checks []CheckSpec, tbl *table.Table) Report {
	report := Report{
		Schema: reportSchema,
		Rows:   tbl.Len(),
		Checks: len(checks),
	}
	for _, check := range checks {
		if detail := evaluate(check, tbl); detail != "" {
			report.Findings = append(report.Findings, Finding{
				Check:    check.Name,
				Severity: check.Severity,
				Detail:   detail,
			})
		}
	}
	report.Passed = len(report.Findings) == 0
	return report
}

// HasSeverity reports whether any finding carries the given severity.
func (r Report) HasSeverity(severity string) bool {
	for _, finding := range r.Findings {
		if finding.Severity == severity {
			return true
		}
	}
	return false
}

// evaluate returns a human-readable violation detail, or "" when the check
// passes.
func evaluate(check CheckSpec, tbl *table.Table) string {
	switch check.Type {
	case CheckRequiredColumns:
		var missing []string
		for _, col := range check.Columns {
			if !tbl.HasColumn(col) {
				missing = append(missing, col)
			}
		}
		if len(missing) > 0 {
			return "missing columns: " + strings.Join(missing, ", ")
		}

	case CheckMinRowCount:
		if tbl.Len() < check.MinRows {
			return fmt.Sprintf("%d rows, need at least %d", tbl.Len(), check.MinRows)
		}

	case CheckNonNull:
		cells, err := tbl.Column(check.Column)
		if err != nil {
			return err.Error()
		}
		empty := 0
		for _, cell := range cells {
			if strings.TrimSpace(cell) == "" {
				empty++
			}
		}
		if empty > 0 {
			return fmt.Sprintf("column %q has %d empty cells", check.Column, empty)
		}

	case CheckNumericRange:
		values, ok, err := tbl.Float64Column(check.Column)
		if err != nil {
			return err.Error()
		}
		out := 0
		for i, v := range values {
			if !ok[i] {
				continue
			}
			if check.Min != nil && v < *check.Min {
				out++
			} else if check.Max != nil && v > *check.Max {
				out++
			}
		}
		if out > 0 {
			bounds := rangeBounds(check)
			return fmt.Sprintf("column %q has %d values outside %s", check.Column, out, bounds)
		}

	default:
		return fmt.Sprintf("unknown check type %q", check.Type)
	}
	return ""
}

func rangeBounds(check CheckSpec) string {
	low, high := "-inf", "+inf"
	if check.Min != nil {
		low = strconv.FormatFloat(*check.Min, 'g', -1, 64)
	}
	if check.Max != nil {
		high = strconv.FormatFloat(*check.Max, 'g', -1, 64)
	}
	return "[" + low + ", " + high + "]"
}
