package stages

import (
	"context"
	"fmt"
	"strings"

	"github.com/meridian-labs/meridian-go/internal/artifact"
	"github.com/meridian-labs/meridian-go/internal/pipeline"
	"github.com/meridian-labs/meridian-go/internal/registry"
	"github.com/meridian-labs/meridian-go/internal/table"
)

// Binary service flags encoded as 1/0 during preparation. Churn is encoded
// the same way since it is the downstream label.
var binaryColumns = []string{
	"online_security",
	"online_backup",
	"device_protection",
	"tech_support",
	"streaming_tv",
	"streaming_movies",
	"churn",
}

// contractValues maps the categorical contract field onto one-hot columns.
var contractValues = map[string]string{
	"month-to-month": "contract_month_to_month",
	"one-year":       "contract_one_year",
	"two-year":       "contract_two_year",
}

// prepareStage deduplicates records by customer id, encodes yes/no flags to
// 1/0, and expands the contract field into one-hot indicator columns.
// Numeric columns pass through untouched; imputation belongs to transform.
func prepareStage() pipeline.StageFunc {
	return func(ctx context.Context, rc *pipeline.RunContext) error {
		tbl, err := artifact.ReadTable(ctx, rc.Store, ArtifactIngested)
		if err != nil {
			return err
		}

		deduped, dropped, err := dedupeByCustomer(tbl)
		if err != nil {
			return err
		}
		if dropped > 0 {
			rc.Logger.Warn("dropped duplicate customer records", "dropped", dropped)
		}

		if err := encodeBinary(deduped); err != nil {
			return err
		}
		prepared, err := oneHotContract(deduped)
		if err != nil {
			return err
		}

		if _, err := artifact.WriteTable(ctx, rc.Store, ArtifactPrepared, "prepare", prepared); err != nil {
			return err
		}
		rc.Logger.Info("records prepared", "rows", prepared.Len(), "columns", len(prepared.Columns))
		return nil
	}
}

// dedupeByCustomer keeps the first occurrence of each customer id.
func dedupeByCustomer(t *table.Table) (*table.Table, int, error) {
	idx := t.ColumnIndex(registry.EntityColumn)
	if idx < 0 {
		return nil, 0, fmt.Errorf("table is missing column %q", registry.EntityColumn)
	}
	out := table.New(append([]string(nil), t.Columns...)...)
	seen := make(map[string]bool, t.Len())
	dropped := 0
	for _, row := range t.Rows {
		id := row[idx]
		if seen[id] {
			dropped++
			continue
		}
		seen[id] = true
		if err := out.AppendRow(append([]string(nil), row...)); err != nil {
			return nil, 0, err
		}
	}
	return out, dropped, nil
}

func encodeBinary(t *table.Table) error {
	for _, name := range binaryColumns {
		cells, err := t.Column(name)
		if err != nil {
			return err
		}
		for i, cell := range cells {
			switch strings.ToLower(strings.TrimSpace(cell)) {
			case "yes", "1", "true":
				cells[i] = "1"
			case "no", "0", "false", "":
				cells[i] = "0"
			default:
				return fmt.Errorf("column %q row %d: cannot encode %q as binary", name, i, cell)
			}
		}
		if err := t.SetColumn(name, cells); err != nil {
			return err
		}
	}
	return nil
}

// oneHotContract replaces the contract column with indicator columns, one
// per known contract type. Unknown values fail rather than silently
// producing an all-zero row.
func oneHotContract(t *table.Table) (*table.Table, error) {
	contract, err := t.Column("contract")
	if err != nil {
		return nil, err
	}

	var keep []string
	for _, col := range t.Columns {
		if col != "contract" {
			keep = append(keep, col)
		}
	}
	out, err := t.Select(keep)
	if err != nil {
		return nil, err
	}

	for _, value := range []string{"month-to-month", "one-year", "two-year"} {
		indicator := make([]string, len(contract))
		for i, cell := range contract {
			normalized := strings.ToLower(strings.TrimSpace(cell))
			if _, known := contractValues[normalized]; !known {
				return nil, fmt.Errorf("row %d: unknown contract type %q", i, cell)
			}
			if normalized == value {
				indicator[i] = "1"
			} else {
				indicator[i] = "0"
			}
		}
		if err := out.AddColumn(contractValues[value], indicator); err != nil {
			return nil, err
		}
	}
	return out, nil
}
