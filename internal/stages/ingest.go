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

// ingestStage joins interaction counts onto the account records keyed by
// customer id and normalizes header and cell whitespace. Customers without
// interaction rows get zero counts rather than being dropped.
func ingestStage() pipeline.StageFunc {
	return func(ctx context.Context, rc *pipeline.RunContext) error {
		accounts, err := artifact.ReadTable(ctx, rc.Store, ArtifactRawAccounts)
		if err != nil {
			return err
		}
		interactions, err := artifact.ReadTable(ctx, rc.Store, ArtifactRawInteractions)
		if err != nil {
			return err
		}

		normalize(accounts)
		normalize(interactions)

		merged, err := joinInteractions(accounts, interactions)
		if err != nil {
			return err
		}

		if _, err := artifact.WriteTable(ctx, rc.Store, ArtifactIngested, "ingest", merged); err != nil {
			return err
		}
		rc.Logger.Info("ingested churn records", "rows", merged.Len(), "columns", len(merged.Columns))
		return nil
	}
}

// normalize trims whitespace and lowercases header names in place.
func normalize(t *table.Table) {
	for i, col := range t.Columns {
		t.Columns[i] = strings.ToLower(strings.TrimSpace(col))
	}
	for _, row := range t.Rows {
		for i, cell := range row {
			row[i] = strings.TrimSpace(cell)
		}
	}
}

func joinInteractions(accounts, interactions *table.Table) (*table.Table, error) {
	if !accounts.HasColumn(registry.EntityColumn) {
		return nil, fmt.Errorf("accounts table is missing column %q", registry.EntityColumn)
	}
	if !interactions.HasColumn(registry.EntityColumn) {
		return nil, fmt.Errorf("interactions table is missing column %q", registry.EntityColumn)
	}

	keyIdx := interactions.ColumnIndex(registry.EntityColumn)
	byCustomer := make(map[string][]string, interactions.Len())
	var extraCols []string
	var extraIdx []int
	for i, col := range interactions.Columns {
		if i == keyIdx {
			continue
		}
		extraCols = append(extraCols, col)
		extraIdx = append(extraIdx, i)
	}
	for _, row := range interactions.Rows {
		cells := make([]string, len(extraIdx))
		for j, idx := range extraIdx {
			cells[j] = row[idx]
		}
		byCustomer[row[keyIdx]] = cells
	}

	out := table.New(append(append([]string(nil), accounts.Columns...), extraCols...)...)
	accKeyIdx := accounts.ColumnIndex(registry.EntityColumn)
	zero := make([]string, len(extraCols))
	for i := range zero {
		zero[i] = "0"
	}
	for _, row := range accounts.Rows {
		extras, ok := byCustomer[row[accKeyIdx]]
		if !ok {
			extras = zero
		}
		merged := append(append([]string(nil), row...), extras...)
		if err := out.AppendRow(merged); err != nil {
			return nil, err
		}
	}
	return out, nil
}
