package registry

import (
	"context"
	"fmt"
	"sort"

	"github.com/meridian-labs/meridian-go/internal/artifact"
	"github.com/meridian-labs/meridian-go/internal/domain"
	"github.com/meridian-labs/meridian-go/internal/table"
)

// EntityColumn is the row identity column carried into every feature view.
const EntityColumn = "customer_id"

// FeatureView is the materialized result of a retrieval call: one row per
// entity, one column per requested feature, plus the entity id column. Its
// schema is fully determined by the registry at retrieval time.
type FeatureView struct {
	Table    *table.Table
	Features []domain.FeatureDefinition
}

// GetFeatureView resolves each requested feature name through the registry,
// loads the referenced artifacts from the store, and projects the requested
// columns. Unknown names fail with ErrUnknownFeature, unreadable artifact
// references with ErrArtifactMissing; neither mutates registry state.
func (r *Registry) GetFeatureView(ctx context.Context, store artifact.Store, names []string, asOfVersion int) (FeatureView, error) {
	if len(names) == 0 {
		return FeatureView{}, fmt.Errorf("at least one feature name is required")
	}

	requested := append([]string(nil), names...)
	sort.Strings(requested)

	defs := make([]domain.FeatureDefinition, 0, len(requested))
	seen := make(map[string]struct{}, len(requested))
	for _, name := range requested {
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		def, err := r.Lookup(name, asOfVersion)
		if err != nil {
			return FeatureView{}, err
		}
		defs = append(defs, def)
	}

	tables := make(map[string]*table.Table)
	for _, def := range defs {
		if _, ok := tables[def.Artifact]; ok {
			continue
		}
		tbl, err := artifact.ReadTable(ctx, store, def.Artifact)
		if err != nil {
			return FeatureView{}, err
		}
		if !tbl.HasColumn(EntityColumn) {
			return FeatureView{}, fmt.Errorf("artifact %s has no %s column", def.Artifact, EntityColumn)
		}
		tables[def.Artifact] = tbl
	}

	view := table.New(append([]string{EntityColumn}, featureNames(defs)...)...)

	// Row identity comes from the first referenced artifact; features from
	// other artifacts are joined on the entity column.
	baseArtifact := defs[0].Artifact
	base := tables[baseArtifact]
	entities, err := base.Column(EntityColumn)
	if err != nil {
		return FeatureView{}, err
	}

	columns := make([][]string, len(defs))
	for i, def := range defs {
		source := tables[def.Artifact]
		if def.Artifact == baseArtifact {
			cells, err := source.Column(def.SourceColumn())
			if err != nil {
				return FeatureView{}, fmt.Errorf("feature %s: %w", def.Name, err)
			}
			columns[i] = cells
			continue
		}
		cells, err := joinColumn(source, def.SourceColumn(), entities)
		if err != nil {
			return FeatureView{}, fmt.Errorf("feature %s: %w", def.Name, err)
		}
		columns[i] = cells
	}

	for row, entity := range entities {
		cells := make([]string, 0, len(defs)+1)
		cells = append(cells, entity)
		for _, column := range columns {
			cells = append(cells, column[row])
		}
		if err := view.AppendRow(cells); err != nil {
			return FeatureView{}, err
		}
	}

	return FeatureView{Table: view, Features: defs}, nil
}

func joinColumn(source *table.Table, column string, entities []string) ([]string, error) {
	ids, err := source.Column(EntityColumn)
	if err != nil {
		return nil, err
	}
	cells, err := source.Column(column)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]string, len(ids))
	for i, id := range ids {
		byID[id] = cells[i]
	}
	out := make([]string, len(entities))
	for i, entity := range entities {
		out[i] = byID[entity]
	}
	return out, nil
}

func featureNames(defs []domain.FeatureDefinition) []string {
	out := make([]string, len(defs))
	for i, def := range defs {
		out[i] = def.Name
	}
	return out
}
