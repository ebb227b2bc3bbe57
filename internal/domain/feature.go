package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// FeatureDefinition is one registry entry: the metadata needed to resolve a
// feature name to a column of a stored artifact. Definitions are immutable
// once registered for a given name+version.
type FeatureDefinition struct {
	Name         string    `yaml:"name"`
	Version      int       `yaml:"version"`
	Description  string    `yaml:"description"`
	Stage        string    `yaml:"stage"`
	DType        string    `yaml:"dtype"`
	Artifact     string    `yaml:"artifact"`
	Column       string    `yaml:"column,omitempty"`
	RegisteredAt time.Time `yaml:"registered_at"`
}

func (d FeatureDefinition) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return errors.New("feature name is required")
	}
	if d.Version < 1 {
		return fmt.Errorf("feature %q version must be >= 1", d.Name)
	}
	if strings.TrimSpace(d.Stage) == "" {
		return fmt.Errorf("feature %q owning stage is required", d.Name)
	}
	if strings.TrimSpace(d.DType) == "" {
		return fmt.Errorf("feature %q dtype is required", d.Name)
	}
	if strings.TrimSpace(d.Artifact) == "" {
		return fmt.Errorf("feature %q source artifact is required", d.Name)
	}
	return nil
}

// SourceColumn returns the artifact column backing the feature. It defaults
// to the feature name when no explicit column is declared.
func (d FeatureDefinition) SourceColumn() string {
	if strings.TrimSpace(d.Column) != "" {
		return d.Column
	}
	return d.Name
}

// MetadataEquals reports whether two definitions carry identical metadata,
// ignoring the registration timestamp. It decides whether re-registering a
// name+version is an idempotent no-op or metadata drift.
func (d FeatureDefinition) MetadataEquals(other FeatureDefinition) bool {
	return d.Name == other.Name &&
		d.Version == other.Version &&
		d.Description == other.Description &&
		d.Stage == other.Stage &&
		d.DType == other.DType &&
		d.Artifact == other.Artifact &&
		d.SourceColumn() == other.SourceColumn()
}
