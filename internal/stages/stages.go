// Package stages defines the churn pipeline's concrete stage set: acquire,
// ingest, validate, prepare, transform and train, wired into the task graph
// by ChurnPipeline.
package stages

import (
	"github.com/meridian-labs/meridian-go/internal/domain"
	"github.com/meridian-labs/meridian-go/internal/pipeline"
	"github.com/meridian-labs/meridian-go/internal/registry"
	"github.com/meridian-labs/meridian-go/internal/source"
)

// Stable artifact names. A stage's output location is a function of these
// names alone, which is what makes rerun detection and fingerprint diffing
// possible.
const (
	ArtifactRawAccounts      = "raw/customer_accounts.csv"
	ArtifactRawInteractions  = "raw/interactions.csv"
	ArtifactIngested         = "ingested/churn_records.csv"
	ArtifactValidationReport = "reports/validation_report.yaml"
	ArtifactPrepared         = "prepared/churn_records.csv"
	ArtifactFeatures         = "transformed/features.csv"
	ArtifactModelSummary     = "models/churn_model.yaml"
)

// Deps carries the collaborators the stage transforms close over.
type Deps struct {
	Sources  source.Config
	Registry *registry.Registry

	// FeatureVersion is the registry version under which the transform
	// stage registers this run's feature set.
	FeatureVersion int

	// Checks overrides the default validation check set when non-nil.
	Checks []CheckSpec
}

// ChurnPipeline assembles the full task graph. Dependencies between stages
// follow from the artifacts they exchange; only validate needs an explicit
// edge because its gate is a report, not a data artifact consumed
// downstream.
func ChurnPipeline(deps Deps) []pipeline.Stage {
	checks := deps.Checks
	if checks == nil {
		checks = DefaultChecks()
	}
	featureVersion := deps.FeatureVersion
	if featureVersion < 1 {
		featureVersion = 1
	}

	return []pipeline.Stage{
		{
			StageSpec: domain.StageSpec{
				Name:      "acquire",
				Produces:  []string{ArtifactRawAccounts, ArtifactRawInteractions},
				Transient: true,
			},
			Run: acquireStage(deps.Sources),
		},
		{
			StageSpec: domain.StageSpec{
				Name:     "ingest",
				Consumes: []string{ArtifactRawAccounts, ArtifactRawInteractions},
				Produces: []string{ArtifactIngested},
			},
			Run: ingestStage(),
		},
		{
			StageSpec: domain.StageSpec{
				Name:     "validate",
				Consumes: []string{ArtifactIngested},
				Produces: []string{ArtifactValidationReport},
			},
			Run: validateStage(checks),
		},
		{
			StageSpec: domain.StageSpec{
				Name:      "prepare",
				DependsOn: []string{"validate"},
				Consumes:  []string{ArtifactIngested},
				Produces:  []string{ArtifactPrepared},
			},
			Run: prepareStage(),
		},
		{
			StageSpec: domain.StageSpec{
				Name:     "transform",
				Consumes: []string{ArtifactPrepared},
				Produces: []string{ArtifactFeatures},
			},
			Run: transformStage(deps.Registry, featureVersion),
		},
		{
			StageSpec: domain.StageSpec{
				Name:      "train",
				DependsOn: []string{"transform"},
				Produces:  []string{ArtifactModelSummary},
			},
			Run: trainStage(deps.Registry, featureVersion),
		},
	}
}

// DataArtifacts lists the artifacts that participate in data versioning.
func DataArtifacts() []string {
	return []string{
		ArtifactRawAccounts,
		ArtifactRawInteractions,
		ArtifactIngested,
		ArtifactPrepared,
		ArtifactFeatures,
	}
}
