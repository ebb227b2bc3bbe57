package domain

import "errors"

// Sentinel errors for the pipeline core. Callers classify failures with
// errors.Is after any amount of wrapping.
var (
	// ErrGraphCycle is returned when the declared stage dependencies do not
	// form a DAG. It is raised before any stage executes.
	ErrGraphCycle = errors.New("dependency graph contains a cycle")

	// ErrMissingInput is returned when a stage's declared input artifact is
	// absent at execution time.
	ErrMissingInput = errors.New("declared input artifact is missing")

	// ErrValidationFailed signals data-quality check failures. The runner
	// treats it as a stage failure unless configured to continue on warning.
	ErrValidationFailed = errors.New("data validation failed")

	// ErrDataUnavailable is returned when no retrievable version of the raw
	// inputs can be resolved for the requested data source.
	ErrDataUnavailable = errors.New("raw data unavailable")

	// ErrDuplicateFeatureVersion is returned when a feature definition with
	// the same name and version is registered with different metadata.
	ErrDuplicateFeatureVersion = errors.New("feature name+version already registered with different metadata")

	// ErrUnknownFeature is returned when a requested feature name has no
	// registry entry.
	ErrUnknownFeature = errors.New("feature is not registered")

	// ErrArtifactMissing is returned when a registry entry points at a
	// physical location that cannot be read.
	ErrArtifactMissing = errors.New("artifact cannot be read")
)
