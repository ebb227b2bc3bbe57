package stages

import (
	"bytes"
	"context"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/meridian-labs/meridian-go/internal/artifact"
	"github.com/meridian-labs/meridian-go/internal/pipeline"
	"github.com/meridian-labs/meridian-go/internal/registry"
)

// trainingFeatures is the feature set the model consumes, resolved through
// the registry rather than read from the feature artifact directly.
var trainingFeatures = []string{
	"tenure",
	"monthly_charges",
	"total_charges",
	"support_tickets",
	"logins_last_month",
	"tenure_in_years",
	"num_additional_services",
	"monthly_tenure_ratio",
	"contract_month_to_month",
	"contract_one_year",
	"contract_two_year",
}

// ModelSummary is the persisted training outcome: the resolved feature set
// with per-class means, enough for a scorer to rank churn risk.
type ModelSummary struct {
	Schema         string        `yaml:"schema"`
	RunID          string        `yaml:"run_id"`
	FeatureVersion int           `yaml:"feature_version"`
	Rows           int           `yaml:"rows"`
	ChurnRate      float64       `yaml:"churn_rate"`
	Features       []FeatureStat `yaml:"features"`
}

// FeatureStat holds a feature's mean in each label class. The gap between
// the two is the feature's crude signal strength.
type FeatureStat struct {
	Name        string  `yaml:"name"`
	Version     int     `yaml:"version"`
	MeanChurned float64 `yaml:"mean_churned"`
	MeanStayed  float64 `yaml:"mean_stayed"`
}

const modelSchema = "meridian.churn_model.v1"

// trainStage retrieves its inputs exclusively through the feature registry,
// so training sees exactly what any other retrieval client would see, and
// fits a per-class mean profile as the model.
func trainStage(reg *registry.Registry, version int) pipeline.StageFunc {
	return func(ctx context.Context, rc *pipeline.RunContext) error {
		requested := append([]string{"churn"}, trainingFeatures...)
		view, err := reg.GetFeatureView(ctx, rc.Store, requested, version)
		if err != nil {
			return fmt.Errorf("retrieve training view: %w", err)
		}

		summary, err := fitSummary(view, rc.RunID, version)
		if err != nil {
			return err
		}

		body, err := yaml.Marshal(summary)
		if err != nil {
			return fmt.Errorf("encode model summary: %w", err)
		}
		if _, err := rc.Store.Put(ctx, artifact.PutRequest{
			Name:   ArtifactModelSummary,
			Stage:  "train",
			Format: "yaml",
			Body:   bytes.NewReader(body),
		}); err != nil {
			return err
		}
		rc.Logger.Info("model trained",
			"rows", summary.Rows, "churn_rate", summary.ChurnRate, "features", len(summary.Features))
		return nil
	}
}

func fitSummary(view registry.FeatureView, runID string, version int) (ModelSummary, error) {
	labels, ok, err := view.Table.Float64Column("churn")
	if err != nil {
		return ModelSummary{}, err
	}
	churned := 0
	for i, label := range labels {
		if ok[i] && label != 0 {
			churned++
		}
	}
	if len(labels) == 0 {
		return ModelSummary{}, fmt.Errorf("training view is empty")
	}

	summary := ModelSummary{
		Schema:         modelSchema,
		RunID:          runID,
		FeatureVersion: version,
		Rows:           len(labels),
		ChurnRate:      float64(churned) / float64(len(labels)),
	}

	versions := make(map[string]int, len(view.Features))
	for _, def := range view.Features {
		versions[def.Name] = def.Version
	}
	for _, name := range trainingFeatures {
		values, valueOK, err := view.Table.Float64Column(name)
		if err != nil {
			return ModelSummary{}, err
		}
		stat := FeatureStat{Name: name, Version: versions[name]}
		var churnSum, staySum float64
		var churnN, stayN int
		for i, v := range values {
			if !valueOK[i] || !ok[i] {
				continue
			}
			if labels[i] != 0 {
				churnSum += v
				churnN++
			} else {
				staySum += v
				stayN++
			}
		}
		if churnN > 0 {
			stat.MeanChurned = churnSum / float64(churnN)
		}
		if stayN > 0 {
			stat.MeanStayed = staySum / float64(stayN)
		}
		summary.Features = append(summary.Features, stat)
	}
	return summary, nil
}
