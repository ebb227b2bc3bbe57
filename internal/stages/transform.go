package stages

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/meridian-labs/meridian-go/internal/artifact"
	"github.com/meridian-labs/meridian-go/internal/domain"
	"github.com/meridian-labs/meridian-go/internal/pipeline"
	"github.com/meridian-labs/meridian-go/internal/registry"
	"github.com/meridian-labs/meridian-go/internal/table"
)

// serviceFlags are summed into the num_additional_services feature.
var serviceFlags = []string{
	"online_security",
	"online_backup",
	"device_protection",
	"tech_support",
	"streaming_tv",
	"streaming_movies",
}

// scaledColumns are mean-imputed and standard-scaled in place. Indicator
// columns and the label stay as 0/1.
var scaledColumns = []string{
	"tenure",
	"monthly_charges",
	"total_charges",
	"support_tickets",
	"logins_last_month",
	"tenure_in_years",
	"num_additional_services",
	"monthly_tenure_ratio",
}

// featureCatalog describes every feature the transform stage publishes.
// Registration is idempotent across reruns of the same version.
var featureCatalog = []struct {
	name        string
	dtype       string
	description string
}{
	{"tenure", "float64", "Customer tenure in months, standard scaled."},
	{"monthly_charges", "float64", "Monthly charge amount, standard scaled."},
	{"total_charges", "float64", "Lifetime charge amount, mean imputed and standard scaled."},
	{"support_tickets", "float64", "Support tickets opened in the last quarter, standard scaled."},
	{"logins_last_month", "float64", "Portal logins in the last month, standard scaled."},
	{"tenure_in_years", "float64", "Tenure converted to years, standard scaled."},
	{"num_additional_services", "float64", "Count of subscribed add-on services, standard scaled."},
	{"monthly_tenure_ratio", "float64", "Monthly charges divided by tenure plus one, standard scaled."},
	{"contract_month_to_month", "int", "Indicator for a month-to-month contract."},
	{"contract_one_year", "int", "Indicator for a one-year contract."},
	{"contract_two_year", "int", "Indicator for a two-year contract."},
	{"churn", "int", "Churn label, 1 when the customer left."},
}

// transformStage derives the engineered features, imputes and scales the
// numeric columns, persists the feature matrix, and registers every
// published feature under the run's feature version.
func transformStage(reg *registry.Registry, version int) pipeline.StageFunc {
	return func(ctx context.Context, rc *pipeline.RunContext) error {
		tbl, err := artifact.ReadTable(ctx, rc.Store, ArtifactPrepared)
		if err != nil {
			return err
		}

		if err := deriveFeatures(tbl); err != nil {
			return err
		}
		for _, name := range scaledColumns {
			if err := imputeAndScale(tbl, name); err != nil {
				return err
			}
		}

		columns := []string{registry.EntityColumn}
		for _, feature := range featureCatalog {
			columns = append(columns, feature.name)
		}
		features, err := tbl.Select(columns)
		if err != nil {
			return err
		}

		if _, err := artifact.WriteTable(ctx, rc.Store, ArtifactFeatures, "transform", features); err != nil {
			return err
		}

		for _, feature := range featureCatalog {
			err := reg.Register(domainFeature(feature.name, feature.dtype, feature.description, version))
			if err != nil {
				return fmt.Errorf("register feature %q: %w", feature.name, err)
			}
		}
		rc.Logger.Info("feature matrix published",
			"rows", features.Len(), "features", len(featureCatalog), "version", version)
		return nil
	}
}

// deriveFeatures appends the engineered columns from the prepared ones.
func deriveFeatures(t *table.Table) error {
	tenure, tenureOK, err := t.Float64Column("tenure")
	if err != nil {
		return err
	}
	monthly, monthlyOK, err := t.Float64Column("monthly_charges")
	if err != nil {
		return err
	}

	years := make([]string, len(tenure))
	ratio := make([]string, len(tenure))
	for i := range tenure {
		if !tenureOK[i] {
			years[i] = ""
			ratio[i] = ""
			continue
		}
		years[i] = strconv.FormatFloat(tenure[i]/12, 'f', 6, 64)
		if monthlyOK[i] {
			ratio[i] = strconv.FormatFloat(monthly[i]/(tenure[i]+1), 'f', 6, 64)
		}
	}
	if err := t.AddColumn("tenure_in_years", years); err != nil {
		return err
	}
	if err := t.AddColumn("monthly_tenure_ratio", ratio); err != nil {
		return err
	}

	counts := make([]int, t.Len())
	for _, flag := range serviceFlags {
		values, ok, err := t.Float64Column(flag)
		if err != nil {
			return err
		}
		for i := range values {
			if ok[i] && values[i] != 0 {
				counts[i]++
			}
		}
	}
	services := make([]string, len(counts))
	for i, n := range counts {
		services[i] = strconv.Itoa(n)
	}
	return t.AddColumn("num_additional_services", services)
}

// imputeAndScale replaces empty cells with the column mean, then centers and
// scales to unit variance. A constant column scales to all zeros.
func imputeAndScale(t *table.Table, name string) error {
	values, ok, err := t.Float64Column(name)
	if err != nil {
		return err
	}
	if len(values) == 0 {
		return nil
	}

	sum, n := 0.0, 0
	for i, v := range values {
		if ok[i] {
			sum += v
			n++
		}
	}
	if n == 0 {
		return fmt.Errorf("column %q has no values to impute from", name)
	}
	mean := sum / float64(n)
	for i := range values {
		if !ok[i] {
			values[i] = mean
		}
	}

	variance := 0.0
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(values))
	std := math.Sqrt(variance)

	scaled := make([]float64, len(values))
	if std > 0 {
		for i, v := range values {
			scaled[i] = (v - mean) / std
		}
	}
	return t.SetColumn(name, table.FormatFloats(scaled))
}

func domainFeature(name, dtype, description string, version int) domain.FeatureDefinition {
	return domain.FeatureDefinition{
		Name:        name,
		Version:     version,
		Description: description,
		Stage:       "transform",
		DType:       dtype,
		Artifact:    ArtifactFeatures,
	}
}
