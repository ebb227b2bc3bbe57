package stages

import (
	"context"
	"fmt"

	"github.com/meridian-labs/meridian-go/internal/artifact"
	"github.com/meridian-labs/meridian-go/internal/pipeline"
	"github.com/meridian-labs/meridian-go/internal/source"
)

// acquireStage fetches raw account and interaction data from the source
// selected by the run's mode and lands both as raw artifacts. Fetch failures
// surface as data-unavailable errors, which the runner treats as transient.
func acquireStage(cfg source.Config) pipeline.StageFunc {
	return func(ctx context.Context, rc *pipeline.RunContext) error {
		src, err := source.ForMode(rc.Params.Mode, cfg)
		if err != nil {
			return err
		}
		rc.Logger.Info("acquiring raw data", "source", src.Name())

		accounts, err := src.FetchAccounts(ctx)
		if err != nil {
			return fmt.Errorf("fetch accounts: %w", err)
		}
		interactions, err := src.FetchInteractions(ctx)
		if err != nil {
			return fmt.Errorf("fetch interactions: %w", err)
		}

		if _, err := artifact.WriteTable(ctx, rc.Store, ArtifactRawAccounts, "acquire", accounts); err != nil {
			return err
		}
		if _, err := artifact.WriteTable(ctx, rc.Store, ArtifactRawInteractions, "acquire", interactions); err != nil {
			return err
		}
		rc.Logger.Info("raw data acquired",
			"accounts", accounts.Len(), "interactions", interactions.Len())
		return nil
	}
}
