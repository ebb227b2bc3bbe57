// Package source supplies raw churn records to the acquire stage. The two
// variants implement one contract: a deterministic local generator and an
// HTTP downloader for externally published datasets.
package source

import (
	"context"
	"fmt"

	"github.com/meridian-labs/meridian-go/internal/domain"
	"github.com/meridian-labs/meridian-go/internal/table"
)

// DataSource resolves the raw inputs of a pipeline run. A source that
// cannot deliver wraps its failure in domain.ErrDataUnavailable so the
// acquire stage fails like any other stage.
type DataSource interface {
	Name() string
	FetchAccounts(ctx context.Context) (*table.Table, error)
	FetchInteractions(ctx context.Context) (*table.Table, error)
}

// Config carries the settings of both variants; only the selected mode's
// fields are used.
type Config struct {
	Synthetic SyntheticConfig
	External  ExternalConfig
}

// ForMode returns the data source implementing the requested mode.
func ForMode(mode domain.SourceMode, cfg Config) (DataSource, error) {
	switch mode {
	case domain.ModeSynthetic:
		return NewSynthetic(cfg.Synthetic), nil
	case domain.ModeExternal:
		return NewExternal(cfg.External)
	default:
		return nil, fmt.Errorf("unknown source mode %q", mode)
	}
}
