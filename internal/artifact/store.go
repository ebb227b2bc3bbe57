// Package artifact owns the physical persistence of pipeline outputs.
// Stages communicate exclusively through completed artifacts: a reader sees
// either nothing or a fully written object, never a partial state.
package artifact

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/meridian-labs/meridian-go/internal/domain"
	"github.com/meridian-labs/meridian-go/internal/table"
)

// PutRequest describes one artifact write.
type PutRequest struct {
	Name   string
	Stage  string
	Format string
	Body   io.Reader
}

// Store abstracts artifact persistence. Implementations must write
// atomically and serialize concurrent writers per artifact name.
type Store interface {
	Put(ctx context.Context, req PutRequest) (domain.Artifact, error)
	Get(ctx context.Context, name string) (io.ReadCloser, error)
	// Stat returns identity and fingerprint metadata without reading the
	// payload. A missing artifact yields domain.ErrArtifactMissing.
	Stat(ctx context.Context, name string) (domain.Artifact, error)
	// Exists reports whether the artifact can currently be read.
	Exists(ctx context.Context, name string) (bool, error)
}

// WriteTable encodes a table as CSV and stores it under the given name.
func WriteTable(ctx context.Context, store Store, name, stage string, tbl *table.Table) (domain.Artifact, error) {
	var buf bytes.Buffer
	if err := tbl.WriteCSV(&buf); err != nil {
		return domain.Artifact{}, fmt.Errorf("encode %s: %w", name, err)
	}
	return store.Put(ctx, PutRequest{
		Name:   name,
		Stage:  stage,
		Format: "csv",
		Body:   &buf,
	})
}

// ReadTable loads a CSV artifact into the columnar table model.
func ReadTable(ctx context.Context, store Store, name string) (*table.Table, error) {
	reader, err := store.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	tbl, err := table.ReadCSV(reader)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	return tbl, nil
}
