package registry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/meridian-labs/meridian-go/internal/artifact"
	"github.com/meridian-labs/meridian-go/internal/domain"
)

func tenureV1() domain.FeatureDefinition {
	return domain.FeatureDefinition{
		Name:        "tenure",
		Version:     1,
		Description: "months the customer has been subscribed",
		Stage:       "transform",
		DType:       "float64",
		Artifact:    "transformed/features.csv",
	}
}

func TestRegisterDuplicateVersionDifferentMetadata(t *testing.T) {
	reg, err := Open(filepath.Join(t.TempDir(), "features.yaml"))
	if err != nil {
		t.Fatalf("Open() err=%v", err)
	}

	if err := reg.Register(tenureV1()); err != nil {
		t.Fatalf("Register() err=%v", err)
	}

	// Identical re-registration is an idempotent no-op.
	if err := reg.Register(tenureV1()); err != nil {
		t.Fatalf("identical Register() err=%v", err)
	}

	drifted := tenureV1()
	drifted.Description = "something else"
	if err := reg.Register(drifted); !errors.Is(err, domain.ErrDuplicateFeatureVersion) {
		t.Fatalf("err=%v, want ErrDuplicateFeatureVersion", err)
	}

	v2 := tenureV1()
	v2.Version = 2
	v2.Description = "tenure, recomputed after the billing migration"
	if err := reg.Register(v2); err != nil {
		t.Fatalf("Register(v2) err=%v", err)
	}

	pinned, err := reg.Lookup("tenure", 1)
	if err != nil {
		t.Fatalf("Lookup(as_of=1) err=%v", err)
	}
	if pinned.Description != tenureV1().Description {
		t.Fatalf("pinned description=%q, want original", pinned.Description)
	}

	latest, err := reg.Lookup("tenure", 0)
	if err != nil {
		t.Fatalf("Lookup(latest) err=%v", err)
	}
	if latest.Version != 2 {
		t.Fatalf("latest version=%d, want 2", latest.Version)
	}
}

func TestRegistryPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "features.yaml")

	reg, err := Open(path)
	if err != nil {
		t.Fatalf("Open() err=%v", err)
	}
	if err := reg.Register(tenureV1()); err != nil {
		t.Fatalf("Register() err=%v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() err=%v", err)
	}
	if !strings.Contains(string(raw), "tenure") {
		t.Fatalf("registry file does not mention the feature:\n%s", raw)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen err=%v", err)
	}
	def, err := reopened.Lookup("tenure", 0)
	if err != nil {
		t.Fatalf("Lookup() after reopen err=%v", err)
	}
	if def.Artifact != "transformed/features.csv" {
		t.Fatalf("artifact=%q after reopen", def.Artifact)
	}
}

func viewFixture(t *testing.T) (*Registry, artifact.Store) {
	t.Helper()
	dir := t.TempDir()

	store, err := artifact.NewFSStore(filepath.Join(dir, "artifacts"))
	if err != nil {
		t.Fatalf("NewFSStore() err=%v", err)
	}
	_, err = store.Put(context.Background(), artifact.PutRequest{
		Name:   "transformed/features.csv",
		Stage:  "transform",
		Format: "csv",
		Body: strings.NewReader(
			"customer_id,tenure,monthly_charges,churn\n" +
				"c1,12,29.85,0\n" +
				"c2,1,70.70,1\n"),
	})
	if err != nil {
		t.Fatalf("Put() err=%v", err)
	}

	reg, err := Open(filepath.Join(dir, "features.yaml"))
	if err != nil {
		t.Fatalf("Open() err=%v", err)
	}
	for _, name := range []string{"tenure", "monthly_charges"} {
		def := tenureV1()
		def.Name = name
		if err := reg.Register(def); err != nil {
			t.Fatalf("Register(%s) err=%v", name, err)
		}
	}
	return reg, store
}

func TestGetFeatureViewColumns(t *testing.T) {
	reg, store := viewFixture(t)

	view, err := reg.GetFeatureView(context.Background(), store, []string{"monthly_charges", "tenure"}, 0)
	if err != nil {
		t.Fatalf("GetFeatureView() err=%v", err)
	}
	want := []string{"customer_id", "monthly_charges", "tenure"}
	if !reflect.DeepEqual(view.Table.Columns, want) {
		t.Fatalf("columns=%v, want %v", view.Table.Columns, want)
	}
	if view.Table.Len() != 2 {
		t.Fatalf("rows=%d, want 2", view.Table.Len())
	}
	if view.Table.Rows[1][1] != "70.70" {
		t.Fatalf("monthly_charges for c2 = %q, want 70.70", view.Table.Rows[1][1])
	}
}

func TestGetFeatureViewUnknownFeature(t *testing.T) {
	reg, store := viewFixture(t)
	before := reg.Len()

	_, err := reg.GetFeatureView(context.Background(), store, []string{"tenure", "nonexistent_feature"}, 0)
	if !errors.Is(err, domain.ErrUnknownFeature) {
		t.Fatalf("err=%v, want ErrUnknownFeature", err)
	}
	if reg.Len() != before {
		t.Fatal("failed retrieval must not modify the registry")
	}
}

func TestGetFeatureViewArtifactMissing(t *testing.T) {
	dir := t.TempDir()
	store, err := artifact.NewFSStore(filepath.Join(dir, "artifacts"))
	if err != nil {
		t.Fatalf("NewFSStore() err=%v", err)
	}
	reg, err := Open(filepath.Join(dir, "features.yaml"))
	if err != nil {
		t.Fatalf("Open() err=%v", err)
	}
	if err := reg.Register(tenureV1()); err != nil {
		t.Fatalf("Register() err=%v", err)
	}

	_, err = reg.GetFeatureView(context.Background(), store, []string{"tenure"}, 0)
	if !errors.Is(err, domain.ErrArtifactMissing) {
		t.Fatalf("err=%v, want ErrArtifactMissing", err)
	}
}
