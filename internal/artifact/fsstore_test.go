package artifact

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/meridian-labs/meridian-go/internal/domain"
	"github.com/meridian-labs/meridian-go/internal/table"
)

func TestFSStorePutGetFingerprint(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore() err=%v", err)
	}
	ctx := context.Background()

	first, err := store.Put(ctx, PutRequest{
		Name:   "raw/customer_accounts.csv",
		Stage:  "acquire",
		Format: "csv",
		Body:   strings.NewReader("customer_id,tenure\nc1,3\n"),
	})
	if err != nil {
		t.Fatalf("Put() err=%v", err)
	}
	if first.SHA256 == "" || first.SizeBytes == 0 {
		t.Fatalf("artifact missing fingerprint: %+v", first)
	}

	second, err := store.Put(ctx, PutRequest{
		Name:   "raw/customer_accounts.csv",
		Stage:  "acquire",
		Format: "csv",
		Body:   strings.NewReader("customer_id,tenure\nc1,3\n"),
	})
	if err != nil {
		t.Fatalf("Put() rerun err=%v", err)
	}
	if second.SHA256 != first.SHA256 {
		t.Fatalf("identical content produced different fingerprints: %s vs %s", first.SHA256, second.SHA256)
	}

	reader, err := store.Get(ctx, "raw/customer_accounts.csv")
	if err != nil {
		t.Fatalf("Get() err=%v", err)
	}
	payload, err := io.ReadAll(reader)
	_ = reader.Close()
	if err != nil {
		t.Fatalf("read err=%v", err)
	}
	if string(payload) != "customer_id,tenure\nc1,3\n" {
		t.Fatalf("payload=%q", payload)
	}
}

func TestFSStoreMissingArtifact(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore() err=%v", err)
	}

	_, err = store.Get(context.Background(), "ghost.csv")
	if !errors.Is(err, domain.ErrArtifactMissing) {
		t.Fatalf("err=%v, want ErrArtifactMissing", err)
	}

	exists, err := store.Exists(context.Background(), "ghost.csv")
	if err != nil {
		t.Fatalf("Exists() err=%v", err)
	}
	if exists {
		t.Fatal("Exists()=true for absent artifact")
	}
}

func TestFSStoreRejectsEscapingNames(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore() err=%v", err)
	}
	if _, err := store.Put(context.Background(), PutRequest{Name: "../outside.csv", Body: strings.NewReader("x")}); err == nil {
		t.Fatal("expected error for escaping artifact name")
	}
}

func TestFSStoreNoTempLeftovers(t *testing.T) {
	root := t.TempDir()
	store, err := NewFSStore(root)
	if err != nil {
		t.Fatalf("NewFSStore() err=%v", err)
	}
	if _, err := store.Put(context.Background(), PutRequest{Name: "a.csv", Body: strings.NewReader("x")}); err != nil {
		t.Fatalf("Put() err=%v", err)
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatalf("ReadDir() err=%v", err)
	}
	for _, entry := range entries {
		if strings.Contains(entry.Name(), ".tmp-") {
			t.Fatalf("temp file left behind: %s", filepath.Join(root, entry.Name()))
		}
	}
}

func TestWriteReadTableRoundTrip(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore() err=%v", err)
	}
	ctx := context.Background()

	tbl := table.New("customer_id", "churn")
	_ = tbl.AppendRow([]string{"c1", "1"})

	if _, err := WriteTable(ctx, store, "transformed/features.csv", "transform", tbl); err != nil {
		t.Fatalf("WriteTable() err=%v", err)
	}
	loaded, err := ReadTable(ctx, store, "transformed/features.csv")
	if err != nil {
		t.Fatalf("ReadTable() err=%v", err)
	}
	if loaded.Len() != 1 || loaded.Rows[0][0] != "c1" {
		t.Fatalf("unexpected round trip: %+v", loaded)
	}
}
