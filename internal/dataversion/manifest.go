// Package dataversion binds a pipeline run to a reproducible data version.
// After a run, the content fingerprints of every artifact are snapshotted
// into a manifest; the manifest hash is the version pointer an external
// versioning hook can use to detect and publish changes.
package dataversion

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/meridian-labs/meridian-go/internal/artifact"
	"gopkg.in/yaml.v3"
)

const manifestSchema = "meridian.data_manifest.v1"

// Entry is the recorded fingerprint of one artifact.
type Entry struct {
	SHA256    string `yaml:"sha256"`
	SizeBytes int64  `yaml:"size_bytes"`
}

// Manifest maps artifact names to content fingerprints, plus the derived
// version pointer.
type Manifest struct {
	Schema    string           `yaml:"schema"`
	Version   string           `yaml:"version"`
	CreatedAt time.Time        `yaml:"created_at"`
	Artifacts map[string]Entry `yaml:"artifacts"`
}

// Snapshot fingerprints the named artifacts in the store and derives the
// version pointer. Identical artifact contents always derive the identical
// version, independent of snapshot time.
func Snapshot(ctx context.Context, store artifact.Store, names []string) (Manifest, error) {
	if len(names) == 0 {
		return Manifest{}, errors.New("at least one artifact name is required")
	}

	entries := make(map[string]Entry, len(names))
	for _, name := range names {
		info, err := store.Stat(ctx, name)
		if err != nil {
			return Manifest{}, fmt.Errorf("snapshot %s: %w", name, err)
		}
		entries[name] = Entry{SHA256: info.SHA256, SizeBytes: info.SizeBytes}
	}

	return Manifest{
		Schema:    manifestSchema,
		Version:   deriveVersion(entries),
		CreatedAt: time.Now().UTC(),
		Artifacts: entries,
	}, nil
}

// deriveVersion hashes the sorted name->sha pairs into a short, commit-like
// pointer.
func deriveVersion(entries map[string]Entry) string {
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)

	hasher := sha256.New()
	for _, name := range names {
		fmt.Fprintf(hasher, "%s %s\n", name, entries[name].SHA256)
	}
	return hex.EncodeToString(hasher.Sum(nil))[:12]
}

// Changed returns the artifact names whose fingerprints differ from the
// previous manifest, including additions and removals, sorted.
func (m Manifest) Changed(previous Manifest) []string {
	changed := make(map[string]struct{})
	for name, entry := range m.Artifacts {
		prev, ok := previous.Artifacts[name]
		if !ok || prev.SHA256 != entry.SHA256 {
			changed[name] = struct{}{}
		}
	}
	for name := range previous.Artifacts {
		if _, ok := m.Artifacts[name]; !ok {
			changed[name] = struct{}{}
		}
	}
	out := make([]string, 0, len(changed))
	for name := range changed {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// WriteFile persists the manifest atomically.
func (m Manifest) WriteFile(path string) error {
	payload, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create manifest dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp manifest: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close manifest: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("publish manifest: %w", err)
	}
	return nil
}

// ReadFile loads a previously written manifest. A missing file yields an
// empty manifest, which makes every artifact of the next snapshot "changed".
func ReadFile(path string) (Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Manifest{Artifacts: map[string]Entry{}}, nil
		}
		return Manifest{}, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return Manifest{}, fmt.Errorf("decode manifest: %w", err)
	}
	if m.Schema != "" && m.Schema != manifestSchema {
		return Manifest{}, fmt.Errorf("unsupported manifest schema %q", m.Schema)
	}
	if m.Artifacts == nil {
		m.Artifacts = map[string]Entry{}
	}
	if strings.TrimSpace(m.Version) == "" && len(m.Artifacts) > 0 {
		m.Version = deriveVersion(m.Artifacts)
	}
	return m, nil
}
