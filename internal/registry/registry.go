// Package registry is the durable feature catalog: a human-diffable YAML
// file mapping feature name+version to description, owning stage, dtype and
// source artifact. The retrieval API in view.go is the only supported read
// path for model training.
package registry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/meridian-labs/meridian-go/internal/domain"
	"gopkg.in/yaml.v3"
)

const registryFileSchema = "meridian.feature_registry.v1"

type registryFile struct {
	Schema   string                     `yaml:"schema"`
	Features []domain.FeatureDefinition `yaml:"features"`
}

// Registry holds feature definitions in memory and persists every write to
// its backing file. Entries are append/update-only: a registered
// name+version never changes and is never silently dropped.
type Registry struct {
	path string
	now  func() time.Time

	mu   sync.Mutex
	defs []domain.FeatureDefinition
}

// Open loads the registry file, creating an empty registry when the file
// does not exist yet.
func Open(path string) (*Registry, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("registry path is required")
	}
	r := &Registry{path: path, now: time.Now}

	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return r, nil
		}
		return nil, fmt.Errorf("read registry: %w", err)
	}

	var file registryFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("decode registry: %w", err)
	}
	if file.Schema != "" && file.Schema != registryFileSchema {
		return nil, fmt.Errorf("unsupported registry schema %q", file.Schema)
	}
	for _, def := range file.Features {
		if err := def.Validate(); err != nil {
			return nil, fmt.Errorf("registry entry invalid: %w", err)
		}
	}
	r.defs = file.Features
	return r, nil
}

// Register inserts a feature definition. Re-registering an identical
// name+version is an idempotent no-op; the same name+version with different
// metadata is rejected so definitions cannot drift silently.
func (r *Registry) Register(def domain.FeatureDefinition) error {
	if err := def.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.defs {
		if existing.Name == def.Name && existing.Version == def.Version {
			if existing.MetadataEquals(def) {
				return nil
			}
			return fmt.Errorf("%w: %s version %d", domain.ErrDuplicateFeatureVersion, def.Name, def.Version)
		}
	}

	if def.RegisteredAt.IsZero() {
		def.RegisteredAt = r.now().UTC()
	}
	updated := append(append([]domain.FeatureDefinition(nil), r.defs...), def)
	sortDefinitions(updated)
	if err := r.persist(updated); err != nil {
		return err
	}
	r.defs = updated
	return nil
}

// Lookup resolves a feature name to its definition. With asOfVersion == 0
// the highest registered version wins; otherwise the highest version not
// exceeding asOfVersion is returned.
func (r *Registry) Lookup(name string, asOfVersion int) (domain.FeatureDefinition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lookupLocked(name, asOfVersion)
}

func (r *Registry) lookupLocked(name string, asOfVersion int) (domain.FeatureDefinition, error) {
	var best domain.FeatureDefinition
	found := false
	for _, def := range r.defs {
		if def.Name != name {
			continue
		}
		if asOfVersion > 0 && def.Version > asOfVersion {
			continue
		}
		if !found || def.Version > best.Version {
			best = def
			found = true
		}
	}
	if !found {
		return domain.FeatureDefinition{}, fmt.Errorf("%w: %s", domain.ErrUnknownFeature, name)
	}
	return best, nil
}

// Names returns the registered feature names, deduplicated and sorted.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]struct{}, len(r.defs))
	for _, def := range r.defs {
		seen[def.Name] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of registered definitions across all versions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.defs)
}

func (r *Registry) persist(defs []domain.FeatureDefinition) error {
	payload, err := yaml.Marshal(registryFile{
		Schema:   registryFileSchema,
		Features: defs,
	})
	if err != nil {
		return fmt.Errorf("encode registry: %w", err)
	}

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create registry dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(r.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp registry: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write registry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close registry: %w", err)
	}
	if err := os.Rename(tmpName, r.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("publish registry: %w", err)
	}
	return nil
}

func sortDefinitions(defs []domain.FeatureDefinition) {
	sort.SliceStable(defs, func(i, j int) bool {
		if defs[i].Name != defs[j].Name {
			return defs[i].Name < defs[j].Name
		}
		return defs[i].Version < defs[j].Version
	})
}
