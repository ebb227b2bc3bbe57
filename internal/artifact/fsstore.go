package artifact

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/meridian-labs/meridian-go/internal/domain"
)

// FSStore persists artifacts as files under a root directory. Writes go to
// a temp file in the destination directory and are renamed into place, so a
// concurrent reader never observes a partially written artifact. Writers
// targeting the same artifact name are serialized with a per-name lock.
type FSStore struct {
	root string
	now  func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewFSStore(root string) (*FSStore, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, errors.New("store root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create store root: %w", err)
	}
	return &FSStore{
		root:  root,
		now:   time.Now,
		locks: make(map[string]*sync.Mutex),
	}, nil
}

func (s *FSStore) Put(ctx context.Context, req PutRequest) (domain.Artifact, error) {
	name, err := s.cleanName(req.Name)
	if err != nil {
		return domain.Artifact{}, err
	}
	if err := ctx.Err(); err != nil {
		return domain.Artifact{}, err
	}

	lock := s.nameLock(name)
	lock.Lock()
	defer lock.Unlock()

	dest := filepath.Join(s.root, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return domain.Artifact{}, fmt.Errorf("create artifact dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".tmp-*")
	if err != nil {
		return domain.Artifact{}, fmt.Errorf("create temp artifact: %w", err)
	}
	tmpName := tmp.Name()

	hasher := sha256.New()
	size, err := io.Copy(io.MultiWriter(tmp, hasher), req.Body)
	if err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return domain.Artifact{}, fmt.Errorf("write artifact %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return domain.Artifact{}, fmt.Errorf("close artifact %s: %w", name, err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		_ = os.Remove(tmpName)
		return domain.Artifact{}, fmt.Errorf("publish artifact %s: %w", name, err)
	}

	return domain.Artifact{
		Name:      name,
		Location:  dest,
		Stage:     strings.TrimSpace(req.Stage),
		Format:    strings.TrimSpace(req.Format),
		SHA256:    hex.EncodeToString(hasher.Sum(nil)),
		SizeBytes: size,
		CreatedAt: s.now().UTC(),
	}, nil
}

func (s *FSStore) Get(ctx context.Context, name string) (io.ReadCloser, error) {
	name, err := s.cleanName(name)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(s.root, filepath.FromSlash(name)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrArtifactMissing, name)
		}
		return nil, fmt.Errorf("open artifact %s: %w", name, err)
	}
	return f, nil
}

func (s *FSStore) Stat(ctx context.Context, name string) (domain.Artifact, error) {
	reader, err := s.Get(ctx, name)
	if err != nil {
		return domain.Artifact{}, err
	}
	defer reader.Close()

	hasher := sha256.New()
	size, err := io.Copy(hasher, reader)
	if err != nil {
		return domain.Artifact{}, fmt.Errorf("fingerprint artifact %s: %w", name, err)
	}
	return domain.Artifact{
		Name:      name,
		Location:  filepath.Join(s.root, filepath.FromSlash(name)),
		SHA256:    hex.EncodeToString(hasher.Sum(nil)),
		SizeBytes: size,
	}, nil
}

func (s *FSStore) Exists(ctx context.Context, name string) (bool, error) {
	name, err := s.cleanName(name)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(filepath.Join(s.root, filepath.FromSlash(name)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *FSStore) nameLock(name string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[name]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[name] = lock
	}
	return lock
}

func (s *FSStore) cleanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("artifact name is required")
	}
	cleaned := filepath.ToSlash(filepath.Clean(name))
	if cleaned == "." || strings.HasPrefix(cleaned, "../") || strings.HasPrefix(cleaned, "/") {
		return "", fmt.Errorf("artifact name %q escapes the store root", name)
	}
	return cleaned, nil
}
