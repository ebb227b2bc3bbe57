package artifact

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/meridian-labs/meridian-go/internal/domain"
	"github.com/meridian-labs/meridian-go/internal/storage/objectstore"
)

// ObjectStore persists artifacts in an S3-compatible bucket. Object storage
// publishes objects atomically on completed PUT, which satisfies the
// no-partial-reads guarantee without a rename step.
type ObjectStore struct {
	store  objectstore.Store
	bucket string
	prefix string
	now    func() time.Time
}

func NewObjectStore(store objectstore.Store, bucket, prefix string) (*ObjectStore, error) {
	if store == nil {
		return nil, errors.New("object store is required")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("bucket is required")
	}
	return &ObjectStore{
		store:  store,
		bucket: bucket,
		prefix: strings.Trim(strings.TrimSpace(prefix), "/"),
		now:    time.Now,
	}, nil
}

func (s *ObjectStore) Put(ctx context.Context, req PutRequest) (domain.Artifact, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Artifact{}, errors.New("artifact name is required")
	}

	hasher := sha256.New()
	counter := &countingWriter{}
	body := io.TeeReader(req.Body, io.MultiWriter(hasher, counter))

	key := s.objectKey(name)
	contentType := "application/octet-stream"
	if req.Format == "csv" {
		contentType = "text/csv"
	}
	if err := s.store.Put(ctx, s.bucket, key, body, -1, contentType); err != nil {
		return domain.Artifact{}, fmt.Errorf("put artifact %s: %w", name, err)
	}

	return domain.Artifact{
		Name:      name,
		Location:  s.bucket + "/" + key,
		Stage:     strings.TrimSpace(req.Stage),
		Format:    strings.TrimSpace(req.Format),
		SHA256:    hex.EncodeToString(hasher.Sum(nil)),
		SizeBytes: counter.n,
		CreatedAt: s.now().UTC(),
	}, nil
}

func (s *ObjectStore) Get(ctx context.Context, name string) (io.ReadCloser, error) {
	reader, _, err := s.store.Get(ctx, s.bucket, s.objectKey(name))
	if err != nil {
		if objectstore.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s", domain.ErrArtifactMissing, name)
		}
		return nil, fmt.Errorf("get artifact %s: %w", name, err)
	}
	return reader, nil
}

func (s *ObjectStore) Stat(ctx context.Context, name string) (domain.Artifact, error) {
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
		Location:  s.bucket + "/" + s.objectKey(name),
		SHA256:    hex.EncodeToString(hasher.Sum(nil)),
		SizeBytes: size,
	}, nil
}

func (s *ObjectStore) Exists(ctx context.Context, name string) (bool, error) {
	_, err := s.store.Stat(ctx, s.bucket, s.objectKey(name))
	if err != nil {
		if objectstore.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *ObjectStore) objectKey(name string) string {
	if s.prefix == "" {
		return name
	}
	return s.prefix + "/" + name
}

type countingWriter struct {
	n int64
}

func (w *countingWriter) Write(p []byte) (int, error) {
	w.n += int64(len(p))
	return len(p), nil
}
