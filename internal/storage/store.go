package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"imagebatch/internal/infra"
)

// ErrObjectNotFound is returned by Open when nothing is stored under a key.
var ErrObjectNotFound = errors.New("storage: object not found")

// ArtifactStore keeps input and output image bytes addressed by key.
type ArtifactStore interface {
	// Write stores data under key and returns the canonical key.
	Write(ctx context.Context, key string, data []byte) (string, error)
	// Open returns the bytes under key or ErrObjectNotFound.
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes the object under key. A missing object is not an error.
	Delete(ctx context.Context, key string) error
}

// NewArtifactStore builds the backend selected by STORAGE_BACKEND.
func NewArtifactStore(ctx context.Context, cfg *infra.Config) (ArtifactStore, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.StorageBackend)) {
	case "", "fs", "filesystem":
		path := cfg.StoragePath
		if path == "" {
			path = "./storage"
		}
		if !filepath.IsAbs(path) {
			if abs, err := filepath.Abs(path); err == nil {
				path = abs
			}
		}
		return NewFileStore(path)
	case "minio", "s3":
		return NewMinioStore(ctx, MinioOptions{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			Bucket:    cfg.MinIOBucket,
			UseSSL:    cfg.MinIOUseSSL,
		})
	default:
		return nil, fmt.Errorf("storage: unknown backend %q", cfg.StorageBackend)
	}
}

// InputKey is where a submitted image is kept.
func InputKey(batchID int64, index int, filename string) string {
	return fmt.Sprintf("batches/%d/input/%03d_%s", batchID, index, baseName(filename))
}

// OutputKey is where a node's result for an image is kept.
func OutputKey(batchID, imageID int64, filename string) string {
	return fmt.Sprintf("batches/%d/output/%d_%s", batchID, imageID, baseName(filename))
}

func baseName(name string) string {
	name = strings.ReplaceAll(strings.TrimSpace(name), "\\", "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if name == "" || name == "." || name == ".." {
		return "image"
	}
	return name
}
