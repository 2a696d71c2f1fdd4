// Package storage provides the blob store behind rubric and prompt records.
//
// Keys are slash separated ("prompts/score/_meta.json"). Missing keys yield
// errors matching ErrNotFound, which is fs.ErrNotExist.
package storage

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"strings"
)

// Storage is a minimal key/value blob store.
type Storage interface {
	// Put replaces the object at key.
	Put(ctx context.Context, key string, data []byte) error
	// Get returns the object at key or an error matching ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Exists reports whether key holds an object.
	Exists(ctx context.Context, key string) (bool, error)
	// List returns all keys under prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Type names a storage backend.
type Type string

// Supported backends.
const (
	TypeLocal Type = "local"
	TypeS3    Type = "s3"
)

// Config selects and configures a backend.
type Config struct {
	Type      Type
	LocalPath string

	S3Bucket    string
	S3Region    string
	S3Prefix    string
	S3AccessKey string
	S3SecretKey string
}

// New creates a Storage for cfg.
func New(ctx context.Context, cfg Config) (Storage, error) {
	switch cfg.Type {
	case TypeLocal, "":
		return NewLocalStorage(cfg.LocalPath)
	case TypeS3:
		return NewS3Storage(ctx, cfg)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, cfg.Type)
	}
}

// cleanKey validates a key and returns it in canonical form.
func cleanKey(key string) (string, error) {
	k := path.Clean(strings.TrimPrefix(key, "/"))
	if k == "." || k == ".." || strings.HasPrefix(k, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return k, nil
}

func notFound(key string) error {
	return &fs.PathError{Op: "get", Path: key, Err: fs.ErrNotExist}
}
