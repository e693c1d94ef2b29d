// Package storage provides a small blob store over the local filesystem or S3.
// It holds operator-provided prompt files and the synthesized speech cache.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned by Get when no blob exists at the key.
var ErrNotFound = errors.New("blob not found")

// BlobStore stores opaque blobs under slash-separated keys.
type BlobStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
}

// Backend selects a BlobStore implementation.
type Backend string

const (
	BackendLocal Backend = "local"
	BackendS3    Backend = "s3"
)

// Config selects and configures a backend.
type Config struct {
	Backend Backend
	// BaseDir is the root directory for the local backend.
	BaseDir string
	// Bucket, Prefix and Client configure the S3 backend.
	Bucket string
	Prefix string
	Client S3API
}

// New creates the BlobStore described by cfg.
func New(cfg Config) (BlobStore, error) {
	switch cfg.Backend {
	case BackendLocal:
		if cfg.BaseDir == "" {
			return nil, fmt.Errorf("base directory is required for local backend")
		}
		return NewLocalStore(cfg.BaseDir), nil
	case BackendS3:
		if cfg.Bucket == "" {
			return nil, fmt.Errorf("bucket is required for s3 backend")
		}
		if cfg.Client == nil {
			return nil, fmt.Errorf("s3 client is required for s3 backend")
		}
		return NewS3Store(cfg.Bucket, cfg.Prefix, cfg.Client), nil
	default:
		return nil, fmt.Errorf("unsupported backend type: %q", cfg.Backend)
	}
}

// Prefixed scopes store to keys under prefix, so several components can
// share one backend.
func Prefixed(store BlobStore, prefix string) BlobStore {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return store
	}
	return &prefixedStore{store: store, prefix: prefix}
}

type prefixedStore struct {
	store  BlobStore
	prefix string
}

func (p *prefixedStore) Get(ctx context.Context, key string) ([]byte, error) {
	return p.store.Get(ctx, p.key(key))
}

func (p *prefixedStore) Put(ctx context.Context, key string, data []byte) error {
	return p.store.Put(ctx, p.key(key), data)
}

func (p *prefixedStore) Delete(ctx context.Context, key string) error {
	return p.store.Delete(ctx, p.key(key))
}

func (p *prefixedStore) key(k string) string {
	return p.prefix + "/" + k
}
