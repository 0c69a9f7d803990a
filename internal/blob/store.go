// Package blob is the object-storage boundary: opaque byte values under
// flat string keys. Hierarchy is a display concern built by splitting keys
// on '/', not a storage feature.
package blob

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("blob: key not found")

type Object struct {
	Key          string
	Size         int64
	LastModified time.Time
}

type Store interface {
	// List returns the objects whose keys start with prefix, sorted by key.
	List(ctx context.Context, prefix string) ([]Object, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Delete(ctx context.Context, key string) error
}
