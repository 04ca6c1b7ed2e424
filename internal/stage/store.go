package stage

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotExist is returned by stores when an object is absent
var ErrNotExist = errors.New("object does not exist")

// ObjectStore is the bucket the stager writes to and the loader reads from
type ObjectStore interface {
	// Put writes data at path, replacing any existing object
	Put(ctx context.Context, path string, data []byte, contentType string) error
	Get(ctx context.Context, path string) ([]byte, error)
	Exists(ctx context.Context, path string) (bool, error)
	// List returns object paths under prefix in lexical order
	List(ctx context.Context, prefix string) ([]string, error)
	// URI is the fully qualified location of path, e.g. gs://bucket/path
	URI(path string) string
	Bucket() string
}

// StorageError is a failed operation against object storage
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
