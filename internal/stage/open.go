package stage

import (
	"context"
	"fmt"

	"github.com/at-bus-load/internal/common/config"
	"github.com/at-bus-load/internal/common/gcp"
)

// Open builds the object store selected by cfg. The returned close func
// releases any client the store holds.
func Open(ctx context.Context, cfg config.StorageConfig) (ObjectStore, func() error, error) {
	switch cfg.Backend {
	case "gcs":
		client, err := gcp.NewStorageClient(ctx, cfg.TokenEnvVar)
		if err != nil {
			return nil, nil, err
		}
		return NewGCSStore(client, cfg.Bucket), client.Close, nil
	case "file":
		store, err := NewFileStore(cfg.LocalDir, cfg.Bucket)
		if err != nil {
			return nil, nil, err
		}
		return store, func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
