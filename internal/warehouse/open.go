package warehouse

import (
	"context"

	"github.com/at-bus-load/internal/common/config"
	"github.com/at-bus-load/internal/common/db"
	"github.com/at-bus-load/internal/common/gcp"
	"github.com/at-bus-load/internal/common/logger"
	"github.com/at-bus-load/internal/stage"
)

// Open builds the warehouse selected by cfg. SQL backends read artifacts from store.
func Open(ctx context.Context, cfg *config.Config, store stage.ObjectStore, log logger.Logger) (Warehouse, error) {
	if cfg.Warehouse.Backend == "bigquery" {
		client, err := gcp.NewBigQueryClient(ctx, cfg.Warehouse.ProjectID, cfg.Storage.TokenEnvVar)
		if err != nil {
			return nil, err
		}
		return NewBigQuery(client, log), nil
	}

	database, err := db.Open(ctx, cfg.Warehouse, log)
	if err != nil {
		return nil, err
	}
	return NewSQL(database, store, log), nil
}
