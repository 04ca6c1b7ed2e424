package warehouse

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"

	"github.com/at-bus-load/internal/common/logger"
	"github.com/at-bus-load/internal/stage"
)

// BigQuery runs load jobs that read Parquet straight from Cloud Storage
type BigQuery struct {
	client *bigquery.Client
	logger logger.Logger
}

func NewBigQuery(client *bigquery.Client, log logger.Logger) *BigQuery {
	return &BigQuery{client: client, logger: log}
}

func (b *BigQuery) Load(ctx context.Context, dest TableRef, src stage.Artifact) (Result, error) {
	res := Result{Table: dest, Source: src.URI}

	gcsRef := bigquery.NewGCSReference(src.URI)
	gcsRef.SourceFormat = bigquery.Parquet

	loader := b.client.Dataset(dest.Dataset).Table(dest.Table).LoaderFrom(gcsRef)
	loader.WriteDisposition = bigquery.WriteTruncate
	loader.CreateDisposition = bigquery.CreateIfNeeded
	if runID := runIDFrom(ctx); runID != "" {
		loader.Labels = map[string]string{"run_id": runID}
	}

	job, err := loader.Run(ctx)
	if err != nil {
		return res, fmt.Errorf("starting load job: %w", err)
	}
	b.logger.Debug("Load job started", "job_id", job.ID(), "table", dest.String())

	status, err := job.Wait(ctx)
	if err != nil {
		return res, fmt.Errorf("waiting for load job %s: %w", job.ID(), err)
	}
	if err := status.Err(); err != nil {
		return res, fmt.Errorf("load job %s failed: %w", job.ID(), err)
	}

	if stats, ok := status.Statistics.Details.(*bigquery.LoadStatistics); ok {
		res.Rows = stats.OutputRows
	}

	b.logger.Info("Loaded data into BigQuery", "uri", src.URI, "table", dest.String(), "rows", res.Rows)
	return res, nil
}

func (b *BigQuery) Close() error {
	return b.client.Close()
}
