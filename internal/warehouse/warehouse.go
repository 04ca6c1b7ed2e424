// Package warehouse loads staged Parquet artifacts into warehouse tables.
package warehouse

import (
	"context"
	"fmt"

	"github.com/at-bus-load/internal/stage"
	"github.com/at-bus-load/pkg/atbus/models"
)

// TableRef names a warehouse table
type TableRef struct {
	Dataset string
	Table   string
}

func (r TableRef) String() string {
	return r.Dataset + "." + r.Table
}

// TableFor is the destination table of a key:
// {dataset}.stops_{date} or {dataset}.trips_{route_id}_{date}
func TableFor(dataset string, key models.Key) TableRef {
	switch key.Kind {
	case models.KindTrips:
		return TableRef{Dataset: dataset, Table: fmt.Sprintf("trips_%s_%s", key.RouteID, key.Date)}
	default:
		return TableRef{Dataset: dataset, Table: fmt.Sprintf("%s_%s", key.Kind, key.Date)}
	}
}

type Result struct {
	Table  TableRef
	Source string
	Rows   int64
}

// Warehouse replaces the contents of dest with the rows of a staged artifact
type Warehouse interface {
	Load(ctx context.Context, dest TableRef, src stage.Artifact) (Result, error)
	Close() error
}

// LoadError is a failed load of one key
type LoadError struct {
	Key   models.Key
	Table TableRef
	// Missing is set when the source artifact was never staged
	Missing bool
	Err     error
}

func (e *LoadError) Error() string {
	if e.Missing {
		return fmt.Sprintf("loading %s into %s: artifact not found: %v", e.Key, e.Table, e.Err)
	}
	return fmt.Sprintf("loading %s into %s: %v", e.Key, e.Table, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

type runIDKey struct{}

// WithRunID tags loads made with ctx so they can be traced back to a run
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

func runIDFrom(ctx context.Context) string {
	if id, ok := ctx.Value(runIDKey{}).(string); ok {
		return id
	}
	return ""
}
