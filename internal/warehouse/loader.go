package warehouse

import (
	"context"
	"errors"
	"fmt"

	"github.com/at-bus-load/internal/common/logger"
	"github.com/at-bus-load/internal/stage"
	"github.com/at-bus-load/pkg/atbus/models"
)

// Loader moves staged artifacts into their deterministic warehouse tables
type Loader struct {
	stager    *stage.Stager
	warehouse Warehouse
	dataset   string
	logger    logger.Logger
}

func NewLoader(stager *stage.Stager, wh Warehouse, dataset string, log logger.Logger) *Loader {
	return &Loader{
		stager:    stager,
		warehouse: wh,
		dataset:   dataset,
		logger:    log,
	}
}

// Load replaces the table of key with the contents of its staged artifact
func (l *Loader) Load(ctx context.Context, key models.Key) (Result, error) {
	dest := TableFor(l.dataset, key)
	if err := key.Validate(); err != nil {
		return Result{Table: dest}, &LoadError{Key: key, Table: dest, Err: err}
	}

	art := l.stager.Locate(key)
	ok, err := l.stager.Store().Exists(ctx, art.Path)
	if err != nil {
		return Result{Table: dest}, &LoadError{Key: key, Table: dest,
			Err: &stage.StorageError{Op: "exists", Path: art.Path, Err: err}}
	}
	if !ok {
		l.logger.Error("Artifact not found", "key", key.String(), "uri", art.URI)
		return Result{Table: dest}, &LoadError{Key: key, Table: dest, Missing: true, Err: stage.ErrNotExist}
	}

	res, err := l.warehouse.Load(ctx, dest, art)
	if err != nil {
		l.logger.Error("Error loading data into warehouse", "key", key.String(), "table", dest.String(), "error", err)
		return res, &LoadError{Key: key, Table: dest, Err: err}
	}
	return res, nil
}

// Keys lists the keys staged for date: stops first, then the trips of every
// staged route in route order
func (l *Loader) Keys(ctx context.Context, date string) ([]models.Key, error) {
	if _, err := models.ParseDate(date); err != nil {
		return nil, err
	}

	routes, err := l.stager.RouteIDs(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("discovering staged routes: %w", err)
	}
	l.logger.Info("Discovered staged routes", "date", date, "routes", len(routes))

	keys := make([]models.Key, 0, len(routes)+1)
	keys = append(keys, models.StopsKey(date))
	for _, route := range routes {
		keys = append(keys, models.TripsKey(date, route))
	}
	return keys, nil
}

// LoadDate loads the stops table of date and then the trips table of every
// route staged for it. Every key is attempted; failures are joined.
func (l *Loader) LoadDate(ctx context.Context, date string) ([]Result, error) {
	keys, err := l.Keys(ctx, date)
	if err != nil {
		return nil, err
	}

	var (
		results []Result
		errs    []error
	)
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		res, err := l.Load(ctx, key)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		results = append(results, res)
	}
	return results, errors.Join(errs...)
}
