package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/at-bus-load/internal/atapi"
	"github.com/at-bus-load/internal/common/config"
	"github.com/at-bus-load/internal/common/logger"
	"github.com/at-bus-load/internal/common/notify"
	"github.com/at-bus-load/internal/pipeline"
	"github.com/at-bus-load/internal/stage"
	"github.com/at-bus-load/internal/validate"
	"github.com/at-bus-load/internal/warehouse"
	"github.com/at-bus-load/pkg/atbus/models"
)

type step int

const (
	stepExtract step = 1 << iota
	stepLoad
	stepCheck
)

// app holds the components built for one command invocation
type app struct {
	cfg     *config.Config
	steps   step
	log     logger.Logger
	store   stage.ObjectStore
	stager  *stage.Stager
	closers []func() error
}

func newApp(ctx context.Context, opts *options, steps step) (*app, error) {
	cfg, err := config.LoadFile(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	if opts.tokenEnvVar != "" {
		cfg.Storage.TokenEnvVar = opts.tokenEnvVar
	}

	if err := validateFor(cfg, steps); err != nil {
		return nil, err
	}

	loggerConfig := logger.DefaultLoggerConfig()
	loggerConfig.Level = logger.ParseLogLevel(cfg.Logging.Level)
	loggerConfig.FilePath = cfg.Logging.FilePath
	loggerConfig.File = cfg.Logging.FilePath != ""
	log := logger.FromConfig(loggerConfig)

	log.Info("at-bus-load starting",
		"date", opts.date,
		"storage_backend", cfg.Storage.Backend,
		"bucket", cfg.Storage.Bucket,
		"warehouse_backend", cfg.Warehouse.Backend,
		"dataset", cfg.Warehouse.Dataset)

	a := &app{cfg: cfg, steps: steps, log: log}

	store, closeStore, err := stage.Open(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("opening object storage: %w", err)
	}
	a.closers = append(a.closers, closeStore)
	a.store = store
	a.stager = stage.NewStager(store, cfg.Storage.Prefix, log)

	return a, nil
}

func validateFor(cfg *config.Config, steps step) error {
	if steps&stepExtract != 0 {
		if err := cfg.ValidateExtract(); err != nil {
			return err
		}
	}
	if steps&stepLoad != 0 {
		if err := cfg.ValidateLoad(); err != nil {
			return err
		}
	}
	if steps&stepCheck != 0 {
		if err := cfg.Storage.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) pipeline(ctx context.Context) (*pipeline.Pipeline, error) {
	deps := pipeline.Deps{
		Stager:    a.stager,
		Notifier:  notify.New(a.cfg.Logging.DiscordURL),
		StopCodes: a.cfg.API.StopCodes,
		RouteIDs:  a.cfg.API.RouteIDs,
	}

	if a.steps&stepExtract != 0 {
		policy, err := validate.ParsePolicy(a.cfg.Validation.Policy)
		if err != nil {
			return nil, err
		}
		client, err := atapi.NewClient(a.cfg.API, a.log)
		if err != nil {
			return nil, err
		}
		deps.Extractor = atapi.NewExtractor(client, validate.New(policy, a.log), a.cfg.API, a.log)
	}

	if a.steps&stepLoad != 0 {
		wh, err := warehouse.Open(ctx, a.cfg, a.store, a.log)
		if err != nil {
			return nil, fmt.Errorf("opening warehouse: %w", err)
		}
		a.closers = append(a.closers, wh.Close)
		deps.Loader = warehouse.NewLoader(a.stager, wh, a.cfg.Warehouse.Dataset, a.log)
	}

	return pipeline.New(deps, a.log), nil
}

// check prints the staged artifacts of date, or the existence of a single
// object, and fails when nothing the loader needs is there
func (a *app) check(ctx context.Context, out io.Writer, date, object string) error {
	if object != "" {
		ok, err := a.store.Exists(ctx, object)
		if err != nil {
			return &stage.StorageError{Op: "exists", Path: object, Err: err}
		}
		if !ok {
			fmt.Fprintf(out, "The file %s does not exist in bucket %s\n", object, a.store.Bucket())
			return stage.ErrNotExist
		}
		fmt.Fprintf(out, "The file %s exists in bucket %s\n", object, a.store.Bucket())
		return nil
	}

	stops := a.stager.Locate(models.StopsKey(date))
	ok, err := a.store.Exists(ctx, stops.Path)
	if err != nil {
		return &stage.StorageError{Op: "exists", Path: stops.Path, Err: err}
	}
	routes, err := a.stager.RouteIDs(ctx, date)
	if err != nil {
		return err
	}

	if ok {
		fmt.Fprintf(out, "stops\t%s\n", stops.URI)
	} else {
		fmt.Fprintf(out, "stops\tmissing (%s)\n", stops.URI)
	}
	for _, route := range routes {
		fmt.Fprintf(out, "trips\t%s\n", a.stager.Locate(models.TripsKey(date, route)).URI)
	}

	if !ok {
		return fmt.Errorf("stops for %s are not staged: %w", date, stage.ErrNotExist)
	}
	return nil
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
