// Package pipeline drives keys through fetch, validation, staging and
// loading, and reports the outcome of each invocation.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/at-bus-load/internal/atapi"
	"github.com/at-bus-load/internal/common/logger"
	"github.com/at-bus-load/internal/common/notify"
	"github.com/at-bus-load/internal/stage"
	"github.com/at-bus-load/internal/table"
	"github.com/at-bus-load/internal/warehouse"
	"github.com/at-bus-load/pkg/atbus/models"
)

// Deps are the components a pipeline drives. Extract needs Extractor and
// Stager; Load needs Loader.
type Deps struct {
	Extractor *atapi.Extractor
	Stager    *stage.Stager
	Loader    *warehouse.Loader
	Notifier  notify.Notifier
	// StopCodes filters the stops table; empty keeps every stop
	StopCodes []string
	// RouteIDs overrides the trip routes; empty uses the ids of the filtered stops
	RouteIDs []string
}

type Pipeline struct {
	deps     Deps
	logger   logger.Logger
	newRunID func() string
}

func New(deps Deps, log logger.Logger) *Pipeline {
	if deps.Notifier == nil {
		deps.Notifier = notify.Nop()
	}
	return &Pipeline{
		deps:     deps,
		logger:   log,
		newRunID: uuid.NewString,
	}
}

// Report is the outcome of one invocation
type Report struct {
	RunID string
	Date  string
	Runs  []*Run
}

func (r *Report) add(run *Run) *Run {
	r.Runs = append(r.Runs, run)
	return run
}

// InState returns the runs currently in state
func (r *Report) InState(state State) []*Run {
	var out []*Run
	for _, run := range r.Runs {
		if run.State == state {
			out = append(out, run)
		}
	}
	return out
}

// Extract fetches, validates and stages the stops of date and then the trips
// of every selected route. A failed stops extraction stops the invocation; a
// failed route does not prevent the others from being attempted.
func (p *Pipeline) Extract(ctx context.Context, date string) (*Report, error) {
	report, err := p.start(date)
	if err != nil {
		return nil, err
	}
	err = p.extract(ctx, report)
	p.finish(ctx, "extract", report, err)
	return report, err
}

// Load loads everything staged for date into the warehouse
func (p *Pipeline) Load(ctx context.Context, date string) (*Report, error) {
	report, err := p.start(date)
	if err != nil {
		return nil, err
	}
	err = p.load(ctx, report)
	p.finish(ctx, "load", report, err)
	return report, err
}

// Run extracts date and, once every key is staged, loads it
func (p *Pipeline) Run(ctx context.Context, date string) (*Report, error) {
	report, err := p.start(date)
	if err != nil {
		return nil, err
	}
	if err = p.extract(ctx, report); err == nil {
		err = p.loadRuns(ctx, report, report.InState(Staged))
	}
	p.finish(ctx, "run", report, err)
	return report, err
}

func (p *Pipeline) start(date string) (*Report, error) {
	if _, err := models.ParseDate(date); err != nil {
		return nil, err
	}
	return &Report{RunID: p.newRunID(), Date: date}, nil
}

func (p *Pipeline) extract(ctx context.Context, report *Report) error {
	if p.deps.Extractor == nil || p.deps.Stager == nil {
		return fmt.Errorf("extract requires an extractor and a stager")
	}
	log := p.logger.With("run_id", report.RunID, "date", report.Date)

	stops, err := p.extractStops(ctx, report)
	if err != nil {
		return err
	}

	routes := p.deps.RouteIDs
	if len(routes) == 0 {
		routes = stops.IDs()
	}
	if len(routes) == 0 {
		log.Warn("No trip routes selected")
	}

	var errs []error
	for _, route := range routes {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := p.extractTrips(ctx, report, route); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *Pipeline) extractStops(ctx context.Context, report *Report) (*table.Stops, error) {
	run := report.add(NewRun(report.RunID, models.StopsKey(report.Date)))

	pages, err := p.deps.Extractor.FetchStops(ctx, report.Date)
	if err != nil {
		return nil, run.Fail(err)
	}
	if err := run.Advance(Fetched); err != nil {
		return nil, err
	}

	stops, err := p.deps.Extractor.DecodeStops(pages, report.Date)
	if err != nil {
		return nil, run.Fail(err)
	}
	if err := run.Advance(Validated); err != nil {
		return nil, err
	}

	filtered := stops.FilterCodes(p.deps.StopCodes)
	p.logger.Info("Filtered stops by code",
		"run_id", report.RunID,
		"fetched", stops.Len(),
		"kept", filtered.Len())

	if _, err := p.deps.Stager.Stage(ctx, run.Key, filtered); err != nil {
		return nil, run.Fail(err)
	}
	return filtered, run.Advance(Staged)
}

func (p *Pipeline) extractTrips(ctx context.Context, report *Report, route string) error {
	run := report.add(NewRun(report.RunID, models.TripsKey(report.Date, route)))

	pages, err := p.deps.Extractor.FetchTrips(ctx, report.Date, route)
	if err != nil {
		return run.Fail(fmt.Errorf("fetching trips for route %s: %w", route, err))
	}
	if err := run.Advance(Fetched); err != nil {
		return err
	}

	trips, err := p.deps.Extractor.DecodeTrips(pages, report.Date)
	if err != nil {
		return run.Fail(fmt.Errorf("validating trips for route %s: %w", route, err))
	}
	if err := run.Advance(Validated); err != nil {
		return err
	}

	if _, err := p.deps.Stager.Stage(ctx, run.Key, trips); err != nil {
		return run.Fail(err)
	}
	return run.Advance(Staged)
}

func (p *Pipeline) load(ctx context.Context, report *Report) error {
	if p.deps.Loader == nil {
		return fmt.Errorf("load requires a loader")
	}
	keys, err := p.deps.Loader.Keys(ctx, report.Date)
	if err != nil {
		return err
	}
	runs := make([]*Run, 0, len(keys))
	for _, key := range keys {
		runs = append(runs, report.add(ResumeRun(report.RunID, key, Staged)))
	}
	return p.loadRuns(ctx, report, runs)
}

func (p *Pipeline) loadRuns(ctx context.Context, report *Report, runs []*Run) error {
	if p.deps.Loader == nil {
		return fmt.Errorf("load requires a loader")
	}
	ctx = warehouse.WithRunID(ctx, report.RunID)

	var errs []error
	for _, run := range runs {
		if err := ctx.Err(); err != nil {
			errs = append(errs, run.Fail(err))
			continue
		}
		if _, err := p.deps.Loader.Load(ctx, run.Key); err != nil {
			errs = append(errs, run.Fail(err))
			continue
		}
		if err := run.Advance(Loaded); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *Pipeline) finish(ctx context.Context, op string, report *Report, err error) {
	log := p.logger.With("run_id", report.RunID, "date", report.Date, "operation", op)
	if err == nil {
		log.Info("Pipeline completed", "keys", len(report.Runs))
		return
	}

	failed := report.InState(Failed)
	log.Error("Pipeline failed", "keys", len(report.Runs), "failed", len(failed), "error", err)

	fields := map[string]string{
		"run_id":    report.RunID,
		"date":      report.Date,
		"operation": op,
		"failed":    fmt.Sprintf("%d of %d", len(failed), len(report.Runs)),
		"error":     err.Error(),
	}
	// the invocation context may already be cancelled
	if nerr := p.deps.Notifier.Notify(context.WithoutCancel(ctx), "ERROR", "at-bus-load "+op+" failed", fields); nerr != nil {
		log.Warn("Failed to send failure notification", "error", nerr)
	}
}
