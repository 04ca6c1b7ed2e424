package atapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/at-bus-load/internal/common/config"
	"github.com/at-bus-load/internal/common/logger"
	"github.com/at-bus-load/internal/table"
	"github.com/at-bus-load/internal/validate"
	"github.com/at-bus-load/pkg/atbus/models"
)

// maxPages bounds pagination in case the API keeps handing out next links
const maxPages = 500

type Extractor struct {
	client        *Client
	validator     *validate.Validator
	tripStartHour int
	tripHourRange int
	logger        logger.Logger
}

func NewExtractor(client *Client, v *validate.Validator, cfg config.APIConfig, log logger.Logger) *Extractor {
	return &Extractor{
		client:        client,
		validator:     v,
		tripStartHour: cfg.TripStartHour,
		tripHourRange: cfg.TripHourRange,
		logger:        log,
	}
}

// FetchStops returns the raw response pages of the stops endpoint for a date
func (e *Extractor) FetchStops(ctx context.Context, date string) ([][]byte, error) {
	query := url.Values{}
	query.Set("filter[date]", date)
	return e.fetchPages(ctx, "stops", query)
}

// FetchTrips returns the raw response pages of the stoptrips endpoint for a
// date and route id
func (e *Extractor) FetchTrips(ctx context.Context, date, routeID string) ([][]byte, error) {
	if routeID == "" {
		return nil, fmt.Errorf("fetching trips: route id is required")
	}
	query := url.Values{}
	query.Set("filter[date]", date)
	query.Set("filter[start_hour]", strconv.Itoa(e.tripStartHour))
	query.Set("filter[hour_range]", strconv.Itoa(e.tripHourRange))
	return e.fetchPages(ctx, "stops/"+url.PathEscape(routeID)+"/stoptrips", query)
}

// DecodeStops validates every page and flattens them into one table. A
// validation failure stays a *validate.ValidationError; with more than one
// page its paths are prefixed with pages[i].
func (e *Extractor) DecodeStops(pages [][]byte, date string) (*table.Stops, error) {
	out := &table.Stops{}
	for i, page := range pages {
		env, err := e.validator.ValidateStops(page)
		if err != nil {
			return nil, pageError(err, i, len(pages))
		}
		t, err := table.FromStops(env, date)
		if err != nil {
			return nil, fmt.Errorf("converting stops: %w", err)
		}
		out.Append(t)
	}
	return out, nil
}

func (e *Extractor) DecodeTrips(pages [][]byte, date string) (*table.Trips, error) {
	out := &table.Trips{}
	for i, page := range pages {
		env, err := e.validator.ValidateTrips(page)
		if err != nil {
			return nil, pageError(err, i, len(pages))
		}
		t, err := table.FromTrips(env, date)
		if err != nil {
			return nil, fmt.Errorf("converting trips: %w", err)
		}
		out.Append(t)
	}
	return out, nil
}

// ExtractStops fetches, validates and converts the stops of a date
func (e *Extractor) ExtractStops(ctx context.Context, date string) (*table.Stops, error) {
	pages, err := e.FetchStops(ctx, date)
	if err != nil {
		return nil, err
	}
	t, err := e.DecodeStops(pages, date)
	if err != nil {
		e.logger.Error("Error loading stops data", "date", date, "error", err)
		return nil, err
	}
	e.logger.Info("Successfully loaded stops data", "date", date, "rows", t.Len())
	return t, nil
}

// ExtractTrips fetches, validates and converts the trips of a date and route
func (e *Extractor) ExtractTrips(ctx context.Context, date, routeID string) (*table.Trips, error) {
	pages, err := e.FetchTrips(ctx, date, routeID)
	if err != nil {
		return nil, err
	}
	t, err := e.DecodeTrips(pages, date)
	if err != nil {
		e.logger.Error("Error loading trips data", "date", date, "route_id", routeID, "error", err)
		return nil, err
	}
	e.logger.Info("Successfully loaded trips data", "date", date, "route_id", routeID, "rows", t.Len())
	return t, nil
}

func (e *Extractor) fetchPages(ctx context.Context, path string, query url.Values) ([][]byte, error) {
	target, err := e.client.Resolve(path, query)
	if err != nil {
		return nil, err
	}

	var pages [][]byte
	seen := make(map[string]bool)
	for target != "" {
		if len(pages) >= maxPages {
			return nil, fmt.Errorf("fetching %s: more than %d pages", path, maxPages)
		}
		seen[target] = true

		body, err := e.client.GetURL(ctx, target)
		if err != nil {
			return nil, err
		}
		pages = append(pages, body)

		next := peekNext(body)
		if next == "" {
			break
		}
		target, err = e.client.Resolve(next, nil)
		if err != nil {
			return nil, err
		}
		if seen[target] {
			e.logger.Warn("Pagination link repeats, stopping", "url", target)
			break
		}
	}

	e.logger.Debug("Fetched pages", "path", path, "pages", len(pages))
	return pages, nil
}

func pageError(err error, page, total int) error {
	var verr *validate.ValidationError
	if total > 1 && errors.As(err, &verr) {
		return verr.WithPrefix(fmt.Sprintf("pages[%d].", page))
	}
	return err
}

// peekNext reads the pagination link without validating the page
func peekNext(body []byte) string {
	var envelope struct {
		Links *models.Links `json:"links"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Links == nil {
		return ""
	}
	return envelope.Links.Next
}
