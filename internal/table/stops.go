package table

import (
	"fmt"
	"io"

	"github.com/at-bus-load/pkg/atbus/models"
)

type StopRow struct {
	Type               string  `parquet:"type"`
	ID                 string  `parquet:"id"`
	StopID             string  `parquet:"stop_id"`
	StopCode           string  `parquet:"stop_code"`
	StopName           string  `parquet:"stop_name"`
	StopLat            float64 `parquet:"stop_lat"`
	StopLon            float64 `parquet:"stop_lon"`
	LocationType       int64   `parquet:"location_type"`
	WheelchairBoarding int64   `parquet:"wheelchair_boarding"`
	APIDateIngestion   int32   `parquet:"api_date_ingestion,date"`
}

var stopColumns = []Column{
	{"type", String},
	{"id", String},
	{"stop_id", String},
	{"stop_code", String},
	{"stop_name", String},
	{"stop_lat", Float},
	{"stop_lon", Float},
	{"location_type", Int},
	{"wheelchair_boarding", Int},
	{"api_date_ingestion", Date},
}

type Stops struct {
	Rows []StopRow
}

// FromStops flattens a validated stops envelope, one row per record, stamping
// every row with the ingestion date
func FromStops(env *models.StopEnvelope, apiDate string) (*Stops, error) {
	days, err := DaysSinceEpoch(apiDate)
	if err != nil {
		return nil, err
	}
	t := &Stops{Rows: make([]StopRow, 0, len(env.Data))}
	for _, r := range env.Data {
		a := r.Attributes
		t.Rows = append(t.Rows, StopRow{
			Type:               r.Type,
			ID:                 r.ID,
			StopID:             a.StopID,
			StopCode:           a.StopCode,
			StopName:           a.StopName,
			StopLat:            a.StopLat,
			StopLon:            a.StopLon,
			LocationType:       int64(a.LocationType),
			WheelchairBoarding: int64(a.WheelchairBoarding),
			APIDateIngestion:   days,
		})
	}
	return t, nil
}

// Append adds the rows of another page
func (t *Stops) Append(other *Stops) {
	t.Rows = append(t.Rows, other.Rows...)
}

// FilterCodes keeps stops whose public code is listed; an empty list keeps all
func (t *Stops) FilterCodes(codes []string) *Stops {
	if len(codes) == 0 {
		return t
	}
	keep := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		keep[c] = struct{}{}
	}
	out := &Stops{Rows: make([]StopRow, 0, len(codes))}
	for _, r := range t.Rows {
		if _, ok := keep[r.StopCode]; ok {
			out.Rows = append(out.Rows, r)
		}
	}
	return out
}

// IDs returns the record ids in row order
func (t *Stops) IDs() []string {
	ids := make([]string, len(t.Rows))
	for i, r := range t.Rows {
		ids[i] = r.ID
	}
	return ids
}

func (t *Stops) Kind() models.Kind { return models.KindStops }

func (t *Stops) Len() int { return len(t.Rows) }

func (t *Stops) Columns() []Column { return stopColumns }

func (t *Stops) Values(i int) []interface{} {
	r := t.Rows[i]
	return []interface{}{
		r.Type, r.ID, r.StopID, r.StopCode, r.StopName,
		r.StopLat, r.StopLon, r.LocationType, r.WheelchairBoarding,
		DateFromDays(r.APIDateIngestion),
	}
}

func (t *Stops) EncodeParquet(w io.Writer) error {
	if err := writeRows(w, t.Rows); err != nil {
		return fmt.Errorf("writing stop rows: %w", err)
	}
	return nil
}
