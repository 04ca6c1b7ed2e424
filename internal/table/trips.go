package table

import (
	"fmt"
	"io"

	"github.com/at-bus-load/pkg/atbus/models"
)

type TripRow struct {
	Type             string `parquet:"type"`
	ID               string `parquet:"id"`
	ArrivalTime      string `parquet:"arrival_time"`
	DepartureTime    string `parquet:"departure_time"`
	DirectionID      int64  `parquet:"direction_id"`
	DropOffType      int64  `parquet:"drop_off_type"`
	PickupType       int64  `parquet:"pickup_type"`
	RouteID          string `parquet:"route_id"`
	ServiceDate      string `parquet:"service_date"`
	ShapeID          string `parquet:"shape_id"`
	StopHeadsign     string `parquet:"stop_headsign"`
	StopID           string `parquet:"stop_id"`
	StopSequence     int64  `parquet:"stop_sequence"`
	TripHeadsign     string `parquet:"trip_headsign"`
	TripID           string `parquet:"trip_id"`
	TripStartTime    string `parquet:"trip_start_time"`
	APIDateIngestion int32  `parquet:"api_date_ingestion,date"`
}

var tripColumns = []Column{
	{"type", String},
	{"id", String},
	{"arrival_time", String},
	{"departure_time", String},
	{"direction_id", Int},
	{"drop_off_type", Int},
	{"pickup_type", Int},
	{"route_id", String},
	{"service_date", String},
	{"shape_id", String},
	{"stop_headsign", String},
	{"stop_id", String},
	{"stop_sequence", Int},
	{"trip_headsign", String},
	{"trip_id", String},
	{"trip_start_time", String},
	{"api_date_ingestion", Date},
}

type Trips struct {
	Rows []TripRow
}

func FromTrips(env *models.TripEnvelope, apiDate string) (*Trips, error) {
	days, err := DaysSinceEpoch(apiDate)
	if err != nil {
		return nil, err
	}
	t := &Trips{Rows: make([]TripRow, 0, len(env.Data))}
	for _, r := range env.Data {
		a := r.Attributes
		t.Rows = append(t.Rows, TripRow{
			Type:             r.Type,
			ID:               r.ID,
			ArrivalTime:      a.ArrivalTime,
			DepartureTime:    a.DepartureTime,
			DirectionID:      int64(a.DirectionID),
			DropOffType:      int64(a.DropOffType),
			PickupType:       int64(a.PickupType),
			RouteID:          a.RouteID,
			ServiceDate:      a.ServiceDate,
			ShapeID:          a.ShapeID,
			StopHeadsign:     a.StopHeadsign,
			StopID:           a.StopID,
			StopSequence:     int64(a.StopSequence),
			TripHeadsign:     a.TripHeadsign,
			TripID:           a.TripID,
			TripStartTime:    a.TripStartTime,
			APIDateIngestion: days,
		})
	}
	return t, nil
}

func (t *Trips) Append(other *Trips) {
	t.Rows = append(t.Rows, other.Rows...)
}

func (t *Trips) Kind() models.Kind { return models.KindTrips }

func (t *Trips) Len() int { return len(t.Rows) }

func (t *Trips) Columns() []Column { return tripColumns }

func (t *Trips) Values(i int) []interface{} {
	r := t.Rows[i]
	return []interface{}{
		r.Type, r.ID, r.ArrivalTime, r.DepartureTime,
		r.DirectionID, r.DropOffType, r.PickupType,
		r.RouteID, r.ServiceDate, r.ShapeID, r.StopHeadsign, r.StopID,
		r.StopSequence, r.TripHeadsign, r.TripID, r.TripStartTime,
		DateFromDays(r.APIDateIngestion),
	}
}

func (t *Trips) EncodeParquet(w io.Writer) error {
	if err := writeRows(w, t.Rows); err != nil {
		return fmt.Errorf("writing trip rows: %w", err)
	}
	return nil
}
