// Package table turns validated envelopes into row-oriented tables and
// encodes them as Parquet.
package table

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/at-bus-load/pkg/atbus/models"
)

type ColumnType int

const (
	String ColumnType = iota
	Float
	Int
	Date
)

type Column struct {
	Name string
	Type ColumnType
}

// Table is a row-oriented dataset of a single kind
type Table interface {
	Kind() models.Kind
	Len() int
	Columns() []Column
	// Values returns row i in Columns order; Date columns come back as YYYY-MM-DD strings
	Values(i int) []interface{}
	EncodeParquet(w io.Writer) error
}

var epoch = time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)

// DaysSinceEpoch converts a YYYY-MM-DD date to the Parquet DATE representation
func DaysSinceEpoch(date string) (int32, error) {
	t, err := models.ParseDate(date)
	if err != nil {
		return 0, err
	}
	return int32(t.Sub(epoch).Hours() / 24), nil
}

// DateFromDays is the inverse of DaysSinceEpoch
func DateFromDays(days int32) string {
	return epoch.AddDate(0, 0, int(days)).Format(models.DateLayout)
}

// Encode serializes t to Parquet bytes
func Encode(t Table) ([]byte, error) {
	var buf bytes.Buffer
	if err := t.EncodeParquet(&buf); err != nil {
		return nil, fmt.Errorf("encoding %s table: %w", t.Kind(), err)
	}
	return buf.Bytes(), nil
}

// Decode reads a Parquet artifact of the given kind back into a table
func Decode(kind models.Kind, data []byte) (Table, error) {
	switch kind {
	case models.KindStops:
		rows, err := readRows[StopRow](data)
		if err != nil {
			return nil, fmt.Errorf("decoding stops table: %w", err)
		}
		return &Stops{Rows: rows}, nil
	case models.KindTrips:
		rows, err := readRows[TripRow](data)
		if err != nil {
			return nil, fmt.Errorf("decoding trips table: %w", err)
		}
		return &Trips{Rows: rows}, nil
	default:
		return nil, fmt.Errorf("unknown dataset kind %q", kind)
	}
}
