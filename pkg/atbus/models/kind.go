package models

import "fmt"

// Kind identifies one of the two datasets pulled from the AT API
type Kind string

const (
	KindStops Kind = "stops"
	KindTrips Kind = "trips"
)

// Record-level type tags as served by the API
const (
	TypeTagStops     = "stops"
	TypeTagStopTrips = "stoptrips"
)

// TypeTag returns the record-level "type" value expected for the kind
func (k Kind) TypeTag() string {
	switch k {
	case KindStops:
		return TypeTagStops
	case KindTrips:
		return TypeTagStopTrips
	default:
		return ""
	}
}

func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindStops, KindTrips:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("unknown dataset kind %q", s)
	}
}
