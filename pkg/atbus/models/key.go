package models

import (
	"fmt"
	"regexp"
	"time"
)

const DateLayout = "2006-01-02"

// route ids become object path segments and warehouse table names
var routeIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Key identifies one unit of work: a dataset kind for a date and, for trips, a route
type Key struct {
	Kind    Kind
	Date    string
	RouteID string
}

func StopsKey(date string) Key {
	return Key{Kind: KindStops, Date: date}
}

func TripsKey(date, routeID string) Key {
	return Key{Kind: KindTrips, Date: date, RouteID: routeID}
}

func (k Key) Validate() error {
	if _, err := ParseDate(k.Date); err != nil {
		return err
	}
	switch k.Kind {
	case KindStops:
		if k.RouteID != "" {
			return fmt.Errorf("stops key must not carry a route id, got %q", k.RouteID)
		}
	case KindTrips:
		if k.RouteID == "" {
			return fmt.Errorf("trips key requires a route id")
		}
		if !routeIDPattern.MatchString(k.RouteID) {
			return fmt.Errorf("route id %q may only contain letters, digits, '_' and '-'", k.RouteID)
		}
	default:
		return fmt.Errorf("unknown dataset kind %q", k.Kind)
	}
	return nil
}

func (k Key) String() string {
	if k.RouteID == "" {
		return fmt.Sprintf("%s/%s", k.Kind, k.Date)
	}
	return fmt.Sprintf("%s/%s/%s", k.Kind, k.Date, k.RouteID)
}

// ParseDate accepts strict YYYY-MM-DD dates only
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("Invalid date format: %s. Please use YYYY-MM-DD format.", s)
	}
	return t, nil
}
