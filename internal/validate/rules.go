package validate

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/go-playground/validator/v10"
)

// MaxServiceHour allows GTFS service-day times past midnight (e.g. 25:10:00)
const MaxServiceHour = 47

var gtfsTimePattern = regexp.MustCompile(`^([0-9]{2}):([0-5][0-9]):([0-5][0-9])$`)

// ValidGTFSTime reports whether s is a zero-padded HH:MM:SS service time
func ValidGTFSTime(s string) bool {
	m := gtfsTimePattern.FindStringSubmatch(s)
	if m == nil {
		return false
	}
	hour, err := strconv.Atoi(m[1])
	if err != nil {
		return false
	}
	return hour <= MaxServiceHour
}

func gtfsTime(fl validator.FieldLevel) bool {
	return ValidGTFSTime(fl.Field().String())
}

var fieldMessages = map[string]string{
	"stop_lat":            "Latitude must be between -90 and 90",
	"stop_lon":            "Longitude must be between -180 and 180",
	"location_type":       "Location type must be 0, 1, 2, 3, or 4",
	"wheelchair_boarding": "Wheelchair boarding must be 0, 1, or 2",
	"arrival_time":        "Time must be in HH:MM:SS format",
	"departure_time":      "Time must be in HH:MM:SS format",
	"trip_start_time":     "Time must be in HH:MM:SS format",
	"service_date":        "Date must be in YYYY-MM-DD format",
	"direction_id":        "Direction ID must be 0 or 1",
	"stop_sequence":       "Stop sequence must be positive",
	"pickup_type":         "Pickup type must be 0, 1, 2, or 3",
	"drop_off_type":       "Drop-off type must be 0, 1, 2, or 3",
}

func messageFor(fe validator.FieldError) string {
	if msg, ok := fieldMessages[fe.Field()]; ok {
		return msg
	}
	return fmt.Sprintf("%s failed %s", fe.Field(), constraintOf(fe))
}

func constraintOf(fe validator.FieldError) string {
	if fe.Param() == "" {
		return fe.Tag()
	}
	return fe.Tag() + "=" + fe.Param()
}
