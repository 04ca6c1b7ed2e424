package models

type StopAttributes struct {
	StopID             string  `json:"stop_id"`
	StopCode           string  `json:"stop_code"`
	StopName           string  `json:"stop_name"`
	StopLat            float64 `json:"stop_lat" validate:"gte=-90,lte=90"`
	StopLon            float64 `json:"stop_lon" validate:"gte=-180,lte=180"`
	LocationType       int     `json:"location_type" validate:"gte=0,lte=4"`
	WheelchairBoarding int     `json:"wheelchair_boarding" validate:"gte=0,lte=2"`
}

type TripAttributes struct {
	ArrivalTime   string `json:"arrival_time" validate:"gtfs_time"`   // Format: HH:MM:SS
	DepartureTime string `json:"departure_time" validate:"gtfs_time"` // Format: HH:MM:SS
	DirectionID   int    `json:"direction_id" validate:"oneof=0 1"`
	DropOffType   int    `json:"drop_off_type" validate:"gte=0,lte=3"`
	PickupType    int    `json:"pickup_type" validate:"gte=0,lte=3"`
	RouteID       string `json:"route_id"`
	ServiceDate   string `json:"service_date" validate:"datetime=2006-01-02"`
	ShapeID       string `json:"shape_id"`
	StopHeadsign  string `json:"stop_headsign"`
	StopID        string `json:"stop_id"`
	StopSequence  int    `json:"stop_sequence" validate:"gt=0"`
	TripHeadsign  string `json:"trip_headsign"`
	TripID        string `json:"trip_id"`
	TripStartTime string `json:"trip_start_time" validate:"gtfs_time"` // Format: HH:MM:SS
}
