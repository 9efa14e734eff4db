package location

import "time"

// Ping is one timestamped GPS report for a trip. Rows are append-only:
// deletion happens only through the retention sweeper or the purge on trip
// end.
type Ping struct {
	ID        int64     `json:"id"`
	TripID    string    `json:"trip_id"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Timestamp time.Time `json:"timestamp"`
}

// PingInput uses pointers for the coordinates so a missing field is
// distinguishable from zero.
type PingInput struct {
	TripID    string     `json:"trip_id"`
	Latitude  *float64   `json:"latitude"`
	Longitude *float64   `json:"longitude"`
	Timestamp *time.Time `json:"timestamp"`
}

// ActivePosition is the latest ping of an active trip joined with route
// metadata, served to dashboards.
type ActivePosition struct {
	Ping
	BusNumber string `json:"bus_number"`
	RouteID   string `json:"route_id,omitempty"`
	RouteName string `json:"route_name,omitempty"`
}
