package fleet

import "time"

const (
	DriverInactive = "inactive"
	DriverActive   = "active"
	DriverOnTrip   = "on_trip"

	BusHalt        = "halt"
	BusAssigned    = "assigned"
	BusRunning     = "running"
	BusMaintenance = "maintenance"

	TripActive = "active"
	TripEnded  = "ended"
)

type Driver struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Status     string  `json:"status"`
	CurrentBus *string `json:"current_bus,omitempty"`
	RouteID    *string `json:"route_id,omitempty"`
}

type Bus struct {
	Number        string  `json:"number"`
	Status        string  `json:"status"`
	CurrentDriver *string `json:"current_driver,omitempty"`
	RouteID       *string `json:"route_id,omitempty"`
}

// Trip is one driver/bus assignment window. It is created by StartTrip and
// mutated only by EndTrip; ended is terminal.
type Trip struct {
	ID        string     `json:"id"`
	DriverID  string     `json:"driver_id"`
	BusNumber string     `json:"bus_number"`
	Status    string     `json:"status"`
	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty"`
}

// AuthResult reports the post-transition statuses for login and logout.
type AuthResult struct {
	DriverStatus string `json:"driver_status"`
	BusStatus    string `json:"bus_status"`
}

func validBusStatus(status string) bool {
	switch status {
	case BusHalt, BusAssigned, BusRunning, BusMaintenance:
		return true
	}
	return false
}
