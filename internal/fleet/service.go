package fleet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"backend-fleettrack/internal/apperr"
	"backend-fleettrack/internal/db"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"
)

// Purger removes a trip's ping history; retention.Sweeper satisfies it.
type Purger interface {
	PurgeTrip(ctx context.Context, tripID string) error
}

// Broadcaster pushes bus-status-update events to live viewers.
type Broadcaster interface {
	PublishBus(busNumber string, payload []byte)
}

// Service owns the driver/bus/trip status machine. Every operation runs in
// a single transaction so the cross-entity invariants hold at each committed
// state; the partial unique indexes on trips are the backstop against two
// concurrent StartTrip calls passing the pre-check together.
type Service struct {
	db     db.Querier
	purger Purger
	hub    Broadcaster
}

func NewService(q db.Querier, purger Purger, hub Broadcaster) *Service {
	return &Service{db: q, purger: purger, hub: hub}
}

// AuthenticateDriver links a driver to a bus on login: driver becomes
// active, bus becomes assigned, and the cross-references are set.
func (s *Service) AuthenticateDriver(ctx context.Context, driverID, busNumber string) (AuthResult, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return AuthResult{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var driverStatus string
	err = tx.QueryRow(ctx, `
		UPDATE drivers SET status=$2, current_bus=$3 WHERE id=$1
		RETURNING status
	`, driverID, DriverActive, busNumber).Scan(&driverStatus)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AuthResult{}, fmt.Errorf("%w: driver %s", apperr.ErrNotFound, driverID)
		}
		return AuthResult{}, err
	}

	var busStatus string
	err = tx.QueryRow(ctx, `
		UPDATE buses SET status=$2, current_driver=$3 WHERE number=$1
		RETURNING status
	`, busNumber, BusAssigned, driverID).Scan(&busStatus)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AuthResult{}, fmt.Errorf("%w: bus %s", apperr.ErrNotFound, busNumber)
		}
		return AuthResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return AuthResult{}, err
	}

	s.publishBusStatus(busNumber, busStatus)
	return AuthResult{DriverStatus: driverStatus, BusStatus: busStatus}, nil
}

// StartTrip creates the single active trip for a driver/bus pair and moves
// driver to on_trip, bus to running.
func (s *Service) StartTrip(ctx context.Context, driverID, busNumber string) (Trip, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return Trip{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var active int
	err = tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM trips
		WHERE (driver_id=$1 OR bus_number=$2) AND status=$3
	`, driverID, busNumber, TripActive).Scan(&active)
	if err != nil {
		return Trip{}, err
	}
	if active > 0 {
		return Trip{}, fmt.Errorf("%w: driver %s or bus %s already has an active trip", apperr.ErrConflict, driverID, busNumber)
	}

	trip := Trip{
		ID:        uuid.NewString(),
		DriverID:  driverID,
		BusNumber: busNumber,
		Status:    TripActive,
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO trips (id, driver_id, bus_number, status)
		VALUES ($1,$2,$3,$4)
		RETURNING start_time
	`, trip.ID, driverID, busNumber, TripActive).Scan(&trip.StartTime)
	if err != nil {
		return Trip{}, mapPgError(err)
	}

	if err := s.updateOne(ctx, tx, `UPDATE drivers SET status=$2 WHERE id=$1`, driverID, DriverOnTrip); err != nil {
		return Trip{}, fmt.Errorf("%w: driver %s", err, driverID)
	}
	if err := s.updateOne(ctx, tx, `UPDATE buses SET status=$2 WHERE number=$1`, busNumber, BusRunning); err != nil {
		return Trip{}, fmt.Errorf("%w: bus %s", err, busNumber)
	}

	if err := tx.Commit(ctx); err != nil {
		return Trip{}, mapPgError(err)
	}

	s.publishBusStatus(busNumber, BusRunning)
	return trip, nil
}

// EndTrip transitions the trip to its terminal state, returns driver and bus
// to their idle-assigned statuses, and purges the trip's ping history. A
// second call on the same id misses the active-trip lookup and reports
// NotFound without flipping any status again.
func (s *Service) EndTrip(ctx context.Context, tripID string) (Trip, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return Trip{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	trip := Trip{ID: tripID, Status: TripEnded}
	var endTime time.Time
	err = tx.QueryRow(ctx, `
		UPDATE trips SET status=$2, end_time=NOW() WHERE id=$1 AND status=$3
		RETURNING driver_id, bus_number, start_time, end_time
	`, tripID, TripEnded, TripActive).Scan(&trip.DriverID, &trip.BusNumber, &trip.StartTime, &endTime)
	trip.EndTime = &endTime
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Trip{}, fmt.Errorf("%w: trip %s not found or already ended", apperr.ErrNotFound, tripID)
		}
		return Trip{}, err
	}

	if err := s.updateOne(ctx, tx, `UPDATE drivers SET status=$2 WHERE id=$1`, trip.DriverID, DriverActive); err != nil {
		return Trip{}, fmt.Errorf("%w: driver %s", err, trip.DriverID)
	}
	if err := s.updateOne(ctx, tx, `UPDATE buses SET status=$2 WHERE number=$1`, trip.BusNumber, BusAssigned); err != nil {
		return Trip{}, fmt.Errorf("%w: bus %s", err, trip.BusNumber)
	}

	if err := tx.Commit(ctx); err != nil {
		return Trip{}, err
	}

	if s.purger != nil {
		// Synchronous purge keeps storage from growing between sweeps; a
		// failure here is picked up by the next sweeper tick.
		if err := s.purger.PurgeTrip(ctx, tripID); err != nil {
			log.Printf("fleet: purge history for trip %s: %v", tripID, err)
		}
	}

	s.publishBusStatus(trip.BusNumber, BusAssigned)
	return trip, nil
}

// Logout refuses while the driver holds an active trip. The bus drops to
// halt only if it is still linked to this driver, so a bus reassigned in
// the interim is not clobbered.
func (s *Service) Logout(ctx context.Context, driverID, busNumber string) (AuthResult, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return AuthResult{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var active int
	err = tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM trips WHERE driver_id=$1 AND status=$2
	`, driverID, TripActive).Scan(&active)
	if err != nil {
		return AuthResult{}, err
	}
	if active > 0 {
		return AuthResult{}, fmt.Errorf("%w: driver %s has an active trip, end the trip first", apperr.ErrConflict, driverID)
	}

	if err := s.updateOne(ctx, tx, `UPDATE drivers SET status=$2, current_bus=NULL WHERE id=$1`, driverID, DriverInactive); err != nil {
		return AuthResult{}, fmt.Errorf("%w: driver %s", err, driverID)
	}

	tag, err := tx.Exec(ctx, `
		UPDATE buses SET status=$3, current_driver=NULL
		WHERE number=$1 AND current_driver=$2
	`, busNumber, driverID, BusHalt)
	if err != nil {
		return AuthResult{}, err
	}

	busStatus := BusHalt
	released := tag.RowsAffected() == 1
	if !released {
		err = tx.QueryRow(ctx, `SELECT status FROM buses WHERE number=$1`, busNumber).Scan(&busStatus)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return AuthResult{}, fmt.Errorf("%w: bus %s", apperr.ErrNotFound, busNumber)
			}
			return AuthResult{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return AuthResult{}, err
	}

	if released {
		s.publishBusStatus(busNumber, BusHalt)
	}
	return AuthResult{DriverStatus: DriverInactive, BusStatus: busStatus}, nil
}

// DeleteBus refuses while any active trip references the bus.
func (s *Service) DeleteBus(ctx context.Context, busNumber string) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var active int
	err = tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM trips WHERE bus_number=$1 AND status=$2
	`, busNumber, TripActive).Scan(&active)
	if err != nil {
		return err
	}
	if active > 0 {
		return fmt.Errorf("%w: bus %s has an active trip", apperr.ErrConflict, busNumber)
	}

	if err := s.updateOne(ctx, tx, `DELETE FROM buses WHERE number=$1`, busNumber); err != nil {
		return fmt.Errorf("%w: bus %s", err, busNumber)
	}
	return tx.Commit(ctx)
}

// AssignBusToRoute sets the route on the bus and propagates it to the
// currently linked driver, if any.
func (s *Service) AssignBusToRoute(ctx context.Context, busNumber, routeID string) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var one int
	if err := tx.QueryRow(ctx, `SELECT 1 FROM routes WHERE id=$1`, routeID).Scan(&one); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: route %s", apperr.ErrNotFound, routeID)
		}
		return err
	}

	var currentDriver *string
	err = tx.QueryRow(ctx, `
		UPDATE buses SET route_id=$2 WHERE number=$1
		RETURNING current_driver
	`, busNumber, routeID).Scan(&currentDriver)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: bus %s", apperr.ErrNotFound, busNumber)
		}
		return err
	}

	if currentDriver != nil {
		if _, err := tx.Exec(ctx, `UPDATE drivers SET route_id=$2 WHERE id=$1`, *currentDriver, routeID); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// UpdateBusStatus is the admin entry point; maintenance is only reachable
// here, never through trip transitions.
func (s *Service) UpdateBusStatus(ctx context.Context, busNumber, status string) error {
	if !validBusStatus(status) {
		return fmt.Errorf("%w: unknown bus status %q", apperr.ErrInvalidInput, status)
	}
	tag, err := s.db.Exec(ctx, `UPDATE buses SET status=$2 WHERE number=$1`, busNumber, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: bus %s", apperr.ErrNotFound, busNumber)
	}
	s.publishBusStatus(busNumber, status)
	return nil
}

// ActiveTripForDriver returns the driver's active trip, or nil.
func (s *Service) ActiveTripForDriver(ctx context.Context, driverID string) (*Trip, error) {
	var trip Trip
	err := s.db.QueryRow(ctx, `
		SELECT id, driver_id, bus_number, status, start_time, end_time
		FROM trips WHERE driver_id=$1 AND status=$2
	`, driverID, TripActive).Scan(&trip.ID, &trip.DriverID, &trip.BusNumber, &trip.Status, &trip.StartTime, &trip.EndTime)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &trip, nil
}

func (s *Service) CreateDriver(ctx context.Context, id, name, password string) (Driver, error) {
	if name == "" || password == "" {
		return Driver{}, fmt.Errorf("%w: name and password required", apperr.ErrInvalidInput)
	}
	if id == "" {
		id = uuid.NewString()
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return Driver{}, err
	}
	driver := Driver{ID: id, Name: name, Status: DriverInactive}
	_, err = s.db.Exec(ctx, `
		INSERT INTO drivers (id, name, password_hash) VALUES ($1,$2,$3)
	`, driver.ID, driver.Name, string(hash))
	if err != nil {
		return Driver{}, mapPgError(err)
	}
	return driver, nil
}

func (s *Service) CreateBus(ctx context.Context, number string) (Bus, error) {
	if number == "" {
		return Bus{}, fmt.Errorf("%w: bus number required", apperr.ErrInvalidInput)
	}
	bus := Bus{Number: number, Status: BusHalt}
	if _, err := s.db.Exec(ctx, `INSERT INTO buses (number) VALUES ($1)`, number); err != nil {
		return Bus{}, mapPgError(err)
	}
	return bus, nil
}

func (s *Service) CreateRoute(ctx context.Context, id, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: route name required", apperr.ErrInvalidInput)
	}
	if id == "" {
		id = uuid.NewString()
	}
	if _, err := s.db.Exec(ctx, `INSERT INTO routes (id, name) VALUES ($1,$2)`, id, name); err != nil {
		return "", mapPgError(err)
	}
	return id, nil
}

// updateOne runs a statement that must touch exactly one row; zero rows
// means the entity is unknown.
func (s *Service) updateOne(ctx context.Context, tx pgx.Tx, sql string, args ...any) error {
	tag, err := tx.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

type busStatusEvent struct {
	Event string `json:"event"`
	Data  struct {
		BusNumber string `json:"bus_number"`
		Status    string `json:"status"`
	} `json:"data"`
}

func (s *Service) publishBusStatus(busNumber, status string) {
	if s.hub == nil {
		return
	}
	evt := busStatusEvent{Event: "bus-status-update"}
	evt.Data.BusNumber = busNumber
	evt.Data.Status = status
	payload, _ := json.Marshal(evt)
	s.hub.PublishBus(busNumber, payload)
}

// mapPgError translates constraint violations into the taxonomy: a unique
// violation on the active-trip indexes is a Conflict, a foreign-key miss is
// an unknown entity.
func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%w: %s", apperr.ErrConflict, pgErr.ConstraintName)
		case "23503":
			return fmt.Errorf("%w: %s", apperr.ErrNotFound, pgErr.ConstraintName)
		}
	}
	return err
}
