package location

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"backend-fleettrack/internal/apperr"
	"backend-fleettrack/internal/db"
	"backend-fleettrack/internal/metrics"

	"github.com/jackc/pgx/v5"
)

const defaultHistoryLimit = 100

// Broadcaster is the fan-out seam; *stream.Hub satisfies it.
type Broadcaster interface {
	PublishBus(busNumber string, payload []byte)
	PublishFleet(payload []byte)
}

type Service struct {
	db      db.Querier
	hub     Broadcaster
	metrics *metrics.Collector
}

func NewService(q db.Querier, hub Broadcaster, collector *metrics.Collector) *Service {
	return &Service{db: q, hub: hub, metrics: collector}
}

type busEvent struct {
	Event string `json:"event"`
	Data  Ping   `json:"data"`
}

// Ingest validates and persists a ping, then hands it to the relay. The
// broadcast happens even when the insert fails: live delivery wins over
// durability, so a storage error must never keep viewers from seeing the
// bus move. The insert error is still returned so the HTTP caller learns
// the ping was not stored.
func (s *Service) Ingest(ctx context.Context, in PingInput) (Ping, error) {
	if in.TripID == "" || in.Latitude == nil || in.Longitude == nil {
		return Ping{}, fmt.Errorf("%w: trip_id, latitude and longitude are required", apperr.ErrInvalidInput)
	}
	lat, lng := *in.Latitude, *in.Longitude
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return Ping{}, fmt.Errorf("%w: coordinates out of range", apperr.ErrInvalidInput)
	}

	ping := Ping{TripID: in.TripID, Latitude: lat, Longitude: lng, Timestamp: time.Now().UTC()}
	if in.Timestamp != nil {
		ping.Timestamp = *in.Timestamp
	}

	busNumber, busErr := s.busForTrip(ctx, in.TripID)

	insertErr := s.db.QueryRow(ctx, `
		INSERT INTO trip_locations (trip_id, latitude, longitude, recorded_at)
		VALUES ($1,$2,$3,$4)
		RETURNING id
	`, ping.TripID, ping.Latitude, ping.Longitude, ping.Timestamp).Scan(&ping.ID)
	if insertErr != nil {
		log.Printf("location: persist ping for trip %s failed: %v", ping.TripID, insertErr)
		if s.metrics != nil {
			s.metrics.PingPersistErrs.Inc()
		}
	} else if s.metrics != nil {
		s.metrics.PingsIngested.Inc()
	}

	if s.hub != nil {
		payload, _ := json.Marshal(busEvent{Event: "bus-location-update", Data: ping})
		if busErr == nil && busNumber != "" {
			s.hub.PublishBus(busNumber, payload)
		} else {
			s.hub.PublishFleet(payload)
		}
	}

	if insertErr != nil {
		return ping, fmt.Errorf("location: persist ping: %w", insertErr)
	}
	return ping, nil
}

func (s *Service) busForTrip(ctx context.Context, tripID string) (string, error) {
	var busNumber string
	err := s.db.QueryRow(ctx, `SELECT bus_number FROM trips WHERE id=$1`, tripID).Scan(&busNumber)
	return busNumber, err
}

// History returns pings for a trip, newest first.
func (s *Service) History(ctx context.Context, tripID string, limit int) ([]Ping, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, trip_id, latitude, longitude, recorded_at
		FROM trip_locations WHERE trip_id=$1
		ORDER BY recorded_at DESC
		LIMIT $2
	`, tripID, limit)
	if err != nil {
		return nil, fmt.Errorf("location: history: %w", err)
	}
	defer rows.Close()
	return scanPings(rows)
}

// Latest returns the most recent ping for a trip, or nil when the trip has
// no history.
func (s *Service) Latest(ctx context.Context, tripID string) (*Ping, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, trip_id, latitude, longitude, recorded_at
		FROM trip_locations WHERE trip_id=$1
		ORDER BY recorded_at DESC
		LIMIT 1
	`, tripID)
	return scanOptionalPing(row)
}

func (s *Service) LatestByBus(ctx context.Context, busNumber string) (*Ping, error) {
	row := s.db.QueryRow(ctx, `
		SELECT l.id, l.trip_id, l.latitude, l.longitude, l.recorded_at
		FROM trip_locations l
		JOIN trips t ON t.id = l.trip_id
		WHERE t.bus_number=$1
		ORDER BY l.recorded_at DESC
		LIMIT 1
	`, busNumber)
	return scanOptionalPing(row)
}

// LatestSince returns pings for a trip strictly newer than the watermark,
// oldest first. Both the socket catch-up path and the polling fallback read
// through this one query.
func (s *Service) LatestSince(ctx context.Context, tripID string, since time.Time) ([]Ping, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, trip_id, latitude, longitude, recorded_at
		FROM trip_locations
		WHERE trip_id=$1 AND recorded_at > $2
		ORDER BY recorded_at
	`, tripID, since)
	if err != nil {
		return nil, fmt.Errorf("location: latest since: %w", err)
	}
	defer rows.Close()
	return scanPings(rows)
}

// BusPositionsSince serves the polling fallback: pings for a bus across its
// trips, strictly newer than the watermark when one is given.
func (s *Service) BusPositionsSince(ctx context.Context, busNumber string, since *time.Time) ([]Ping, error) {
	watermark := time.Time{}
	if since != nil {
		watermark = *since
	}
	rows, err := s.db.Query(ctx, `
		SELECT l.id, l.trip_id, l.latitude, l.longitude, l.recorded_at
		FROM trip_locations l
		JOIN trips t ON t.id = l.trip_id
		WHERE t.bus_number=$1 AND l.recorded_at > $2
		ORDER BY l.recorded_at
	`, busNumber, watermark)
	if err != nil {
		return nil, fmt.Errorf("location: bus positions: %w", err)
	}
	defer rows.Close()
	return scanPings(rows)
}

// ActivePositions returns the latest ping per active trip joined with route
// metadata.
func (s *Service) ActivePositions(ctx context.Context) ([]ActivePosition, error) {
	rows, err := s.db.Query(ctx, `
		SELECT DISTINCT ON (l.trip_id)
			l.id, l.trip_id, l.latitude, l.longitude, l.recorded_at,
			t.bus_number, COALESCE(b.route_id, ''), COALESCE(r.name, '')
		FROM trip_locations l
		JOIN trips t ON t.id = l.trip_id AND t.status = 'active'
		JOIN buses b ON b.number = t.bus_number
		LEFT JOIN routes r ON r.id = b.route_id
		ORDER BY l.trip_id, l.recorded_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("location: active positions: %w", err)
	}
	defer rows.Close()

	var positions []ActivePosition
	for rows.Next() {
		var p ActivePosition
		if err := rows.Scan(&p.ID, &p.TripID, &p.Latitude, &p.Longitude, &p.Timestamp, &p.BusNumber, &p.RouteID, &p.RouteName); err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

func scanPings(rows pgx.Rows) ([]Ping, error) {
	var pings []Ping
	for rows.Next() {
		var p Ping
		if err := rows.Scan(&p.ID, &p.TripID, &p.Latitude, &p.Longitude, &p.Timestamp); err != nil {
			return nil, err
		}
		pings = append(pings, p)
	}
	return pings, rows.Err()
}

func scanOptionalPing(row pgx.Row) (*Ping, error) {
	var p Ping
	if err := row.Scan(&p.ID, &p.TripID, &p.Latitude, &p.Longitude, &p.Timestamp); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}
