package retention

import (
	"context"
	"log"
	"time"

	"backend-fleettrack/internal/db"
	"backend-fleettrack/internal/metrics"
)

// Sweeper bounds ping history. Ended trips are purged immediately through
// PurgeTrip; anything orphaned past the retention window is caught by the
// periodic sweep. Sweep failures are logged and retried on the next tick,
// never surfaced to the ingestion path.
type Sweeper struct {
	db       db.Querier
	window   time.Duration
	interval time.Duration
	metrics  *metrics.Collector
}

func NewSweeper(q db.Querier, window, interval time.Duration, collector *metrics.Collector) *Sweeper {
	return &Sweeper{db: q, window: window, interval: interval, metrics: collector}
}

// PurgeTrip deletes all pings for one trip. EndTrip calls this
// synchronously.
func (s *Sweeper) PurgeTrip(ctx context.Context, tripID string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM trip_locations WHERE trip_id=$1`, tripID)
	if err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.PingsPurged.Add(float64(tag.RowsAffected()))
	}
	return nil
}

// Run ticks until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep deletes pings of ended trips older than the retention window.
func (s *Sweeper) Sweep(ctx context.Context) {
	cutoff := time.Now().Add(-s.window)
	tag, err := s.db.Exec(ctx, `
		DELETE FROM trip_locations l
		USING trips t
		WHERE t.id = l.trip_id AND t.status = 'ended' AND l.recorded_at < $1
	`, cutoff)
	if s.metrics != nil {
		s.metrics.SweepRuns.Inc()
	}
	if err != nil {
		log.Printf("retention: sweep failed, retrying next tick: %v", err)
		if s.metrics != nil {
			s.metrics.SweepErrs.Inc()
		}
		return
	}
	if rows := tag.RowsAffected(); rows > 0 {
		log.Printf("retention: swept %d pings past %v window", rows, s.window)
		if s.metrics != nil {
			s.metrics.PingsPurged.Add(float64(rows))
		}
	}
}
