package metrics

import (
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	reg *prometheus.Registry

	PingsIngested   prometheus.Counter
	PingPersistErrs prometheus.Counter
	Broadcasts      prometheus.Counter
	PublishErrs     prometheus.Counter

	SweepRuns   prometheus.Counter
	SweepErrs   prometheus.Counter
	PingsPurged prometheus.Counter

	StreamClients prometheus.Gauge
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		PingsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fleettrack_pings_ingested_total",
			Help: "Total location pings accepted by the ingestion endpoint.",
		}),
		PingPersistErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fleettrack_ping_persist_errors_total",
			Help: "Total ping inserts that failed (the ping was still broadcast).",
		}),
		Broadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fleettrack_broadcasts_total",
			Help: "Total payloads fanned out by the stream hub.",
		}),
		PublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fleettrack_publish_errors_total",
			Help: "Total Redis publish errors.",
		}),
		SweepRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fleettrack_sweep_runs_total",
			Help: "Total retention sweeper ticks executed.",
		}),
		SweepErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fleettrack_sweep_errors_total",
			Help: "Total sweep failures (retried on the next tick).",
		}),
		PingsPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fleettrack_pings_purged_total",
			Help: "Total ping rows deleted by purge or sweep.",
		}),
		StreamClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fleettrack_stream_clients",
			Help: "Number of connected live viewers.",
		}),
	}

	reg.MustRegister(
		c.PingsIngested, c.PingPersistErrs, c.Broadcasts, c.PublishErrs,
		c.SweepRuns, c.SweepErrs, c.PingsPurged,
		c.StreamClients,
	)
	return c
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()
	return srv
}
