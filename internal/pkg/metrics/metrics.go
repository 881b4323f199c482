package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the delivery counters. Labels are channel names for the
// polled path and feed names ("notifications", "reservations") for realtime.
type Metrics struct {
	RealtimeDropped *prometheus.CounterVec
	Delivered       *prometheus.CounterVec
	Retried         *prometheus.CounterVec
	Failed          *prometheus.CounterVec
	Skipped         prometheus.Counter
}

// New creates the counters and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RealtimeDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notify_realtime_dropped_total",
			Help: "Realtime sends that failed to publish and were dropped",
		}, []string{"feed"}),
		Delivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notify_delivered_total",
			Help: "Polled notifications moved to DELIVERED",
		}, []string{"channel"}),
		Retried: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notify_retried_total",
			Help: "Polled sends that failed and were left PENDING",
		}, []string{"channel"}),
		Failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notify_failed_total",
			Help: "Polled notifications moved to FAILED after the retry ceiling",
		}, []string{"channel"}),
		Skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "notify_duplicate_skipped_total",
			Help: "Inserts skipped because the event id already existed",
		}),
	}
	reg.MustRegister(m.RealtimeDropped, m.Delivered, m.Retried, m.Failed, m.Skipped)
	return m
}

// Handler returns an http.Handler for Prometheus scraping of g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
