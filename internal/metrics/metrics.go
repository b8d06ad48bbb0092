package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Lifecycle metrics
	ProvisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lighthouse_provisions_total",
			Help: "Provision calls by outcome (created, existing, failed)",
		},
		[]string{"outcome"},
	)

	ProvisionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lighthouse_provision_duration_seconds",
			Help:    "Time taken to provision a worker container",
			Buckets: prometheus.DefBuckets,
		},
	)

	LifecycleOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lighthouse_lifecycle_operations_total",
			Help: "Restart/stop/remove calls by operation and outcome",
		},
		[]string{"op", "outcome"},
	)

	// Port allocation metrics
	PortAllocationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lighthouse_port_allocations_total",
			Help: "Port allocations by range and outcome",
		},
		[]string{"range", "outcome"},
	)

	// Sweep metrics
	HealthChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lighthouse_health_checks_total",
			Help: "Per-container health sweep results (healthy, restarted, stopped, skipped, restart_failed)",
		},
		[]string{"result"},
	)

	ReaperRemovalsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lighthouse_reaper_removed_containers_total",
			Help: "Stopped containers removed after the retention window",
		},
	)

	ReaperReclaimedBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lighthouse_reaper_reclaimed_bytes_total",
			Help: "Bytes reclaimed by dangling image prunes",
		},
	)

	SweepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lighthouse_sweep_duration_seconds",
			Help:    "Duration of health and cleanup sweeps",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		},
		[]string{"sweep"},
	)
)

func init() {
	prometheus.MustRegister(ProvisionsTotal)
	prometheus.MustRegister(ProvisionDuration)
	prometheus.MustRegister(LifecycleOpsTotal)
	prometheus.MustRegister(PortAllocationsTotal)
	prometheus.MustRegister(HealthChecksTotal)
	prometheus.MustRegister(ReaperRemovalsTotal)
	prometheus.MustRegister(ReaperReclaimedBytes)
	prometheus.MustRegister(SweepDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
