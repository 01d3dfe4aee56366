package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Convergence metrics
	ResourcesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strata_resources_total",
			Help: "Total number of resources evaluated by kind and final state",
		},
		[]string{"kind", "state"},
	)

	ConvergeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "strata_converge_duration_seconds",
			Help:    "Time taken by one convergence run in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	ConvergeRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strata_converge_runs_total",
			Help: "Total number of convergence runs by result",
		},
		[]string{"result"},
	)

	ResourcesUpdated = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "strata_last_run_resources_updated",
			Help: "Number of resources updated by the last convergence run",
		},
	)

	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strata_notifications_total",
			Help: "Total number of notifications fired by timing",
		},
		[]string{"timing"},
	)

	// Guard metrics
	GuardProbeFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "strata_guard_probe_failures_total",
			Help: "Total number of guard probes that could not be evaluated",
		},
	)

	// Device metrics
	OSDDevicesPrepared = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "strata_osd_devices_prepared_total",
			Help: "Total number of OSD devices prepared and activated",
		},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(ResourcesTotal)
	prometheus.MustRegister(ConvergeDuration)
	prometheus.MustRegister(ConvergeRunsTotal)
	prometheus.MustRegister(ResourcesUpdated)
	prometheus.MustRegister(NotificationsTotal)
	prometheus.MustRegister(GuardProbeFailures)
	prometheus.MustRegister(OSDDevicesPrepared)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// WriteTextfile writes all registered metrics to path in the text exposition
// format, for collection by the node exporter's textfile collector
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
