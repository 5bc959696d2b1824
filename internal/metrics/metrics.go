package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors of one benchmark run on a private registry.
// All methods accept a nil receiver and do nothing, so callers that do not
// care about metrics can pass nil.
type Metrics struct {
	registry *prometheus.Registry

	Launches        *prometheus.CounterVec
	LaunchDuration  *prometheus.HistogramVec
	MatrixOrder     prometheus.Gauge
	Iterations      prometheus.Gauge
	AvgTimeSeconds  prometheus.Gauge
	BandwidthMBps   prometheus.Gauge
	ValidationError prometheus.Gauge
	Validated       prometheus.Gauge
}

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		Launches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "transpose_launches_total",
			Help: "The total number of kernel launches, by kernel and harness phase",
		}, []string{"kernel", "phase"}),

		LaunchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "transpose_launch_duration_seconds",
			Help:    "Wall time of one launch plus synchronize",
			Buckets: prometheus.ExponentialBuckets(1e-6, 4, 14), // 1µs to ~67s
		}, []string{"kernel"}),

		MatrixOrder: factory.NewGauge(prometheus.GaugeOpts{
			Name: "transpose_matrix_order",
			Help: "Edge length of the transposed matrix",
		}),

		Iterations: factory.NewGauge(prometheus.GaugeOpts{
			Name: "transpose_iterations",
			Help: "Number of measured iterations",
		}),

		AvgTimeSeconds: factory.NewGauge(prometheus.GaugeOpts{
			Name: "transpose_avg_time_seconds",
			Help: "Average time of one measured iteration",
		}),

		BandwidthMBps: factory.NewGauge(prometheus.GaugeOpts{
			Name: "transpose_bandwidth_mb_per_second",
			Help: "Steady-state bandwidth in MB/s",
		}),

		ValidationError: factory.NewGauge(prometheus.GaugeOpts{
			Name: "transpose_validation_error",
			Help: "Aggregate absolute error of the last run",
		}),

		Validated: factory.NewGauge(prometheus.GaugeOpts{
			Name: "transpose_validated",
			Help: "1 if the last run validated, 0 otherwise",
		}),
	}
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveLaunch records one launch cycle.
func (m *Metrics) ObserveLaunch(kernel, phase string, d time.Duration) {
	if m == nil {
		return
	}
	m.Launches.WithLabelValues(kernel, phase).Inc()
	m.LaunchDuration.WithLabelValues(kernel).Observe(d.Seconds())
}

// SetRun records the problem size.
func (m *Metrics) SetRun(order, iterations int) {
	if m == nil {
		return
	}
	m.MatrixOrder.Set(float64(order))
	m.Iterations.Set(float64(iterations))
}

// SetResult records the outcome of a run.
func (m *Metrics) SetResult(avg time.Duration, bandwidth, absErr float64, valid bool) {
	if m == nil {
		return
	}
	m.AvgTimeSeconds.Set(avg.Seconds())
	m.BandwidthMBps.Set(bandwidth)
	m.ValidationError.Set(absErr)
	if valid {
		m.Validated.Set(1)
	} else {
		m.Validated.Set(0)
	}
}

// WriteTextfile writes the current values in the text exposition format, for
// pickup by the node_exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
