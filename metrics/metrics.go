// Package metrics holds the Prometheus collectors of the feature services
// and pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "resalegeo"

// Metrics implements features.Recorder and geocode.Recorder.
type Metrics struct {
	registry *prometheus.Registry

	FieldDefaults    *prometheus.CounterVec
	SchemaMismatches *prometheus.CounterVec
	GeocodeLookups   *prometheus.CounterVec
	Requests         *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	ClusterCount     *prometheus.GaugeVec
	JoinDistance     *prometheus.HistogramVec
	SnapshotLoaded   prometheus.Gauge
	SnapshotReloads  *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		FieldDefaults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "features",
				Name:      "defaulted_total",
				Help:      "Fields that were missing or malformed and took their policy default",
			},
			[]string{"field"},
		),

		SchemaMismatches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "features",
				Name:      "schema_mismatch_columns_total",
				Help:      "Columns zero-filled or dropped when aligning to the training schema",
			},
			[]string{"kind"},
		),

		GeocodeLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "geocode",
				Name:      "lookups_total",
				Help:      "Address lookups by outcome (cache, resolved, failed)",
			},
			[]string{"outcome"},
		),

		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "api",
				Name:      "requests_total",
				Help:      "Requests handled by operation and status",
			},
			[]string{"operation", "status"},
		),

		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "api",
				Name:      "request_duration_seconds",
				Help:      "Request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),

		ClusterCount: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "clusters",
				Name:      "count",
				Help:      "Clusters in the loaded summary table per entity",
			},
			[]string{"entity"},
		),

		JoinDistance: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "join",
				Name:      "distance_meters",
				Help:      "Distance from a record to its nearest cluster centroid",
				Buckets:   prometheus.ExponentialBuckets(50, 2, 10),
			},
			[]string{"entity"},
		),

		SnapshotLoaded: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "snapshot",
				Name:      "loaded_timestamp_seconds",
				Help:      "Unix time the current snapshot was published",
			},
		),

		SnapshotReloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "snapshot",
				Name:      "reloads_total",
				Help:      "Snapshot reloads by result",
			},
			[]string{"result"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.FieldDefaults,
		m.SchemaMismatches,
		m.GeocodeLookups,
		m.Requests,
		m.RequestDuration,
		m.ClusterCount,
		m.JoinDistance,
		m.SnapshotLoaded,
		m.SnapshotReloads,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) FieldDefaulted(field string) {
	m.FieldDefaults.WithLabelValues(field).Inc()
}

func (m *Metrics) SchemaMismatch(missing, extra int) {
	m.SchemaMismatches.WithLabelValues("missing").Add(float64(missing))
	m.SchemaMismatches.WithLabelValues("extra").Add(float64(extra))
}

func (m *Metrics) Geocoded(outcome string) {
	m.GeocodeLookups.WithLabelValues(outcome).Inc()
}

// ObserveRequest records one handled request.
func (m *Metrics) ObserveRequest(operation, status string, elapsed time.Duration) {
	m.Requests.WithLabelValues(operation, status).Inc()
	m.RequestDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveJoin(entity string, meters float64) {
	m.JoinDistance.WithLabelValues(entity).Observe(meters)
}

// SnapshotPublished records a successful reload and the cluster counts it
// carries.
func (m *Metrics) SnapshotPublished(at time.Time, clusters map[string]int) {
	m.SnapshotLoaded.Set(float64(at.Unix()))
	m.SnapshotReloads.WithLabelValues("ok").Inc()
	for entity, n := range clusters {
		m.ClusterCount.WithLabelValues(entity).Set(float64(n))
	}
}

func (m *Metrics) SnapshotFailed() {
	m.SnapshotReloads.WithLabelValues("error").Inc()
}
