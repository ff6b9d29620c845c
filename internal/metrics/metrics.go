// Package metrics provides Prometheus metrics for texttree
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for texttree
type Metrics struct {
	// gRPC request metrics
	GrpcRequestsTotal    *prometheus.CounterVec
	GrpcRequestDuration  *prometheus.HistogramVec
	GrpcRequestsInFlight prometheus.Gauge

	// Edit metrics
	EditsTotal     *prometheus.CounterVec
	EditDuration   *prometheus.HistogramVec
	ReusedChildren *prometheus.CounterVec

	// Store metrics
	LatestVersion    prometheus.Gauge
	StoreElements    prometheus.Gauge
	StoreAnnotations prometheus.Gauge

	ServerStartTime time.Time
}

// New creates all metrics and registers them with reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ServerStartTime: time.Now(),
	}
	factory := promauto.With(reg)

	// gRPC request metrics
	m.GrpcRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "texttree_grpc_requests_total",
			Help: "Total number of gRPC requests",
		},
		[]string{"method", "status"},
	)

	m.GrpcRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "texttree_grpc_request_duration_seconds",
			Help:    "Duration of gRPC requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	m.GrpcRequestsInFlight = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "texttree_grpc_requests_in_flight",
			Help: "Number of gRPC requests currently being processed",
		},
	)

	// Edit metrics
	m.EditsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "texttree_edits_total",
			Help: "Total number of document and annotation edits",
		},
		[]string{"op", "status"},
	)

	m.EditDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "texttree_edit_duration_seconds",
			Help:    "Duration of edits in seconds",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
		},
		[]string{"op"},
	)

	m.ReusedChildren = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "texttree_edit_children_total",
			Help: "Children resolved during edits, by how they were matched",
		},
		[]string{"match"},
	)

	// Store metrics
	m.LatestVersion = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "texttree_latest_version",
			Help: "Highest allocated version number",
		},
	)

	m.StoreElements = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "texttree_store_elements",
			Help: "Number of elements in the store",
		},
	)

	m.StoreAnnotations = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "texttree_store_annotations",
			Help: "Number of annotations in the store",
		},
	)

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "texttree_server_uptime_seconds",
			Help: "Server uptime in seconds",
		},
		func() float64 { return time.Since(m.ServerStartTime).Seconds() },
	)

	return m
}

// RecordGrpcRequest records a gRPC request with its status code name
func (m *Metrics) RecordGrpcRequest(method string, status string, duration time.Duration) {
	m.GrpcRequestsTotal.WithLabelValues(method, status).Inc()
	m.GrpcRequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// ObserveEdit records one model operation
func (m *Metrics) ObserveEdit(op string, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.EditsTotal.WithLabelValues(op, status).Inc()
	m.EditDuration.WithLabelValues(op).Observe(d.Seconds())
}

// ObserveReuse records how the children of one edit were resolved
func (m *Metrics) ObserveReuse(exact, partial, fresh int) {
	m.ReusedChildren.WithLabelValues("exact").Add(float64(exact))
	m.ReusedChildren.WithLabelValues("partial").Add(float64(partial))
	m.ReusedChildren.WithLabelValues("fresh").Add(float64(fresh))
}

// ObserveVersion records the latest version number
func (m *Metrics) ObserveVersion(latest int) {
	m.LatestVersion.Set(float64(latest))
}

// UpdateStoreStats sets the store size gauges
func (m *Metrics) UpdateStoreStats(elements, annotations int) {
	m.StoreElements.Set(float64(elements))
	m.StoreAnnotations.Set(float64(annotations))
}
