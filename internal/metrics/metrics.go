// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fluidwatch_fetches_total",
			Help: "Sample buffer fetches by result",
		},
		[]string{"result"},
	)

	FetchDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fluidwatch_fetch_duration_seconds",
			Help:    "Time spent fetching the sample buffer from the device",
			Buckets: prometheus.DefBuckets,
		},
	)

	FetchesInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fluidwatch_fetches_in_flight",
			Help: "Sample buffer fetches currently outstanding",
		},
	)

	StaleSnapshotsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fluidwatch_stale_snapshots_total",
			Help: "Fetch results discarded because a newer fetch had already been published",
		},
	)

	BufferTotalVolume = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fluidwatch_buffer_total_volume",
			Help: "Total volume held in the current sample buffer",
		},
	)

	RenderDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fluidwatch_render_duration_seconds",
			Help:    "Time spent windowing and classifying a view",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05},
		},
		[]string{"range"},
	)

	DeviceActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fluidwatch_device_actions_total",
			Help: "Device enable/disable calls by action and result",
		},
		[]string{"action", "result"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fluidwatch_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"code", "method", "route"},
	)

	HTTPRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fluidwatch_http_request_duration_seconds",
			Help:    "Request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	WebsocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fluidwatch_websocket_clients",
			Help: "Connected live-view websocket clients",
		},
	)

	StorageWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fluidwatch_storage_writes_total",
			Help: "Snapshot writes by storage engine and result",
		},
		[]string{"engine", "result"},
	)

	GRPCRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fluidwatch_grpc_requests_total",
			Help: "gRPC calls by method and status code",
		},
		[]string{"method", "code"},
	)
)
