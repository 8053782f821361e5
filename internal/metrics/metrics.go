// Package metrics defines prometheus metrics to expose
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orchestrator_api_dispatch_duration_seconds",
			Help:    "Time from task resolution to unary result or end of stream",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 15, 20, 30, 60, 120, 300},
		},
		[]string{"kind", "client", "task"},
	)

	DispatchCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_api_dispatch_count_total",
			Help: "Total number of dispatched tasks",
		},
		[]string{"kind", "client", "task", "status"},
	)

	ErrorCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_api_error_count",
			Help: "Error count",
		},
		[]string{"kind", "client", "task", "error_kind"},
	)

	StreamFrames = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_api_stream_frames_total",
			Help: "Frames received from streaming backends",
		},
		[]string{"kind", "client", "task"},
	)

	TimeToFirstFrame = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orchestrator_api_time_to_first_frame_seconds",
			Help:    "Time to first streamed frame in seconds",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 20, 30, 60},
		},
		[]string{"kind", "client", "task"},
	)

	BackendResponses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_api_backend_responses_total",
			Help: "Backend responses by status code",
		},
		[]string{"client", "path", "status_code"},
	)

	ClientHealth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "orchestrator_api_client_health",
			Help: "Last probed client health (1 healthy, 0 unhealthy, -1 unknown)",
		},
		[]string{"kind", "client"},
	)

	InflightStreams = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "orchestrator_api_inflight_streams",
			Help: "Current open backend streams",
		},
		[]string{"kind", "client"},
	)

	ResponseCodes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_api_status_code",
			Help: "Status Codes",
		},
		[]string{"path", "status_code"},
	)
)
