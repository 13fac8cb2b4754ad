package restserver

import (
	"net/http"

	"github.com/chrissnell/fluidwatch/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// instrument wraps h with request counters and latency histograms labelled by route
func instrument(route string, h http.Handler) http.Handler {
	labels := prometheus.Labels{"route": route}
	return promhttp.InstrumentHandlerCounter(
		metrics.HTTPRequestsTotal.MustCurryWith(labels),
		promhttp.InstrumentHandlerDuration(
			metrics.HTTPRequestDurationSeconds.MustCurryWith(labels),
			h,
		),
	)
}
