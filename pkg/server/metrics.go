package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// serverMetrics holds the prometheus collectors for the dashboard backend.
// Each Server owns its registry so tests can spin up instances freely.
type serverMetrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	activityRecords prometheus.Gauge
	threatRecords   prometheus.Gauge
	eventsPushed    prometheus.Counter
}

func newServerMetrics() *serverMetrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &serverMetrics{
		registry: registry,
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cloudsentry_http_requests_total",
			Help: "Total HTTP requests by route, method and status code",
		}, []string{"route", "method", "code"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cloudsentry_http_request_duration_seconds",
			Help:    "HTTP request duration by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		activityRecords: factory.NewGauge(prometheus.GaugeOpts{
			Name: "cloudsentry_activity_records",
			Help: "Activity records loaded on the most recent table read",
		}),
		threatRecords: factory.NewGauge(prometheus.GaugeOpts{
			Name: "cloudsentry_threat_records",
			Help: "Threat records loaded on the most recent table read",
		}),
		eventsPushed: factory.NewCounter(prometheus.CounterOpts{
			Name: "cloudsentry_security_events_pushed_total",
			Help: "Simulated security events pushed to websocket subscribers",
		}),
	}
}

// instrument records request count and duration per chi route pattern.
func (m *serverMetrics) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		m.requestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(ww.Status())).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}
