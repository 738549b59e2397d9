package metrics

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"

	"github.com/samirrijal/hsltrips/internal/core/domain"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trips",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests processed",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "trips",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"method", "path"})

	// Trip metrics
	TripLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trips",
		Subsystem: "store",
		Name:      "lookups_total",
		Help:      "Trip lookups by result (found, not_found, error)",
	}, []string{"result"})

	TripIngestions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trips",
		Subsystem: "ingest",
		Name:      "ingestions_total",
		Help:      "Trip ingestions by result (ok or failure kind)",
	}, []string{"result"})

	RemoteQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "trips",
		Subsystem: "remote",
		Name:      "query_duration_seconds",
		Help:      "Routing API GraphQL query latency, including priority wait",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"priority", "outcome"})
)

// ObserveLookup records the outcome of a trip lookup.
func ObserveLookup(err error) {
	switch {
	case err == nil:
		TripLookups.WithLabelValues("found").Inc()
	case errors.Is(err, domain.ErrNotFound):
		TripLookups.WithLabelValues("not_found").Inc()
	default:
		TripLookups.WithLabelValues("error").Inc()
	}
}

// ObserveIngestion records the outcome of a trip ingestion.
func ObserveIngestion(err error) {
	if err == nil {
		TripIngestions.WithLabelValues("ok").Inc()
		return
	}
	var ie *domain.IngestionError
	if errors.As(err, &ie) {
		TripIngestions.WithLabelValues(ie.Kind.String()).Inc()
		return
	}
	TripIngestions.WithLabelValues("Unknown").Inc()
}

// Middleware records request metrics.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		duration := time.Since(start).Seconds()
		status := fiber.StatusOK
		if code := c.Response().StatusCode(); code != 0 {
			status = code
		}
		path := c.Route().Path
		if path == "" {
			path = c.Path()
		}
		method := c.Method()

		httpRequestsTotal.WithLabelValues(method, path, statusLabel(status)).Inc()
		httpRequestDuration.WithLabelValues(method, path).Observe(duration)

		return err
	}
}

func statusLabel(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

// Handler returns a Fiber handler serving Prometheus /metrics endpoint.
func Handler() fiber.Handler {
	handler := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
	return func(c *fiber.Ctx) error {
		handler(c.Context())
		return nil
	}
}
