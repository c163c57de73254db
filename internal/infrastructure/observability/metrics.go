package observability

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Счётчик вызовов методов репозитория
	RepositoryCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "repository_calls_total",
			Help: "Total number of repository method calls",
		},
		[]string{"method", "status"},
	)

	// Гистограмма времени выполнения запросов
	RepositoryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "repository_duration_seconds",
			Help:    "Duration of repository method calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	BookingTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_transitions_total",
			Help: "Booking lifecycle operations by action and outcome",
		},
		[]string{"action", "outcome"},
	)

	CaptureOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_captures_total",
			Help: "Payment capture attempts by outcome",
		},
		[]string{"outcome"},
	)

	GatewayDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payment_gateway_duration_seconds",
			Help:    "Duration of payment gateway calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "status"},
	)
)

func init() {
	prometheus.MustRegister(RepositoryCalls, RepositoryDuration, BookingTransitions, CaptureOutcomes, GatewayDuration)
}

// ObserveRepository records one repository call. Use it deferred with the
// method's named error.
func ObserveRepository(method string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	RepositoryCalls.WithLabelValues(method, status).Inc()
	RepositoryDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
}

// ServeMetrics exposes /metrics on a dedicated listener.
func ServeMetrics(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server failed", "addr", addr, "error", err)
		}
	}()
	return server
}
