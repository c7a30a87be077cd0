// metrics/metrics.go
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// reqDuration is a histogram of HTTP request durations in seconds, labeled
// by route pattern, method, and status code.
var reqDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests.",
		Buckets: []float64{0.01, 0.1, 0.3, 1.2, 5},
	},
	[]string{"path", "method", "status"},
)

// Registration form collectors.
var (
	fieldValidations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signup_field_validations_total",
			Help: "Single-field validations by field and result.",
		},
		[]string{"field", "result"},
	)

	submissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signup_submissions_total",
			Help: "Submit attempts by outcome.",
		},
		[]string{"outcome"},
	)

	pagesActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "signup_pages_active",
		Help: "Registration page sessions held in memory.",
	})

	liveConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "signup_live_connections",
		Help: "Open live-feedback websocket connections.",
	})
)

// Submission outcomes.
const (
	OutcomeAccepted = "accepted"
	OutcomeInvalid  = "invalid"
	OutcomeConflict = "conflict"
)

// RegisterDefault registers the Go runtime and process collectors, the HTTP
// request histogram and the registration collectors. Call it once at
// startup; repeated calls are harmless.
//
// Registration failures other than "already registered" are fatal.
func RegisterDefault(logger *zap.Logger) {
	mustRegister(logger, "Go collector", collectors.NewGoCollector())
	mustRegister(logger, "process collector", collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	mustRegister(logger, "HTTP request histogram", reqDuration)
	mustRegister(logger, "field validation counter", fieldValidations)
	mustRegister(logger, "submission counter", submissions)
	mustRegister(logger, "active pages gauge", pagesActive)
	mustRegister(logger, "live connections gauge", liveConnections)
}

func mustRegister(logger *zap.Logger, name string, c prometheus.Collector) {
	err := prometheus.Register(c)
	if err == nil {
		return
	}
	var already prometheus.AlreadyRegisteredError
	if errors.As(err, &already) {
		return
	}
	if logger != nil {
		logger.Fatal("failed to register "+name, zap.Error(err))
	}
	panic("metrics: failed to register " + name + ": " + err.Error())
}

// FieldValidated counts one single-field validation.
func FieldValidated(field string, ok bool) {
	result := "invalid"
	if ok {
		result = "valid"
	}
	fieldValidations.WithLabelValues(field, result).Inc()
}

// Submitted counts one submit attempt. outcome is one of the Outcome
// constants.
func Submitted(outcome string) {
	submissions.WithLabelValues(outcome).Inc()
}

// SetPagesActive records the number of live page sessions.
func SetPagesActive(n int) {
	pagesActive.Set(float64(n))
}

// LiveConnectionOpened and LiveConnectionClosed track websocket clients.
func LiveConnectionOpened() { liveConnections.Inc() }
func LiveConnectionClosed() { liveConnections.Dec() }

// maxPathLabelLength bounds the path label.
const maxPathLabelLength = 256

// HTTPMetrics is a middleware that records request duration into the
// http_request_duration_seconds histogram.
//
// The chi route pattern ("/register/{pageID}") is used instead of the raw
// path to keep label cardinality bounded. Place it after the recoverer so
// panics are recorded as 500.
func HTTPMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		protoMajor := r.ProtoMajor
		if protoMajor < 1 {
			protoMajor = 1
		}
		ww := middleware.NewWrapResponseWriter(w, protoMajor)

		next.ServeHTTP(ww, r)

		// 0 means the handler never called WriteHeader, which net/http
		// reports as 200.
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		if status < 100 || status > 599 {
			status = http.StatusInternalServerError
		}

		reqDuration.WithLabelValues(
			routeLabel(r),
			r.Method,
			strconv.Itoa(status),
		).Observe(time.Since(start).Seconds())
	})
}

func routeLabel(r *http.Request) string {
	path := r.URL.Path
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			path = pattern
		}
	}
	if len(path) > maxPathLabelLength {
		path = truncateUTF8(path, maxPathLabelLength-3) + "..."
	}
	return path
}

// Handler returns an http.Handler that exposes the Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// truncateUTF8 cuts s to at most maxBytes bytes on a rune boundary.
func truncateUTF8(s string, maxBytes int) string {
	if maxBytes <= 0 {
		return ""
	}
	if len(s) <= maxBytes {
		return s
	}
	for maxBytes > 0 && !utf8.RuneStart(s[maxBytes]) {
		maxBytes--
	}
	return s[:maxBytes]
}
