package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	tokensIssuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_tokens_issued_total",
			Help: "Token grants processed, by grant type and outcome.",
		},
		[]string{"grant_type", "outcome"},
	)

	roleChangesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_role_changes_total",
			Help: "Role provisioning operations, by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	userAdminTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_user_admin_total",
			Help: "Admin user-management operations, by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)
)

// Init registers metrics in the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight,
		httpRequestsTotal,
		httpRequestDuration,
		tokensIssuedTotal,
		roleChangesTotal,
		userAdminTotal,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveTokenGrant records one token-endpoint outcome.
func ObserveTokenGrant(grantType, outcome string) {
	tokensIssuedTotal.WithLabelValues(grantType, outcome).Inc()
}

// ObserveRoleChange records one provisioning outcome.
func ObserveRoleChange(operation, outcome string) {
	roleChangesTotal.WithLabelValues(operation, outcome).Inc()
}

// ObserveUserAdmin records one admin user-management outcome.
func ObserveUserAdmin(operation, outcome string) {
	userAdminTotal.WithLabelValues(operation, outcome).Inc()
}

// CanonicalPath collapses resource ids so metric label cardinality stays
// bounded.
func CanonicalPath(path string) string {
	if path == "" {
		return "/"
	}
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	parts := strings.Split(strings.TrimPrefix(path, "/"), "/")
	if len(parts) >= 3 && parts[0] == "v1" && parts[1] == "users" {
		if parts[2] == "by-uid" {
			return "/v1/users/by-uid/:uid"
		}
		switch {
		case len(parts) == 4 && parts[3] == "roles":
			return "/v1/users/:id/roles"
		case len(parts) == 4 && parts[3] == "role":
			return "/v1/users/:id/role"
		case len(parts) == 4 && parts[3] == "uid":
			return "/v1/users/:id/uid"
		case len(parts) == 4 && parts[3] == "disable":
			return "/v1/users/:id/disable"
		case len(parts) == 4 && parts[3] == "enable":
			return "/v1/users/:id/enable"
		case len(parts) == 3:
			return "/v1/users/:id"
		}
	}
	return path
}

// Instrument wraps a handler with request counting and latency metrics.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
