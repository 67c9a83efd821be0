package httpapi

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

var requestCounter = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "telemetry_requests_total",
		Help: "Total requests by endpoint, method and status.",
	},
	[]string{"endpoint", "method", "status"},
)

func init() {
	prometheus.MustRegister(requestCounter)
}

// MetricsMiddleware counts every request per endpoint/method/status.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		requestCounter.WithLabelValues(r.URL.Path, r.Method, strconv.Itoa(rw.status)).Inc()
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
