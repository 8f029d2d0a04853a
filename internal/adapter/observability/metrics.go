package observability

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"route", "method"},
	)

	ExecutionsEnqueuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "executions_enqueued_total",
			Help: "Total number of execution jobs enqueued",
		},
	)
	ExecutionsRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "executions_running",
			Help: "Number of execution jobs currently running",
		},
	)
	ExecutionsCompletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "executions_completed_total",
			Help: "Total number of execution jobs reaching a terminal state",
		},
		[]string{"status"},
	)
	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "execution_queue_depth",
			Help: "Current length of the execution queue",
		},
	)
	SandboxRunDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sandbox_run_duration_seconds",
			Help:    "Wall-clock duration of sandbox container runs",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"language"},
	)
)

func InitMetrics() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(ExecutionsEnqueuedTotal)
	prometheus.MustRegister(ExecutionsRunning)
	prometheus.MustRegister(ExecutionsCompletedTotal)
	prometheus.MustRegister(QueueDepth)
	prometheus.MustRegister(SandboxRunDuration)
}

// HTTPMetricsMiddleware records Prometheus metrics for each request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start).Seconds()
		// Route pattern may be unavailable outside chi router; guard nil
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			route = r.URL.Path
		}
		method := r.Method
		status := ww.Status()
		HTTPRequestsTotal.WithLabelValues(route, method, http.StatusText(status)).Inc()
		HTTPRequestDuration.WithLabelValues(route, method).Observe(dur)
	})
}

func EnqueueExecution() {
	ExecutionsEnqueuedTotal.Inc()
}

func StartExecution() {
	ExecutionsRunning.Inc()
}

func CompleteExecution(status string, language string, dur time.Duration) {
	ExecutionsRunning.Dec()
	ExecutionsCompletedTotal.WithLabelValues(status).Inc()
	SandboxRunDuration.WithLabelValues(language).Observe(dur.Seconds())
}

func SetQueueDepth(n int64) {
	QueueDepth.Set(float64(n))
}
