package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Release metrics
	ReleasesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "drover_releases_total",
			Help: "Total number of releases by state",
		},
		[]string{"state"},
	)

	TasksTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "drover_tasks_total",
			Help: "Total number of tasks by state",
		},
		[]string{"state"},
	)

	// Task service metrics
	TaskServicesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "drover_task_services",
			Help: "Total number of registered task services",
		},
	)

	TaskServicesHealthy = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "drover_task_services_healthy",
			Help: "Number of task services currently passing health checks",
		},
	)

	// Journal metrics
	EventsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "drover_events_total",
			Help: "Total number of journaled events by type",
		},
		[]string{"type"},
	)

	// Job metrics
	JobsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drover_jobs_processed_total",
			Help: "Total number of background jobs processed by kind and outcome",
		},
		[]string{"kind", "status"},
	)

	// Remote protocol metrics
	RemoteRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drover_remote_requests_total",
			Help: "Total number of requests to task services by action and outcome",
		},
		[]string{"action", "status"},
	)

	RemoteRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "drover_remote_request_duration_seconds",
			Help:    "Task service request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"action"},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drover_api_requests_total",
			Help: "Total number of API requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "drover_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(ReleasesTotal)
	prometheus.MustRegister(TasksTotal)
	prometheus.MustRegister(TaskServicesTotal)
	prometheus.MustRegister(TaskServicesHealthy)
	prometheus.MustRegister(EventsTotal)
	prometheus.MustRegister(JobsProcessed)
	prometheus.MustRegister(RemoteRequests)
	prometheus.MustRegister(RemoteRequestDuration)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
