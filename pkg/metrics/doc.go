/*
Package metrics provides Prometheus instrumentation for Drover.

All metrics are registered on the default registry at init and exposed by
the API server at /metrics via Handler(). Two kinds of metrics live here:
counters incremented inline by the packages doing the work, and gauges
refreshed from the store by the Collector.

# Metrics Catalog

Gauges (refreshed every 15 seconds by the Collector):

	drover_releases_total{state}       releases by state
	drover_tasks_total{state}          tasks by state
	drover_task_services               registered task services
	drover_task_services_healthy       services passing health checks
	drover_events_total{type}          journaled events by type

Counters and histograms (incremented inline):

	drover_jobs_processed_total{kind,status}          background jobs by outcome
	drover_remote_requests_total{action,status}       task service calls by outcome
	drover_remote_request_duration_seconds{action}    task service call latency
	drover_api_requests_total{method,status}          API requests
	drover_api_request_duration_seconds{method}       API latency

# Usage

Inline instrumentation:

	metrics.JobsProcessed.WithLabelValues(job.Kind, "ok").Inc()

Running the collector:

	collector := metrics.NewCollector(store)
	collector.Start()
	defer collector.Stop()

Exposing the endpoint:

	mux.Handle("/metrics", metrics.Handler())

# Integration Points

This package integrates with:

  - pkg/queue: Job outcome counters
  - pkg/coordinator: Remote request counters and latency
  - pkg/api: Request middleware and the /metrics endpoint
  - pkg/storage: The Collector reads entity counts from the store
*/
package metrics
