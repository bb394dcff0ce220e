/*
Package health monitors registered task services with a strike counter.

Task services are remote HTTP integrations; the only signal Drover has is
whether GET <url>/status answers with a 2xx. The Monitor turns that
signal into a persisted ConsecutiveFailures counter on each service. The
derived health status (on the entity in pkg/types) tolerates three
consecutive strikes; the fourth reads as down.

# Probe Semantics

	2xx reply             strikes reset to 0 (persisted only if > 0)
	error or non-2xx      strikes incremented and persisted
	fourth strike         service logs as marked down

Probes run as health_check jobs on the worker pool, so a slow or
unreachable service delays nothing but its own probe. A failed probe is a
recorded outcome, not a job failure.

# Sweeps

Sweep enqueues one health_check job per registered service. Two paths
trigger it:

  - the Monitor's ticker (Start/Stop), enabled in the server process
  - POST /task-services/health_checks, for on-demand checks

# Usage

	monitor := health.NewMonitor(store, caller, jobQueue, 10*time.Second)
	pool.Register(queue.KindHealthCheck, monitor.HandleHealthCheck)

	monitor.Start()
	defer monitor.Stop()

# Integration Points

This package integrates with:

  - pkg/remote: The /status probe
  - pkg/queue: Probe jobs and the sweep fan-out
  - pkg/storage: The persisted strike counter
  - pkg/api: On-demand sweeps and derived health in responses
*/
package health
