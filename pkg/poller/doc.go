// Package poller sweeps in-flight tasks on a ticker and enqueues a
// status_poll job for each. It never talks to task services itself;
// the coordinator's poll handler does the reconciliation, so a slow or
// unreachable service stalls a worker, not the sweep loop.
//
// A task is in flight while it is neither parked at staged nor in a
// finished state. Everything else is driven by publish or cancel, not
// by polling.
package poller
