// Package scheduler runs background work for a bot on a small, shared
// worker pool.
//
// # Overview
//
// Three submission paths exist:
//
//   - RunAsync: fire-and-forget, runs once, no handle.
//   - ScheduleOnce: runs once after a delay, returns a cancellable Handle.
//   - ScheduleRecurring: fixed-rate repetition driven by a Trigger
//     (initial delay + period), returns a cancellable Handle.
//
// Named cron-spec schedules (AddCron/AddInterval, upsert by name) are
// also supported for housekeeping jobs that want wall-clock cadence.
//
// # Concurrency and overlap
//
// All work executes on the pool; the pool is small (default 2 workers)
// because tasks are expected to be short or hand off elsewhere. A
// long-blocking task starves other scheduled work; that is a documented
// limit, not a bug. Executions of the same recurring schedule do not
// overlap by default (OverlapSkipIfRunning); OverlapAllow opts out.
//
// # Failure isolation
//
// A panicking or erroring task is recovered at the worker boundary,
// logged and published on the event bus. It never kills a worker and
// never cancels other pending work; a failing recurring task keeps its
// remaining cycles.
//
// # Lifecycle
//
// The Service is constructed explicitly and injected; it is a
// process-lifetime resource. Start once, Stop once at shutdown.
// Scheduling before Start is allowed: queued work runs when the pool
// comes up.
package scheduler
