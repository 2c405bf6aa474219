// Package reactor is a fine-grained reactive runtime kernel: signals,
// lazily memoised computeds, and scheduled effects under a deterministic
// two-phase scheduler, plus an async state-machine overlay over the same
// dependency graph.
//
// A Scheduler is the root of one kernel instance. Nothing in this package
// is process-global; callers that want isolated graphs (tests, multiple
// embedders in one process) construct one Scheduler each.
package reactor
