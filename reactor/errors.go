package reactor

import "errors"

// ErrInvalidTopology is returned when a caller tries to make a signal
// observe another node, or otherwise violates the Signal -> Computed ->
// Effect axis.
var ErrInvalidTopology = errors.New("reactor: invalid topology")

// ErrCycleDetected is returned from a computed's get/recompute when it
// re-enters its own recomputation.
var ErrCycleDetected = errors.New("reactor: cycle detected")

// ErrInfiniteUpdateLoop is raised from flush when the scheduler's safety
// counter overflows. Queues are left intact so a caller can inspect state.
var ErrInfiniteUpdateLoop = errors.New("reactor: infinite update loop")

// ErrCleanupFailure tags an error reported through OnError when a user
// cleanup callback panics; the panic is swallowed, not propagated, and
// remaining cleanups still run in LIFO order.
var ErrCleanupFailure = errors.New("reactor: cleanup failed")
