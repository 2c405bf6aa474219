package reactor

// Untrack runs fn with dependency tracking suspended, so any signal or
// computed reads inside it do not register an edge onto the currently
// active observer. Grounded on the teacher's wrap(tracking=false) pattern
// in pkg/flimsy for untracked reads; exposed here as a free function since
// reactor has no implicit current-scheduler.
func Untrack(sched *Scheduler, fn func() error) error {
	prev := sched.activeObserver
	sched.activeObserver = nil
	defer func() { sched.activeObserver = prev }()
	return fn()
}

// UntrackValue is the single-value convenience form of Untrack for read
// sites that just want a value back.
func UntrackValue[T any](sched *Scheduler, fn func() T) T {
	prev := sched.activeObserver
	sched.activeObserver = nil
	defer func() { sched.activeObserver = prev }()
	return fn()
}
