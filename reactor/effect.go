package reactor

import "fmt"

// EffectFunc is the body of a scheduled effect. The optional returned
// cleanup runs once: immediately before the next run, or when the effect
// is disposed if no further run has happened, per spec.md 4.4.
type EffectFunc func() (cleanup func(), err error)

// EffectHandle is the external handle to a scheduled effect, also usable
// as a Subscribe target for signals.
type EffectHandle struct {
	sched *Scheduler
	n     *node
	fn    EffectFunc
}

// EffectOption configures an effect at creation.
type EffectOption func(*node)

// WithPriority sets the effect's wave ordering within a single flush's
// Phase B, per spec.md 4.5 (default priority 0, ascending, stable
// tie-break on registration order). This is a supplemented feature: spec.md
// requires ascending-priority ordering but leaves the constructor surface
// for setting it unspecified.
func WithPriority(p int) EffectOption {
	return func(n *node) { n.priority = p }
}

// NewEffect registers a tracked side effect and runs it once synchronously,
// mirroring alien.Effect's immediate-first-run behaviour from the teacher.
// Returns the handle itself, for callers that want Dispose() plus
// introspection (Info) rather than just a bare dispose closure.
func NewEffect(sched *Scheduler, fn EffectFunc, opts ...EffectOption) *EffectHandle {
	h := &EffectHandle{
		sched: sched,
		n:     newNode(sched, kindEffect),
		fn:    fn,
	}
	for _, opt := range opts {
		opt(h.n)
	}
	h.n.runEffectFn = func() error {
		cleanup, err := h.fn()
		if cleanup != nil {
			h.n.cleanups = append(h.n.cleanups, cleanup)
		}
		return err
	}

	if err := runEffectNode(sched, h.n); err != nil {
		sched.reportError(err)
	}

	return h
}

// Dispose runs the latest run's pending cleanups and detaches the effect
// from the graph permanently.
func (h *EffectHandle) Dispose() { disposeEffect(h.sched, h.n) }

// CreateEffect is the literal spec.md 6 surface: `createEffect(fn) →
// dispose`. A thin wrapper over NewEffect for callers that only need the
// dispose closure.
func CreateEffect(sched *Scheduler, fn EffectFunc, opts ...EffectOption) (dispose func()) {
	h := NewEffect(sched, fn, opts...)
	return h.Dispose
}

// OnCleanup registers cb to run before the currently-running effect's next
// run, or on dispose, whichever comes first. Valid only while called from
// inside an EffectFunc body executing under sched. Cleanups accumulate
// rather than replace one another, so every OnCleanup call this run plus
// the function's own returned cleanup all run, per spec.md 4.4.
func OnCleanup(sched *Scheduler, cb func()) {
	active := sched.activeObserver
	if active == nil || active.kind != kindEffect || cb == nil {
		return
	}
	active.cleanups = append(active.cleanups, cb)
}

// runPendingCleanups runs n's accumulated cleanups in LIFO order (most
// recently registered first), per spec.md 4.4 step 2. A panicking cleanup
// is swallowed and reported through the scheduler's OnError hook rather
// than propagating; the remaining cleanups still run.
func runPendingCleanups(s *Scheduler, n *node) {
	pending := n.cleanups
	n.cleanups = nil
	for i := len(pending) - 1; i >= 0; i-- {
		runOneCleanup(s, pending[i])
	}
}

func runOneCleanup(s *Scheduler, cleanup func()) {
	defer func() {
		if r := recover(); r != nil {
			s.reportError(fmt.Errorf("%w: %v", ErrCleanupFailure, r))
		}
	}()
	cleanup()
}

// runEffectNode implements spec.md 4.4's run algorithm: run any pending
// cleanups, rebuild dependencies by executing the body under this node as
// the active observer, and stash whatever cleanup it returns for next time.
func runEffectNode(s *Scheduler, n *node) error {
	runPendingCleanups(s, n)
	s.unlinkAllDeps(n)
	return s.withObserver(n, n.runEffectFn)
}

func disposeEffect(s *Scheduler, n *node) {
	if n.disposed {
		return
	}
	n.disposed = true
	runPendingCleanups(s, n)
	s.unlinkAllDeps(n)
}
