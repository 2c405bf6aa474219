package reactor

import "fmt"

// Computed is a lazily memoised derivation over signals and other
// computeds. It first computes on its first read; after a dependency marks
// it stale, it recomputes during the next flush's compute phase or on its
// next read, whichever comes first. Adapted from alien.ReadonlySignal in
// the teacher, generalised to spec.md 4.3's explicit
// stale/hasValue/computing flags.
type Computed[T any] struct {
	sched  *Scheduler
	n      *node
	fn     func() (T, error)
	equals EqualsFunc[T]
	value  T
}

// NewComputed constructs a computed node. The body runs lazily on first
// Get/Peek and thereafter only when a dependency has marked it stale, per
// spec.md 4.3 "computed(fn, equals?)".
func NewComputed[T any](sched *Scheduler, fn func() (T, error), equals ...EqualsFunc[T]) *Computed[T] {
	eq := defaultEquals[T]
	if len(equals) > 0 && equals[0] != nil {
		eq = equals[0]
	}
	c := &Computed[T]{
		sched:  sched,
		n:      newNode(sched, kindComputed),
		fn:     fn,
		equals: eq,
	}
	c.n.stale = true
	c.n.recompute = func() (bool, error) {
		next, err := c.fn()
		if err != nil {
			return false, err
		}
		changed := !c.n.hasValue || !c.equals(c.value, next)
		if changed {
			c.value = next
		}
		c.n.hasValue = true
		return changed, nil
	}
	return c
}

// Get registers a dependency on the active observer (if any), ensures the
// value is current, and returns it.
func (c *Computed[T]) Get() (T, error) {
	if c.n.stale && !c.n.disposed {
		if _, err := computedRecompute(c.sched, c.n); err != nil {
			var zero T
			return zero, err
		}
	}
	c.sched.track(c.n)
	return c.value, nil
}

// Peek returns the current memoised value without registering a
// dependency, forcing a recompute first if stale.
func (c *Computed[T]) Peek() (T, error) {
	if c.n.stale && !c.n.disposed {
		if _, err := computedRecompute(c.sched, c.n); err != nil {
			var zero T
			return zero, err
		}
	}
	return c.value, nil
}

// Dispose detaches the computed from its dependencies and subscribers and
// marks it permanently inert, per the Dispose convention recorded in
// SPEC_FULL.md's supplemented features. hasValue is not cleared: Get and
// Peek on a disposed computed never recompute and return the last value.
func (c *Computed[T]) Dispose() {
	if c.n.disposed {
		return
	}
	c.n.disposed = true
	c.sched.unlinkAllDeps(c.n)
	for sub := range c.n.subs.Iter() {
		c.sched.unlink(c.n, sub)
	}
}

// computedRecompute implements spec.md 4.3's recompute algorithm: detect
// re-entrancy as a cycle, rebuild the dependency set by running fn under
// this node as the active observer, and clear stale only on success so a
// failed recompute can be retried later.
func computedRecompute(s *Scheduler, n *node) (changed bool, err error) {
	if n.computing {
		return false, fmt.Errorf("%s: %w", n, ErrCycleDetected)
	}
	n.computing = true
	s.unlinkAllDeps(n)

	err = s.withObserver(n, func() error {
		c, e := n.recompute()
		changed = c
		return e
	})

	n.computing = false
	if err != nil {
		return false, err
	}
	n.stale = false
	return changed, nil
}
