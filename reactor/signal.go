package reactor

// Signal is a first-class reactive leaf cell. Signals never observe other
// nodes (spec.md 3: "Signals are leaves") and propagate synchronously on
// Set when the new value is unequal to the old one.
type Signal[T any] struct {
	sched  *Scheduler
	n      *node
	value  T
	equals EqualsFunc[T]
}

// NewSignal constructs a signal, mirroring alien.Signal(rs, initial) from
// the teacher but generalised with an optional custom equality comparator,
// per spec.md 4.2 "signal(initial, equals?)".
func NewSignal[T any](sched *Scheduler, initial T, equals ...EqualsFunc[T]) *Signal[T] {
	eq := defaultEquals[T]
	if len(equals) > 0 && equals[0] != nil {
		eq = equals[0]
	}
	return &Signal[T]{
		sched:  sched,
		n:      newNode(sched, kindSignal),
		value:  initial,
		equals: eq,
	}
}

// Get registers a dependency on the active observer, if any, and returns
// the current value.
func (s *Signal[T]) Get() T {
	s.sched.track(s.n)
	return s.value
}

// Peek returns the current value without registering a dependency.
func (s *Signal[T]) Peek() T {
	return s.value
}

// Set stores next, propagating synchronously to subscribers unless next is
// equal to the current value under s.equals.
func (s *Signal[T]) Set(next T) {
	s.write(next)
}

// Update computes the next value from the current one via updater and
// stores it, per spec.md 4.2's "set(next | updater)".
func (s *Signal[T]) Update(updater func(current T) T) {
	s.write(updater(s.value))
}

func (s *Signal[T]) write(next T) {
	if s.equals(s.value, next) {
		return
	}

	if s.sched.atomicDepth > 0 {
		prev := s.value
		s.sched.recordAtomicWrite(s.n, func() { s.value = prev })
	}

	s.value = next
	s.sched.propagate(s.n)

	if err := s.sched.flushIfReady(); err != nil {
		s.sched.reportError(err)
	}
}

// Subscribe creates an explicit dependency edge from observer onto this
// signal for external integrations, per spec.md 4.2. Returns a detach
// function.
func (s *Signal[T]) Subscribe(observer *EffectHandle) (detach func()) {
	_ = s.sched.link(s.n, observer.n)
	return func() { s.sched.unlink(s.n, observer.n) }
}
