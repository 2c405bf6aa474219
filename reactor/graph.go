package reactor

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
	mapset "github.com/deckarep/golang-set/v2"
)

type nodeKind uint8

const (
	kindSignal nodeKind = iota
	kindComputed
	kindEffect
)

func (k nodeKind) String() string {
	switch k {
	case kindSignal:
		return "signal"
	case kindComputed:
		return "computed"
	case kindEffect:
		return "effect"
	default:
		return "unknown"
	}
}

// node is the universal vertex shared by signals, computeds and effects.
// Type-specific behaviour is plugged in via the recompute/runEffect
// closures rather than virtual dispatch, following the teacher's tagged
// union over subscriberFlags in alien/types.go.
type node struct {
	id   uint64
	kind nodeKind

	deps mapset.Set[*node]
	subs mapset.Set[*node]

	// stale/hasValue/computing are computed state, priority is effect
	// state, disposed applies to computeds and effects.
	stale     bool
	hasValue  bool
	computing bool
	priority  int
	disposed  bool

	recompute func() (changed bool, err error)

	runEffectFn func() error
	// cleanups accumulates every pending cleanup for an effect node, in
	// registration order (OnCleanup calls during the run, then the
	// function's own returned cleanup last). Run in reverse (LIFO) before
	// the next run and on dispose, per spec.md 4.4/4.7.
	cleanups []func()
}

func newNode(sched *Scheduler, kind nodeKind) *node {
	sched.nextID++
	n := &node{
		id:   xxhash.Sum64String(fmt.Sprintf("%s-%d", kind, sched.nextID)),
		kind: kind,
		deps: mapset.NewThreadUnsafeSet[*node](),
		subs: mapset.NewThreadUnsafeSet[*node](),
	}
	return n
}

func (n *node) String() string {
	return fmt.Sprintf("%s#%x", n.kind, n.id)
}

// link creates the dependency edge dep -> sub (sub observes dep). Idempotent.
// Fails if sub is a signal: signals are leaves and must never appear on the
// observing side of an edge.
func (sched *Scheduler) link(dep, sub *node) error {
	if sub.kind == kindSignal {
		return fmt.Errorf("%w: a signal cannot observe %s", ErrInvalidTopology, dep)
	}
	dep.subs.Add(sub)
	sub.deps.Add(dep)
	return nil
}

// unlink severs dep -> sub.
func (sched *Scheduler) unlink(dep, sub *node) {
	dep.subs.Remove(sub)
	sub.deps.Remove(dep)
}

// unlinkAllDeps detaches every dependency currently held by sub.
func (sched *Scheduler) unlinkAllDeps(sub *node) {
	for dep := range sub.deps.Iter() {
		dep.subs.Remove(sub)
	}
	sub.deps.Clear()
}

// track registers a dependency on the active observer, if any. A no-op
// outside a tracked section.
func (sched *Scheduler) track(dep *node) {
	if sched.activeObserver == nil {
		return
	}
	_ = sched.link(dep, sched.activeObserver)
}

// withObserver installs obs as the active observer for the duration of fn,
// restoring the previous observer on every exit path including panic.
func (sched *Scheduler) withObserver(obs *node, fn func() error) error {
	prev := sched.activeObserver
	sched.activeObserver = obs
	defer func() { sched.activeObserver = prev }()
	return fn()
}
