package reactor

import (
	"fmt"
	"sort"
)

const defaultMaxFlushIterations = 10_000

// Scheduler is one reactive kernel instance: the dependency graph, the
// current-observer stack, and the two-phase flush loop all live here.
// Mirrors alien.ReactiveSystem from the teacher, generalised to the
// explicit computeQ/effectQ/priority/atomic model spec.md requires.
type Scheduler struct {
	onError            func(err error)
	maxFlushIterations int
	nextID             uint64

	activeObserver *node
	activeEffect   *node

	computeQ   []*node
	inComputeQ map[*node]bool

	effectQ   []*node
	inEffectQ map[*node]bool

	scheduled bool
	flushing  bool

	batchDepth  uint32
	atomicDepth uint32
	atomicLogs  []map[*node]func()

	muted uint32
}

// Option configures a Scheduler at construction.
type Option func(*Scheduler)

// WithOnError registers a handler invoked when an effect body fails on its
// first run, when a cleanup callback panics, and when a flush started by a
// signal write or an Atomic commit fails. Batch returns its flush error to
// its caller instead, passing it here only when fn also failed, and
// FlushSync returns its flush error. Defaults to a no-op.
func WithOnError(fn func(err error)) Option {
	return func(s *Scheduler) { s.onError = fn }
}

// WithMaxFlushIterations overrides the flush safety counter (default 10000).
func WithMaxFlushIterations(n int) Option {
	return func(s *Scheduler) { s.maxFlushIterations = n }
}

// New constructs an isolated reactive kernel instance.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		maxFlushIterations: defaultMaxFlushIterations,
		inComputeQ:         make(map[*node]bool),
		inEffectQ:          make(map[*node]bool),
		onError:            func(error) {},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Scheduler) reportError(err error) {
	if err != nil && s.onError != nil {
		s.onError(err)
	}
}

// markStale implements spec.md 4.3 markStale(node). Only ever called with a
// computed node: signals are leaves and never go stale, effects are
// terminal and are enqueued directly by their subscriber's caller.
func (s *Scheduler) markStale(n *node) {
	if n.stale {
		return
	}
	n.stale = true
	s.scheduleJob(n)
	for sub := range n.subs.Iter() {
		switch sub.kind {
		case kindComputed:
			s.markStale(sub)
		case kindEffect:
			s.scheduleJob(sub)
		}
	}
}

// propagate implements the subscriber-walk shared by Signal.Set and
// rollback: mark computed subscribers stale (cascading) and enqueue effect
// subscribers directly.
func (s *Scheduler) propagate(n *node) {
	for sub := range n.subs.Iter() {
		switch sub.kind {
		case kindComputed:
			s.markStale(sub)
		case kindEffect:
			s.scheduleJob(sub)
		}
	}
}

// scheduleJob implements spec.md 4.5 scheduleJob(job): queue the job by
// kind unless it is disposed or the scheduler is muted (inside a
// rollback). Does not itself decide whether to flush — that is the
// responsibility of the top-level caller (Signal.Set, Batch, Atomic
// commit) once its own write/cascade has fully completed, mirroring how
// alien.WriteableSignal.SetValue finishes propagate() before calling
// processEffectNotifications().
func (s *Scheduler) scheduleJob(job *node) {
	if job.disposed || s.muted > 0 {
		return
	}
	switch job.kind {
	case kindComputed:
		if !s.inComputeQ[job] {
			s.inComputeQ[job] = true
			s.computeQ = append(s.computeQ, job)
		}
	default: // kindEffect
		if !s.inEffectQ[job] {
			s.inEffectQ[job] = true
			s.effectQ = append(s.effectQ, job)
		}
	}
	s.scheduled = true
}

// flushIfReady flushes now unless a batch/atomic frame is still open.
func (s *Scheduler) flushIfReady() error {
	if s.batchDepth > 0 {
		return nil
	}
	return s.flush()
}

// Batch implements spec.md 4.5 batch(fn): coalesce propagation from
// multiple writes into a single flush.
func (s *Scheduler) Batch(fn func() error) error {
	s.batchDepth++
	err := fn()
	s.batchDepth--
	if s.batchDepth == 0 {
		if ferr := s.flush(); ferr != nil {
			if err == nil {
				err = ferr
			} else {
				s.reportError(ferr)
			}
		}
	}
	return err
}

// recordAtomicWrite implements spec.md 4.5/3's write log: on first write to
// a given node within the innermost atomic frame, record a restore thunk
// that rewinds it to its pre-write value.
func (s *Scheduler) recordAtomicWrite(n *node, restore func()) {
	if s.atomicDepth == 0 {
		return
	}
	top := s.atomicLogs[len(s.atomicLogs)-1]
	if _, already := top[n]; already {
		return
	}
	top[n] = restore
}

// Atomic implements spec.md 4.5 atomic(fn) (alias Transaction): either all
// writes inside fn commit, or none do.
func (s *Scheduler) Atomic(fn func() error) error {
	s.batchDepth++
	s.atomicDepth++
	s.atomicLogs = append(s.atomicLogs, make(map[*node]func()))

	err := fn()
	if err != nil {
		s.rollback()
		return err
	}
	s.commit()
	return nil
}

// Transaction is an alias for Atomic, named per spec.md 4.5.
func (s *Scheduler) Transaction(fn func() error) error { return s.Atomic(fn) }

func (s *Scheduler) commit() {
	top := s.atomicLogs[len(s.atomicLogs)-1]
	s.atomicLogs = s.atomicLogs[:len(s.atomicLogs)-1]
	s.atomicDepth--

	if len(s.atomicLogs) > 0 {
		parent := s.atomicLogs[len(s.atomicLogs)-1]
		for n, restore := range top {
			if _, exists := parent[n]; !exists {
				parent[n] = restore
			}
		}
	}

	s.batchDepth--
	if s.batchDepth == 0 {
		if err := s.flush(); err != nil {
			s.reportError(err)
		}
	}
}

func (s *Scheduler) rollback() {
	top := s.atomicLogs[len(s.atomicLogs)-1]
	s.atomicLogs = s.atomicLogs[:len(s.atomicLogs)-1]
	s.atomicDepth--

	s.muted++
	for n, restore := range top {
		restore()
		if n.kind == kindSignal {
			for sub := range n.subs.Iter() {
				if sub.kind == kindComputed {
					s.markStale(sub)
				}
			}
		}
	}
	s.computeQ = s.computeQ[:0]
	for k := range s.inComputeQ {
		delete(s.inComputeQ, k)
	}
	s.effectQ = s.effectQ[:0]
	for k := range s.inEffectQ {
		delete(s.inEffectQ, k)
	}
	s.scheduled = false
	s.muted--

	s.batchDepth--
	// rollback never flushes, per spec.md 4.5.
}

// FlushSync runs flush immediately if anything is pending. Exposed for
// tests and synchronous embedding, per spec.md 4.5.
func (s *Scheduler) FlushSync() error {
	if len(s.computeQ) > 0 || len(s.effectQ) > 0 {
		return s.flush()
	}
	return nil
}

// flush is the two-phase drain loop described in spec.md 4.5.
func (s *Scheduler) flush() error {
	if s.flushing {
		return nil
	}
	s.flushing = true
	s.scheduled = false
	defer func() { s.flushing = false }()

	iterations := 0
	var firstErr error

	for len(s.computeQ) > 0 || len(s.effectQ) > 0 {
		iterations++
		if iterations > s.maxFlushIterations {
			return fmt.Errorf("%w: exceeded %d flush iterations", ErrInfiniteUpdateLoop, s.maxFlushIterations)
		}

		// Phase A: drain computeds to stability.
		for len(s.computeQ) > 0 {
			batch := s.computeQ
			s.computeQ = nil
			for _, n := range batch {
				delete(s.inComputeQ, n)
				if n.disposed {
					continue
				}
				if n.stale {
					if _, err := computedRecompute(s, n); err != nil && firstErr == nil {
						firstErr = err
					}
				}
			}
		}

		// Phase B: one wave of effects, ascending priority, stable tie-break.
		if len(s.effectQ) > 0 {
			wave := s.effectQ
			s.effectQ = nil
			for _, n := range wave {
				delete(s.inEffectQ, n)
			}
			sort.SliceStable(wave, func(i, j int) bool {
				return wave[i].priority < wave[j].priority
			})
			for _, n := range wave {
				if n.disposed {
					continue
				}
				if err := runEffectNode(s, n); err != nil && firstErr == nil {
					firstErr = err
				}
			}
		}
	}

	return firstErr
}
