package reactor_test

import (
	"errors"
	"testing"

	"github.com/Luciano0322/signal-kernel/reactor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Batch coalescing: two writes inside one batch produce exactly one
// effect run, observing the post-batch values together.
func TestBatchCoalescing(t *testing.T) {
	sched := reactor.New(reactor.WithOnError(func(err error) {
		assert.FailNow(t, err.Error())
	}))

	x := reactor.NewSignal(sched, 0)
	y := reactor.NewSignal(sched, 0)

	runs := 0
	var lastSum int
	reactor.CreateEffect(sched, func() (func(), error) {
		runs++
		lastSum = x.Get() + y.Get()
		return nil, nil
	})
	require.Equal(t, 1, runs)
	require.Equal(t, 0, lastSum)

	err := sched.Batch(func() error {
		x.Set(1)
		y.Set(2)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, runs)
	require.Equal(t, 3, lastSum)
}

// Atomic rollback: a throw inside atomic restores every modified signal to
// its pre-atomic value, and the next read forces a fresh recompute rather
// than observing a half-committed intermediate value.
func TestAtomicRollback(t *testing.T) {
	sched := reactor.New()

	n := reactor.NewSignal(sched, 10)
	doubled := reactor.NewComputed(sched, func() (int, error) {
		return n.Get() * 2, nil
	})

	boom := errors.New("boom")
	err := sched.Atomic(func() error {
		n.Set(99)
		return boom
	})
	require.ErrorIs(t, err, boom)

	assert.Equal(t, 10, n.Peek())
	v, err := doubled.Peek()
	require.NoError(t, err)
	assert.Equal(t, 20, v)
}

// Atomic commit: a successful atomic block behaves like a batch, firing
// downstream effects exactly once after commit.
func TestAtomicCommit(t *testing.T) {
	sched := reactor.New()

	n := reactor.NewSignal(sched, 1)
	runs := 0
	reactor.CreateEffect(sched, func() (func(), error) {
		runs++
		n.Get()
		return nil, nil
	})
	require.Equal(t, 1, runs)

	err := sched.Atomic(func() error {
		n.Set(2)
		n.Set(3)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, runs)
	assert.Equal(t, 3, n.Peek())
}

// Effects run in ascending priority order with a stable tie-break on
// registration order within one wave.
func TestEffectPriorityOrdering(t *testing.T) {
	sched := reactor.New()

	trigger := reactor.NewSignal(sched, 0)
	var order []string

	reactor.CreateEffect(sched, func() (func(), error) {
		trigger.Get()
		order = append(order, "default-1")
		return nil, nil
	})
	reactor.CreateEffect(sched, func() (func(), error) {
		trigger.Get()
		order = append(order, "low")
		return nil, nil
	}, reactor.WithPriority(-5))
	reactor.CreateEffect(sched, func() (func(), error) {
		trigger.Get()
		order = append(order, "default-2")
		return nil, nil
	})
	reactor.CreateEffect(sched, func() (func(), error) {
		trigger.Get()
		order = append(order, "high")
		return nil, nil
	}, reactor.WithPriority(5))

	order = nil
	trigger.Set(1)
	assert.Equal(t, []string{"low", "default-1", "default-2", "high"}, order)
}

// Equal writes never schedule a subscriber.
func TestEqualWriteDoesNotPropagate(t *testing.T) {
	sched := reactor.New()
	s := reactor.NewSignal(sched, 5)
	runs := 0
	reactor.CreateEffect(sched, func() (func(), error) {
		s.Get()
		runs++
		return nil, nil
	})
	require.Equal(t, 1, runs)
	s.Set(5)
	assert.Equal(t, 1, runs)
}
