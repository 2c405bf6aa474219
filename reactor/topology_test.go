package reactor_test

import (
	"errors"
	"testing"

	"github.com/Luciano0322/signal-kernel/reactor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Diamond stabilisation:
//
//	  a
//	 / \
//	b   c
//	 \ /
//	  d
//	  |
//	effect
//
// a=1 -> b=2, c=10, d=12, effect fires once with 12.
// a=2 -> b=3, c=20, d=23, effect fires exactly once more with 23.
func TestDiamondStabilisation(t *testing.T) {
	sched := reactor.New(reactor.WithOnError(func(err error) {
		assert.FailNow(t, err.Error())
	}))

	a := reactor.NewSignal(sched, 1)
	b := reactor.NewComputed(sched, func() (int, error) { return a.Get() + 1, nil })
	c := reactor.NewComputed(sched, func() (int, error) { return a.Get() * 10, nil })
	d := reactor.NewComputed(sched, func() (int, error) {
		bv, err := b.Get()
		if err != nil {
			return 0, err
		}
		cv, err := c.Get()
		if err != nil {
			return 0, err
		}
		return bv + cv, nil
	})

	observed := []int{}
	reactor.CreateEffect(sched, func() (func(), error) {
		dv, err := d.Get()
		if err != nil {
			return nil, err
		}
		observed = append(observed, dv)
		return nil, nil
	})

	require.Equal(t, []int{12}, observed)

	a.Set(2)
	require.Equal(t, []int{12, 23}, observed)
}

// Cycle detection: a computed that reads itself raises ErrCycleDetected,
// and leaves the node retryable (computing=false, stale remains true).
func TestCycleDetection(t *testing.T) {
	sched := reactor.New()

	var self *reactor.Computed[int]
	self = reactor.NewComputed(sched, func() (int, error) {
		v, err := self.Get()
		if err != nil {
			return 0, err
		}
		return v + 1, nil
	})

	_, err := self.Get()
	require.Error(t, err)
	assert.True(t, errors.Is(err, reactor.ErrCycleDetected))

	// retryable: a later Get still attempts recompute rather than being
	// permanently wedged (it will cycle again, but it does not panic or
	// short-circuit without trying).
	_, err = self.Get()
	require.Error(t, err)
	assert.True(t, errors.Is(err, reactor.ErrCycleDetected))
}

