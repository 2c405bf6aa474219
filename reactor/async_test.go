package reactor_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Luciano0322/signal-kernel/reactor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// controllablePromise lets a test resolve/reject a producer's result on
// its own schedule, the Go analogue of the spec's "controllable promise
// per id" fixture.
type controllablePromise struct {
	mu       sync.Mutex
	settled  chan struct{}
	value    string
	err      error
	settleCh chan struct{}
}

func newControllablePromise() *controllablePromise {
	return &controllablePromise{settleCh: make(chan struct{})}
}

func (p *controllablePromise) resolve(v string) {
	p.mu.Lock()
	p.value = v
	p.mu.Unlock()
	close(p.settleCh)
}

func (p *controllablePromise) reject(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
	close(p.settleCh)
}

func (p *controllablePromise) await(ctx context.Context) (string, error) {
	select {
	case <-p.settleCh:
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.value, p.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func waitForStatus(t *testing.T, cell *reactor.AsyncCell[string], want reactor.AsyncStatus) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cell.PeekStatus() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	require.Equal(t, want, cell.PeekStatus())
}

func waitForResourceStatus(t *testing.T, res *reactor.Resource[int, string], want reactor.AsyncStatus) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if res.Status() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	require.Equal(t, want, res.Status())
}

// Round trip: an eager AsyncCell whose producer resolves observes exactly
// Pending -> Success.
func TestAsyncCellRoundTripSuccess(t *testing.T) {
	promise := newControllablePromise()
	var statuses []reactor.AsyncStatus
	var mu sync.Mutex

	sched := reactor.New()
	cell := reactor.NewAsyncCell[string](sched, func(ctx context.Context, token uint64) (string, error) {
		return promise.await(ctx)
	}, reactor.OnEvent[string](func(ev reactor.AsyncEvent) {}))

	reactor.CreateEffect(sched, func() (func(), error) {
		mu.Lock()
		statuses = append(statuses, cell.Status())
		mu.Unlock()
		return nil, nil
	})

	promise.resolve("U1")
	waitForStatus(t, cell, reactor.StatusSuccess)

	v, ok := cell.PeekValue()
	require.True(t, ok)
	assert.Equal(t, "U1", v)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []reactor.AsyncStatus{reactor.StatusPending, reactor.StatusSuccess}, statuses)
}

// Switch-latest resource: a source change cancels the in-flight fetch and
// starts a new one; the stale fetch's late resolution is suppressed by
// token gating.
func TestResourceSwitchLatest(t *testing.T) {
	var mu sync.Mutex
	calls := map[int]*controllablePromise{}
	callForSource := func(source int) *controllablePromise {
		mu.Lock()
		defer mu.Unlock()
		p := newControllablePromise()
		calls[source] = p
		return p
	}
	// callFor waits until the fetcher has been called for source: it runs
	// on the cell's producer goroutine, so a Pending status alone does not
	// mean the call has happened yet.
	callFor := func(source int) *controllablePromise {
		deadline := time.Now().Add(2 * time.Second)
		for {
			mu.Lock()
			p := calls[source]
			mu.Unlock()
			if p != nil || time.Now().After(deadline) {
				require.NotNil(t, p, "fetcher never called for source %d", source)
				return p
			}
			time.Sleep(time.Millisecond)
		}
	}

	sched := reactor.New()
	id := reactor.NewSignal(sched, 1)

	res := reactor.CreateResource[int, string](sched, func() int { return id.Get() },
		func(ctx context.Context, source int, token uint64) (string, error) {
			return callForSource(source).await(ctx)
		},
		reactor.ResourceOption[string](reactor.WithKeepPreviousValueOnPending[string](true)),
	)

	waitForResourceStatus(t, res, reactor.StatusPending)
	staleFetchOne := callFor(1)

	id.Set(2)
	waitForResourceStatus(t, res, reactor.StatusPending)
	// keepPreviousValueOnPending, and the source-1 fetch never resolved,
	// so there is nothing to retain here: value is still absent.
	_, ok := res.Value()
	assert.False(t, ok)

	callFor(2).resolve("U2")
	waitForResourceStatus(t, res, reactor.StatusSuccess)
	v, _ := res.Value()
	assert.Equal(t, "U2", v)

	// Late resolution of the superseded fetch for source 1 must never
	// overwrite state, whether its goroutine already exited via context
	// cancellation or is still racing the channel send below.
	staleFetchOne.resolve("LATE")
	time.Sleep(10 * time.Millisecond)
	v, _ = res.Value()
	assert.Equal(t, "U2", v)
}

// Abort is not error: cancelling a cell whose producer subsequently
// rejects with a context-cancellation-shaped error ends in Cancelled, not
// Error, and never invokes onError.
func TestAsyncCellAbortIsNotError(t *testing.T) {
	release := make(chan struct{})
	onErrorCalled := false

	sched := reactor.New()
	cell := reactor.NewAsyncCell[string](sched, func(ctx context.Context, token uint64) (string, error) {
		<-release
		return "", ctx.Err()
	}, reactor.OnError[string](func(err error) { onErrorCalled = true }))

	cell.Cancel("bye")
	close(release)

	waitForStatus(t, cell, reactor.StatusCancelled)
	time.Sleep(10 * time.Millisecond)

	assert.False(t, onErrorCalled)
	assert.Nil(t, cell.Err())
	assert.Equal(t, reactor.StatusCancelled, cell.PeekStatus())
}

// A non-abort producer error transitions the cell to Error and invokes
// onError exactly once.
func TestAsyncCellProducerFailure(t *testing.T) {
	boom := errors.New("boom")
	// onError runs on the producer goroutine after the status flips, so
	// its calls are collected through a channel rather than read directly.
	gotErr := make(chan error, 2)

	sched := reactor.New()
	cell := reactor.NewAsyncCell[string](sched, func(ctx context.Context, token uint64) (string, error) {
		return "", boom
	}, reactor.OnError[string](func(err error) { gotErr <- err }))

	waitForStatus(t, cell, reactor.StatusError)
	select {
	case err := <-gotErr:
		assert.ErrorIs(t, err, boom)
	case <-time.After(2 * time.Second):
		t.Fatal("onError was not called")
	}
	time.Sleep(10 * time.Millisecond)
	assert.Empty(t, gotErr)
	assert.ErrorIs(t, cell.Err(), boom)
}

// Cancel is a no-op once the cell is already cancelled, with no
// intervening Reload: no repeated cancel event and no repeated onCancel
// invocation, per spec.md 4.6.
func TestAsyncCellCancelIsIdempotent(t *testing.T) {
	release := make(chan struct{})
	var cancelCount int
	var eventCount int
	var mu sync.Mutex

	sched := reactor.New()
	cell := reactor.NewAsyncCell[string](sched, func(ctx context.Context, token uint64) (string, error) {
		<-release
		return "", ctx.Err()
	},
		reactor.OnCancel[string](func(reason string) {
			mu.Lock()
			cancelCount++
			mu.Unlock()
		}),
		reactor.OnEvent[string](func(ev reactor.AsyncEvent) {
			if ev.Kind == reactor.EventCancel {
				mu.Lock()
				eventCount++
				mu.Unlock()
			}
		}),
	)

	cell.Cancel("first")
	cell.Cancel("second")
	cell.Cancel("third")
	close(release)

	waitForStatus(t, cell, reactor.StatusCancelled)
	time.Sleep(10 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, cancelCount)
	assert.Equal(t, 1, eventCount)
}

// A Reload after a Cancel clears the idempotency guard, so a subsequent
// Cancel on the new run fires normally.
func TestAsyncCellCancelAfterReloadFiresAgain(t *testing.T) {
	release := make(chan struct{})
	var cancelCount int
	var mu sync.Mutex

	sched := reactor.New()
	cell := reactor.NewAsyncCell[string](sched, func(ctx context.Context, token uint64) (string, error) {
		<-release
		return "", ctx.Err()
	}, reactor.OnCancel[string](func(reason string) {
		mu.Lock()
		cancelCount++
		mu.Unlock()
	}))

	cell.Cancel("first")
	waitForStatus(t, cell, reactor.StatusCancelled)

	release = make(chan struct{})
	cell.Reload()
	cell.Cancel("second")
	close(release)
	waitForStatus(t, cell, reactor.StatusCancelled)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, cancelCount)
}

