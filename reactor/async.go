package reactor

import (
	"context"
	"errors"
	"sync"
	"time"
)

// AsyncStatus is the lifecycle state of an AsyncCell, per spec.md 4.6.
type AsyncStatus uint8

const (
	StatusIdle AsyncStatus = iota
	StatusPending
	StatusSuccess
	StatusError
	StatusCancelled
)

func (s AsyncStatus) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusPending:
		return "pending"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// AsyncEventKind tags an AsyncCell lifecycle notification, per spec.md 6.
type AsyncEventKind string

const (
	EventStart   AsyncEventKind = "start"
	EventSuccess AsyncEventKind = "success"
	EventErr     AsyncEventKind = "error"
	EventCancel  AsyncEventKind = "cancel"
)

// AsyncEvent is the record passed to an AsyncCell's OnEvent callback.
type AsyncEvent struct {
	Kind   AsyncEventKind
	Token  uint64
	At     time.Time
	Err    error
	Reason string
}

// Producer is the caller-supplied asynchronous unit of work behind an
// AsyncCell. ctx is cancelled when the cell is superseded or explicitly
// cancelled; a well-behaved producer observes it to release resources.
// Collapses spec.md's <T,E> producer to Go's idiomatic single error
// return (see DESIGN.md Open Question decisions) rather than carrying a
// second generic error-type parameter end to end.
type Producer[T any] func(ctx context.Context, token uint64) (T, error)

type asyncConfig[T any] struct {
	eager                      bool
	keepPreviousValueOnPending bool
	onSuccess                  func(T)
	onError                    func(error)
	onCancel                   func(reason string)
	onEvent                    func(AsyncEvent)
}

// AsyncCellOption configures an AsyncCell at construction, per spec.md 4.6's
// option table.
type AsyncCellOption[T any] func(*asyncConfig[T])

// WithEager controls whether the cell runs its producer once at
// construction (default true).
func WithEager[T any](eager bool) AsyncCellOption[T] {
	return func(c *asyncConfig[T]) { c.eager = eager }
}

// WithKeepPreviousValueOnPending controls whether a (re)start clears the
// last successful value (default true: retain it).
func WithKeepPreviousValueOnPending[T any](keep bool) AsyncCellOption[T] {
	return func(c *asyncConfig[T]) { c.keepPreviousValueOnPending = keep }
}

// OnSuccess registers a callback invoked after a run settles successfully.
func OnSuccess[T any](fn func(T)) AsyncCellOption[T] {
	return func(c *asyncConfig[T]) { c.onSuccess = fn }
}

// OnError registers a callback invoked after a run settles with a
// non-abort error.
func OnError[T any](fn func(error)) AsyncCellOption[T] {
	return func(c *asyncConfig[T]) { c.onError = fn }
}

// OnCancel registers a callback invoked when the cell is cancelled.
func OnCancel[T any](fn func(reason string)) AsyncCellOption[T] {
	return func(c *asyncConfig[T]) { c.onCancel = fn }
}

// OnEvent registers a callback invoked for every lifecycle event
// (start/success/error/cancel).
func OnEvent[T any](fn func(AsyncEvent)) AsyncCellOption[T] {
	return func(c *asyncConfig[T]) { c.onEvent = fn }
}

// AsyncCell models one cancellable, token-gated asynchronous run backed by
// three signals (value/status/error), per spec.md 4.6. Grounded on the
// teacher's signal primitives rather than any pack library: nothing in the
// retrieved repos implements promise-style cancellation, so the state
// machine itself is original to this port, built the way the teacher
// builds everything else here — as plain signals wired through the same
// Scheduler.
//
// AsyncCell is the one place this package spawns goroutines: the producer
// runs on its own goroutine and its settlement re-enters the Scheduler
// under cellMu, which serialises concurrent settlements the way a
// microtask queue would in a single-threaded host. Callers that also
// mutate this Scheduler from other goroutines still need their own
// confinement or locking, per spec.md 5.
type AsyncCell[T any] struct {
	sched *Scheduler
	cfg   asyncConfig[T]

	valueSig  *Signal[optional[T]]
	statusSig *Signal[AsyncStatus]
	errSig    *Signal[error]

	producer Producer[T]

	cellMu       sync.Mutex
	currentToken uint64
	cancelFn     context.CancelFunc
	cancelled    bool
}

// NewAsyncCell constructs an AsyncCell (fromPromise). If eager (the
// default), it runs the producer once immediately.
func NewAsyncCell[T any](sched *Scheduler, producer Producer[T], opts ...AsyncCellOption[T]) *AsyncCell[T] {
	cfg := asyncConfig[T]{eager: true, keepPreviousValueOnPending: true}
	for _, opt := range opts {
		opt(&cfg)
	}
	c := &AsyncCell[T]{
		sched:     sched,
		cfg:       cfg,
		valueSig:  NewSignal[optional[T]](sched, none[T]()),
		statusSig: NewSignal(sched, StatusIdle),
		errSig:    NewSignal[error](sched, nil),
		producer:  producer,
	}
	if cfg.eager {
		c.Reload()
	}
	return c
}

// Value reports the last successfully observed value and whether one
// exists, per the `value` signal getter in spec.md 4.6.
func (c *AsyncCell[T]) Value() (T, bool) {
	v := c.valueSig.Get()
	return v.val, v.ok
}

// PeekValue reads the current value without registering a dependency.
func (c *AsyncCell[T]) PeekValue() (T, bool) {
	v := c.valueSig.Peek()
	return v.val, v.ok
}

// Status returns the current lifecycle state.
func (c *AsyncCell[T]) Status() AsyncStatus { return c.statusSig.Get() }

// PeekStatus reads status without registering a dependency.
func (c *AsyncCell[T]) PeekStatus() AsyncStatus { return c.statusSig.Peek() }

// Err returns the last error, or nil.
func (c *AsyncCell[T]) Err() error { return c.errSig.Get() }

// AsyncSnapshot is a consistent combined read of an AsyncCell, per
// SPEC_FULL.md's supplemented AsyncCell.Snapshot feature.
type AsyncSnapshot[T any] struct {
	Value    T
	HasValue bool
	Status   AsyncStatus
	Err      error
}

// Snapshot reads value, status and error together. Because the cell
// always writes its three signals inside one batch, any read taken
// outside a half-finished propagation observes a consistent triple.
func (c *AsyncCell[T]) Snapshot() AsyncSnapshot[T] {
	v := c.valueSig.Get()
	return AsyncSnapshot[T]{
		Value:    v.val,
		HasValue: v.ok,
		Status:   c.statusSig.Get(),
		Err:      c.errSig.Get(),
	}
}

// Reload starts a new run, per spec.md 4.6 step 1-3.
func (c *AsyncCell[T]) Reload() {
	c.cellMu.Lock()
	if c.cancelFn != nil {
		c.cancelFn()
	}
	c.currentToken++
	myToken := c.currentToken
	ctx, cancel := context.WithCancel(context.Background())
	c.cancelFn = cancel
	c.cancelled = false
	keepPrev := c.cfg.keepPreviousValueOnPending
	c.cellMu.Unlock()

	_ = c.sched.Batch(func() error {
		c.statusSig.Set(StatusPending)
		c.errSig.Set(nil)
		if !keepPrev {
			c.valueSig.Set(none[T]())
		}
		return nil
	})

	c.emit(AsyncEvent{Kind: EventStart, Token: myToken, At: time.Now()})

	producer := c.producer
	go func() {
		defer func() {
			if r := recover(); r != nil {
				c.settle(myToken, ctx, zeroOf[T](), panicToErr(r))
			}
		}()
		val, err := producer(ctx, myToken)
		c.settle(myToken, ctx, val, err)
	}()
}

// Cancel aborts the current run, marking the cell Cancelled, per spec.md
// 4.6's cancel(reason?). No-op if Reload has never run, or if the current
// run is already cancelled (no intervening Reload since the last Cancel).
// A run that has already settled is still cancelled: the status moves to
// Cancelled and the cancel event and onCancel fire.
func (c *AsyncCell[T]) Cancel(reason string) {
	c.cellMu.Lock()
	cancel := c.cancelFn
	if cancel == nil || c.cancelled {
		c.cellMu.Unlock()
		return
	}
	c.cancelled = true
	c.cellMu.Unlock()
	cancel()

	_ = c.sched.Batch(func() error {
		c.statusSig.Set(StatusCancelled)
		return nil
	})

	c.emit(AsyncEvent{Kind: EventCancel, Reason: reason, At: time.Now()})
	if c.cfg.onCancel != nil {
		c.cfg.onCancel(reason)
	}
}

// settle implements spec.md 4.6 steps 4-6: gate on token identity and
// abort status before ever mutating the cell's signals.
func (c *AsyncCell[T]) settle(token uint64, ctx context.Context, val T, err error) {
	c.cellMu.Lock()
	current := c.currentToken
	aborted := ctx.Err() != nil
	c.cellMu.Unlock()

	if token != current {
		return // superseded: never overwrite state for a later token.
	}
	if aborted {
		return // cancelled locally: cancel() already set terminal state.
	}

	if err != nil {
		if isAbortError(err) {
			return
		}
		_ = c.sched.Batch(func() error {
			c.errSig.Set(err)
			c.statusSig.Set(StatusError)
			return nil
		})
		c.emit(AsyncEvent{Kind: EventErr, Token: token, At: time.Now(), Err: err})
		if c.cfg.onError != nil {
			c.cfg.onError(err)
		}
		return
	}

	_ = c.sched.Batch(func() error {
		c.valueSig.Set(some(val))
		c.statusSig.Set(StatusSuccess)
		return nil
	})
	c.emit(AsyncEvent{Kind: EventSuccess, Token: token, At: time.Now()})
	if c.cfg.onSuccess != nil {
		c.cfg.onSuccess(val)
	}
}

func (c *AsyncCell[T]) emit(ev AsyncEvent) {
	if c.cfg.onEvent != nil {
		c.cfg.onEvent(ev)
	}
}

func isAbortError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func zeroOf[T any]() T {
	var z T
	return z
}

func panicToErr(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return &panicError{v: r}
}

type panicError struct{ v any }

func (p *panicError) Error() string { return "reactor: producer panicked" }
