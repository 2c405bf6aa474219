package reactor

import "context"

// Fetcher produces a value for the current source, per spec.md 4.7's
// `(s, ctx) → Promise<T>`.
type Fetcher[S, T any] func(ctx context.Context, source S, token uint64) (T, error)

// Resource composes a reactive source with a fetcher over an AsyncCell,
// implementing switch-latest semantics: every change to the source cancels
// the in-flight fetch and starts a new one, per spec.md 4.7.
type Resource[S, T any] struct {
	cell       *AsyncCell[T]
	sourceFn   func() S
	lastSource *Signal[S]
	dispose    func()
}

// ResourceOption reuses AsyncCellOption's shape so resource callers can
// pass the same lifecycle callbacks an AsyncCell accepts.
type ResourceOption[T any] AsyncCellOption[T]

// CreateResource builds a Resource: an AsyncCell with eager=false driven
// by an effect that tracks source() and reloads the cell on every source
// change after the first, per spec.md 4.7 steps 1-2.
func CreateResource[S, T any](sched *Scheduler, source func() S, fetcher Fetcher[S, T], opts ...ResourceOption[T]) *Resource[S, T] {
	r := &Resource[S, T]{
		sourceFn:   source,
		lastSource: NewSignal(sched, source()),
	}

	cellOpts := make([]AsyncCellOption[T], 0, len(opts)+1)
	cellOpts = append(cellOpts, WithEager[T](false))
	for _, o := range opts {
		cellOpts = append(cellOpts, AsyncCellOption[T](o))
	}

	r.cell = NewAsyncCell(sched, func(ctx context.Context, token uint64) (T, error) {
		return fetcher(ctx, r.lastSource.Peek(), token)
	}, cellOpts...)

	first := true
	r.dispose = CreateEffect(sched, func() (func(), error) {
		s := r.sourceFn()
		r.lastSource.Set(s)
		if first {
			first = false
			r.cell.Reload()
		} else {
			r.cell.Cancel("source-changed")
			r.cell.Reload()
		}
		return nil, nil
	})

	return r
}

// Value reports the resource's current value and whether one exists.
func (r *Resource[S, T]) Value() (T, bool) { return r.cell.Value() }

// Status returns the underlying AsyncCell's lifecycle state.
func (r *Resource[S, T]) Status() AsyncStatus { return r.cell.Status() }

// Err returns the underlying AsyncCell's last error, or nil.
func (r *Resource[S, T]) Err() error { return r.cell.Err() }

// Snapshot reads value, status and error together.
func (r *Resource[S, T]) Snapshot() AsyncSnapshot[T] { return r.cell.Snapshot() }

// Reload re-runs the fetcher against the current source without waiting
// for a source change.
func (r *Resource[S, T]) Reload() { r.cell.Reload() }

// Dispose detaches the resource's tracking effect, so later source changes
// no longer reload the cell. An in-flight fetch is not cancelled; when it
// settles, its result is still written to the cell and visible through
// Value, Status and Snapshot.
func (r *Resource[S, T]) Dispose() { r.dispose() }
