package batch

import "context"

// Source yields the items of one batch run. A source is finite: once Next
// reports no more items the run's total is known. An error from Next aborts
// the whole run (it is a drain failure, not a per-item failure).
type Source[T any] interface {
	// Next returns the next item. The second return is false once the source
	// is exhausted.
	Next(ctx context.Context) (T, bool, error)
}

// SliceSource serves items from an in-memory slice. Slice-backed runs are
// split into chunks upfront; lazily-produced sources stream through a bounded
// queue instead.
type SliceSource[T any] struct {
	items []T
	pos   int
}

// FromSlice wraps an already materialized item collection.
func FromSlice[T any](items []T) *SliceSource[T] {
	return &SliceSource[T]{items: items}
}

func (s *SliceSource[T]) Next(ctx context.Context) (T, bool, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, false, err
	}
	if s.pos >= len(s.items) {
		return zero, false, nil
	}
	item := s.items[s.pos]
	s.pos++
	return item, true, nil
}

// ChanSource streams items from a channel. The channel must be closed by the
// producer to signal the end of input.
type ChanSource[T any] struct {
	ch <-chan T
}

// FromChannel wraps a producer-owned channel as a source.
func FromChannel[T any](ch <-chan T) *ChanSource[T] {
	return &ChanSource[T]{ch: ch}
}

func (s *ChanSource[T]) Next(ctx context.Context) (T, bool, error) {
	var zero T
	select {
	case item, ok := <-s.ch:
		if !ok {
			return zero, false, nil
		}
		return item, true, nil
	case <-ctx.Done():
		return zero, false, ctx.Err()
	}
}

// FuncSource adapts a pull function, e.g. a paginated database cursor, as a
// source.
type FuncSource[T any] struct {
	next func(ctx context.Context) (T, bool, error)
}

// FromFunc wraps a pull function as a source.
func FromFunc[T any](next func(ctx context.Context) (T, bool, error)) *FuncSource[T] {
	return &FuncSource[T]{next: next}
}

func (s *FuncSource[T]) Next(ctx context.Context) (T, bool, error) {
	return s.next(ctx)
}
