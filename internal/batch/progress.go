package batch

import "log/slog"

// ProgressFunc observes a snapshot of a running batch. Callbacks are
// best-effort: they run on a dedicated goroutine so a slow observer never
// blocks item processing, intermediate snapshots may be dropped under load,
// and a panicking callback is logged and swallowed.
type ProgressFunc func(Result)

const progressBuffer = 16

// reporter serializes progress callbacks onto one goroutine, off the chunk
// workers' hot path.
type reporter struct {
	fn   ProgressFunc
	ch   chan Result
	done chan struct{}
}

// newReporter returns nil when fn is nil; all methods are nil-safe no-ops.
func newReporter(fn ProgressFunc) *reporter {
	if fn == nil {
		return nil
	}
	r := &reporter{
		fn:   fn,
		ch:   make(chan Result, progressBuffer),
		done: make(chan struct{}),
	}
	go r.loop()
	return r
}

func (r *reporter) loop() {
	defer close(r.done)
	for snap := range r.ch {
		r.invoke(snap)
	}
}

func (r *reporter) invoke(snap Result) {
	defer func() {
		if p := recover(); p != nil {
			slog.Error("progress callback panicked", "batch", snap.BatchID, "panic", p)
		}
	}()
	r.fn(snap)
}

// publish queues a snapshot without blocking; it is dropped if the observer
// is behind.
func (r *reporter) publish(snap Result) {
	if r == nil {
		return
	}
	select {
	case r.ch <- snap:
	default:
	}
}

// stop delivers the final snapshot, then waits for the dispatch goroutine to
// drain. The final snapshot is never dropped.
func (r *reporter) stop(final Result) {
	if r == nil {
		return
	}
	r.ch <- final
	close(r.ch)
	<-r.done
}
