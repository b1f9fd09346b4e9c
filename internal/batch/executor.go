package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// progressInterval is the processed-item cadence for progress snapshots.
const progressInterval = 10

// Executor drives batch runs for one processor configuration. It is safe to
// reuse across runs; each run gets its own gate and accumulator.
type Executor[T any] struct {
	cfg        Config
	fn         ItemFunc[T]
	onProgress ProgressFunc
}

// Option configures an Executor.
type Option[T any] func(*Executor[T])

// WithProgress sets an observer invoked with result snapshots every few
// processed items and once with the final result.
func WithProgress[T any](fn ProgressFunc) Option[T] {
	return func(e *Executor[T]) { e.onProgress = fn }
}

// NewExecutor creates an executor for the given config and per-item function.
func NewExecutor[T any](cfg Config, fn ItemFunc[T], opts ...Option[T]) (*Executor[T], error) {
	if fn == nil {
		return nil, errors.New("item function cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	e := &Executor[T]{cfg: cfg, fn: fn}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Run executes one batch to completion and returns the finalized result.
//
// The returned error reports how the run ended, not whether items failed:
// item failures are captured in the result and never abort a run. A non-nil
// error means either the run was cancelled (the error wraps ctx.Err() and the
// result is Cancelled with partial counters retained) or the source failed
// while draining (the result is Failed). In both cases the result is still
// finalized and usable.
func (e *Executor[T]) Run(ctx context.Context, batchID string, src Source[T]) (*Result, error) {
	r := &run[T]{
		cfg:  e.cfg,
		fn:   e.fn,
		id:   batchID,
		gate: NewGate(e.cfg.MaxConcurrentBatches),
		acc:  newAccumulator(batchID, e.cfg.MaxErrorRecords),
		rep:  newReporter(e.onProgress),
	}

	var runErr error
	if s, ok := src.(*SliceSource[T]); ok {
		runErr = r.materialized(ctx, s.items)
	} else {
		runErr = r.streaming(ctx, src)
	}

	var res Result
	switch {
	case runErr == nil:
		res = r.acc.finalize(r.budgetStatus())
	case errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded):
		res = r.acc.finalize(StatusCancelled)
	default:
		res = r.acc.finalize(StatusFailed)
	}
	r.rep.stop(res)

	slog.Info("batch run finished",
		"batch", batchID,
		"status", res.Status,
		"total", res.TotalItems,
		"processed", res.Processed,
		"failed", res.Failed,
		"duration", res.Duration,
	)
	return &res, runErr
}

// run carries the per-run state shared between chunk tasks.
type run[T any] struct {
	cfg  Config
	fn   ItemFunc[T]
	id   string
	gate *Gate
	acc  *accumulator
	rep  *reporter
}

// budgetStatus classifies a fully processed run against the error budget.
func (r *run[T]) budgetStatus() Status {
	snap := r.acc.snapshot()
	if snap.ErrorRate() > r.cfg.ErrorThreshold {
		return StatusFailed
	}
	return StatusCompleted
}

// materialized splits an in-memory slice into chunks upfront and runs every
// chunk as its own task under a gate permit.
func (r *run[T]) materialized(ctx context.Context, items []T) error {
	r.acc.setTotal(len(items))

	g, ctx := errgroup.WithContext(ctx)
	for _, chunk := range Chunks(items, r.cfg.BatchSize) {
		g.Go(func() error {
			if err := r.gate.Acquire(ctx); err != nil {
				return err
			}
			defer r.gate.Release()
			return r.processChunk(ctx, chunk)
		})
	}
	return g.Wait()
}

// streaming runs a lazily-produced source through a bounded queue: a producer
// goroutine drains the source while the dispatcher groups items into chunks
// and launches them under gate permits. The gate acquisition happens before a
// chunk task starts, so a full pipeline blocks the dispatcher, fills the
// queue, and stalls the producer — backpressure instead of materializing the
// whole source.
func (r *run[T]) streaming(ctx context.Context, src Source[T]) error {
	g, ctx := errgroup.WithContext(ctx)
	queue := make(chan T, r.cfg.BatchSize*r.cfg.MaxConcurrentBatches)

	g.Go(func() error {
		defer close(queue)
		total := 0
		for {
			item, ok, err := src.Next(ctx)
			if err != nil {
				return fmt.Errorf("drain source: %w", err)
			}
			if !ok {
				break
			}
			total++
			select {
			case queue <- item:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		r.acc.setTotal(total)
		return nil
	})

	g.Go(func() error {
		chunk := make([]T, 0, r.cfg.BatchSize)
		flush := func() error {
			if len(chunk) == 0 {
				return nil
			}
			c := chunk
			chunk = make([]T, 0, r.cfg.BatchSize)
			if err := r.gate.Acquire(ctx); err != nil {
				return err
			}
			g.Go(func() error {
				defer r.gate.Release()
				return r.processChunk(ctx, c)
			})
			return nil
		}

		for item := range queue {
			chunk = append(chunk, item)
			if len(chunk) == r.cfg.BatchSize {
				if err := flush(); err != nil {
					return err
				}
			}
		}
		return flush()
	})

	return g.Wait()
}

// processChunk handles one chunk's items in order under an already-held
// permit. Item failures are recorded and never abort the chunk; only
// cancellation unwinds it, between items, with the in-flight item allowed to
// finish first.
func (r *run[T]) processChunk(ctx context.Context, chunk []T) error {
	for _, item := range chunk {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := r.processItem(ctx, item)
		if err != nil && ctx.Err() != nil {
			// The in-flight item was interrupted by cancellation, not a
			// genuine item failure. Leave the counters as they are.
			return ctx.Err()
		}

		var processed int
		if err != nil {
			processed = r.acc.failure(item, err)
			slog.Debug("batch item failed", "batch", r.id, "item", itemRepr(item), "error", err)
		} else {
			processed = r.acc.success()
		}
		if processed%progressInterval == 0 {
			r.rep.publish(r.acc.snapshot())
		}
	}
	return nil
}

// processItem invokes the per-item function, retrying with exponential
// backoff when retries are enabled. Every failure is retried; the core cannot
// tell transient processor errors from permanent ones.
func (r *run[T]) processItem(ctx context.Context, item T) error {
	err := r.fn(ctx, item)
	if err == nil || !r.cfg.RetryFailed {
		return err
	}

	backoff := r.cfg.RetryBackoff
	if backoff <= 0 {
		backoff = DefaultRetryBackoff
	}
	for attempt := 1; attempt <= r.cfg.RetryAttempts; attempt++ {
		if werr := wait(ctx, backoff); werr != nil {
			return werr
		}
		if err = r.fn(ctx, item); err == nil {
			return nil
		}
		backoff *= 2
	}
	return err
}

func wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
