package batch

import (
	"sync"
	"time"
)

// accumulator is the single writer-side aggregate behind a Result. Chunk tasks
// run on separate goroutines, so every counter update goes through the mutex
// and readers only ever get snapshot copies.
type accumulator struct {
	mu        sync.Mutex
	res       Result
	maxErrors int
}

func newAccumulator(batchID string, maxErrors int) *accumulator {
	return &accumulator{
		res: Result{
			BatchID:   batchID,
			Status:    StatusRunning,
			StartTime: time.Now().UTC(),
		},
		maxErrors: maxErrors,
	}
}

// setTotal records the item count once the source has been fully drained.
func (a *accumulator) setTotal(n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.res.TotalItems = n
}

// success counts one succeeded item and returns the processed count so far.
func (a *accumulator) success() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.res.Succeeded++
	a.res.Processed++
	return a.res.Processed
}

// failure counts one permanently failed item, records a truncated error entry
// up to the configured cap, and returns the processed count so far.
func (a *accumulator) failure(item any, err error) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.res.Failed++
	a.res.Processed++
	if a.maxErrors <= 0 || len(a.res.Errors) < a.maxErrors {
		a.res.Errors = append(a.res.Errors, ItemError{
			Item:      itemRepr(item),
			Message:   err.Error(),
			Timestamp: time.Now().UTC(),
		})
	}
	return a.res.Processed
}

// snapshot returns a consistent copy of the current state.
func (a *accumulator) snapshot() Result {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.copyLocked()
}

// finalize stamps the end time and moves the result to a terminal status.
// Once terminal the status is frozen; later calls return the recorded result
// unchanged.
func (a *accumulator) finalize(status Status) Result {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.res.Status.Terminal() {
		now := time.Now().UTC()
		a.res.Status = status
		a.res.EndTime = &now
		a.res.Duration = now.Sub(a.res.StartTime).String()
	}
	return a.copyLocked()
}

func (a *accumulator) copyLocked() Result {
	cp := a.res
	if a.res.EndTime != nil {
		t := *a.res.EndTime
		cp.EndTime = &t
	}
	cp.Errors = make([]ItemError, len(a.res.Errors))
	copy(cp.Errors, a.res.Errors)
	return cp
}
