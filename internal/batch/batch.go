// Package batch executes a collection of work items through a caller-supplied
// per-item function under a bounded-parallelism budget. Items are grouped into
// chunks; each chunk runs under one concurrency permit with its items processed
// sequentially. Individual item failures are recorded and never abort a run;
// the run as a whole is classified against an error budget once all items have
// been processed.
package batch

import (
	"context"
	"fmt"
	"time"
)

// Status is the lifecycle state of a batch run.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status is final. A terminal result never
// changes again.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// ItemFunc processes a single work item. Failure is signalled by returning an
// error; there is no sentinel result value. The function must honour ctx
// cancellation if it blocks.
type ItemFunc[T any] func(ctx context.Context, item T) error

// ItemError records one failed item. The item representation is truncated so
// large payloads cannot blow up the result.
type ItemError struct {
	Item      string    `json:"item"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Result is the aggregate outcome of one batch run. It is mutated internally
// while the run is live; callers only ever see copies.
type Result struct {
	BatchID    string      `json:"batchId"`
	Status     Status      `json:"status"`
	TotalItems int         `json:"totalItems"`
	Processed  int         `json:"processedItems"`
	Succeeded  int         `json:"successItems"`
	Failed     int         `json:"failedItems"`
	StartTime  time.Time   `json:"startTime"`
	EndTime    *time.Time  `json:"endTime,omitempty"`
	Duration   string      `json:"duration,omitempty"`
	Errors     []ItemError `json:"errors,omitempty"`
}

// SuccessRate returns the percentage of processed items that succeeded,
// or 0 when nothing has been processed yet.
func (r *Result) SuccessRate() float64 {
	if r.Processed == 0 {
		return 0
	}
	return float64(r.Succeeded) / float64(r.Processed) * 100
}

// ErrorRate returns the fraction of failed items over the total,
// or 0 when the total is zero.
func (r *Result) ErrorRate() float64 {
	if r.TotalItems == 0 {
		return 0
	}
	return float64(r.Failed) / float64(r.TotalItems)
}

// Default processor configuration values.
const (
	DefaultBatchSize            = 100
	DefaultMaxConcurrentBatches = 5
	DefaultErrorThreshold       = 0.10
	DefaultRetryAttempts        = 3
	DefaultRetryBackoff         = 100 * time.Millisecond
	DefaultMaxErrorRecords      = 100
)

// Config describes how a batch run is executed. Registered configs are
// immutable; copies are passed by value.
type Config struct {
	// BatchSize is the number of items grouped under one concurrency permit.
	BatchSize int `json:"batchSize"`

	// MaxConcurrentBatches bounds how many chunks run at once.
	MaxConcurrentBatches int `json:"maxConcurrentBatches"`

	// ErrorThreshold is the tolerated fraction of failed items. A run whose
	// final failure rate exceeds it is classified failed even though every
	// item was handled.
	ErrorThreshold float64 `json:"errorThreshold"`

	// RetryFailed enables per-item retries with exponential backoff before a
	// failure is counted as permanent.
	RetryFailed   bool          `json:"retryFailed"`
	RetryAttempts int           `json:"retryAttempts"`
	RetryBackoff  time.Duration `json:"retryBackoff"`

	// MaxErrorRecords caps the error list kept on the result. Failures past
	// the cap are still counted, just not recorded individually.
	MaxErrorRecords int `json:"maxErrorRecords"`
}

// DefaultConfig returns a config populated with the package defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:            DefaultBatchSize,
		MaxConcurrentBatches: DefaultMaxConcurrentBatches,
		ErrorThreshold:       DefaultErrorThreshold,
		RetryAttempts:        DefaultRetryAttempts,
		RetryBackoff:         DefaultRetryBackoff,
		MaxErrorRecords:      DefaultMaxErrorRecords,
	}
}

// Validate checks the config for values the executor cannot run with.
func (c Config) Validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", c.BatchSize)
	}
	if c.MaxConcurrentBatches <= 0 {
		return fmt.Errorf("max concurrent batches must be positive, got %d", c.MaxConcurrentBatches)
	}
	if c.ErrorThreshold < 0 || c.ErrorThreshold > 1 {
		return fmt.Errorf("error threshold must be within [0, 1], got %g", c.ErrorThreshold)
	}
	if c.RetryAttempts < 0 {
		return fmt.Errorf("retry attempts cannot be negative, got %d", c.RetryAttempts)
	}
	return nil
}

const itemReprLimit = 128

// itemRepr formats an item for an error record, truncated to a fixed limit.
func itemRepr(v any) string {
	s := fmt.Sprintf("%v", v)
	if len(s) > itemReprLimit {
		return s[:itemReprLimit] + "..."
	}
	return s
}
