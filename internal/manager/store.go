package manager

import (
	"context"

	"github.com/batchline/batchline/internal/batch"
)

// ResultStore persists terminal batch results keyed by batch id. Once a job
// leaves the running index its stored result is the sole source of truth.
type ResultStore interface {
	Put(ctx context.Context, res *batch.Result) error
	Get(ctx context.Context, batchID string) (*batch.Result, error)
}
