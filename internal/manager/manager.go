// Package manager tracks batch jobs: it submits executor runs as cancellable
// background goroutines, indexes them by job id while they run, and answers
// status/result queries once they are gone. A Manager is an explicit instance
// wired by the caller, never a process-wide singleton, so tests can run
// isolated managers side by side.
package manager

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/batchline/batchline/internal/apperror"
	"github.com/batchline/batchline/internal/batch"
)

type Manager struct {
	registry *Registry
	store    ResultStore
	baseCtx  context.Context

	mu      sync.Mutex
	running map[string]*runningJob
}

type runningJob struct {
	processor string
	cancel    context.CancelFunc
	done      chan struct{}
}

// New creates a manager. Jobs run under contexts derived from baseCtx, so
// cancelling it (e.g. on shutdown) cancels every running job cooperatively.
func New(baseCtx context.Context, registry *Registry, store ResultStore) *Manager {
	return &Manager{
		registry: registry,
		store:    store,
		baseCtx:  baseCtx,
		running:  make(map[string]*runningJob),
	}
}

// CreateProcessor registers a named processor configuration.
func (m *Manager) CreateProcessor(name string, cfg batch.Config) error {
	return m.registry.Register(name, cfg)
}

// Processors lists the registered processor names.
func (m *Manager) Processors() []string {
	return m.registry.Names()
}

// SubmitOption configures a job submission.
type SubmitOption func(*submitOptions)

type submitOptions struct {
	jobID    string
	progress batch.ProgressFunc
}

// WithJobID uses a caller-supplied job id instead of generating one.
func WithJobID(id string) SubmitOption {
	return func(o *submitOptions) { o.jobID = id }
}

// WithProgress attaches a progress observer to the run.
func WithProgress(fn batch.ProgressFunc) SubmitOption {
	return func(o *submitOptions) { o.progress = fn }
}

// Submit starts a batch run for a registered processor as a background job
// and returns its id. The run is cancellable via Cancel; its outcome is
// queryable via Status and Result. When the run finishes (completed, failed,
// or cancelled) the terminal result is written to the store and the job
// leaves the running index.
//
// Submit is a free function because it is generic over the item type; the
// manager itself tracks jobs without caring what flows through them.
func Submit[T any](m *Manager, processor string, src batch.Source[T], fn batch.ItemFunc[T], opts ...SubmitOption) (string, error) {
	cfg, err := m.registry.Get(processor)
	if err != nil {
		return "", err
	}

	var o submitOptions
	for _, opt := range opts {
		opt(&o)
	}
	jobID := o.jobID
	if jobID == "" {
		jobID = uuid.NewString()
	}

	exec, err := batch.NewExecutor(cfg, fn, batch.WithProgress[T](o.progress))
	if err != nil {
		return "", apperror.New(apperror.BadRequest, err.Error())
	}

	ctx, cancel := context.WithCancel(m.baseCtx)
	job := &runningJob{
		processor: processor,
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	m.mu.Lock()
	if _, exists := m.running[jobID]; exists {
		m.mu.Unlock()
		cancel()
		return "", apperror.New(apperror.Conflict, "job already running: "+jobID)
	}
	m.running[jobID] = job
	m.mu.Unlock()

	slog.Info("job submitted", "job", jobID, "processor", processor)

	go func() {
		defer close(job.done)
		defer cancel()

		res, runErr := exec.Run(ctx, jobID, src)
		if runErr != nil && !errors.Is(runErr, context.Canceled) {
			slog.Error("job run failed", "job", jobID, "error", runErr)
		}

		// The store write must survive job cancellation; the terminal result
		// stays retrievable even when the run itself was cancelled.
		if err := m.store.Put(context.WithoutCancel(ctx), res); err != nil {
			slog.Error("store job result", "job", jobID, "error", err)
		}

		m.mu.Lock()
		delete(m.running, jobID)
		m.mu.Unlock()
	}()

	return jobID, nil
}

// Cancel requests cooperative cancellation of a running job. It returns false
// when the job is not currently running; in-flight item calls are allowed to
// finish before the run unwinds.
func (m *Manager) Cancel(jobID string) bool {
	m.mu.Lock()
	job, ok := m.running[jobID]
	m.mu.Unlock()
	if !ok {
		return false
	}
	job.cancel()
	slog.Info("job cancellation requested", "job", jobID, "processor", job.processor)
	return true
}

// Status returns the job's current status: running while it is in the
// running index, otherwise the terminal status recorded in the store.
func (m *Manager) Status(ctx context.Context, jobID string) (batch.Status, error) {
	m.mu.Lock()
	_, ok := m.running[jobID]
	m.mu.Unlock()
	if ok {
		return batch.StatusRunning, nil
	}

	res, err := m.store.Get(ctx, jobID)
	if err != nil {
		return "", err
	}
	return res.Status, nil
}

// Result returns the stored terminal result for a job. While the job is still
// running there is no result yet.
func (m *Manager) Result(ctx context.Context, jobID string) (*batch.Result, error) {
	m.mu.Lock()
	_, ok := m.running[jobID]
	m.mu.Unlock()
	if ok {
		return nil, apperror.New(apperror.Conflict, "job still running: "+jobID)
	}
	return m.store.Get(ctx, jobID)
}

// Close cancels every running job and blocks until all of them have drained
// and stored their terminal results.
func (m *Manager) Close() {
	m.mu.Lock()
	jobs := make([]*runningJob, 0, len(m.running))
	for _, job := range m.running {
		jobs = append(jobs, job)
	}
	m.mu.Unlock()

	for _, job := range jobs {
		job.cancel()
	}
	for _, job := range jobs {
		<-job.done
	}
}
