package manager

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/batchline/batchline/internal/apperror"
	"github.com/batchline/batchline/internal/batch"
)

type mockStore struct {
	mu      sync.Mutex
	results map[string]batch.Result
}

func newMockStore() *mockStore {
	return &mockStore{results: make(map[string]batch.Result)}
}

func (m *mockStore) Put(_ context.Context, res *batch.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[res.BatchID] = *res
	return nil
}

func (m *mockStore) Get(_ context.Context, batchID string) (*batch.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res, ok := m.results[batchID]
	if !ok {
		return nil, apperror.New(apperror.NotFound, "result not found")
	}
	cp := res
	return &cp, nil
}

func quickConfig() batch.Config {
	cfg := batch.DefaultConfig()
	cfg.BatchSize = 5
	cfg.MaxConcurrentBatches = 2
	return cfg
}

func newTestManager(t *testing.T) (*Manager, *mockStore) {
	t.Helper()
	registry := NewRegistry()
	if err := registry.Register("test", quickConfig()); err != nil {
		t.Fatalf("register: %v", err)
	}
	store := newMockStore()
	return New(context.Background(), registry, store), store
}

// waitForTerminal polls until the job's status is terminal.
func waitForTerminal(t *testing.T, m *Manager, jobID string) batch.Status {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		status, err := m.Status(context.Background(), jobID)
		if err == nil && status.Terminal() {
			return status
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for job %s to finish (status %s, err %v)", jobID, status, err)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func items(n int) batch.Source[int] {
	s := make([]int, n)
	for i := range s {
		s[i] = i
	}
	return batch.FromSlice(s)
}

func noop(_ context.Context, _ int) error { return nil }

func TestSubmit_RunsToCompletionAndStoresResult(t *testing.T) {
	m, _ := newTestManager(t)

	jobID, err := Submit(m, "test", items(23), noop)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if jobID == "" {
		t.Fatal("expected generated job id")
	}

	if status := waitForTerminal(t, m, jobID); status != batch.StatusCompleted {
		t.Errorf("status = %s, want completed", status)
	}

	res, err := m.Result(context.Background(), jobID)
	if err != nil {
		t.Fatalf("result: %v", err)
	}
	if res.Processed != 23 || res.Failed != 0 {
		t.Errorf("processed=%d failed=%d, want 23/0", res.Processed, res.Failed)
	}
}

func TestSubmit_CallerSuppliedJobID(t *testing.T) {
	m, _ := newTestManager(t)

	jobID, err := Submit(m, "test", items(3), noop, WithJobID("job-42"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if jobID != "job-42" {
		t.Errorf("job id = %s, want job-42", jobID)
	}
	waitForTerminal(t, m, jobID)
}

func TestSubmit_GeneratedIDsAreDistinct(t *testing.T) {
	m, _ := newTestManager(t)

	id1, err := Submit(m, "test", items(1), noop)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	id2, err := Submit(m, "test", items(1), noop)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if id1 == id2 {
		t.Errorf("generated ids collide: %s", id1)
	}
	waitForTerminal(t, m, id1)
	waitForTerminal(t, m, id2)
}

func TestSubmit_UnknownProcessor(t *testing.T) {
	m, _ := newTestManager(t)

	_, err := Submit(m, "missing", items(1), noop)
	if !apperror.IsCode(err, apperror.NotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestCancel_TransitionsRunningToCancelled(t *testing.T) {
	m, _ := newTestManager(t)

	started := make(chan struct{})
	var once sync.Once
	slow := func(ctx context.Context, _ int) error {
		once.Do(func() { close(started) })
		select {
		case <-time.After(10 * time.Second):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	jobID, err := Submit(m, "test", items(50), slow)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	<-started

	if status, err := m.Status(context.Background(), jobID); err != nil || status != batch.StatusRunning {
		t.Fatalf("status = %s (%v), want running", status, err)
	}
	if _, err := m.Result(context.Background(), jobID); !apperror.IsCode(err, apperror.Conflict) {
		t.Errorf("expected conflict while running, got %v", err)
	}

	if !m.Cancel(jobID) {
		t.Fatal("cancel returned false for a running job")
	}

	if status := waitForTerminal(t, m, jobID); status != batch.StatusCancelled {
		t.Errorf("status = %s, want cancelled", status)
	}

	res, err := m.Result(context.Background(), jobID)
	if err != nil {
		t.Fatalf("result: %v", err)
	}
	if res.Processed != res.Succeeded+res.Failed {
		t.Errorf("counter invariant broken: %d != %d+%d", res.Processed, res.Succeeded, res.Failed)
	}
}

func TestCancel_NotRunning(t *testing.T) {
	m, _ := newTestManager(t)

	if m.Cancel("unknown") {
		t.Error("cancel returned true for unknown job")
	}

	jobID, err := Submit(m, "test", items(1), noop)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitForTerminal(t, m, jobID)

	if m.Cancel(jobID) {
		t.Error("cancel returned true for a finished job")
	}
}

func TestStatus_UnknownJob(t *testing.T) {
	m, _ := newTestManager(t)

	_, err := m.Status(context.Background(), "unknown")
	if !apperror.IsCode(err, apperror.NotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestClose_DrainsRunningJobs(t *testing.T) {
	m, store := newTestManager(t)

	slow := func(ctx context.Context, _ int) error {
		select {
		case <-time.After(10 * time.Second):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	jobID, err := Submit(m, "test", items(20), slow)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	done := make(chan struct{})
	go func() {
		m.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("close did not drain running jobs")
	}

	res, err := store.Get(context.Background(), jobID)
	if err != nil {
		t.Fatalf("terminal result not stored after close: %v", err)
	}
	if res.Status != batch.StatusCancelled {
		t.Errorf("status = %s, want cancelled", res.Status)
	}
}
