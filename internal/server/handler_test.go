package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/batchline/batchline/internal/batch"
	"github.com/batchline/batchline/internal/manager"
	"github.com/batchline/batchline/internal/repository/result"
)

func setupServer(t *testing.T) *httptest.Server {
	t.Helper()

	registry := manager.NewRegistry()
	cfg := batch.DefaultConfig()
	cfg.BatchSize = 5
	cfg.MaxConcurrentBatches = 2
	if err := registry.Register("default", cfg); err != nil {
		t.Fatalf("register: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	mgr := manager.New(ctx, registry, result.NewMemoryStore(time.Hour))
	t.Cleanup(func() {
		cancel()
		mgr.Close()
	})

	handlers := map[string]ItemHandler{
		"ok": func(_ context.Context, _ string) error { return nil },
		"flaky": func(_ context.Context, item string) error {
			if len(item) > 0 && item[len(item)-1] == '!' {
				return errors.New("rejected")
			}
			return nil
		},
		"slow": func(ctx context.Context, _ string) error {
			select {
			case <-time.After(10 * time.Second):
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	}

	ts := httptest.NewServer(NewHandler(mgr, handlers))
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	buf, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(buf)) //nolint:gosec // test URL
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	return resp
}

func decodeData[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	var envelope struct {
		Data T `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return envelope.Data
}

func submitItems(t *testing.T, ts *httptest.Server, handler string, items []string) string {
	t.Helper()
	resp := postJSON(t, ts.URL+"/api/v1/jobs", map[string]any{
		"processor": "default",
		"handler":   handler,
		"items":     items,
	})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("submit status = %d, want 202", resp.StatusCode)
	}
	data := decodeData[struct {
		JobID string `json:"jobId"`
	}](t, resp)
	if data.JobID == "" {
		t.Fatal("no job id returned")
	}
	return data.JobID
}

func waitTerminal(t *testing.T, ts *httptest.Server, jobID string) batch.Status {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		resp, err := http.Get(fmt.Sprintf("%s/api/v1/jobs/%s", ts.URL, jobID)) //nolint:gosec // test URL
		if err != nil {
			t.Fatalf("get status: %v", err)
		}
		data := decodeData[struct {
			Status batch.Status `json:"status"`
		}](t, resp)
		if data.Status.Terminal() {
			return data.Status
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for job %s (status %s)", jobID, data.Status)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestHealth(t *testing.T) {
	ts := setupServer(t)

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestSubmitJob_RunsToCompletion(t *testing.T) {
	ts := setupServer(t)

	items := make([]string, 20)
	for i := range items {
		items[i] = fmt.Sprintf("item-%d", i)
	}
	jobID := submitItems(t, ts, "ok", items)

	if status := waitTerminal(t, ts, jobID); status != batch.StatusCompleted {
		t.Errorf("status = %s, want completed", status)
	}

	resp, err := http.Get(fmt.Sprintf("%s/api/v1/jobs/%s/result", ts.URL, jobID)) //nolint:gosec // test URL
	if err != nil {
		t.Fatalf("get result: %v", err)
	}
	res := decodeData[batch.Result](t, resp)
	if res.Processed != 20 || res.Failed != 0 {
		t.Errorf("processed=%d failed=%d, want 20/0", res.Processed, res.Failed)
	}
}

func TestSubmitJob_FailuresRecorded(t *testing.T) {
	ts := setupServer(t)

	// Items ending in "!" fail; 5 of 10 is far past the default 10% budget.
	items := []string{"a", "b!", "c", "d!", "e", "f!", "g", "h!", "i", "j!"}
	jobID := submitItems(t, ts, "flaky", items)

	if status := waitTerminal(t, ts, jobID); status != batch.StatusFailed {
		t.Errorf("status = %s, want failed over error budget", status)
	}

	resp, err := http.Get(fmt.Sprintf("%s/api/v1/jobs/%s/result?format=csv", ts.URL, jobID)) //nolint:gosec // test URL
	if err != nil {
		t.Fatalf("get csv: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if got := resp.Header.Get("Content-Type"); got != "text/csv" {
		t.Errorf("content type = %s, want text/csv", got)
	}
}

func TestSubmitJob_Validation(t *testing.T) {
	ts := setupServer(t)

	resp := postJSON(t, ts.URL+"/api/v1/jobs", map[string]any{"handler": "ok"})
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing processor: status = %d, want 400", resp.StatusCode)
	}

	resp = postJSON(t, ts.URL+"/api/v1/jobs", map[string]any{
		"processor": "default", "handler": "nope", "items": []string{"a"},
	})
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("unknown handler: status = %d, want 400", resp.StatusCode)
	}

	resp = postJSON(t, ts.URL+"/api/v1/jobs", map[string]any{
		"processor": "nope", "handler": "ok", "items": []string{"a"},
	})
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown processor: status = %d, want 404", resp.StatusCode)
	}
}

func TestCancelJob(t *testing.T) {
	ts := setupServer(t)

	jobID := submitItems(t, ts, "slow", []string{"a", "b", "c"})

	resp, err := http.Post(fmt.Sprintf("%s/api/v1/jobs/%s/cancel", ts.URL, jobID), "", nil) //nolint:gosec // test URL
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("cancel status = %d, want 200", resp.StatusCode)
	}

	if status := waitTerminal(t, ts, jobID); status != batch.StatusCancelled {
		t.Errorf("status = %s, want cancelled", status)
	}

	// Cancelling again: the job is no longer running.
	resp, err = http.Post(fmt.Sprintf("%s/api/v1/jobs/%s/cancel", ts.URL, jobID), "", nil) //nolint:gosec // test URL
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("second cancel status = %d, want 404", resp.StatusCode)
	}
}

func TestGetJobStatus_Unknown(t *testing.T) {
	ts := setupServer(t)

	resp, err := http.Get(ts.URL + "/api/v1/jobs/unknown")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestListProcessors(t *testing.T) {
	ts := setupServer(t)

	resp, err := http.Get(ts.URL + "/api/v1/processors")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	names := decodeData[[]string](t, resp)
	if len(names) != 1 || names[0] != "default" {
		t.Errorf("processors = %v, want [default]", names)
	}
}
