package adapter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pithecene-io/deliorder/metrics"
	"github.com/pithecene-io/deliorder/runtime"
	"github.com/pithecene-io/deliorder/types"
)

func testResult() *runtime.RunResult {
	started := time.Date(2026, 5, 1, 9, 1, 0, 0, time.UTC)
	return &runtime.RunResult{
		ExecutionID: "exec-001",
		Package:     &types.Package{SerialNumber: "123456", Author: "alice"},
		StartedAt:   started,
		Duration:    1500 * time.Millisecond,
		Outcomes: []types.ExecutionOutcome{
			{OrderIndex: 0, Action: types.ActionCreate, Succeeded: true, State: types.OrderSucceeded, Message: "a.txt created"},
			{OrderIndex: 1, Action: types.ActionDelete, State: types.OrderRejected, Message: "critical path violation"},
		},
	}
}

func TestNewPackageExecutedEvent(t *testing.T) {
	ev := NewPackageExecutedEvent(testResult(), "darwin")

	if ev.EventType != EventTypePackageExecuted || ev.Version != EventVersion {
		t.Errorf("header = %q/%q", ev.EventType, ev.Version)
	}
	if ev.SerialNumber != "123456" || ev.Author != "alice" || ev.Platform != "darwin" {
		t.Errorf("identity = %+v", ev)
	}
	if ev.Status != runtime.StatusPartial {
		t.Errorf("Status = %q, want partial", ev.Status)
	}
	if ev.Succeeded != 1 || ev.Rejected != 1 || ev.Failed != 0 {
		t.Errorf("counts = %d/%d/%d", ev.Succeeded, ev.Failed, ev.Rejected)
	}
	if len(ev.Orders) != 2 || ev.Orders[1].State != types.OrderRejected {
		t.Errorf("Orders = %+v", ev.Orders)
	}
	if ev.Timestamp != "2026-05-01T09:01:00Z" || ev.DurationMs != 1500 {
		t.Errorf("Timestamp/DurationMs = %q/%d", ev.Timestamp, ev.DurationMs)
	}
}

type fakeAdapter struct {
	err       error
	published []*PackageExecutedEvent
}

func (f *fakeAdapter) Publish(_ context.Context, ev *PackageExecutedEvent) error {
	f.published = append(f.published, ev)
	return f.err
}

func (f *fakeAdapter) Close() error { return nil }

func TestNotify(t *testing.T) {
	collector := metrics.NewCollector("memory", "linux")
	ev := NewPackageExecutedEvent(testResult(), "linux")

	ok := &fakeAdapter{}
	Notify(t.Context(), ok, ev, nil, collector)
	failing := &fakeAdapter{err: errors.New("boom")}
	Notify(t.Context(), failing, ev, nil, collector)
	Notify(t.Context(), nil, ev, nil, collector)

	if len(ok.published) != 1 || len(failing.published) != 1 {
		t.Errorf("published = %d, %d", len(ok.published), len(failing.published))
	}
	snap := collector.Snapshot()
	if snap.NotifySuccess != 1 || snap.NotifyFailure != 1 {
		t.Errorf("notify counters = %d/%d", snap.NotifySuccess, snap.NotifyFailure)
	}
}

func TestBackoff(t *testing.T) {
	want := []time.Duration{500 * time.Millisecond, time.Second, 2 * time.Second}
	for i, w := range want {
		if got := Backoff(i + 1); got != w {
			t.Errorf("Backoff(%d) = %v, want %v", i+1, got, w)
		}
	}
}

func TestRetry_PermanentStopsEarly(t *testing.T) {
	errPermanent := errors.New("permanent")
	calls := 0
	err := Retry(t.Context(), "test", 3, func(context.Context) error {
		calls++
		return errPermanent
	}, func(err error) bool { return errors.Is(err, errPermanent) })

	if !errors.Is(err, errPermanent) {
		t.Errorf("Retry = %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetry_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	calls := 0
	err := Retry(ctx, "test", 3, func(context.Context) error {
		calls++
		return nil
	}, nil)
	if err == nil || calls != 0 {
		t.Errorf("Retry = %v after %d calls, want cancellation before any call", err, calls)
	}
}
