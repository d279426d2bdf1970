// Package adapter publishes package-executed notifications to downstream
// systems. Publishing is best effort: a failed notification is logged and
// counted but never changes an execution outcome.
package adapter

import (
	"context"
	"fmt"
	"time"

	"github.com/pithecene-io/deliorder/log"
	"github.com/pithecene-io/deliorder/metrics"
	"github.com/pithecene-io/deliorder/runtime"
	"github.com/pithecene-io/deliorder/types"
)

// EventVersion is the payload schema version.
const EventVersion = "1"

// EventTypePackageExecuted is the only event type published.
const EventTypePackageExecuted = "package_executed"

// OrderSummary is one order's result inside an event.
type OrderSummary struct {
	Index   int              `json:"index"`
	Action  types.Action     `json:"action"`
	State   types.OrderState `json:"state"`
	Message string           `json:"message"`
}

// PackageExecutedEvent is the payload published after a package runs.
type PackageExecutedEvent struct {
	Version      string            `json:"version"`
	EventType    string            `json:"event_type"` // always "package_executed"
	ExecutionID  string            `json:"execution_id"`
	SerialNumber string            `json:"serial_number"`
	Author       string            `json:"author,omitempty"`
	Status       runtime.RunStatus `json:"status"`
	Platform     string            `json:"platform"`
	Succeeded    int               `json:"succeeded"`
	Failed       int               `json:"failed"`
	Rejected     int               `json:"rejected"`
	Orders       []OrderSummary    `json:"orders"`
	Timestamp    string            `json:"timestamp"` // RFC 3339, run start
	DurationMs   int64             `json:"duration_ms"`
}

// NewPackageExecutedEvent summarizes a finished run.
func NewPackageExecutedEvent(result *runtime.RunResult, platform string) *PackageExecutedEvent {
	succeeded, failed, rejected := result.Counts()
	ev := &PackageExecutedEvent{
		Version:     EventVersion,
		EventType:   EventTypePackageExecuted,
		ExecutionID: result.ExecutionID,
		Status:      runtime.DetermineStatus(result),
		Platform:    platform,
		Succeeded:   succeeded,
		Failed:      failed,
		Rejected:    rejected,
		Orders:      make([]OrderSummary, 0, len(result.Outcomes)),
		Timestamp:   result.StartedAt.UTC().Format(time.RFC3339),
		DurationMs:  result.Duration.Milliseconds(),
	}
	if result.Package != nil {
		ev.SerialNumber = result.Package.SerialNumber
		ev.Author = result.Package.Author
	}
	for _, o := range result.Outcomes {
		ev.Orders = append(ev.Orders, OrderSummary{
			Index:   o.OrderIndex,
			Action:  o.Action,
			State:   o.State,
			Message: o.Message,
		})
	}
	return ev
}

// Adapter publishes package-executed events to a downstream system.
type Adapter interface {
	// Publish sends one event. Must respect context cancellation.
	Publish(ctx context.Context, event *PackageExecutedEvent) error

	// Close releases adapter resources.
	Close() error
}

// Notify publishes event through a, logging and counting the result.
// It never returns an error.
func Notify(ctx context.Context, a Adapter, event *PackageExecutedEvent, logger *log.Logger, collector *metrics.Collector) {
	if a == nil {
		return
	}
	if logger == nil {
		logger = log.Nop()
	}
	if err := a.Publish(ctx, event); err != nil {
		collector.IncNotifyFailure()
		logger.Warn("notification failed", map[string]any{
			"execution_id": event.ExecutionID,
			"error":        err.Error(),
		})
		return
	}
	collector.IncNotifySuccess()
	logger.Debug("notification sent", map[string]any{"execution_id": event.ExecutionID})
}

// Backoff returns the wait before retry attempt i (i >= 1):
// 500ms, 1s, 2s, ...
func Backoff(i int) time.Duration {
	return time.Duration(1<<uint(i-1)) * 500 * time.Millisecond
}

// Retry calls fn up to 1+retries times with Backoff between attempts.
// It stops early when ctx ends or permanent reports err as non-retriable.
func Retry(ctx context.Context, name string, retries int, fn func(context.Context) error, permanent func(error) bool) error {
	var lastErr error
	attempts := 1 + retries

	for i := range attempts {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: context canceled: %w", name, err)
		}

		if i > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%s: context canceled during backoff: %w", name, ctx.Err())
			case <-time.After(Backoff(i)):
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if permanent != nil && permanent(lastErr) {
			return fmt.Errorf("%s: non-retriable error: %w", name, lastErr)
		}
	}

	return fmt.Errorf("%s: failed after %d attempts: %w", name, attempts, lastErr)
}
