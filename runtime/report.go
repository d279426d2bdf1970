package runtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pithecene-io/deliorder/metrics"
	"github.com/pithecene-io/deliorder/types"
)

// RunReport is the structured JSON report written by --report.
type RunReport struct {
	ExecutionID  string    `json:"execution_id"`
	SerialNumber string    `json:"serial_number"`
	Author       string    `json:"author,omitempty"`
	Status       RunStatus `json:"status"`
	ExitCode     int       `json:"exit_code"`
	StartedAt    time.Time `json:"started_at"`
	ValidUntil   time.Time `json:"valid_until"`
	DurationMs   int64     `json:"duration_ms"`

	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Rejected  int `json:"rejected"`

	Outcomes []types.ExecutionOutcome `json:"outcomes"`
	Metrics  *metrics.Snapshot        `json:"metrics"`
}

// BuildRunReport composes a RunReport from a RunResult and metrics snapshot.
// The exitCode is the process exit code that will be returned to the caller.
func BuildRunReport(result *RunResult, snap metrics.Snapshot, exitCode int) *RunReport {
	succeeded, failed, rejected := result.Counts()
	report := &RunReport{
		ExecutionID: result.ExecutionID,
		Status:      DetermineStatus(result),
		ExitCode:    exitCode,
		StartedAt:   result.StartedAt,
		DurationMs:  result.Duration.Milliseconds(),
		Succeeded:   succeeded,
		Failed:      failed,
		Rejected:    rejected,
		Outcomes:    result.Outcomes,
		Metrics:     &snap,
	}
	if result.Package != nil {
		report.SerialNumber = result.Package.SerialNumber
		report.Author = result.Package.Author
		report.ValidUntil = result.Package.ValidUntil
	}
	return report
}

// WriteRunReport writes the report as JSON to the specified path.
// If path is "-", writes to stderr.
func WriteRunReport(report *RunReport, path string) error {
	if path == "" {
		return errors.New("report path must not be empty")
	}

	if path == "-" {
		if err := writeRunReportTo(report, os.Stderr); err != nil {
			return fmt.Errorf("failed to write report to stderr: %w", err)
		}
		return nil
	}

	data, err := marshalReport(report)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report to %s: %w", path, err)
	}
	return nil
}

// writeRunReportTo writes report JSON to any writer (for testing).
func writeRunReportTo(report *RunReport, w io.Writer) error {
	data, err := marshalReport(report)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func marshalReport(report *RunReport) ([]byte, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report: %w", err)
	}
	return append(data, '\n'), nil
}
