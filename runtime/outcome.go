package runtime

import (
	"errors"

	"github.com/pithecene-io/deliorder/types"
)

// Exit codes for commands that run packages.
const (
	ExitCodeCompleted    = 0 // every order succeeded
	ExitCodeOrderFailed  = 1 // at least one order failed or was rejected
	ExitCodeRegistry     = 2 // package expired, not found, or auth failed
	ExitCodeInvalidInput = 3 // invalid arguments, orders, or config
)

// RunStatus summarizes a run for reports and notifications.
type RunStatus string

// Run statuses.
const (
	StatusCompleted RunStatus = "completed"
	StatusPartial   RunStatus = "partial"
	StatusFailed    RunStatus = "failed"
	StatusAborted   RunStatus = "aborted"
)

// DetermineStatus classifies a finished run. A nil result means the run
// never started.
func DetermineStatus(result *RunResult) RunStatus {
	if result == nil {
		return StatusAborted
	}
	succeeded, _, _ := result.Counts()
	switch {
	case succeeded == len(result.Outcomes):
		return StatusCompleted
	case succeeded == 0:
		return StatusFailed
	default:
		return StatusPartial
	}
}

// ExitCodeFor maps a run result or retrieval error onto a process exit code.
//
//   - registry errors (expired, not found, auth): 2
//   - any other error before the run: 3
//   - run with a failed or rejected order: 1
//   - clean run: 0
func ExitCodeFor(result *RunResult, err error) int {
	if err != nil {
		var regErr *types.RegistryError
		if errors.As(err, &regErr) || errors.Is(err, types.ErrAuthExpired) {
			return ExitCodeRegistry
		}
		return ExitCodeInvalidInput
	}
	if result == nil || !result.AllSucceeded() {
		return ExitCodeOrderFailed
	}
	return ExitCodeCompleted
}
