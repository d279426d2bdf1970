package tui

import (
	"fmt"
	"slices"
)

// View names accepted by Run.
const (
	ViewRun      = "run"
	ViewOverview = "overview"
	ViewHistory  = "history"
)

// Run starts the TUI for view. Returns an error if the view has no TUI.
func Run(view string, data any) error {
	switch view {
	case ViewRun, ViewOverview:
		return RunDetailTUI(view, data)
	case ViewHistory:
		return RunHistoryTUI(data)
	default:
		return fmt.Errorf("TUI mode is not supported for %s", view)
	}
}

// IsTUISupported returns true if view has a TUI.
func IsTUISupported(view string) bool {
	return slices.Contains(SupportedTUIViews(), view)
}

// SupportedTUIViews returns the views that have a TUI.
func SupportedTUIViews() []string {
	return []string{ViewRun, ViewOverview, ViewHistory}
}
