// Package reader builds the read-side payloads shown by the CLI. Table,
// JSON, YAML and TUI output all render these same values.
package reader

import "time"

// OutcomeItem is one line of a run's outcome list.
type OutcomeItem struct {
	Index   int    `json:"index" yaml:"index"`
	Action  string `json:"action" yaml:"action"`
	State   string `json:"state" yaml:"state"`
	Message string `json:"message" yaml:"message"`
}

// RunView summarizes one package run.
type RunView struct {
	ExecutionID  string        `json:"execution_id" yaml:"execution_id"`
	SerialNumber string        `json:"serial_number" yaml:"serial_number"`
	Author       string        `json:"author" yaml:"author"`
	Status       string        `json:"status" yaml:"status"`
	Succeeded    int           `json:"succeeded" yaml:"succeeded"`
	Failed       int           `json:"failed" yaml:"failed"`
	Rejected     int           `json:"rejected" yaml:"rejected"`
	DurationMs   int64         `json:"duration_ms" yaml:"duration_ms"`
	Outcomes     []OutcomeItem `json:"outcomes" yaml:"outcomes"`
}

// OverviewView is the confirmation summary of a retrieved package.
type OverviewView struct {
	SerialNumber string    `json:"serial_number" yaml:"serial_number"`
	Author       string    `json:"author" yaml:"author"`
	ValidUntil   time.Time `json:"valid_until" yaml:"valid_until"`
	Remaining    string    `json:"remaining" yaml:"remaining"`
	StartPath    string    `json:"start_path" yaml:"start_path"`
	EndPath      string    `json:"end_path" yaml:"end_path"`
	Orders       []string  `json:"orders" yaml:"orders"`
}

// HistoryItem is one previously submitted package.
type HistoryItem struct {
	SerialNumber string    `json:"serial_number" yaml:"serial_number"`
	State        string    `json:"state" yaml:"state"`
	Orders       int       `json:"orders" yaml:"orders"`
	CreatedAt    time.Time `json:"created_at" yaml:"created_at"`
	ValidUntil   time.Time `json:"valid_until" yaml:"valid_until"`
	Remaining    string    `json:"remaining" yaml:"remaining"`
}

// LedgerItem is one recorded outcome of an earlier run.
type LedgerItem struct {
	Ts          string `json:"ts" yaml:"ts"`
	ExecutionID string `json:"execution_id" yaml:"execution_id"`
	Index       int    `json:"index" yaml:"index"`
	Action      string `json:"action" yaml:"action"`
	State       string `json:"state" yaml:"state"`
	Message     string `json:"message" yaml:"message"`
}

// SubmitView is the result of composing a package. SerialNumber and
// DeepLink are empty for a dry run.
type SubmitView struct {
	SerialNumber string    `json:"serial_number" yaml:"serial_number"`
	DeepLink     string    `json:"deep_link" yaml:"deep_link"`
	Author       string    `json:"author" yaml:"author"`
	CreatedAt    time.Time `json:"created_at" yaml:"created_at"`
	ValidUntil   time.Time `json:"valid_until" yaml:"valid_until"`
	Orders       []string  `json:"orders" yaml:"orders"`
}

// PathCheckItem is the guard verdict for one path.
type PathCheckItem struct {
	Path      string `json:"path" yaml:"path"`
	Protected bool   `json:"protected" yaml:"protected"`
	Entry     string `json:"entry" yaml:"entry"`
}

// OrderCheckItem is the verdict for one record of an orders file.
type OrderCheckItem struct {
	Index  int    `json:"index" yaml:"index"`
	Action string `json:"action" yaml:"action"`
	Target string `json:"target" yaml:"target"`
	Valid  bool   `json:"valid" yaml:"valid"`
	Error  string `json:"error" yaml:"error"`
}
