package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/pithecene-io/deliorder/cli/reader"
)

func TestIsTUISupported(t *testing.T) {
	tests := []struct {
		view string
		want bool
	}{
		{"run", true},
		{"overview", true},
		{"history", true},
		{"compose", false},
		{"version", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.view, func(t *testing.T) {
			if got := IsTUISupported(tt.view); got != tt.want {
				t.Errorf("IsTUISupported(%q) = %v, want %v", tt.view, got, tt.want)
			}
		})
	}
}

func TestRun_UnsupportedView(t *testing.T) {
	if err := Run("compose", nil); err == nil {
		t.Error("expected error for unsupported view")
	}
}

func TestRunHistoryTUI_WrongType(t *testing.T) {
	if err := RunHistoryTUI("not items"); err == nil {
		t.Error("expected error for wrong data type")
	}
}

func TestRenderDetailStatic_Run(t *testing.T) {
	view := &reader.RunView{
		ExecutionID:  "exec-1",
		SerialNumber: "123456",
		Status:       "partial",
		Succeeded:    1,
		Rejected:     1,
		Outcomes: []reader.OutcomeItem{
			{Index: 1, Action: "create", State: "succeeded", Message: "report.pdf created"},
			{Index: 2, Action: "delete", State: "rejected", Message: "critical path violation"},
		},
	}

	out := RenderDetailStatic(ViewRun, view)
	for _, want := range []string{"123456", "exec-1", "report.pdf created", "critical path violation", "1 succeeded"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderDetailStatic_Overview(t *testing.T) {
	view := &reader.OverviewView{
		SerialNumber: "654321",
		Remaining:    "-",
		StartPath:    "/home/me/Desktop",
		Orders:       []string{"1. create report.pdf"},
	}
	out := RenderDetailStatic(ViewOverview, view)
	if !strings.Contains(out, "expired") || !strings.Contains(out, "1. create report.pdf") {
		t.Errorf("unexpected overview:\n%s", out)
	}
}

func TestRenderDetailStatic_WrongType(t *testing.T) {
	out := RenderDetailStatic(ViewRun, "nope")
	if !strings.Contains(out, "Invalid data type") {
		t.Errorf("expected invalid type message, got:\n%s", out)
	}
}

func TestDetailModel_Quit(t *testing.T) {
	m := NewDetailModel(ViewRun, &reader.RunView{})
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Error("expected quit command")
	}
	if next.View() != "" {
		t.Error("view should be empty after quitting")
	}
}

func TestHistoryModel(t *testing.T) {
	created := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	m := NewHistoryModel([]reader.HistoryItem{
		{SerialNumber: "222222", State: "live", Orders: 2, CreatedAt: created.Add(time.Hour), Remaining: "20m0s"},
		{SerialNumber: "111111", State: "expired", Orders: 5, CreatedAt: created, Remaining: "-"},
	})

	if got := m.Selected(); got != "222222" {
		t.Errorf("Selected = %q, want first row", got)
	}
	if out := m.View(); !strings.Contains(out, "1 live of 2") || !strings.Contains(out, "111111") {
		t.Errorf("unexpected view:\n%s", out)
	}

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyDown})
	if got := next.(HistoryModel).Selected(); got != "111111" {
		t.Errorf("after down, Selected = %q", got)
	}
}

func TestHistoryModel_Empty(t *testing.T) {
	m := NewHistoryModel(nil)
	if !strings.Contains(m.View(), "(no packages)") {
		t.Errorf("unexpected view:\n%s", m.View())
	}
	if m.Selected() != "" {
		t.Error("empty history has no selection")
	}
}
