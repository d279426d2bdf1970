package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/deliorder/cli/reader"
)

// DetailModel shows one run or one package overview.
type DetailModel struct {
	view     string
	data     any
	width    int
	height   int
	quitting bool
}

// NewDetailModel creates a new detail model.
func NewDetailModel(view string, data any) DetailModel {
	return DetailModel{view: view, data: data}
}

// Init implements tea.Model.
func (m DetailModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m DetailModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
	}

	return m, nil
}

// View implements tea.Model.
func (m DetailModel) View() string {
	if m.quitting {
		return ""
	}

	var content string
	switch m.view {
	case ViewRun:
		content = m.renderRun()
	case ViewOverview:
		content = m.renderOverview()
	default:
		content = fmt.Sprintf("Unknown view: %s", m.view)
	}

	help := HelpStyle.Render("Press q or Ctrl+C to quit")
	return content + "\n" + help
}

func (m DetailModel) renderRun() string {
	data, ok := m.data.(*reader.RunView)
	if !ok {
		return "Invalid data type for run"
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Package " + data.SerialNumber))
	b.WriteString("\n\n")

	writeRow(&b, "Execution", ValueStyle.Render(data.ExecutionID))
	writeRow(&b, "Author", ValueStyle.Render(data.Author))
	writeRow(&b, "Status", StateStyle(data.Status).Render(data.Status))
	writeRow(&b, "Orders", ValueStyle.Render(fmt.Sprintf("%d succeeded, %d failed, %d rejected",
		data.Succeeded, data.Failed, data.Rejected)))
	writeRow(&b, "Duration", ValueStyle.Render(fmt.Sprintf("%dms", data.DurationMs)))

	b.WriteString("\n")
	for _, o := range data.Outcomes {
		marker := SuccessStyle.Render("✓")
		if o.State != "succeeded" {
			marker = StateStyle(o.State).Render("✗")
		}
		b.WriteString(fmt.Sprintf("%s %d. %-10s %s\n",
			marker, o.Index, o.Action, StateStyle(o.State).Render(o.Message)))
	}

	return BoxStyle.Render(b.String())
}

func (m DetailModel) renderOverview() string {
	data, ok := m.data.(*reader.OverviewView)
	if !ok {
		return "Invalid data type for overview"
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Package " + data.SerialNumber))
	b.WriteString("\n\n")

	writeRow(&b, "Author", ValueStyle.Render(data.Author))
	remaining := ValueStyle.Render(data.Remaining)
	if data.Remaining == "-" {
		remaining = StateStyle("expired").Render("expired")
	}
	writeRow(&b, "Remaining", remaining)
	writeRow(&b, "Starts in", ValueStyle.Render(data.StartPath))
	writeRow(&b, "Ends in", ValueStyle.Render(data.EndPath))

	b.WriteString("\n")
	for _, line := range data.Orders {
		b.WriteString(ValueStyle.Render(line))
		b.WriteString("\n")
	}

	return BoxStyle.Render(b.String())
}

func writeRow(b *strings.Builder, label, value string) {
	b.WriteString(fmt.Sprintf("%s %s\n", LabelStyle.Render(label+":"), value))
}

// keyMap defines key bindings.
type keyMap struct {
	Quit key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c", "esc"),
		key.WithHelp("q", "quit"),
	),
}

// RunDetailTUI runs the detail TUI.
func RunDetailTUI(view string, data any) error {
	p := tea.NewProgram(NewDetailModel(view, data), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// RenderDetailStatic renders a detail view without starting the TUI.
func RenderDetailStatic(view string, data any) string {
	model := NewDetailModel(view, data)
	model.width = 80
	model.height = 24
	return lipgloss.NewStyle().Padding(1, 2).Render(model.View())
}
