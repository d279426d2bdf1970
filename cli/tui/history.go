package tui

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/pithecene-io/deliorder/cli/reader"
)

// HistoryModel lists submitted packages in a scrollable table.
type HistoryModel struct {
	items    []reader.HistoryItem
	table    table.Model
	quitting bool
}

var historyColumns = []table.Column{
	{Title: "Serial", Width: 10},
	{Title: "State", Width: 8},
	{Title: "Orders", Width: 6},
	{Title: "Created", Width: 19},
	{Title: "Remaining", Width: 10},
}

// NewHistoryModel creates a history model over items.
func NewHistoryModel(items []reader.HistoryItem) HistoryModel {
	rows := make([]table.Row, 0, len(items))
	for _, it := range items {
		rows = append(rows, table.Row{
			it.SerialNumber,
			it.State,
			strconv.Itoa(it.Orders),
			it.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			it.Remaining,
		})
	}

	t := table.New(
		table.WithColumns(historyColumns),
		table.WithRows(rows),
		table.WithFocused(true),
		table.WithHeight(min(len(rows)+2, 15)),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.Foreground(primaryColor).Bold(true)
	styles.Selected = SelectedStyle
	t.SetStyles(styles)

	return HistoryModel{items: items, table: t}
}

// Init implements tea.Model.
func (m HistoryModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m HistoryModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok && key.Matches(msg, keys.Quit) {
		m.quitting = true
		return m, tea.Quit
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// View implements tea.Model.
func (m HistoryModel) View() string {
	if m.quitting {
		return ""
	}
	if len(m.items) == 0 {
		return TitleStyle.Render("Package History") + "\n" +
			ValueStyle.Render("(no packages)") + "\n" +
			HelpStyle.Render("Press q or Ctrl+C to quit")
	}

	live := 0
	for _, it := range m.items {
		if it.State == "live" {
			live++
		}
	}
	title := TitleStyle.Render(fmt.Sprintf("Package History (%d live of %d)", live, len(m.items)))
	help := HelpStyle.Render("↑/↓ to scroll, q to quit")
	return title + "\n" + BoxStyle.Render(m.table.View()) + "\n" + help
}

// Selected returns the serial number under the cursor, or "".
func (m HistoryModel) Selected() string {
	if row := m.table.SelectedRow(); row != nil {
		return row[0]
	}
	return ""
}

// RunHistoryTUI runs the history TUI.
func RunHistoryTUI(data any) error {
	items, ok := data.([]reader.HistoryItem)
	if !ok {
		return fmt.Errorf("invalid data type for history: %T", data)
	}
	p := tea.NewProgram(NewHistoryModel(items), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
