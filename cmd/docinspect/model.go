// Command docinspect is an interactive terminal viewer over a live
// TextBuffer, its accumulated Patch, and a MarkerIndex tracking ranges
// within it: press tab to switch between a rendered-text view, a change
// list, and a marker list.
package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	ss "github.com/atom/superstring"
	"github.com/atom/superstring/buffer"
	"github.com/atom/superstring/markerindex"
)

type tabKind int

const (
	tabText tabKind = iota
	tabChanges
	tabMarkers
	tabCount
)

func (t tabKind) String() string {
	switch t {
	case tabText:
		return "text"
	case tabChanges:
		return "changes"
	case tabMarkers:
		return "markers"
	default:
		return "?"
	}
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	tabStyle    = lipgloss.NewStyle().Padding(0, 1)
	activeTab   = tabStyle.Foreground(lipgloss.Color("212")).Underline(true)
	footerStyle = lipgloss.NewStyle().Faint(true)
)

// model is the inspector's bubbletea state: the document under
// inspection, its marker index, and which tab is currently visible.
type model struct {
	buf     *buffer.TextBuffer
	markers *markerindex.MarkerIndex
	active  tabKind
	changes table.Model
	marks   table.Model
}

// newModel builds an inspector model over buf and markers.
func newModel(buf *buffer.TextBuffer, markers *markerindex.MarkerIndex) model {
	return model{
		buf:     buf,
		markers: markers,
		active:  tabText,
		changes: newChangesTable(buf),
		marks:   newMarkersTable(markers),
	}
}

func newChangesTable(buf *buffer.TextBuffer) table.Model {
	columns := []table.Column{
		{Title: "old start", Width: 12},
		{Title: "old end", Width: 12},
		{Title: "new start", Width: 12},
		{Title: "new end", Width: 12},
	}
	var rows []table.Row
	for _, c := range buf.Patch().Changes() {
		rows = append(rows, table.Row{
			pointString(c.OldStart), pointString(c.OldEnd),
			pointString(c.NewStart), pointString(c.NewEnd),
		})
	}
	t := table.New(table.WithColumns(columns), table.WithRows(rows), table.WithHeight(10))
	return t
}

func newMarkersTable(idx *markerindex.MarkerIndex) table.Model {
	columns := []table.Column{
		{Title: "id", Width: 8},
		{Title: "start", Width: 12},
		{Title: "end", Width: 12},
		{Title: "exclusive", Width: 10},
	}
	var rows []table.Row
	for id, rng := range idx.Dump() {
		rows = append(rows, table.Row{
			fmt.Sprintf("%d", id), pointString(rng.Start), pointString(rng.End),
			fmt.Sprintf("%v", idx.IsExclusive(id)),
		})
	}
	t := table.New(table.WithColumns(columns), table.WithRows(rows), table.WithHeight(10))
	return t
}

func pointString(p ss.Point) string {
	return fmt.Sprintf("%d:%d", p.Row, p.Column)
}

func (m model) Init() tea.Cmd { return nil }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "tab":
			m.active = (m.active + 1) % tabCount
			return m, nil
		}
	}

	var cmd tea.Cmd
	switch m.active {
	case tabChanges:
		m.changes, cmd = m.changes.Update(msg)
	case tabMarkers:
		m.marks, cmd = m.marks.Update(msg)
	}
	return m, cmd
}

func (m model) View() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("docinspect") + "\n\n")

	for t := tabKind(0); t < tabCount; t++ {
		style := tabStyle
		if t == m.active {
			style = activeTab
		}
		b.WriteString(style.Render(t.String()))
	}
	b.WriteString("\n\n")

	switch m.active {
	case tabText:
		b.WriteString(m.buf.Text().String())
	case tabChanges:
		b.WriteString(m.changes.View())
	case tabMarkers:
		b.WriteString(m.marks.View())
	}

	b.WriteString("\n\n" + footerStyle.Render("tab: switch view  q: quit"))
	return b.String()
}
