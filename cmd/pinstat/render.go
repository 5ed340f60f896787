package main

import (
	"fmt"
	"iter"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/wippyai/pinbridge"
	"github.com/wippyai/pinbridge/trace"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	idStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#87CEEB"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1)

	cellStyle = lipgloss.NewStyle().
			Padding(0, 1)
)

// renderTable draws identity/count pairs as a bordered table.
func renderTable(title string, entries iter.Seq2[pinbridge.Identity, int]) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("IDENTITY", "COUNT").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})

	n := 0
	for id, count := range entries {
		t.Row(idStyle.Render(id.String()), strconv.Itoa(count))
		n++
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("%s (%d)", title, n)))
	b.WriteString("\n")
	if n == 0 {
		b.WriteString(helpStyle.Render("empty"))
		return b.String()
	}
	b.WriteString(t.Render())
	return b.String()
}

// renderReport summarizes one replay.
func renderReport(path string, rep *trace.Report) string {
	var b strings.Builder

	name := rep.Script
	if name == "" {
		name = path
	}
	b.WriteString(titleStyle.Render(name))
	fmt.Fprintf(&b, " %d steps", rep.Steps)
	if rep.Collected > 0 {
		fmt.Fprintf(&b, ", %d collected", rep.Collected)
	}
	b.WriteString("\n")

	if !rep.Leaked() {
		b.WriteString(okStyle.Render("no leaks"))
	}
	if len(rep.Open) > 0 {
		b.WriteString(errorStyle.Render("open handles: " + strings.Join(rep.Open, ", ")))
		b.WriteString("\n")
	}
	if len(rep.OpenExternals) > 0 {
		b.WriteString(errorStyle.Render("open externals: " + strings.Join(rep.OpenExternals, ", ")))
		b.WriteString("\n")
	}
	if len(rep.Destroyed) > 0 {
		b.WriteString(helpStyle.Render("destroyed: " + strings.Join(rep.Destroyed, ", ")))
	}
	return strings.TrimRight(b.String(), "\n")
}
