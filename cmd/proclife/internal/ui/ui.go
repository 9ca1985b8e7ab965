// Package ui renders the scenario catalog and run summaries for proclife
package ui

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jrepp/proclife/pkg/process"
)

const columnGap = " │ "

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	plainStyle  = lipgloss.NewStyle()
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	raceStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
)

// outcome classifies how a child terminated
type outcome int

const (
	outcomeClean outcome = iota
	outcomeFailed
	outcomeSignaled
)

var outcomeStyles = map[outcome]lipgloss.Style{
	outcomeClean:    lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true),
	outcomeFailed:   lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
	outcomeSignaled: lipgloss.NewStyle().Foreground(lipgloss.Color("13")).Bold(true),
}

func outcomeOf(s process.ExitStatus) outcome {
	switch {
	case s.Success():
		return outcomeClean
	case s.Signaled:
		return outcomeSignaled
	default:
		return outcomeFailed
	}
}

// UI writes CLI output. Scenario output owns stdout while a scenario runs,
// so run summaries go to whichever writer the caller picks.
type UI struct {
	out io.Writer
	err io.Writer
}

// NewUI creates a new UI instance. Nil writers default to stdout and stderr.
func NewUI(out, err io.Writer) *UI {
	if out == nil {
		out = os.Stdout
	}
	if err == nil {
		err = os.Stderr
	}
	return &UI{out: out, err: err}
}

// Error prints a failure to the error writer
func (ui *UI) Error(msg string) {
	fmt.Fprintln(ui.err, errorStyle.Render("✗ "+msg))
}

// CatalogEntry is one scenario in the list
type CatalogEntry struct {
	Name          string
	Deterministic bool
	Description   string
}

// Catalog prints one row per scenario. Race scenarios are highlighted.
func (ui *UI) Catalog(entries []CatalogEntry) {
	g := newGrid("SCENARIO", "ORDER", "DESCRIPTION")
	for _, e := range entries {
		order := cell{text: "deterministic", style: plainStyle}
		if !e.Deterministic {
			order = cell{text: "race", style: raceStyle}
		}
		g.add(cell{text: e.Name, style: plainStyle}, order, cell{text: e.Description, style: mutedStyle})
	}
	g.render(ui.out)
}

// Summary describes one finished scenario run
type Summary struct {
	Scenario string
	RunID    string
	Reports  []process.ExitReport
}

// Failed counts children that did not exit with status 0
func (s Summary) Failed() int {
	n := 0
	for _, r := range s.Reports {
		if outcomeOf(r.Status) != outcomeClean {
			n++
		}
	}
	return n
}

// RunSummary prints the reaped children, each status colored by how the
// child terminated, followed by a verdict line.
func (ui *UI) RunSummary(s Summary) {
	fmt.Fprintln(ui.out)
	fmt.Fprintln(ui.out, headerStyle.Render("Scenario "+s.Scenario))
	fmt.Fprintf(ui.out, "  %s: %s\n", mutedStyle.Render("run id"), s.RunID)

	g := newGrid("ENTRY", "PID", "STATUS", "LIFETIME")
	for _, r := range s.Reports {
		g.add(
			cell{text: r.Entry, style: plainStyle},
			cell{text: strconv.Itoa(r.Handle.Pid()), style: plainStyle},
			cell{text: r.Status.String(), style: outcomeStyles[outcomeOf(r.Status)]},
			cell{text: r.Lifetime.String(), style: mutedStyle},
		)
	}
	g.render(ui.out)

	switch failed := s.Failed(); {
	case len(s.Reports) == 0:
		fmt.Fprintln(ui.out, raceStyle.Render("⚠ no children reaped"))
	case failed > 0:
		fmt.Fprintln(ui.out, outcomeStyles[outcomeFailed].Render(
			fmt.Sprintf("⚠ %d of %d children did not exit cleanly", failed, len(s.Reports))))
	default:
		fmt.Fprintln(ui.out, outcomeStyles[outcomeClean].Render(
			fmt.Sprintf("✓ %d children reaped", len(s.Reports))))
	}
}

type cell struct {
	text  string
	style lipgloss.Style
}

// grid lays out cells in padded columns. Widths come from the unstyled text.
type grid struct {
	headers []string
	rows    [][]cell
}

func newGrid(headers ...string) *grid {
	return &grid{headers: headers}
}

func (g *grid) add(cells ...cell) {
	g.rows = append(g.rows, cells)
}

func (g *grid) widths() []int {
	widths := make([]int, len(g.headers))
	for i, h := range g.headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range g.rows {
		for i, c := range row {
			if i < len(widths) {
				widths[i] = max(widths[i], lipgloss.Width(c.text))
			}
		}
	}
	return widths
}

func (g *grid) render(w io.Writer) {
	if len(g.headers) == 0 {
		return
	}
	widths := g.widths()

	parts := make([]string, len(g.headers))
	for i, h := range g.headers {
		parts[i] = padRight(h, widths[i])
	}
	fmt.Fprintln(w, headerStyle.Render(strings.Join(parts, columnGap)))

	for i, width := range widths {
		parts[i] = strings.Repeat("─", width)
	}
	fmt.Fprintln(w, mutedStyle.Render(strings.Join(parts, "─┼─")))

	for _, row := range g.rows {
		for i := range g.headers {
			c := cell{style: plainStyle}
			if i < len(row) {
				c = row[i]
			}
			parts[i] = c.style.Render(padRight(c.text, widths[i]))
		}
		fmt.Fprintln(w, strings.Join(parts, columnGap))
	}
}

func padRight(s string, width int) string {
	if w := lipgloss.Width(s); w < width {
		return s + strings.Repeat(" ", width-w)
	}
	return s
}
