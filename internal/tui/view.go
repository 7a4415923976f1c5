package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/mrz1836/taskpanel/internal/model"
)

// Debug panel geometry: total height including separator and title, and the
// number of log rows inside it.
const (
	debugPanelHeight = 12
	debugPanelRows   = debugPanelHeight - 2

	// minMainHeight is the smallest main area that still makes sense; the
	// debug panel is suppressed below it.
	minMainHeight = 10

	infoColWidth    = 20
	minStepColWidth = 10
)

// View renders the dashboard from the last refreshed snapshot.
func (d *Dashboard) View() string {
	if d.quitting {
		return "Quitting: cleaning up and saving state...\n"
	}

	var b strings.Builder

	debugActive := d.debugVisible && d.height >= minMainHeight+debugPanelHeight
	warning := ""
	if d.debugVisible && !debugActive {
		warning = " (debug hidden: terminal too small)"
	}

	b.WriteString(headerStyle.Render(padRight(" "+d.cfg.Title, d.width)))
	b.WriteString("\n")
	b.WriteString(helpStyle.Render(truncate(helpLine+warning, d.width)))
	b.WriteString("\n")

	if len(d.snap.Tasks) == 0 {
		b.WriteString("\nNo tasks loaded.\n")
		return b.String()
	}

	d.renderTable(&b)
	d.renderOutputPanel(&b)
	if debugActive {
		d.renderDebugPanel(&b)
	}

	return b.String()
}

// renderTable paints the task table: header row plus one row per visible
// task.
func (d *Dashboard) renderTable(b *strings.Builder) {
	nameW := d.nameColWidth()
	stepW := d.stepColWidth()

	// Header row.
	b.WriteString(taskNameStyle.Render(padRight("TaskName", nameW)))
	b.WriteString("  ")
	b.WriteString(center("Info", infoColWidth))
	b.WriteString(" ")
	for _, j := range d.visibleStepCols() {
		b.WriteString(" ")
		b.WriteString(taskNameStyle.Render(center(d.snap.Headers[j], stepW)))
	}
	b.WriteString("\n")

	end := min(d.topRow+d.taskRowsVisible(), len(d.snap.Tasks))
	for i := d.topRow; i < end; i++ {
		task := d.snap.Tasks[i]

		name := padRight(truncate(task.Name, nameW), nameW)
		if i == d.selRow {
			b.WriteString(selectedRowStyle.Render(name))
		} else {
			b.WriteString(name)
		}
		b.WriteString("  ")
		b.WriteString(center(truncate(task.Info, infoColWidth-1), infoColWidth))
		b.WriteString(" ")

		for _, j := range d.visibleStepCols() {
			if j >= len(task.Statuses) {
				break
			}
			b.WriteString(" ")
			cell := center(string(task.Statuses[j]), stepW)
			switch {
			case i == d.selRow && j == d.selCol:
				b.WriteString(selectedCellStyle.Render(cell))
			default:
				b.WriteString(statusStyle(task.Statuses[j]).Render(cell))
			}
		}
		b.WriteString("\n")
	}
}

// renderOutputPanel paints the details of the selected step: a title line
// with the PID, then the tailed output with stream markers.
func (d *Dashboard) renderOutputPanel(b *strings.Builder) {
	b.WriteString(strings.Repeat("─", max(1, d.width)))
	b.WriteString("\n")

	if d.selRow >= len(d.snap.Tasks) || d.selCol < 0 {
		b.WriteString(helpStyle.Render("Select a step to inspect its output."))
		b.WriteString("\n")
		return
	}

	task := d.snap.Tasks[d.selRow]
	header := ""
	if d.selCol < len(d.snap.Headers) {
		header = d.snap.Headers[d.selCol]
	}

	title := panelTitleStyle.Render(fmt.Sprintf("Details for: %s -> %s", task.Name, header))
	pid := "PID: n/a"
	if task.RunningStep == d.selCol && task.PID > 0 {
		pid = fmt.Sprintf("PID: %d (%s)", task.PID, elapsed(task.StartedAt))
	}
	gap := d.width - runewidth.StringWidth(stripTitle(title)) - runewidth.StringWidth(pid) - 1
	if gap < 1 {
		gap = 1
	}
	b.WriteString(title)
	b.WriteString(strings.Repeat(" ", gap))
	b.WriteString(pid)
	b.WriteString("\n")

	rendered := renderOutputLines(d.outLines)
	visible := d.outputRowsVisible()
	start := maxScroll(len(rendered), visible) - d.outScroll
	if start < 0 {
		start = 0
	}
	end := min(start+visible, len(rendered))
	for _, line := range rendered[start:end] {
		b.WriteString(truncate(line, d.width))
		b.WriteString("\n")
	}
}

// renderDebugPanel paints the selected step's debug tail.
func (d *Dashboard) renderDebugPanel(b *strings.Builder) {
	b.WriteString(strings.Repeat("─", max(1, d.width)))
	b.WriteString("\n")

	title := "Debug log (no step selected)"
	if d.selRow < len(d.snap.Tasks) && d.selCol >= 0 && d.selCol < len(d.snap.Headers) {
		title = fmt.Sprintf("Debug log for %s -> %s", d.snap.Tasks[d.selRow].Name, d.snap.Headers[d.selCol])
	}
	b.WriteString(panelTitleStyle.Render(truncate(title, d.width)))
	b.WriteString("\n")

	start := maxScroll(len(d.dbgLines), debugPanelRows) - d.dbgScroll
	if start < 0 {
		start = 0
	}
	end := min(start+debugPanelRows, len(d.dbgLines))
	for _, line := range d.dbgLines[start:end] {
		b.WriteString(truncate(line, d.width))
		b.WriteString("\n")
	}
}

// renderOutputLines flattens tailed lines into display rows, inserting a
// stream marker whenever the stream changes.
func renderOutputLines(lines []model.Line) []string {
	var out []string
	current := ""
	for _, l := range lines {
		if l.Stream != current {
			current = l.Stream
			if current == model.StreamStderr {
				out = append(out, stderrHeaderStyle.Render("[STDERR]"))
			} else {
				out = append(out, stdoutHeaderStyle.Render("[STDOUT]"))
			}
		}
		if l.Stream == model.StreamStderr {
			out = append(out, stderrLineStyle.Render(l.Text))
		} else {
			out = append(out, l.Text)
		}
	}
	return out
}

// Layout helpers.

// nameColWidth is the widest task name, floored at the header label.
func (d *Dashboard) nameColWidth() int {
	w := runewidth.StringWidth("TaskName")
	for _, t := range d.snap.Tasks {
		if n := runewidth.StringWidth(t.Name); n > w {
			w = n
		}
	}
	// Never let one long name eat the whole screen.
	return min(w, max(8, d.width/3))
}

// stepColWidth is the widest step header plus padding, floored at a
// readable minimum.
func (d *Dashboard) stepColWidth() int {
	w := minStepColWidth
	for _, h := range d.snap.Headers {
		if n := runewidth.StringWidth(h) + 2; n > w {
			w = n
		}
	}
	return w
}

// stepColsVisible is how many step columns fit beside the fixed columns.
func (d *Dashboard) stepColsVisible() int {
	avail := d.width - d.nameColWidth() - 2 - infoColWidth - 1
	n := avail / (d.stepColWidth() + 1)
	if n < 1 {
		n = 1
	}
	return n
}

// visibleStepCols returns the indices of the step columns on screen.
func (d *Dashboard) visibleStepCols() []int {
	var cols []int
	count := len(d.snap.Headers)
	for j := d.leftMostStep; j < count && len(cols) < d.stepColsVisible(); j++ {
		cols = append(cols, j)
	}
	return cols
}

// mainAreaHeight is the screen minus the debug panel.
func (d *Dashboard) mainAreaHeight() int {
	if d.debugVisible && d.height >= minMainHeight+debugPanelHeight {
		return d.height - debugPanelHeight
	}
	return d.height
}

// taskRowsVisible splits the main area between the table and the output
// panel: the table gets up to half, never fewer than three rows unless
// the workflow has fewer tasks than that.
func (d *Dashboard) taskRowsVisible() int {
	rows := (d.mainAreaHeight() - 5) / 2
	if rows < 3 {
		rows = 3
	}
	if rows > len(d.snap.Tasks) && len(d.snap.Tasks) > 0 {
		rows = len(d.snap.Tasks)
	}
	return rows
}

// outputRowsVisible is what remains for the output panel under the table.
func (d *Dashboard) outputRowsVisible() int {
	// header(2) + table header(1) + rows + separator(1) + details(1)
	rows := d.mainAreaHeight() - 5 - d.taskRowsVisible()
	if rows < 1 {
		rows = 1
	}
	return rows
}

// elapsed formats the time since a step started.
func elapsed(since time.Time) string {
	if since.IsZero() {
		return "0s"
	}
	return time.Since(since).Truncate(time.Second).String()
}

// stripTitle removes styling for width math.
func stripTitle(s string) string {
	// lipgloss styles wrap the text in ANSI sequences; measuring the raw
	// string overcounts. The title text itself is ASCII, so measuring the
	// unstyled variant is enough.
	return stripANSI(s)
}

// stripANSI removes ANSI escape sequences.
func stripANSI(s string) string {
	var b strings.Builder
	inEscape := false
	for _, r := range s {
		switch {
		case inEscape:
			if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
				inEscape = false
			}
		case r == 0x1b:
			inEscape = true
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// truncate cuts s to the display width, appending an ellipsis when cut.
func truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	return runewidth.Truncate(s, width, "…")
}

// padRight pads s with spaces to the display width.
func padRight(s string, width int) string {
	return runewidth.FillRight(truncate(s, width), width)
}

// center pads s on both sides to the display width.
func center(s string, width int) string {
	s = truncate(s, width)
	gap := width - runewidth.StringWidth(s)
	if gap <= 0 {
		return s
	}
	left := gap / 2
	return strings.Repeat(" ", left) + s + strings.Repeat(" ", gap-left)
}
