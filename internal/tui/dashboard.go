package tui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/mrz1836/taskpanel/internal/constants"
	"github.com/mrz1836/taskpanel/internal/model"
)

// StateSource is the subset of the task model the dashboard reads.
type StateSource interface {
	Snapshot() model.Snapshot
	ConsumeDirty() bool
	TailOutput(task, step, max int) []model.Line
	TailDebug(task, step, max int) []string
}

// Commander is the subset of the execution engine the dashboard drives.
type Commander interface {
	Rerun(task, step int) error
	Kill(task int) error
}

// Config holds dashboard settings.
type Config struct {
	// Title is shown in the header bar.
	Title string
}

// TickMsg drives the smart-refresh loop.
type TickMsg time.Time

// tailFetch bounds how many tail lines one refresh copies out of the model.
const tailFetch = 500

// Dashboard is the Bubble Tea model for the task panel.
// It implements tea.Model (Init, Update, View).
type Dashboard struct {
	src  StateSource
	cmds Commander
	cfg  Config
	keys KeyMap

	snap        model.Snapshot
	outLines    []model.Line
	dbgLines    []string
	lastRefresh time.Time

	width, height int

	// Selection and scroll state. selCol -1 selects the Info column.
	selRow       int
	selCol       int
	topRow       int
	leftMostStep int
	outScroll    int
	dbgScroll    int
	debugVisible bool

	quitting bool
}

// NewDashboard creates the dashboard over a state source and commander.
func NewDashboard(src StateSource, cmds Commander, cfg Config) *Dashboard {
	d := &Dashboard{
		src:    src,
		cmds:   cmds,
		cfg:    cfg,
		keys:   DefaultKeyMap(),
		width:  80,
		height: 24,
	}
	d.refresh()
	return d
}

// Init starts the refresh ticker.
func (d *Dashboard) Init() tea.Cmd {
	return d.tick()
}

// tick schedules the next controller tick.
func (d *Dashboard) tick() tea.Cmd {
	return tea.Tick(constants.TickInterval, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// refresh copies a fresh snapshot and the selected step's tails out of the
// model. This is the only place the dashboard touches shared state.
func (d *Dashboard) refresh() {
	d.snap = d.src.Snapshot()
	d.clampSelection()

	d.outLines = nil
	d.dbgLines = nil
	if d.selRow < len(d.snap.Tasks) && d.selCol >= 0 {
		d.outLines = d.src.TailOutput(d.selRow, d.selCol, tailFetch)
		d.dbgLines = d.src.TailDebug(d.selRow, d.selCol, tailFetch)
	}
	d.lastRefresh = time.Now()
}

// Update handles messages and returns the updated model and any commands.
func (d *Dashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		d.width = msg.Width
		d.height = msg.Height
		return d, nil

	case TickMsg:
		// Smart refresh: redraw when state changed or enough time passed
		// that elapsed durations should advance on screen.
		if d.src.ConsumeDirty() || time.Since(d.lastRefresh) >= constants.ForcedRedrawInterval {
			d.refresh()
		}
		return d, d.tick()

	case tea.KeyMsg:
		return d.handleKey(msg)
	}

	return d, nil
}

// handleKey translates one keystroke.
func (d *Dashboard) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, d.keys.Quit):
		d.quitting = true
		return d, tea.Quit

	case key.Matches(msg, d.keys.Up):
		d.moveRow(-1)
	case key.Matches(msg, d.keys.Down):
		d.moveRow(1)
	case key.Matches(msg, d.keys.Home):
		d.selRow, d.topRow = 0, 0
		d.onSelectionChanged()
	case key.Matches(msg, d.keys.End):
		d.selRow = len(d.snap.Tasks) - 1
		d.scrollRowIntoView()
		d.onSelectionChanged()
	case key.Matches(msg, d.keys.PageUp):
		d.moveRow(-d.taskRowsVisible())
	case key.Matches(msg, d.keys.PageDown):
		d.moveRow(d.taskRowsVisible())

	case key.Matches(msg, d.keys.Left):
		if d.selCol > -1 {
			d.selCol--
			d.scrollColIntoView()
			d.onSelectionChanged()
		}
	case key.Matches(msg, d.keys.Right):
		if d.selCol < d.stepCount(d.selRow)-1 {
			d.selCol++
			d.scrollColIntoView()
			d.onSelectionChanged()
		}

	case key.Matches(msg, d.keys.Rerun):
		// Rerun applies to a step, not the Info column.
		if d.selCol >= 0 && d.selRow < len(d.snap.Tasks) {
			_ = d.cmds.Rerun(d.selRow, d.selCol)
		}
	case key.Matches(msg, d.keys.Kill):
		if d.selRow < len(d.snap.Tasks) {
			_ = d.cmds.Kill(d.selRow)
		}

	case key.Matches(msg, d.keys.ToggleDebug):
		d.debugVisible = !d.debugVisible

	case key.Matches(msg, d.keys.OutputOlder):
		d.outScroll = clamp(d.outScroll+1, 0, maxScroll(len(d.outLines), d.outputRowsVisible()))
	case key.Matches(msg, d.keys.OutputNewer):
		d.outScroll = clamp(d.outScroll-1, 0, maxScroll(len(d.outLines), d.outputRowsVisible()))
	case key.Matches(msg, d.keys.DebugOlder):
		d.dbgScroll = clamp(d.dbgScroll+1, 0, maxScroll(len(d.dbgLines), debugPanelRows))
	case key.Matches(msg, d.keys.DebugNewer):
		d.dbgScroll = clamp(d.dbgScroll-1, 0, maxScroll(len(d.dbgLines), debugPanelRows))
	}

	return d, nil
}

// moveRow moves the selection vertically and keeps it visible.
func (d *Dashboard) moveRow(delta int) {
	d.selRow = clamp(d.selRow+delta, 0, len(d.snap.Tasks)-1)
	d.scrollRowIntoView()
	d.onSelectionChanged()
}

// scrollRowIntoView adjusts topRow so the selection stays on screen.
func (d *Dashboard) scrollRowIntoView() {
	visible := d.taskRowsVisible()
	if d.selRow < d.topRow {
		d.topRow = d.selRow
	}
	if d.selRow >= d.topRow+visible {
		d.topRow = d.selRow - visible + 1
	}
	if d.topRow < 0 {
		d.topRow = 0
	}
}

// scrollColIntoView adjusts the leftmost visible step column.
func (d *Dashboard) scrollColIntoView() {
	if d.selCol < d.leftMostStep {
		// Selecting the Info column resets the scroll to the first step.
		d.leftMostStep = max(0, d.selCol)
	}
	visible := d.stepColsVisible()
	if d.selCol >= d.leftMostStep+visible {
		d.leftMostStep = d.selCol - visible + 1
	}
}

// onSelectionChanged refetches tails and resets panel scrolls.
func (d *Dashboard) onSelectionChanged() {
	d.outScroll = 0
	d.dbgScroll = 0
	d.refresh()
}

// clampSelection keeps the selection valid against the current snapshot.
func (d *Dashboard) clampSelection() {
	d.selRow = clamp(d.selRow, 0, max(0, len(d.snap.Tasks)-1))
	d.selCol = clamp(d.selCol, -1, d.stepCount(d.selRow)-1)
}

// stepCount returns the number of steps of a task row.
func (d *Dashboard) stepCount(row int) int {
	if row < 0 || row >= len(d.snap.Tasks) {
		return 0
	}
	return len(d.snap.Tasks[row].Statuses)
}

// Quitting reports whether the operator asked to exit.
func (d *Dashboard) Quitting() bool {
	return d.quitting
}

// Run starts the Bubble Tea program in the alternate screen and blocks
// until quit. The caller shuts down the engine and flushes state after it
// returns.
func Run(ctx context.Context, src StateSource, cmds Commander, cfg Config) error {
	program := tea.NewProgram(
		NewDashboard(src, cmds, cfg),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)
	_, err := program.Run()
	return err
}

// clamp bounds v to [lo, hi]. hi below lo returns lo.
func clamp(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// maxScroll is how far back a panel of visible rows can scroll in total
// lines.
func maxScroll(total, visible int) int {
	if total <= visible {
		return 0
	}
	return total - visible
}
