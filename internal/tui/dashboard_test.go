package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-runewidth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/taskpanel/internal/constants"
	"github.com/mrz1836/taskpanel/internal/model"
	"github.com/mrz1836/taskpanel/internal/testutil"
)

// fakeSource is a canned StateSource.
type fakeSource struct {
	snap  model.Snapshot
	dirty bool
	out   []model.Line
	dbg   []string
}

func (f *fakeSource) Snapshot() model.Snapshot { return f.snap }
func (f *fakeSource) ConsumeDirty() bool {
	d := f.dirty
	f.dirty = false
	return d
}
func (f *fakeSource) TailOutput(_, _, _ int) []model.Line { return f.out }
func (f *fakeSource) TailDebug(_, _, _ int) []string      { return f.dbg }

// fakeCommander records rerun/kill calls and can simulate failures.
type fakeCommander struct {
	reruns [][2]int
	kills  []int
	err    error
}

func (f *fakeCommander) Rerun(task, step int) error {
	f.reruns = append(f.reruns, [2]int{task, step})
	return f.err
}

func (f *fakeCommander) Kill(task int) error {
	f.kills = append(f.kills, task)
	return f.err
}

func testSnapshot() model.Snapshot {
	return model.Snapshot{
		Headers: []string{"build", "test", "deploy"},
		Tasks: []model.TaskView{
			{Name: "alpha", Info: "first", RunningStep: -1, Statuses: []constants.StepStatus{
				constants.StepSuccess, constants.StepRunning, constants.StepPending,
			}},
			{Name: "beta", Info: "second", RunningStep: -1, Statuses: []constants.StepStatus{
				constants.StepFailed, constants.StepSkipped, constants.StepKilled,
			}},
		},
	}
}

func newTestDashboard() (*Dashboard, *fakeSource, *fakeCommander) {
	src := &fakeSource{snap: testSnapshot()}
	cmds := &fakeCommander{}
	d := NewDashboard(src, cmds, Config{Title: "test panel"})
	d.width, d.height = 120, 40
	return d, src, cmds
}

func keyMsg(s string) tea.KeyMsg {
	switch s {
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "left":
		return tea.KeyMsg{Type: tea.KeyLeft}
	case "right":
		return tea.KeyMsg{Type: tea.KeyRight}
	case "home":
		return tea.KeyMsg{Type: tea.KeyHome}
	case "end":
		return tea.KeyMsg{Type: tea.KeyEnd}
	default:
		return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
	}
}

func TestDashboard_Navigation(t *testing.T) {
	d, _, _ := newTestDashboard()

	assert.Equal(t, 0, d.selRow)
	d.Update(keyMsg("down"))
	assert.Equal(t, 1, d.selRow)
	d.Update(keyMsg("down"))
	assert.Equal(t, 1, d.selRow, "selection clamps at the last task")
	d.Update(keyMsg("up"))
	assert.Equal(t, 0, d.selRow)
	d.Update(keyMsg("up"))
	assert.Equal(t, 0, d.selRow, "selection clamps at the first task")

	d.Update(keyMsg("end"))
	assert.Equal(t, 1, d.selRow)
	d.Update(keyMsg("home"))
	assert.Equal(t, 0, d.selRow)
}

func TestDashboard_ColumnNavigation(t *testing.T) {
	d, _, _ := newTestDashboard()

	assert.Equal(t, 0, d.selCol)
	d.Update(keyMsg("left"))
	assert.Equal(t, -1, d.selCol, "left of step 0 is the Info column")
	d.Update(keyMsg("left"))
	assert.Equal(t, -1, d.selCol)

	d.Update(keyMsg("right"))
	d.Update(keyMsg("right"))
	d.Update(keyMsg("right"))
	assert.Equal(t, 2, d.selCol)
	d.Update(keyMsg("right"))
	assert.Equal(t, 2, d.selCol, "clamped at the last step")
}

func TestDashboard_RerunOnlyOnSteps(t *testing.T) {
	d, _, cmds := newTestDashboard()

	d.Update(keyMsg("left")) // Info column
	d.Update(keyMsg("r"))
	assert.Empty(t, cmds.reruns, "rerun must not fire on the Info column")

	d.Update(keyMsg("right")) // step 0
	d.Update(keyMsg("r"))
	require.Len(t, cmds.reruns, 1)
	assert.Equal(t, [2]int{0, 0}, cmds.reruns[0])
}

func TestDashboard_Kill(t *testing.T) {
	d, _, cmds := newTestDashboard()

	d.Update(keyMsg("down"))
	d.Update(keyMsg("k"))
	require.Len(t, cmds.kills, 1)
	assert.Equal(t, 1, cmds.kills[0])
}

func TestDashboard_CommandErrorsDoNotCrash(t *testing.T) {
	d, _, cmds := newTestDashboard()
	cmds.err = testutil.ErrMockSpawn

	// The dashboard ignores a failing rerun/kill; it keeps running and
	// keeps accepting input.
	d.Update(keyMsg("r"))
	d.Update(keyMsg("k"))
	d.Update(keyMsg("down"))
	assert.Equal(t, 1, d.selRow)
	assert.False(t, d.Quitting())
}

func TestDashboard_QuitKeys(t *testing.T) {
	for _, k := range []tea.KeyMsg{keyMsg("q"), {Type: tea.KeyCtrlC}} {
		d, _, _ := newTestDashboard()
		_, cmd := d.Update(k)
		require.NotNil(t, cmd, "quit must produce a command")
		assert.True(t, d.Quitting())
	}
}

func TestDashboard_DebugToggle(t *testing.T) {
	d, _, _ := newTestDashboard()
	assert.False(t, d.debugVisible)
	d.Update(keyMsg("d"))
	assert.True(t, d.debugVisible)
	d.Update(keyMsg("d"))
	assert.False(t, d.debugVisible)
}

func TestDashboard_TickRefreshesOnlyWhenDirty(t *testing.T) {
	d, src, _ := newTestDashboard()

	renamed := testSnapshot()
	renamed.Tasks[0].Name = "renamed"
	src.snap = renamed
	src.dirty = false
	d.Update(TickMsg{})
	assert.Equal(t, "alpha", d.snap.Tasks[0].Name, "clean tick within the redraw window keeps the old snapshot")

	src.dirty = true
	d.Update(TickMsg{})
	assert.Equal(t, "renamed", d.snap.Tasks[0].Name, "dirty tick refreshes")
}

func TestDashboard_View_SmokesAllStatuses(t *testing.T) {
	d, _, _ := newTestDashboard()
	out := stripANSI(d.View())

	assert.Contains(t, out, "test panel")
	assert.Contains(t, out, "alpha")
	assert.Contains(t, out, "beta")
	for _, status := range []string{"SUCCESS", "RUNNING", "PENDING", "FAILED", "SKIPPED", "KILLED"} {
		assert.Contains(t, out, status)
	}
	assert.Contains(t, out, "Details for: alpha -> build")
}

func TestDashboard_View_EmptyWorkflowSafe(t *testing.T) {
	src := &fakeSource{snap: model.Snapshot{}}
	d := NewDashboard(src, &fakeCommander{}, Config{Title: "t"})
	d.width, d.height = 80, 24

	assert.Contains(t, d.View(), "No tasks loaded.")
}

func TestDashboard_OutputScrollClamps(t *testing.T) {
	d, src, _ := newTestDashboard()
	for i := 0; i < 50; i++ {
		src.out = append(src.out, model.Line{Stream: model.StreamStdout, Text: "line"})
	}
	src.dirty = true
	d.Update(TickMsg{})

	for i := 0; i < 500; i++ {
		d.Update(keyMsg("["))
	}
	assert.LessOrEqual(t, d.outScroll, len(renderOutputLines(src.out)))

	for i := 0; i < 500; i++ {
		d.Update(keyMsg("]"))
	}
	assert.Equal(t, 0, d.outScroll)
}

func TestRenderOutputLines_StreamMarkers(t *testing.T) {
	lines := []model.Line{
		{Stream: model.StreamStdout, Text: "a"},
		{Stream: model.StreamStdout, Text: "b"},
		{Stream: model.StreamStderr, Text: "boom"},
	}
	rendered := renderOutputLines(lines)
	require.Len(t, rendered, 5, "two markers plus three lines")
	assert.Contains(t, stripANSI(rendered[0]), "[STDOUT]")
	assert.Contains(t, stripANSI(rendered[3]), "[STDERR]")
}

func TestViewHelpers(t *testing.T) {
	assert.Equal(t, "abc  ", padRight("abc", 5))
	assert.Equal(t, " ab  ", center("ab", 5))
	assert.Equal(t, "ab", truncate("ab", 5))
	assert.Equal(t, 5, runewidth.StringWidth(truncate(strings.Repeat("x", 10), 5)))
	assert.Equal(t, "", truncate("abc", 0))
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 3, clamp(5, 0, 3))
	assert.Equal(t, 0, clamp(-1, 0, 3))
	assert.Equal(t, 2, clamp(2, 0, 3))
	assert.Equal(t, 0, clamp(2, 0, -1), "inverted bounds collapse to lo")
}
