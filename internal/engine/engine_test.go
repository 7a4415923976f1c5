//go:build unix

package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/mrz1836/taskpanel/internal/constants"
	"github.com/mrz1836/taskpanel/internal/domain"
	"github.com/mrz1836/taskpanel/internal/model"
)

// buildWorkflow makes one task per command list, with generic headers.
func buildWorkflow(taskCommands ...[]string) *domain.Workflow {
	width := 0
	for _, cmds := range taskCommands {
		if len(cmds) > width {
			width = len(cmds)
		}
	}
	wf := &domain.Workflow{}
	for j := 0; j < width; j++ {
		wf.Headers = append(wf.Headers, fmt.Sprintf("step%d", j+1))
	}
	for i, cmds := range taskCommands {
		task := domain.Task{Name: fmt.Sprintf("task-%d", i), Info: "test"}
		for j := 0; j < width; j++ {
			cmd := ""
			if j < len(cmds) {
				cmd = cmds[j]
			}
			task.Steps = append(task.Steps, domain.Step{Header: wf.Headers[j], Command: cmd})
		}
		wf.Tasks = append(wf.Tasks, task)
	}
	return wf
}

// startEngine wires a model and engine for the workflow and enqueues the
// initial runs. The engine is shut down when the test ends.
func startEngine(t *testing.T, workers int, wf *domain.Workflow) (*model.Model, *Engine) {
	t.Helper()

	m := model.New(wf, zerolog.Nop())
	e := New(m, Config{
		Workers:   workers,
		LogsRoot:  filepath.Join(t.TempDir(), ".logs"),
		KillGrace: constants.DefaultKillGrace,
	}, zerolog.Nop())

	e.Start(context.Background())
	t.Cleanup(e.Shutdown)

	for _, r := range m.InitialRuns() {
		require.NoError(t, e.Enqueue(r))
	}
	return m, e
}

func waitAllDone(t *testing.T, m *model.Model, within time.Duration) {
	t.Helper()
	require.Eventually(t, m.AllDone, within, 20*time.Millisecond, "workflow did not drain")
}

func TestEngine_HappyPath(t *testing.T) {
	wf := buildWorkflow(
		[]string{"echo 1", "echo 2", "echo 3"},
		[]string{"echo 1", "echo 2", "echo 3"},
	)
	m, e := startEngine(t, 2, wf)
	waitAllDone(t, m, 10*time.Second)

	snap := m.Snapshot()
	for _, task := range snap.Tasks {
		for _, st := range task.Statuses {
			assert.Equal(t, constants.StepSuccess, st)
		}
	}

	// Per-step log files exist and carry the output.
	for ti := 0; ti < m.NumTasks(); ti++ {
		for si := 0; si < m.StepCount(ti); si++ {
			path := filepath.Join(e.cfg.LogsRoot, m.TaskID(ti),
				fmt.Sprintf(constants.StdoutLogPattern, si))
			data, err := os.ReadFile(path) //#nosec G304 -- test path
			require.NoError(t, err)
			assert.Equal(t, fmt.Sprintf("%d\n", si+1), string(data))
		}
	}
}

func TestEngine_FailureShortCircuits(t *testing.T) {
	wf := buildWorkflow([]string{"true", "false", "true"})
	m, _ := startEngine(t, 1, wf)
	waitAllDone(t, m, 10*time.Second)

	statuses := m.Snapshot().Tasks[0].Statuses
	assert.Equal(t, constants.StepSuccess, statuses[0])
	assert.Equal(t, constants.StepFailed, statuses[1])
	assert.Equal(t, constants.StepSkipped, statuses[2])
}

func TestEngine_EmptyCommandSkipsWithoutSpawn(t *testing.T) {
	wf := buildWorkflow([]string{"echo 1", "", "echo 3"})
	m, _ := startEngine(t, 1, wf)
	waitAllDone(t, m, 10*time.Second)

	statuses := m.Snapshot().Tasks[0].Statuses
	assert.Equal(t, constants.StepSuccess, statuses[0])
	assert.Equal(t, constants.StepSkipped, statuses[1])
	assert.Equal(t, constants.StepSuccess, statuses[2], "empty step must not short-circuit the rest")
}

func TestEngine_SpawnFailureIsFailed(t *testing.T) {
	// sh itself runs, the missing binary makes it exit nonzero.
	wf := buildWorkflow([]string{"/definitely/not/a/binary/anywhere"})
	m, _ := startEngine(t, 1, wf)
	waitAllDone(t, m, 10*time.Second)

	assert.Equal(t, constants.StepFailed, m.Snapshot().Tasks[0].Statuses[0])
}

func TestEngine_OutputTailed(t *testing.T) {
	wf := buildWorkflow([]string{"echo out; echo err 1>&2"})
	m, _ := startEngine(t, 1, wf)
	waitAllDone(t, m, 10*time.Second)

	lines := m.TailOutput(0, 0, 10)
	require.Len(t, lines, 2)

	byStream := map[string]string{}
	for _, l := range lines {
		byStream[l.Stream] = l.Text
	}
	assert.Equal(t, "out", byStream[model.StreamStdout])
	assert.Equal(t, "err", byStream[model.StreamStderr])
}

// runningPID waits until the task's step is RUNNING with a recorded pid.
func runningPID(t *testing.T, m *model.Model, task int) int {
	t.Helper()
	var pid int
	require.Eventually(t, func() bool {
		view := m.Snapshot().Tasks[task]
		if view.RunningStep >= 0 && view.PID > 0 {
			pid = view.PID
			return true
		}
		return false
	}, 5*time.Second, 10*time.Millisecond, "step never started")
	return pid
}

func TestEngine_KillTerminatesGroup(t *testing.T) {
	wf := buildWorkflow([]string{"sleep 60"})
	m, e := startEngine(t, 1, wf)

	pid := runningPID(t, m, 0)
	genBefore := m.Generation(0)

	require.NoError(t, e.Kill(0))

	// Status flips to KILLED immediately; the process dies within grace.
	assert.Equal(t, constants.StepKilled, m.Snapshot().Tasks[0].Statuses[0])
	assert.Greater(t, m.Generation(0), genBefore)

	assert.Eventually(t, func() bool {
		return unix.Kill(pid, 0) != nil
	}, constants.DefaultKillGrace+2*time.Second, 20*time.Millisecond,
		"child process survived the kill")
}

func TestEngine_KillReachesForkedChildren(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "marker")
	// The step forks a child that would write the marker after 1s; killing
	// the group must take the child down with the shell.
	cmd := fmt.Sprintf("(sleep 1 && touch %s) & sleep 60", marker)
	wf := buildWorkflow([]string{cmd})
	m, e := startEngine(t, 1, wf)

	runningPID(t, m, 0)
	require.NoError(t, e.Kill(0))

	time.Sleep(2 * time.Second)
	_, err := os.Stat(marker)
	assert.True(t, os.IsNotExist(err), "forked child escaped the process group kill")
}

func TestEngine_RerunAfterSuccess(t *testing.T) {
	wf := buildWorkflow([]string{"sleep 0.1"})
	m, e := startEngine(t, 1, wf)
	waitAllDone(t, m, 10*time.Second)
	require.Equal(t, constants.StepSuccess, m.Snapshot().Tasks[0].Statuses[0])

	require.NoError(t, e.Rerun(0, 0))
	waitAllDone(t, m, 10*time.Second)
	assert.Equal(t, constants.StepSuccess, m.Snapshot().Tasks[0].Statuses[0])
}

func TestEngine_RerunWhileRunningRestartsStep(t *testing.T) {
	wf := buildWorkflow([]string{"sleep 60"})
	m, e := startEngine(t, 1, wf)

	// Rerunning a live step kills the old process before the fresh run
	// starts, but the pool only has one worker: once the old process dies
	// the stale worker's FinishStep is refused, so it returns and frees
	// the slot.
	oldPID := runningPID(t, m, 0)
	require.NoError(t, e.Rerun(0, 0))

	assert.Eventually(t, func() bool {
		view := m.Snapshot().Tasks[0]
		return view.RunningStep == 0 && view.PID > 0 && view.PID != oldPID
	}, constants.DefaultKillGrace+5*time.Second, 20*time.Millisecond,
		"fresh run never started")

	require.NoError(t, e.Kill(0))
}

func TestEngine_RapidRerunRace(t *testing.T) {
	wf := buildWorkflow([]string{"sleep 0.3"})
	m, e := startEngine(t, 2, wf)

	runningPID(t, m, 0)
	for i := 0; i < 3; i++ {
		require.NoError(t, e.Rerun(0, 0))
		time.Sleep(30 * time.Millisecond)
	}

	require.Eventually(t, func() bool {
		st := m.Snapshot().Tasks[0].Statuses[0]
		return st == constants.StepSuccess
	}, 15*time.Second, 20*time.Millisecond, "final rerun never completed")

	// Settle: no further transitions may appear after the winner's SUCCESS.
	final := m.Snapshot().Tasks[0]
	time.Sleep(time.Second)
	again := m.Snapshot().Tasks[0]
	assert.Equal(t, final.Statuses, again.Statuses, "stale writers must not flip the final state")
	assert.GreaterOrEqual(t, again.Gen, uint64(4))
}

func TestEngine_WorkerBoundRespected(t *testing.T) {
	wf := buildWorkflow(
		[]string{"sleep 0.3"},
		[]string{"sleep 0.3"},
		[]string{"sleep 0.3"},
	)
	m, _ := startEngine(t, 1, wf)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) && !m.AllDone() {
		running := 0
		for _, task := range m.Snapshot().Tasks {
			if task.RunningStep >= 0 {
				running++
			}
		}
		assert.LessOrEqual(t, running, 1, "worker bound exceeded")
		time.Sleep(10 * time.Millisecond)
	}
	waitAllDone(t, m, 10*time.Second)
}

func TestEngine_ShutdownKillsRunning(t *testing.T) {
	wf := buildWorkflow([]string{"sleep 60"})
	m, e := startEngine(t, 1, wf)

	pid := runningPID(t, m, 0)

	e.Shutdown()

	assert.Equal(t, constants.StepKilled, m.Snapshot().Tasks[0].Statuses[0])
	assert.Eventually(t, func() bool {
		return unix.Kill(pid, 0) != nil
	}, constants.DefaultKillGrace+2*time.Second, 20*time.Millisecond)
}

func TestEngine_EnqueueAfterShutdown(t *testing.T) {
	wf := buildWorkflow([]string{"echo 1"})
	m, e := startEngine(t, 1, wf)
	waitAllDone(t, m, 10*time.Second)

	e.Shutdown()

	err := e.Enqueue(model.Run{Task: 0, Start: 0, Gen: 99})
	assert.Error(t, err)
}
