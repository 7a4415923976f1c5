package state_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/taskpanel/internal/constants"
	"github.com/mrz1836/taskpanel/internal/domain"
	"github.com/mrz1836/taskpanel/internal/model"
	"github.com/mrz1836/taskpanel/internal/state"
)

// twoTaskWorkflow builds the workflow used by the recovery scenarios.
// Task B's command list is parameterized so "editing the file" between runs
// is just a different build command.
func twoTaskWorkflow(betaBuild string) *domain.Workflow {
	return &domain.Workflow{
		Headers: []string{"build", "test"},
		Tasks: []domain.Task{
			{Name: "A", Info: "stable", Steps: []domain.Step{
				{Header: "build", Command: "make"},
				{Header: "test", Command: "make test"},
			}},
			{Name: "B", Info: "edited", Steps: []domain.Step{
				{Header: "build", Command: betaBuild},
				{Header: "test", Command: "make test"},
			}},
		},
	}
}

func tempWorkflowStore(t *testing.T) *state.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tasks.csv")
	require.NoError(t, os.WriteFile(path, []byte("placeholder\n"), 0o600))
	return state.NewStore(path, zerolog.Nop())
}

// Scenario: both tasks completed, the process dies, task B's commands are
// edited before restart. A restores as SUCCESS SUCCESS; B starts over.
func TestRecovery_SelectiveInvalidationAfterEdit(t *testing.T) {
	ctx := context.Background()
	store := tempWorkflowStore(t)

	// First run: everything succeeds, state is flushed.
	before := twoTaskWorkflow("make")
	m1 := model.New(before, zerolog.Nop())
	for _, r := range m1.InitialRuns() {
		for i := 0; i < m1.StepCount(r.Task); i++ {
			if m1.ClaimStep(r.Task, i, r.Gen).Action == model.ClaimSpawn {
				m1.FinishStep(r.Task, i, r.Gen, constants.StepSuccess, 0)
			}
		}
	}
	require.True(t, m1.AllDone())
	require.NoError(t, store.Save(ctx, m1.Projection()))

	// Restart with task B edited.
	after := twoTaskWorkflow("make -j8")
	persisted, err := store.Load(ctx, after.StructuralHashes())
	require.NoError(t, err)

	m2 := model.New(after, zerolog.Nop())
	m2.Reconcile(persisted)

	snap := m2.Snapshot()
	assert.Equal(t, constants.StepSuccess, snap.Tasks[0].Statuses[0])
	assert.Equal(t, constants.StepSuccess, snap.Tasks[0].Statuses[1])
	assert.Equal(t, constants.StepPending, snap.Tasks[1].Statuses[0], "edited task restarts")
	assert.Equal(t, constants.StepPending, snap.Tasks[1].Statuses[1])
}

// Scenario: a four-step task is interrupted while step 2 runs. On restart,
// steps 0-1 are preserved, step 2 resets to PENDING, step 3 stays PENDING,
// and the task resumes exactly at step 2.
func TestRecovery_InterruptedMidRun(t *testing.T) {
	ctx := context.Background()
	store := tempWorkflowStore(t)

	wf := &domain.Workflow{
		Headers: []string{"s1", "s2", "s3", "s4"},
		Tasks: []domain.Task{{Name: "long", Steps: []domain.Step{
			{Header: "s1", Command: "true"},
			{Header: "s2", Command: "true"},
			{Header: "s3", Command: "sleep 60"},
			{Header: "s4", Command: "true"},
		}}},
	}

	// Persist the mid-run shape a crash would leave behind.
	require.NoError(t, store.Save(ctx, state.File{Tasks: map[string]state.PersistedTask{
		wf.Tasks[0].ID(): {
			StructuralHash: wf.Tasks[0].StructuralHash(),
			Steps: []constants.StepStatus{
				constants.StepSuccess, constants.StepSuccess,
				constants.StepRunning, constants.StepPending,
			},
		},
	}}))

	persisted, err := store.Load(ctx, wf.StructuralHashes())
	require.NoError(t, err)

	m := model.New(wf, zerolog.Nop())
	m.Reconcile(persisted)

	snap := m.Snapshot()
	assert.Equal(t, constants.StepSuccess, snap.Tasks[0].Statuses[0])
	assert.Equal(t, constants.StepSuccess, snap.Tasks[0].Statuses[1])
	assert.Equal(t, constants.StepPending, snap.Tasks[0].Statuses[2], "interrupted step resets")
	assert.Equal(t, constants.StepPending, snap.Tasks[0].Statuses[3])

	runs := m.InitialRuns()
	require.Len(t, runs, 1)
	assert.Equal(t, 2, runs[0].Start, "resume picks up at the interrupted step")
}
