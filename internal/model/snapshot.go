package model

import (
	"time"

	"github.com/mrz1836/taskpanel/internal/constants"
)

// TaskView is the immutable per-task projection consumed by the view.
type TaskView struct {
	Name string
	Info string
	ID   string

	// Statuses holds one status per step, by index.
	Statuses []constants.StepStatus

	// RunningStep is the index of the RUNNING step, or -1.
	RunningStep int

	// PID is the child pid of the running step, or 0.
	PID int

	// StartedAt is when the running step started (zero when none).
	StartedAt time.Time

	// Frontier is the index just past the highest non-PENDING step.
	Frontier int

	// Gen is the task's generation at snapshot time.
	Gen uint64
}

// Snapshot is a cheap immutable copy of the whole model, taken under the
// lock and rendered outside it. The view never holds the model lock across
// drawing.
type Snapshot struct {
	Headers []string
	Tasks   []TaskView
	AllDone bool
	Session string
}

// Snapshot clones the current state into a Snapshot.
func (m *Model) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{
		Headers: m.wf.Headers,
		Tasks:   make([]TaskView, len(m.tasks)),
		AllDone: true,
		Session: m.session,
	}

	for ti, tr := range m.tasks {
		view := TaskView{
			Name:        tr.def.Name,
			Info:        tr.def.Info,
			ID:          tr.id,
			Statuses:    make([]constants.StepStatus, len(tr.steps)),
			RunningStep: -1,
			Gen:         tr.gen,
		}
		for i, s := range tr.steps {
			view.Statuses[i] = s.status
			if !s.status.Terminal() {
				snap.AllDone = false
			}
			if s.status == constants.StepRunning {
				view.RunningStep = i
				view.PID = s.pid
				view.StartedAt = s.startedAt
			}
			if s.status != constants.StepPending {
				view.Frontier = i + 1
			}
		}
		snap.Tasks[ti] = view
	}

	return snap
}

// TailOutput returns up to max of the most recent output lines for a step.
func (m *Model) TailOutput(task, step, max int) []Line {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, s, err := m.locate(task, step)
	if err != nil {
		return nil
	}
	return s.out.Tail(max)
}

// TailDebug returns up to max of the most recent debug entries for a step.
func (m *Model) TailDebug(task, step, max int) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, s, err := m.locate(task, step)
	if err != nil {
		return nil
	}
	return s.dbg.Tail(max)
}
