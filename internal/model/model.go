// Package model owns the canonical execution state: every task, every step
// status, the per-step output and debug tails, and the per-task generation
// counter that defeats stale-writer races.
//
// All mutation flows through a single mutex. Methods called by execution
// workers carry the generation captured at dispatch; when the task's
// generation has advanced (a rerun, kill, or shutdown happened in between)
// the mutation is a silent no-op. That is the sole defense against the
// zombie-writer race, and it is deliberate: a worker whose view of the
// world is stale must produce no observable side effects.
//
// Import rules:
//   - CAN import: internal/constants, internal/domain, internal/errors,
//     internal/clock, internal/logging, internal/state, std lib
//   - MUST NOT import: internal/engine, internal/tui, internal/cli
package model

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/mrz1836/taskpanel/internal/clock"
	"github.com/mrz1836/taskpanel/internal/constants"
	"github.com/mrz1836/taskpanel/internal/domain"
	"github.com/mrz1836/taskpanel/internal/errors"
	"github.com/mrz1836/taskpanel/internal/logging"
	"github.com/mrz1836/taskpanel/internal/state"
)

// Run describes one dispatch of a task to the execution engine: which task,
// which step to start at, and the generation the run belongs to.
type Run struct {
	Task  int
	Start int
	Gen   uint64
}

// ClaimAction tells a worker what to do with the step it tried to claim.
type ClaimAction int

const (
	// ClaimAbort means the worker's generation is stale; it must stop
	// without touching anything.
	ClaimAbort ClaimAction = iota

	// ClaimSkip means the step resolved without spawning (empty command
	// or already terminal); the worker moves on to the next step.
	ClaimSkip

	// ClaimSpawn means the step transitioned to RUNNING and the worker
	// should spawn Claim.Command.
	ClaimSpawn
)

// Claim is the result of claiming a step for execution.
type Claim struct {
	Action  ClaimAction
	Command string
}

// Output stream names used in tail lines and log file suffixes.
const (
	StreamStdout = "stdout"
	StreamStderr = "stderr"
)

// Line is one tailed output line from a step's child process.
type Line struct {
	Stream string
	Text   string
}

// stepRuntime is the mutable state of one step.
type stepRuntime struct {
	status     constants.StepStatus
	out        *ring[Line]
	dbg        *ring[string]
	pid        int
	pgid       int
	startedAt  time.Time
	finishedAt time.Time
}

// taskRuntime is the mutable state of one task.
type taskRuntime struct {
	def   *domain.Task
	id    string
	hash  string
	gen   uint64
	steps []*stepRuntime
}

// Model is the single point of truth for execution state.
type Model struct {
	mu      sync.Mutex
	wf      *domain.Workflow
	tasks   []*taskRuntime
	logger  zerolog.Logger
	clk     clock.Clock
	dirty   atomic.Bool
	session string
	outCap  int
	dbgCap  int
}

// Option configures a Model.
type Option func(*Model)

// WithClock sets the clock used for step timestamps and debug entries.
func WithClock(clk clock.Clock) Option {
	return func(m *Model) { m.clk = clk }
}

// WithTailCaps sets the ring capacities for output and debug tails.
func WithTailCaps(output, debug int) Option {
	return func(m *Model) {
		m.outCap = output
		m.dbgCap = debug
	}
}

// WithSession sets the session id carried by snapshots and the persisted
// state file.
func WithSession(id string) Option {
	return func(m *Model) { m.session = id }
}

// New creates a Model for the workflow. Every step starts PENDING.
func New(wf *domain.Workflow, logger zerolog.Logger, opts ...Option) *Model {
	m := &Model{
		wf:     wf,
		logger: logger,
		clk:    clock.RealClock{},
		outCap: constants.DefaultOutputTailLines,
		dbgCap: constants.DefaultDebugTailLines,
	}
	for _, opt := range opts {
		opt(m)
	}

	m.tasks = make([]*taskRuntime, len(wf.Tasks))
	for i := range wf.Tasks {
		def := &wf.Tasks[i]
		tr := &taskRuntime{
			def:   def,
			id:    def.ID(),
			hash:  def.StructuralHash(),
			steps: make([]*stepRuntime, len(def.Steps)),
		}
		for j := range def.Steps {
			tr.steps[j] = &stepRuntime{
				status: constants.StepPending,
				out:    newRing[Line](m.outCap),
				dbg:    newRing[string](m.dbgCap),
			}
		}
		m.tasks[i] = tr
	}

	return m
}

// Reconcile applies persisted statuses loaded by the state store. The store
// has already dropped tasks with a stale structural hash; here each
// surviving entry is reconciled step by step:
//
//   - SUCCESS, FAILED, SKIPPED, PENDING are preserved
//   - RUNNING and KILLED reset to PENDING (the step was interrupted)
//   - entries beyond the current step count are dropped
//   - steps missing from the record stay PENDING
func (m *Model) Reconcile(persisted map[string]state.PersistedTask) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, tr := range m.tasks {
		entry, ok := persisted[tr.id]
		if !ok {
			continue
		}
		for i, st := range entry.Steps {
			if i >= len(tr.steps) {
				break
			}
			if !st.Valid() || st == constants.StepRunning || st == constants.StepKilled {
				tr.steps[i].status = constants.StepPending
				continue
			}
			tr.steps[i].status = st
		}
		m.logger.Debug().Str("task_id", tr.id).Msg("restored persisted step statuses")
	}
	m.markDirty()
}

// InitialRuns returns the runs to enqueue at startup: every task with at
// least one non-terminal step whose preceding steps all succeeded (or were
// skipped no-ops). Tasks carrying a FAILED step are left for the operator
// to rerun explicitly. Each returned run carries a freshly bumped
// generation.
func (m *Model) InitialRuns() []Run {
	m.mu.Lock()
	defer m.mu.Unlock()

	var runs []Run
	for ti, tr := range m.tasks {
		start := -1
		blocked := false
		for i, s := range tr.steps {
			if !s.status.Terminal() {
				start = i
				break
			}
			if s.status == constants.StepFailed || s.status == constants.StepKilled {
				blocked = true
				break
			}
		}
		if start < 0 || blocked {
			continue
		}
		tr.gen++
		m.debugLocked(tr, start, fmt.Sprintf("queued at startup (gen %d)", tr.gen))
		runs = append(runs, Run{Task: ti, Start: start, Gen: tr.gen})
	}
	return runs
}

// ClaimStep is called by a worker before executing step i. It resolves
// empty commands to SKIPPED in place, transitions runnable steps
// PENDING -> RUNNING, and tells stale workers to abort.
func (m *Model) ClaimStep(task, step int, gen uint64) Claim {
	m.mu.Lock()
	defer m.mu.Unlock()

	tr, s, err := m.locate(task, step)
	if err != nil || tr.gen != gen {
		return Claim{Action: ClaimAbort}
	}

	if s.status.Terminal() {
		// Already resolved (restored from state); nothing to run.
		return Claim{Action: ClaimSkip}
	}

	def := tr.def.Steps[step]
	if def.Empty() {
		s.status = constants.StepSkipped
		m.debugLocked(tr, step, "empty command, skipped")
		m.markDirty()
		return Claim{Action: ClaimSkip}
	}

	s.status = constants.StepRunning
	s.startedAt = m.clk.Now()
	s.finishedAt = time.Time{}
	m.debugLocked(tr, step, fmt.Sprintf("starting step (gen %d)", gen))
	m.markDirty()
	return Claim{Action: ClaimSpawn, Command: def.Command}
}

// SetProcess records the spawned child's pid and process group. Returns
// false when the generation is stale, in which case the caller must
// terminate the group it just created and exit without further writes.
func (m *Model) SetProcess(task, step int, gen uint64, pid, pgid int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	tr, s, err := m.locate(task, step)
	if err != nil || tr.gen != gen {
		return false
	}

	s.pid = pid
	s.pgid = pgid
	m.debugLocked(tr, step, fmt.Sprintf("process started with pid %d (pgid %d)", pid, pgid))
	m.markDirty()
	return true
}

// AppendOutput tails one line of child output. No-op when gen is stale.
func (m *Model) AppendOutput(task, step int, gen uint64, stream, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tr, s, err := m.locate(task, step)
	if err != nil || tr.gen != gen {
		return
	}
	s.out.Push(Line{Stream: stream, Text: text})
	m.markDirty()
}

// AppendDebug tails one debug entry for a step. No-op when gen is stale.
func (m *Model) AppendDebug(task, step int, gen uint64, msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tr, _, err := m.locate(task, step)
	if err != nil || tr.gen != gen {
		return
	}
	m.debugLocked(tr, step, msg)
	m.markDirty()
}

// FinishStep commits a step's terminal status. When the status is not
// SUCCESS every later PENDING step is marked SKIPPED (short-circuit).
// Returns whether the worker should continue to the next step; a stale
// generation returns false without writing.
func (m *Model) FinishStep(task, step int, gen uint64, status constants.StepStatus, exitCode int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	tr, s, err := m.locate(task, step)
	if err != nil || tr.gen != gen {
		return false
	}

	duration := time.Duration(0)
	if !s.startedAt.IsZero() {
		duration = m.clk.Now().Sub(s.startedAt)
	}

	s.status = status
	s.pid = 0
	s.pgid = 0
	s.finishedAt = m.clk.Now()
	m.debugLocked(tr, step, fmt.Sprintf("finished with code %d, status %s, duration %.2fs",
		exitCode, status, duration.Seconds()))

	if status != constants.StepSuccess {
		m.skipPendingAfterLocked(tr, step)
	}

	m.markDirty()
	return status == constants.StepSuccess
}

// Rerun prepares a fresh run of the task starting at step. It bumps the
// generation (cancelling any live or queued run), resets step..end to
// PENDING with cleared tails, and returns the run to enqueue plus the pgid
// of the previously running step (0 if none) for the caller to terminate.
// Steps before the start index are untouched, including their SUCCESS.
func (m *Model) Rerun(task, step int) (Run, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tr, _, err := m.locate(task, step)
	if err != nil {
		return Run{}, 0, err
	}

	tr.gen++
	m.debugLocked(tr, step, fmt.Sprintf("rerun triggered, new gen %d", tr.gen))

	pgid := 0
	for i, s := range tr.steps {
		if s.status != constants.StepRunning {
			continue
		}
		pgid = s.pgid
		if i < step {
			// The interrupted step stays behind the new start; settle it
			// and everything between so the task reads as resolved.
			s.status = constants.StepKilled
			s.pid = 0
			s.pgid = 0
			s.finishedAt = m.clk.Now()
			m.debugLocked(tr, i, "killed by rerun of a later step")
			m.skipPendingBetweenLocked(tr, i, step)
		}
	}

	for i := step; i < len(tr.steps); i++ {
		s := tr.steps[i]
		s.status = constants.StepPending
		s.pid = 0
		s.pgid = 0
		s.startedAt = time.Time{}
		s.finishedAt = time.Time{}
		s.out.Reset()
		s.dbg.Reset()
	}

	m.markDirty()
	return Run{Task: task, Start: step, Gen: tr.gen}, pgid, nil
}

// Kill cancels the task's live run. The generation bump makes the worker
// exit silently; the Model commits KILLED for the running step here and
// settles trailing PENDING steps as SKIPPED. Returns the pgid to terminate
// (0 when nothing was running).
func (m *Model) Kill(task int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if task < 0 || task >= len(m.tasks) {
		return 0, errors.Wrapf(errors.ErrTaskIndex, "task %d", task)
	}
	tr := m.tasks[task]

	tr.gen++
	m.debugLocked(tr, 0, fmt.Sprintf("kill requested, new gen %d", tr.gen))

	pgid := 0
	for i, s := range tr.steps {
		if s.status != constants.StepRunning {
			continue
		}
		pgid = s.pgid
		s.status = constants.StepKilled
		s.pid = 0
		s.pgid = 0
		s.finishedAt = m.clk.Now()
		if !s.startedAt.IsZero() {
			m.debugLocked(tr, i, fmt.Sprintf("killed after %.2fs",
				m.clk.Now().Sub(s.startedAt).Seconds()))
		}
		m.skipPendingAfterLocked(tr, i)
		break
	}

	m.markDirty()
	return pgid, nil
}

// CancelAll bumps every generation and commits KILLED for any running
// steps. Returns the pgids of the groups that must be terminated. Used on
// shutdown, before the final state flush.
func (m *Model) CancelAll() []int {
	m.mu.Lock()
	defer m.mu.Unlock()

	var pgids []int
	for _, tr := range m.tasks {
		tr.gen++
		for i, s := range tr.steps {
			if s.status != constants.StepRunning {
				continue
			}
			if s.pgid > 0 {
				pgids = append(pgids, s.pgid)
			}
			s.status = constants.StepKilled
			s.pid = 0
			s.pgid = 0
			s.finishedAt = m.clk.Now()
			m.debugLocked(tr, i, "killed by shutdown")
		}
	}

	m.markDirty()
	return pgids
}

// Generation returns the task's current generation.
func (m *Model) Generation(task int) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if task < 0 || task >= len(m.tasks) {
		return 0
	}
	return m.tasks[task].gen
}

// NumTasks returns the number of tasks.
func (m *Model) NumTasks() int {
	return len(m.tasks)
}

// StepCount returns the number of steps in a task (0 for a bad index).
func (m *Model) StepCount(task int) int {
	if task < 0 || task >= len(m.tasks) {
		return 0
	}
	return len(m.tasks[task].steps)
}

// TaskID returns the stable id of a task ("" for a bad index).
func (m *Model) TaskID(task int) string {
	if task < 0 || task >= len(m.tasks) {
		return ""
	}
	return m.tasks[task].id
}

// AllDone reports whether every step of every task is terminal.
func (m *Model) AllDone() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, tr := range m.tasks {
		for _, s := range tr.steps {
			if !s.status.Terminal() {
				return false
			}
		}
	}
	return true
}

// Projection builds the persisted shape of the current state for the store.
func (m *Model) Projection() state.File {
	m.mu.Lock()
	defer m.mu.Unlock()

	file := state.File{
		Session: m.session,
		Tasks:   make(map[string]state.PersistedTask, len(m.tasks)),
	}
	for _, tr := range m.tasks {
		steps := make([]constants.StepStatus, len(tr.steps))
		for i, s := range tr.steps {
			steps[i] = s.status
		}
		file.Tasks[tr.id] = state.PersistedTask{
			StructuralHash: tr.hash,
			Steps:          steps,
		}
	}
	return file
}

// ConsumeDirty returns whether state changed since the last call, clearing
// the flag. The controller polls this on its tick to decide whether a
// redraw is due.
func (m *Model) ConsumeDirty() bool {
	return m.dirty.Swap(false)
}

// markDirty flags the state as changed. Safe to call with or without the
// lock held; the flag is its own atomic.
func (m *Model) markDirty() {
	m.dirty.Store(true)
}

// locate resolves task and step indices to their runtimes.
func (m *Model) locate(task, step int) (*taskRuntime, *stepRuntime, error) {
	if task < 0 || task >= len(m.tasks) {
		return nil, nil, errors.Wrapf(errors.ErrTaskIndex, "task %d", task)
	}
	tr := m.tasks[task]
	if step < 0 || step >= len(tr.steps) {
		return nil, nil, errors.Wrapf(errors.ErrStepIndex, "task %d step %d", task, step)
	}
	return tr, tr.steps[step], nil
}

// debugLocked appends a timestamped, redacted entry to a step's debug ring.
// Must be called with the lock held.
func (m *Model) debugLocked(tr *taskRuntime, step int, msg string) {
	if step < 0 || step >= len(tr.steps) {
		return
	}
	entry := fmt.Sprintf("[%s] %s", m.clk.Now().Format("15:04:05"), logging.FilterSensitiveValue(msg))
	tr.steps[step].dbg.Push(entry)
}

// skipPendingAfterLocked marks every PENDING step after idx as SKIPPED.
// Must be called with the lock held.
func (m *Model) skipPendingAfterLocked(tr *taskRuntime, idx int) {
	m.skipPendingBetweenLocked(tr, idx, len(tr.steps))
}

// skipPendingBetweenLocked marks PENDING steps in (from, to) as SKIPPED.
// Must be called with the lock held.
func (m *Model) skipPendingBetweenLocked(tr *taskRuntime, from, to int) {
	for j := from + 1; j < to && j < len(tr.steps); j++ {
		if tr.steps[j].status == constants.StepPending {
			tr.steps[j].status = constants.StepSkipped
		}
	}
}
