// Package engine turns tasks into sequences of child-process launches.
//
// A fixed pool of worker goroutines consumes whole-task runs from a queue:
// stepping through a task is a tight loop inside one worker, which makes
// intra-task sequentiality trivial and bounds live processes at exactly the
// pool size. Every step is spawned in its own process group so a kill can
// signal the group, not just the shell, and never orphans grandchildren.
//
// The engine never writes state directly: every transition goes through the
// Model with the generation captured at dispatch, so a worker that lost a
// rerun/kill race cannot produce observable effects.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mrz1836/taskpanel/internal/constants"
	"github.com/mrz1836/taskpanel/internal/ctxutil"
	"github.com/mrz1836/taskpanel/internal/errors"
	"github.com/mrz1836/taskpanel/internal/model"
)

// Config holds execution engine settings.
type Config struct {
	// Workers is the worker pool size. Values below 1 are clamped to 1.
	Workers int

	// LogsRoot is the directory holding per-step log files.
	LogsRoot string

	// KillGrace is how long a SIGTERMed process group gets before SIGKILL.
	KillGrace time.Duration
}

// Engine owns the worker pool and the task-run queue.
type Engine struct {
	m      *model.Model
	cfg    Config
	logger zerolog.Logger
	queue  chan model.Run

	ctx       context.Context //nolint:containedctx // engine manages worker lifecycle
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
}

// New creates an engine over the model. Start must be called before any
// runs are enqueued.
func New(m *model.Model, cfg Config, logger zerolog.Logger) *Engine {
	if cfg.Workers < constants.MinWorkers {
		cfg.Workers = constants.MinWorkers
	}
	if cfg.KillGrace <= 0 {
		cfg.KillGrace = constants.DefaultKillGrace
	}
	if cfg.LogsRoot == "" {
		cfg.LogsRoot = constants.LogsDirName
	}

	return &Engine{
		m:      m,
		cfg:    cfg,
		logger: logger,
		// Whole tasks occupy queue slots, so a buffer of twice the task
		// count plus slack keeps enqueue from blocking beyond momentary
		// contention.
		queue: make(chan model.Run, m.NumTasks()*2+16),
	}
}

// Start launches the worker pool. Subsequent calls are no-ops.
func (e *Engine) Start(ctx context.Context) {
	e.startOnce.Do(func() {
		e.ctx, e.cancel = context.WithCancel(ctx)

		e.logger.Info().
			Int("workers", e.cfg.Workers).
			Str("logs_root", e.cfg.LogsRoot).
			Msg("starting worker pool")

		for i := 0; i < e.cfg.Workers; i++ {
			e.wg.Add(1)
			go e.worker(i)
		}
	})
}

// Enqueue submits a task-run to the pool. Runs submitted after shutdown
// began are dropped; their generation is already stale anyway.
func (e *Engine) Enqueue(r model.Run) error {
	if e.ctx == nil {
		return errors.ErrEngineStopped
	}
	select {
	case <-e.ctx.Done():
		return errors.ErrEngineStopped
	case e.queue <- r:
		return nil
	}
}

// Rerun restarts the task at the given step. The model bumps the
// generation and resets statuses; the engine then terminates the old
// process group (if any) and enqueues the fresh run once the group is gone,
// so old and new runs never interleave writes to the same log files.
func (e *Engine) Rerun(task, step int) error {
	run, pgid, err := e.m.Rerun(task, step)
	if err != nil {
		return err
	}

	e.logger.Info().
		Int("task", task).
		Int("step", step).
		Uint64("gen", run.Gen).
		Msg("rerun requested")

	go func() {
		if pgid > 0 {
			e.terminate(pgid)
		}
		if err := e.Enqueue(run); err != nil {
			e.logger.Debug().Err(err).Int("task", task).Msg("rerun dropped during shutdown")
		}
	}()
	return nil
}

// Kill cancels the task's live run. The model commits KILLED for the
// running step; the engine terminates the process group in the background.
func (e *Engine) Kill(task int) error {
	pgid, err := e.m.Kill(task)
	if err != nil {
		return err
	}

	e.logger.Info().Int("task", task).Int("pgid", pgid).Msg("kill requested")

	if pgid > 0 {
		go e.terminate(pgid)
	}
	return nil
}

// Shutdown drains the engine: cancels every task's generation, terminates
// all live process groups (SIGTERM, grace, SIGKILL), and waits for the
// workers to exit. Safe to call more than once.
func (e *Engine) Shutdown() {
	e.stopOnce.Do(func() {
		pgids := e.m.CancelAll()

		e.logger.Info().Int("live_groups", len(pgids)).Msg("shutting down engine")

		var wg sync.WaitGroup
		for _, pgid := range pgids {
			wg.Add(1)
			go func(pg int) {
				defer wg.Done()
				e.terminate(pg)
			}(pgid)
		}
		wg.Wait()

		if e.cancel != nil {
			e.cancel()
		}
		e.wg.Wait()
	})
}

// worker consumes task-runs until shutdown.
func (e *Engine) worker(id int) {
	defer e.wg.Done()

	log := e.logger.With().Int("worker", id).Logger()
	log.Debug().Msg("worker started")

	for {
		select {
		case <-e.ctx.Done():
			log.Debug().Msg("worker exiting")
			return
		case r := <-e.queue:
			e.runTask(r)
		}
	}
}

// runTask steps through one task from the run's start index. The loop stops
// on a stale generation, a non-success step, or shutdown; empty-command
// steps resolve to SKIPPED and the loop continues.
func (e *Engine) runTask(r model.Run) {
	n := e.m.StepCount(r.Task)
	for i := r.Start; i < n; i++ {
		if ctxutil.Canceled(e.ctx) != nil {
			return
		}

		claim := e.m.ClaimStep(r.Task, i, r.Gen)
		switch claim.Action {
		case model.ClaimAbort:
			return
		case model.ClaimSkip:
			continue
		case model.ClaimSpawn:
		}

		if !e.runStep(r, i, claim.Command) {
			return
		}
	}
}
