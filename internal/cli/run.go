package cli

import (
	"context"
	stderrors "errors"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mrz1836/taskpanel/internal/config"
	"github.com/mrz1836/taskpanel/internal/domain"
	"github.com/mrz1836/taskpanel/internal/engine"
	"github.com/mrz1836/taskpanel/internal/errors"
	"github.com/mrz1836/taskpanel/internal/model"
	"github.com/mrz1836/taskpanel/internal/signal"
	"github.com/mrz1836/taskpanel/internal/state"
	"github.com/mrz1836/taskpanel/internal/tui"
	"github.com/mrz1836/taskpanel/internal/workflow"
)

// run is the root command body: load config and workflow, then either
// convert to YAML or drive the dashboard to completion.
func run(ctx context.Context, flags *GlobalFlags, args []string) error {
	cfg, err := config.LoadWithOverrides(ctx, overridesFromFlags(flags))
	if err != nil {
		return err
	}

	// Conversion mode may log to the console; the dashboard must not.
	logger := InitLogger(cfg, flags.ToYAML != "")

	path := workflowPath(args)
	wf, err := workflow.LoadFile(path)
	if err != nil {
		logger.Error().Err(err).Str("path", path).Msg("workflow load failed")
		return err
	}

	if flags.ToYAML != "" {
		if err := workflow.WriteYAML(wf, flags.ToYAML); err != nil {
			return err
		}
		logger.Info().
			Str("from", path).
			Str("to", flags.ToYAML).
			Int("tasks", len(wf.Tasks)).
			Msg("workflow converted to YAML")
		return nil
	}

	return runDashboard(ctx, cfg, logger, wf)
}

// runDashboard wires the store, model, engine, and TUI together, runs the
// panel until quit, then drains the engine and commits final state.
func runDashboard(ctx context.Context, cfg *config.Config, logger zerolog.Logger, wf *domain.Workflow) error {
	// One panel per workflow: the lock outlives the whole run.
	store := state.NewStore(wf.Path, logger)
	release, err := store.Lock()
	if err != nil {
		return err
	}
	defer release()

	persisted, err := store.Load(ctx, wf.StructuralHashes())
	if err != nil {
		return err
	}

	sessionID := uuid.NewString()
	logger.Info().
		Str("session", sessionID).
		Str("workflow", wf.Path).
		Int("tasks", len(wf.Tasks)).
		Int("workers", cfg.Workers).
		Msg("starting panel")

	m := model.New(wf, logger,
		model.WithSession(sessionID),
		model.WithTailCaps(cfg.OutputTailLines, cfg.DebugTailLines),
	)
	m.Reconcile(persisted)

	eng := engine.New(m, engine.Config{
		Workers:   cfg.Workers,
		LogsRoot:  cfg.LogsRoot,
		KillGrace: cfg.KillGrace,
	}, logger)

	// A Ctrl+C outside the TUI or a SIGTERM takes the same clean path as
	// 'q': the context cancels, the program stops, teardown runs below.
	sig := signal.NewHandler(ctx)
	defer sig.Stop()

	eng.Start(sig.Context())
	for _, r := range m.InitialRuns() {
		if enqErr := eng.Enqueue(r); enqErr != nil {
			logger.Warn().Err(enqErr).Int("task", r.Task).Msg("initial run dropped")
		}
	}

	runErr := tui.Run(sig.Context(), m, eng, tui.Config{Title: cfg.Title})

	// Teardown always runs: kill live groups, mark them KILLED, flush.
	eng.Shutdown()
	if saveErr := store.Save(context.Background(), m.Projection()); saveErr != nil {
		logger.Error().Err(saveErr).Msg("failed to persist final state")
		if runErr == nil {
			runErr = saveErr
		}
	} else {
		logger.Info().Str("path", store.Path()).Msg("final state persisted")
	}

	if runErr != nil && isCleanInterrupt(runErr) {
		return nil
	}
	if runErr != nil {
		return errors.Wrap(runErr, "dashboard failed")
	}
	return nil
}

// isCleanInterrupt reports whether the TUI exit was a deliberate
// interruption (signal-driven context cancellation) rather than a failure.
func isCleanInterrupt(err error) bool {
	return stderrors.Is(err, tea.ErrProgramKilled) || stderrors.Is(err, context.Canceled)
}
