// Package cli provides the command-line interface for taskpanel.
package cli

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mrz1836/taskpanel/internal/config"
)

// BuildInfo contains version information set at build time via ldflags.
type BuildInfo struct {
	// Version is the semantic version (e.g., "1.0.0").
	Version string
	// Commit is the git commit hash.
	Commit string
	// Date is the build date.
	Date string
}

// globalLogger stores the initialized logger for use during the run.
// Access is protected by globalLoggerMu for thread safety.
var (
	globalLogger   zerolog.Logger //nolint:gochecknoglobals // CLI logger requires global access
	globalLoggerMu sync.RWMutex   //nolint:gochecknoglobals // Protects globalLogger
)

// GetLogger returns the initialized logger. It MUST only be called after
// the root command's RunE began executing; before that it returns a
// zero-value logger that discards output.
func GetLogger() zerolog.Logger {
	globalLoggerMu.RLock()
	defer globalLoggerMu.RUnlock()
	return globalLogger
}

// setLogger stores the process-wide logger.
func setLogger(logger zerolog.Logger) {
	globalLoggerMu.Lock()
	globalLogger = logger
	globalLoggerMu.Unlock()
}

// newRootCmd creates the root command. taskpanel is a single-command tool:
// the root runs the dashboard; --to-yaml converts and exits instead.
func newRootCmd(flags *GlobalFlags, info BuildInfo) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "taskpanel [workflow-file]",
		Short: "Interactive terminal dashboard for multi-step shell workflows",
		Long: `taskpanel runs user-defined workflows of shell command steps: parallel
across tasks, sequential within a task, with a full-screen dashboard for
watching progress, inspecting per-step output, and killing or rerunning
steps.

State is persisted next to the workflow file, so an interrupted run resumes
precisely from the point of failure. Editing a task's commands invalidates
only that task's saved state.`,
		Version: formatVersion(info),
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ValidateGlobalFlags(flags); err != nil {
				return err
			}
			return run(cmd.Context(), flags, args)
		},
		// SilenceUsage prevents printing usage on runtime errors
		// (we handle our own error messages).
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	AddGlobalFlags(cmd, flags)

	return cmd
}

// formatVersion renders the version string for --version.
func formatVersion(info BuildInfo) string {
	version := info.Version
	if version == "" {
		version = "dev"
	}
	if info.Commit != "" {
		version += fmt.Sprintf(" (%s, %s)", info.Commit, info.Date)
	}
	return version
}

// Execute runs the CLI. The returned error is mapped to the process exit
// code by the caller: workflow load failures are exit 1, anything else 2.
func Execute(ctx context.Context) error {
	flags := &GlobalFlags{}
	cmd := newRootCmd(flags, BuildInfo{})
	err := cmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
	}
	return err
}

// overridesFromFlags maps CLI flags onto config overrides.
func overridesFromFlags(flags *GlobalFlags) config.Overrides {
	return config.Overrides{
		Workers: flags.Workers,
		Title:   flags.Title,
		Verbose: flags.Verbose,
		Quiet:   flags.Quiet,
	}
}
