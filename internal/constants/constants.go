// Package constants provides centralized constant values used throughout
// taskpanel. This package is the single source of truth for all shared
// constants and MUST NOT import any other internal packages.
package constants

import "time"

// AppName is the binary and configuration name.
const AppName = "taskpanel"

// EnvPrefix is the prefix for environment variable configuration overrides.
const EnvPrefix = "TASKPANEL"

// StateFileVersion is the current schema version of the persisted state file.
const StateFileVersion = 1

// Worker pool configuration.
const (
	// FallbackWorkers is used when logical CPU detection fails.
	FallbackWorkers = 4

	// MinWorkers is the floor for the worker pool size. A configured value
	// below this is clamped, not rejected.
	MinWorkers = 1
)

// Timing configuration for execution and redraw.
const (
	// DefaultKillGrace is how long a terminated process group is given to
	// exit after SIGTERM before it is sent SIGKILL.
	DefaultKillGrace = 2 * time.Second

	// KillPollInterval is how often the terminator re-checks whether a
	// signaled process group has exited during the grace window.
	KillPollInterval = 50 * time.Millisecond

	// TickInterval drives the controller loop (~10-20 Hz per the redraw
	// contract).
	TickInterval = 100 * time.Millisecond

	// ForcedRedrawInterval bounds how stale the screen may get when no
	// dirty signal arrives (running-step elapsed times still advance).
	ForcedRedrawInterval = 500 * time.Millisecond
)

// Tail buffer capacities. Full output lives in the per-step log files;
// these bound only the in-memory tails.
const (
	// DefaultOutputTailLines is the ring capacity for a step's combined
	// stdout/stderr tail.
	DefaultOutputTailLines = 2000

	// DefaultDebugTailLines is the ring capacity for a step's debug log.
	DefaultDebugTailLines = 200
)
