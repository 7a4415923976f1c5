// Package config provides layered configuration for taskpanel.
//
// Precedence, highest first:
//  1. CLI flag overrides
//  2. Environment variables (TASKPANEL_* prefix)
//  3. Project config file (.taskpanel.yaml in the working directory)
//  4. Built-in defaults
package config

import "time"

// Config holds every tunable taskpanel setting.
type Config struct {
	// Workers is the execution worker pool size: the bound on concurrently
	// running steps across all tasks.
	Workers int `mapstructure:"workers"`

	// Title is the dashboard header title.
	Title string `mapstructure:"title"`

	// LogsRoot is the directory for per-step log files and the
	// application log.
	LogsRoot string `mapstructure:"logs_root"`

	// OutputTailLines bounds each step's in-memory output tail.
	OutputTailLines int `mapstructure:"output_tail_lines"`

	// DebugTailLines bounds each step's in-memory debug tail.
	DebugTailLines int `mapstructure:"debug_tail_lines"`

	// KillGrace is how long a terminated process group gets between
	// SIGTERM and SIGKILL.
	KillGrace time.Duration `mapstructure:"kill_grace"`

	// Verbose enables debug-level logging.
	Verbose bool `mapstructure:"verbose"`

	// Quiet restricts logging to warnings and errors.
	Quiet bool `mapstructure:"quiet"`
}

// Overrides carries CLI flag values that take precedence over every other
// source. Zero values mean "not set".
type Overrides struct {
	Workers int
	Title   string
	Verbose bool
	Quiet   bool
}
