package config

import (
	"runtime"

	"github.com/spf13/viper"

	"github.com/mrz1836/taskpanel/internal/constants"
)

// DefaultConfig returns a new Config with sensible default values.
// These defaults are the base layer that config files, environment
// variables, and CLI flags override.
func DefaultConfig() *Config {
	return &Config{
		// Workers: one per logical CPU keeps the machine busy without
		// oversubscribing; the fallback applies when detection fails.
		Workers: defaultWorkers(),

		Title: "taskpanel",

		LogsRoot: constants.LogsDirName,

		OutputTailLines: constants.DefaultOutputTailLines,
		DebugTailLines:  constants.DefaultDebugTailLines,

		KillGrace: constants.DefaultKillGrace,
	}
}

// defaultWorkers returns the logical CPU count, or the fallback when
// detection fails.
func defaultWorkers() int {
	if n := runtime.NumCPU(); n >= constants.MinWorkers {
		return n
	}
	return constants.FallbackWorkers
}

// setDefaults registers every default on the viper instance so that keys
// resolve even when no config file exists.
func setDefaults(v *viper.Viper) {
	defaults := DefaultConfig()
	v.SetDefault("workers", defaults.Workers)
	v.SetDefault("title", defaults.Title)
	v.SetDefault("logs_root", defaults.LogsRoot)
	v.SetDefault("output_tail_lines", defaults.OutputTailLines)
	v.SetDefault("debug_tail_lines", defaults.DebugTailLines)
	v.SetDefault("kill_grace", defaults.KillGrace)
	v.SetDefault("verbose", false)
	v.SetDefault("quiet", false)
}
