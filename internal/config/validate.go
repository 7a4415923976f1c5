package config

import (
	"fmt"

	"github.com/mrz1836/taskpanel/internal/constants"
	"github.com/mrz1836/taskpanel/internal/errors"
)

// Normalize clamps values that have a documented fallback instead of being
// rejected. A worker count below 1 means 1, not an error.
func Normalize(cfg *Config) {
	if cfg.Workers < constants.MinWorkers {
		cfg.Workers = constants.MinWorkers
	}
}

// Validate rejects configurations that cannot work at all.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: config is nil", errors.ErrConfigInvalid)
	}
	if cfg.OutputTailLines < 1 {
		return fmt.Errorf("%w: output_tail_lines must be at least 1, got %d",
			errors.ErrConfigInvalid, cfg.OutputTailLines)
	}
	if cfg.DebugTailLines < 1 {
		return fmt.Errorf("%w: debug_tail_lines must be at least 1, got %d",
			errors.ErrConfigInvalid, cfg.DebugTailLines)
	}
	if cfg.KillGrace <= 0 {
		return fmt.Errorf("%w: kill_grace must be positive, got %s",
			errors.ErrConfigInvalid, cfg.KillGrace)
	}
	if cfg.LogsRoot == "" {
		return fmt.Errorf("%w: logs_root %w", errors.ErrConfigInvalid, errors.ErrEmptyValue)
	}
	if cfg.Verbose && cfg.Quiet {
		return fmt.Errorf("%w: verbose and quiet are mutually exclusive", errors.ErrConfigInvalid)
	}
	return nil
}
