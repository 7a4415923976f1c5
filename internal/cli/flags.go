package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mrz1836/taskpanel/internal/errors"
)

// DefaultWorkflowPath is used when no positional argument is given.
const DefaultWorkflowPath = "tasks.csv"

// GlobalFlags holds the root command's flag values.
type GlobalFlags struct {
	// Workers overrides the worker pool size (0 = use config/default).
	Workers int

	// Title overrides the dashboard title.
	Title string

	// ToYAML converts the workflow to YAML at the given path and exits.
	ToYAML string

	// Verbose enables debug-level logging.
	Verbose bool

	// Quiet restricts logging to warnings and errors.
	Quiet bool
}

// AddGlobalFlags registers the root command flags.
func AddGlobalFlags(cmd *cobra.Command, flags *GlobalFlags) {
	cmd.Flags().IntVarP(&flags.Workers, "workers", "w", 0,
		"number of parallel task workers (default: logical CPUs)")
	cmd.Flags().StringVar(&flags.Title, "title", "",
		"dashboard title")
	cmd.Flags().StringVar(&flags.ToYAML, "to-yaml", "",
		"convert the workflow to YAML at the given path and exit")
	cmd.Flags().BoolVarP(&flags.Verbose, "verbose", "v", false,
		"enable debug logging")
	cmd.Flags().BoolVarP(&flags.Quiet, "quiet", "q", false,
		"log warnings and errors only")
}

// ValidateGlobalFlags rejects contradictory flag combinations early.
func ValidateGlobalFlags(flags *GlobalFlags) error {
	if flags.Verbose && flags.Quiet {
		return fmt.Errorf("%w: --verbose and --quiet are mutually exclusive", errors.ErrConfigInvalid)
	}
	if flags.Workers < 0 {
		return fmt.Errorf("%w: --workers must not be negative", errors.ErrConfigInvalid)
	}
	return nil
}

// workflowPath resolves the positional argument, defaulting to tasks.csv.
func workflowPath(args []string) string {
	if len(args) > 0 && args[0] != "" {
		return args[0]
	}
	return DefaultWorkflowPath
}
