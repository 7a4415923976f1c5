// Package main provides the entry point for the taskpanel CLI.
package main

import (
	"context"
	stderrors "errors"
	"os"

	"github.com/mrz1836/taskpanel/internal/cli"
	"github.com/mrz1836/taskpanel/internal/errors"
)

// Exit codes: 0 clean quit, 1 workflow load error, 2 unexpected runtime
// error.
func main() {
	ctx := context.Background()
	if err := cli.Execute(ctx); err != nil {
		if stderrors.Is(err, errors.ErrWorkflowLoad) {
			os.Exit(1)
		}
		os.Exit(2)
	}
}
