package cli

import (
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/mrz1836/taskpanel/internal/config"
	"github.com/mrz1836/taskpanel/internal/constants"
	"github.com/mrz1836/taskpanel/internal/logging"
)

// InitLogger creates the process logger.
//
// Log levels follow the verbosity flags:
//   - verbose: Debug level
//   - quiet: Warn level
//   - default: Info level
//
// The logger always writes JSON to a rotating file under the logs root,
// filtered through the sensitive-data writer. When withConsole is true
// (conversion mode, before the dashboard owns the terminal) it also writes
// to stderr: a console writer on a TTY with colors enabled, plain JSON
// otherwise. While the dashboard runs, file-only logging keeps the screen
// clean.
func InitLogger(cfg *config.Config, withConsole bool) zerolog.Logger {
	level := selectLevel(cfg.Verbose, cfg.Quiet)

	var writers []io.Writer
	if fileWriter := newFileWriter(cfg.LogsRoot); fileWriter != nil {
		writers = append(writers, fileWriter)
	}
	if withConsole {
		writers = append(writers, selectConsoleWriter())
	}

	var out io.Writer = io.Discard
	switch len(writers) {
	case 1:
		out = writers[0]
	case 2:
		out = zerolog.MultiLevelWriter(writers...)
	}

	logger := zerolog.New(out).
		Level(level).
		Hook(logging.NewSensitiveDataHook()).
		With().Timestamp().Logger()

	setLogger(logger)
	return logger
}

// selectLevel maps verbosity flags to a zerolog level.
func selectLevel(verbose, quiet bool) zerolog.Level {
	switch {
	case verbose:
		return zerolog.DebugLevel
	case quiet:
		return zerolog.WarnLevel
	default:
		return zerolog.InfoLevel
	}
}

// newFileWriter builds the rotating, redacting application log writer.
// Returns nil when the logs root cannot be created; logging then goes to
// the console only (conversion mode) or is discarded (dashboard mode)
// rather than failing the run.
func newFileWriter(logsRoot string) io.Writer {
	if err := os.MkdirAll(logsRoot, constants.DirPerm); err != nil {
		return nil
	}
	rotator := &lumberjack.Logger{
		Filename:   filepath.Join(logsRoot, constants.AppLogFileName),
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     7, // days
		Compress:   true,
	}
	return logging.NewFilteringWriter(rotator)
}

// selectConsoleWriter picks the stderr format: a human console writer on a
// color-capable TTY, JSON otherwise.
func selectConsoleWriter() io.Writer {
	if isTerminal(os.Stderr) && os.Getenv("NO_COLOR") == "" && os.Getenv("TERM") != "dumb" {
		return zerolog.ConsoleWriter{Out: os.Stderr}
	}
	return os.Stderr
}

// isTerminal reports whether the file is attached to a TTY.
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
