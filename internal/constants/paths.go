package constants

// File and directory names used for logs and persisted state.
const (
	// LogsDirName is the hidden directory (relative to the working
	// directory) holding per-step log files and the application log.
	LogsDirName = ".logs"

	// AppLogFileName is the rotating application debug log inside LogsDirName.
	AppLogFileName = "taskpanel.log"

	// StatePrefix and StateSuffix form the state file name:
	// .<workflow_basename>.state.json, a sibling of the workflow file.
	StatePrefix = "."
	StateSuffix = ".state.json"

	// LockSuffix is appended to the state file path to form the lock file
	// that prevents two panels from driving the same workflow.
	LockSuffix = ".lock"

	// StdoutLogPattern and StderrLogPattern name the per-step log files
	// inside <logs_root>/<task_id>/. The %02d is the step index.
	StdoutLogPattern = "step-%02d.stdout.log"
	StderrLogPattern = "step-%02d.stderr.log"
)

// Directory and file permission modes for everything taskpanel writes.
const (
	DirPerm  = 0o750
	FilePerm = 0o600
)
