package engine

import (
	"bufio"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/mrz1836/taskpanel/internal/constants"
	"github.com/mrz1836/taskpanel/internal/logging"
	"github.com/mrz1836/taskpanel/internal/model"
)

// maxLineBytes bounds a single tailed line. Longer lines are split by the
// scanner rather than dropped.
const maxLineBytes = 1024 * 1024

// runStep spawns one step's command, streams its output, waits for exit,
// and commits the mapped terminal status. Returns whether the worker should
// continue with the next step.
func (e *Engine) runStep(r model.Run, step int, command string) bool {
	log := e.logger.With().
		Int("task", r.Task).
		Str("task_id", e.m.TaskID(r.Task)).
		Int("step", step).
		Uint64("gen", r.Gen).
		Logger()

	stdoutFile, stderrFile, err := e.openStepLogs(r.Task, step)
	if err != nil {
		log.Error().Err(err).Msg("failed to open step log files")
		e.m.AppendDebug(r.Task, step, r.Gen, "log files unavailable: "+err.Error())
		// Keep running; tails still capture output.
		stdoutFile, stderrFile = nil, nil
	}
	closeLogs := func() {
		if stdoutFile != nil {
			_ = stdoutFile.Close()
		}
		if stderrFile != nil {
			_ = stderrFile.Close()
		}
	}

	cmd := exec.Command("sh", "-c", command) //#nosec G204 -- commands come from the operator's workflow file
	// Fresh process group so a kill signals the whole subtree the step
	// forks, not just the shell.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		closeLogs()
		return e.failSpawn(r, step, err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		closeLogs()
		return e.failSpawn(r, step, err)
	}

	log.Info().Str("command", logging.SafeValue("command", command)).Msg("spawning step")

	if err := cmd.Start(); err != nil {
		closeLogs()
		return e.failSpawn(r, step, err)
	}

	pid := cmd.Process.Pid
	if !e.m.SetProcess(r.Task, step, r.Gen, pid, pid) {
		// Stale before the pid landed: we own a process nobody tracks.
		// Kill the group we just created and drain it.
		e.terminate(pid)
		_, _ = cmd.Process.Wait()
		closeLogs()
		return false
	}

	// Avoid handing a typed-nil *os.File to the streamers when the log
	// files could not be opened.
	var stdoutDst, stderrDst io.Writer
	if stdoutFile != nil {
		stdoutDst = stdoutFile
	}
	if stderrFile != nil {
		stderrDst = stderrFile
	}

	var g errgroup.Group
	g.Go(func() error {
		return e.streamOutput(r, step, model.StreamStdout, stdoutPipe, stdoutDst)
	})
	g.Go(func() error {
		return e.streamOutput(r, step, model.StreamStderr, stderrPipe, stderrDst)
	})
	if err := g.Wait(); err != nil {
		e.m.AppendDebug(r.Task, step, r.Gen, "output streaming error: "+err.Error())
	}

	waitErr := cmd.Wait()
	closeLogs()

	status, exitCode := classifyExit(waitErr)
	log.Info().
		Int("pid", pid).
		Int("exit_code", exitCode).
		Str("status", status.String()).
		Msg("step finished")

	return e.m.FinishStep(r.Task, step, r.Gen, status, exitCode)
}

// failSpawn records a spawn failure as FAILED with a diagnostic in both the
// debug tail and the stderr log file.
func (e *Engine) failSpawn(r model.Run, step int, err error) bool {
	e.logger.Error().Err(err).Int("task", r.Task).Int("step", step).Msg("spawn failed")

	e.m.AppendDebug(r.Task, step, r.Gen, "spawn failed: "+err.Error())
	e.m.AppendOutput(r.Task, step, r.Gen, model.StreamStderr, "spawn failed: "+err.Error())
	if path, pathErr := e.stepLogPath(r.Task, step, constants.StderrLogPattern); pathErr == nil {
		_ = os.WriteFile(path, []byte("spawn failed: "+err.Error()+"\n"), constants.FilePerm)
	}

	e.m.FinishStep(r.Task, step, r.Gen, constants.StepFailed, -1)
	return false
}

// streamOutput tails one of the child's output streams line by line into
// the step's log file and ring buffer. I/O errors are reported, not fatal.
func (e *Engine) streamOutput(r model.Run, step int, stream string, src io.Reader, dst io.Writer) error {
	sc := bufio.NewScanner(src)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	// A full buffer without a newline is emitted as one chunk instead of
	// stopping the scan with bufio.ErrTooLong.
	sc.Split(func(data []byte, atEOF bool) (int, []byte, error) {
		advance, token, err := bufio.ScanLines(data, atEOF)
		if advance == 0 && token == nil && err == nil && len(data) >= maxLineBytes {
			return maxLineBytes, data[:maxLineBytes], nil
		}
		return advance, token, err
	})

	for sc.Scan() {
		line := sc.Text()
		if dst != nil {
			if _, err := fmt.Fprintln(dst, line); err != nil {
				dst = nil // stop writing the file, keep tailing
				e.m.AppendDebug(r.Task, step, r.Gen, stream+" log write error: "+err.Error())
			}
		}
		e.m.AppendOutput(r.Task, step, r.Gen, stream, line)
	}
	return sc.Err()
}

// openStepLogs creates the task's log directory and opens both step log
// files truncated, so a rerun starts its logs clean.
func (e *Engine) openStepLogs(task, step int) (stdout, stderr *os.File, err error) {
	stdoutPath, err := e.stepLogPath(task, step, constants.StdoutLogPattern)
	if err != nil {
		return nil, nil, err
	}
	stderrPath, err := e.stepLogPath(task, step, constants.StderrLogPattern)
	if err != nil {
		return nil, nil, err
	}

	stdout, err = os.OpenFile(stdoutPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, constants.FilePerm) //#nosec G304 -- path is constructed internally
	if err != nil {
		return nil, nil, err
	}
	stderr, err = os.OpenFile(stderrPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, constants.FilePerm) //#nosec G304 -- path is constructed internally
	if err != nil {
		_ = stdout.Close()
		return nil, nil, err
	}
	return stdout, stderr, nil
}

// stepLogPath builds <logs_root>/<task_id>/<pattern % step>, creating the
// task directory. The task id embeds a stable hash, so the path survives
// row reordering in the workflow file.
func (e *Engine) stepLogPath(task, step int, pattern string) (string, error) {
	dir := filepath.Join(e.cfg.LogsRoot, e.m.TaskID(task))
	if err := os.MkdirAll(dir, constants.DirPerm); err != nil {
		return "", err
	}
	return filepath.Join(dir, fmt.Sprintf(pattern, step)), nil
}

// classifyExit maps a cmd.Wait error to a terminal status and exit code:
// clean exit 0 is SUCCESS, nonzero is FAILED, and death by a termination
// signal is KILLED.
func classifyExit(err error) (constants.StepStatus, int) {
	if err == nil {
		return constants.StepSuccess, 0
	}

	var exitErr *exec.ExitError
	if stderrors.As(err, &exitErr) {
		if ws, wsOK := exitErr.Sys().(syscall.WaitStatus); wsOK {
			if ws.Signaled() {
				sig := ws.Signal()
				if sig == unix.SIGTERM || sig == unix.SIGKILL || sig == unix.SIGINT {
					return constants.StepKilled, -int(sig)
				}
				return constants.StepFailed, -int(sig)
			}
			return constants.StepFailed, ws.ExitStatus()
		}
		return constants.StepFailed, exitErr.ExitCode()
	}

	// Wait itself failed (not an exit status): treat as failure.
	return constants.StepFailed, -1
}
