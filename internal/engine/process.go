package engine

import (
	stderrors "errors"
	"time"

	"golang.org/x/sys/unix"

	"github.com/mrz1836/taskpanel/internal/constants"
)

// terminate kills a process group with escalation: SIGTERM, then SIGKILL
// after the configured grace if the group still exists. Signaling the
// negative pgid reaches every process in the group, including children the
// step itself forked.
func (e *Engine) terminate(pgid int) {
	if pgid <= 0 {
		return
	}

	if err := unix.Kill(-pgid, unix.SIGTERM); err != nil {
		if stderrors.Is(err, unix.ESRCH) {
			return // group already gone
		}
		e.logger.Warn().Err(err).Int("pgid", pgid).Msg("failed to send SIGTERM to process group")
	}

	deadline := time.Now().Add(e.cfg.KillGrace)
	for time.Now().Before(deadline) {
		if !groupAlive(pgid) {
			e.logger.Debug().Int("pgid", pgid).Msg("process group terminated gracefully")
			return
		}
		time.Sleep(constants.KillPollInterval)
	}

	e.logger.Warn().Int("pgid", pgid).Msg("process group unresponsive, sending SIGKILL")
	_ = unix.Kill(-pgid, unix.SIGKILL)
}

// groupAlive reports whether any process remains in the group.
// Signal 0 performs the existence check without delivering anything.
func groupAlive(pgid int) bool {
	return unix.Kill(-pgid, 0) == nil
}
