// Package state persists per-step statuses across restarts so a workflow
// can resume precisely from the point of failure without replaying side
// effects. The store implements atomic writes (temp file + fsync + rename)
// and selective invalidation: a persisted task is only applied when its
// structural hash still matches the workflow on disk.
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/mrz1836/taskpanel/internal/constants"
	"github.com/mrz1836/taskpanel/internal/errors"
	"github.com/mrz1836/taskpanel/internal/flock"
)

// File is the on-disk shape of the state file.
type File struct {
	// Version is the state schema version.
	Version int `json:"version"`

	// Session identifies the panel process that last wrote the file.
	Session string `json:"session,omitempty"`

	// Tasks maps task id to its persisted projection.
	Tasks map[string]PersistedTask `json:"tasks"`
}

// PersistedTask is the saved projection of one task.
type PersistedTask struct {
	// StructuralHash is the digest of the task's step headers and
	// commands at save time. Load drops the entry when it no longer
	// matches the workflow.
	StructuralHash string `json:"structural_hash"`

	// Steps holds one status per step, by index.
	Steps []constants.StepStatus `json:"steps"`
}

// Store reads and writes the state file for one workflow.
type Store struct {
	path   string
	logger zerolog.Logger
}

// NewStore creates a store for the given workflow file. The state file is a
// sibling of the workflow named .<workflow_basename>.state.json so that two
// workflows in the same directory never share state.
func NewStore(workflowPath string, logger zerolog.Logger) *Store {
	dir := filepath.Dir(workflowPath)
	base := filepath.Base(workflowPath)
	return &Store{
		path:   filepath.Join(dir, constants.StatePrefix+base+constants.StateSuffix),
		logger: logger,
	}
}

// Path returns the state file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the state file and returns the persisted tasks whose
// structural hash matches the current workflow. Entries with a stale hash
// are dropped individually; editing one row never discards the others.
//
// A missing or malformed file is not an error: both return an empty map so
// the run starts fresh.
func (s *Store) Load(ctx context.Context, currentHashes map[string]string) (map[string]PersistedTask, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path) //#nosec G304 -- path is derived from the operator's workflow path
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Debug().Str("path", s.path).Msg("no state file, starting fresh")
			return map[string]PersistedTask{}, nil
		}
		return nil, errors.Wrapf(err, "failed to read state file %q", s.path)
	}

	var file File
	if err := json.Unmarshal(data, &file); err != nil {
		s.logger.Warn().Err(err).Str("path", s.path).Msg("state file corrupt, starting fresh")
		return map[string]PersistedTask{}, nil
	}
	if file.Version != constants.StateFileVersion {
		s.logger.Warn().
			Int("version", file.Version).
			Int("expected", constants.StateFileVersion).
			Msg("state file version mismatch, starting fresh")
		return map[string]PersistedTask{}, nil
	}

	matched := make(map[string]PersistedTask, len(file.Tasks))
	for id, pt := range file.Tasks {
		hash, known := currentHashes[id]
		if !known {
			s.logger.Debug().Str("task_id", id).Msg("persisted task no longer in workflow, dropping")
			continue
		}
		if pt.StructuralHash != hash {
			s.logger.Info().Str("task_id", id).Msg("task commands changed, discarding its saved state")
			continue
		}
		matched[id] = pt
	}

	s.logger.Info().
		Int("persisted", len(file.Tasks)).
		Int("matched", len(matched)).
		Msg("state file loaded")
	return matched, nil
}

// Save writes the full projection atomically: sibling temp file, fsync,
// rename over the target. A crash at any moment leaves either the old file
// or the new file intact, never a partial one.
func (s *Store) Save(ctx context.Context, file File) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	file.Version = constants.StateFileVersion

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal state")
	}
	if err := atomicWrite(s.path, data); err != nil {
		return errors.Wrapf(err, "failed to save state file %q", s.path)
	}

	s.logger.Debug().Str("path", s.path).Int("tasks", len(file.Tasks)).Msg("state saved")
	return nil
}

// Lock acquires the exclusive workflow lock, preventing a second panel from
// driving the same workflow. The returned release func unlocks and removes
// the lock file. Returns ErrLockHeld when another process has it.
func (s *Store) Lock() (func(), error) {
	lockPath := s.path + constants.LockSuffix

	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, constants.FilePerm) //#nosec G304 -- path is derived internally
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open lock file %q", lockPath)
	}
	if err := flock.Exclusive(f.Fd()); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%w: %s", errors.ErrLockHeld, lockPath)
	}

	release := func() {
		_ = flock.Unlock(f.Fd())
		_ = f.Close()
		_ = os.Remove(lockPath)
	}
	return release, nil
}

// atomicWrite writes data to a file atomically using write-then-fsync-then-
// rename. The temp file lives in the same directory so the rename cannot
// cross filesystems.
func atomicWrite(path string, data []byte) error {
	tmpPath := path + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, constants.FilePerm) //#nosec G304 -- path is constructed internally
	if err != nil {
		return errors.Wrap(err, "failed to create temp file")
	}

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return errors.Wrap(err, "failed to write data")
	}

	// Data must be on disk before the rename publishes it.
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return errors.Wrap(err, "failed to sync file")
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return errors.Wrap(err, "failed to close file")
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return errors.Wrap(err, "failed to rename file")
	}

	return nil
}
