// Package errors provides centralized error handling for taskpanel.
//
// This package defines sentinel errors used for programmatic error
// categorization throughout the application. All error types can be checked
// using errors.Is().
//
// IMPORTANT: This package MUST NOT import any other internal packages.
// Only standard library imports are allowed.
package errors

import "errors"

// Sentinel errors for error categorization.
// These allow callers to check error types with errors.Is().
// All errors use lowercase descriptions per Go conventions.
var (
	// ErrWorkflowLoad indicates the workflow file could not be read or
	// parsed. The process exits with code 1 when this is the cause.
	ErrWorkflowLoad = errors.New("workflow load failed")

	// ErrWorkflowEmpty indicates the workflow file contains no tasks.
	ErrWorkflowEmpty = errors.New("workflow contains no tasks")

	// ErrDuplicateTaskName indicates two tasks share a display name.
	ErrDuplicateTaskName = errors.New("duplicate task name")

	// ErrUnknownKey indicates an unrecognized key in a YAML workflow.
	ErrUnknownKey = errors.New("unknown key in workflow")

	// ErrStateCorrupt indicates the persisted state file could not be
	// parsed. Loads treat this as an empty state, not a fatal error.
	ErrStateCorrupt = errors.New("state file corrupt")

	// ErrLockHeld indicates another panel already holds the workflow lock.
	ErrLockHeld = errors.New("workflow already in use by another process")

	// ErrTaskIndex indicates a task index out of range.
	ErrTaskIndex = errors.New("task index out of range")

	// ErrStepIndex indicates a step index out of range.
	ErrStepIndex = errors.New("step index out of range")

	// ErrSpawn indicates a step's child process could not be started.
	ErrSpawn = errors.New("failed to spawn step process")

	// ErrEmptyValue indicates that a required value was empty.
	ErrEmptyValue = errors.New("value cannot be empty")

	// ErrConfigInvalid indicates an invalid configuration value.
	ErrConfigInvalid = errors.New("invalid configuration")

	// ErrEngineStopped indicates a run was submitted after shutdown began.
	ErrEngineStopped = errors.New("engine is shutting down")
)
