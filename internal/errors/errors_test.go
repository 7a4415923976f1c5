package errors

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapPreservesChain(t *testing.T) {
	wrapped := Wrap(ErrWorkflowLoad, "loading tasks.csv")
	require.Error(t, wrapped)
	assert.True(t, stderrors.Is(wrapped, ErrWorkflowLoad))
	assert.Equal(t, "loading tasks.csv: workflow load failed", wrapped.Error())
}

func TestWrapNil(t *testing.T) {
	assert.NoError(t, Wrap(nil, "context"))
	assert.NoError(t, Wrapf(nil, "context %d", 1))
}

func TestWrapfFormats(t *testing.T) {
	wrapped := Wrapf(ErrTaskIndex, "task %d of %d", 9, 3)
	require.Error(t, wrapped)
	assert.True(t, stderrors.Is(wrapped, ErrTaskIndex))
	assert.Contains(t, wrapped.Error(), "task 9 of 3")
}

func TestSentinelsAreDistinct(t *testing.T) {
	sentinels := []error{
		ErrWorkflowLoad, ErrWorkflowEmpty, ErrDuplicateTaskName, ErrUnknownKey,
		ErrStateCorrupt, ErrLockHeld, ErrTaskIndex, ErrStepIndex, ErrSpawn,
		ErrEmptyValue, ErrConfigInvalid, ErrEngineStopped,
	}
	for i, a := range sentinels {
		for j, b := range sentinels {
			if i == j {
				continue
			}
			assert.False(t, stderrors.Is(a, b), "%v should not match %v", a, b)
		}
	}
}
