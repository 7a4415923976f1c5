package signal

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHandler_ContextActive(t *testing.T) {
	h := NewHandler(context.Background())
	defer h.Stop()

	require.NoError(t, h.Context().Err())

	select {
	case <-h.Interrupted():
		t.Fatal("interrupted channel should not be closed before a signal")
	default:
	}
}

func TestHandler_Stop_CancelsContext(t *testing.T) {
	h := NewHandler(context.Background())
	h.Stop()

	assert.ErrorIs(t, h.Context().Err(), context.Canceled)
}

func TestHandler_Stop_Idempotent(t *testing.T) {
	h := NewHandler(context.Background())
	h.Stop()
	h.Stop() // must not panic
}

func TestHandler_Signal_ClosesInterrupted(t *testing.T) {
	h := NewHandler(context.Background())
	defer h.Stop()

	// Inject a signal directly instead of raising a real one: raising
	// SIGINT in tests would hit the whole test process.
	h.handleSignal()

	select {
	case <-h.Interrupted():
	case <-time.After(time.Second):
		t.Fatal("interrupted channel did not close after signal")
	}
	assert.ErrorIs(t, h.Context().Err(), context.Canceled)
}

func TestHandler_ParentCancellationPropagates(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	h := NewHandler(parent)
	defer h.Stop()

	cancel()

	assert.Eventually(t, func() bool {
		return h.Context().Err() != nil
	}, time.Second, 10*time.Millisecond)
}
