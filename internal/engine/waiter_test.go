package engine

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctagard/dbg-bridge/internal/errors"
	"github.com/ctagard/dbg-bridge/internal/protocol"
)

func awaitAsync(w *Wait) <-chan error {
	done := make(chan error, 1)
	go func() {
		_, err := w.Await(context.Background())
		done <- err
	}()
	return done
}

func receiveErr(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("wait did not return")
	}
	return nil
}

// TestWaiter_SingleSlot verifies a second Begin fails while one wait is
// outstanding and succeeds once it is released.
func TestWaiter_SingleSlot(t *testing.T) {
	w := NewWaiter(nil, time.Millisecond)

	first, err := w.Begin(protocol.CommandGetStack)
	require.NoError(t, err)
	assert.Equal(t, protocol.CommandGetStack, w.Pending())

	_, err = w.Begin(protocol.CommandGetScope)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeWaitInProgress))

	first.Cancel()
	first.Cancel()
	assert.Empty(t, w.Pending())

	second, err := w.Begin(protocol.CommandGetScope)
	require.NoError(t, err)
	second.Cancel()
}

// TestWaiter_ReleaseMatching verifies only a response for the waited
// command, or an unconditional release, unblocks the wait.
func TestWaiter_ReleaseMatching(t *testing.T) {
	tests := []struct {
		name     string
		waitFor  string
		release  string
		released bool
	}{
		{name: "same command", waitFor: "get_stack", release: "get_stack", released: true},
		{name: "case insensitive", waitFor: "get_stack", release: "GET_STACK", released: true},
		{name: "other command", waitFor: "get_stack", release: "get_threads", released: false},
		{name: "release any", waitFor: "get_stack", release: "", released: true},
		{name: "evaluate alias", waitFor: "evaluate", release: "get_evaluation", released: true},
		{name: "scopes alias", waitFor: "get_scopes", release: "get_scope", released: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewWaiter(nil, time.Millisecond)
			wait, err := w.Begin(tt.waitFor)
			require.NoError(t, err)
			defer wait.Cancel()

			got := w.Release(tt.release, Result{Command: tt.release, Success: true})
			assert.Equal(t, tt.released, got)
		})
	}
}

// TestWaiter_AwaitResults verifies how results map to errors.
func TestWaiter_AwaitResults(t *testing.T) {
	w := NewWaiter(nil, time.Millisecond)

	wait, err := w.Begin("get_stack")
	require.NoError(t, err)
	done := awaitAsync(wait)
	w.Release("get_stack", Result{Command: "get_stack", Success: true})
	require.NoError(t, receiveErr(t, done))
	assert.Empty(t, w.Pending())

	wait, err = w.Begin("get_stack")
	require.NoError(t, err)
	done = awaitAsync(wait)
	w.Release("get_stack", Result{Command: "get_stack", Message: "no such thread"})
	err = receiveErr(t, done)
	assert.True(t, errors.HasCode(err, errors.CodeOperationFailed))
	assert.Contains(t, err.Error(), "no such thread")

	wait, err = w.Begin("get_stack")
	require.NoError(t, err)
	done = awaitAsync(wait)
	w.Release("", Result{})
	err = receiveErr(t, done)
	assert.Contains(t, err.Error(), protocol.EmptyFailureMessage)

	wait, err = w.Begin("get_scope")
	require.NoError(t, err)
	done = awaitAsync(wait)
	w.Release("", Result{Message: errors.GracefulDisconnectMessage})
	err = receiveErr(t, done)
	assert.True(t, errors.HasCode(err, errors.CodeTransportDisconnected))
}

// TestWaiter_TransportDown verifies a wait returns NOT_CONNECTED when the
// transport goes away.
func TestWaiter_TransportDown(t *testing.T) {
	var alive atomic.Bool
	alive.Store(true)
	w := NewWaiter(alive.Load, time.Millisecond)

	wait, err := w.Begin("get_threads")
	require.NoError(t, err)
	done := awaitAsync(wait)

	alive.Store(false)
	err = receiveErr(t, done)
	assert.True(t, errors.HasCode(err, errors.CodeNotConnected))
	assert.Empty(t, w.Pending())
}

// TestWaiter_ContextCanceled verifies ctx cancellation frees the slot.
func TestWaiter_ContextCanceled(t *testing.T) {
	w := NewWaiter(nil, time.Millisecond)
	wait, err := w.Begin("get_threads")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = wait.Await(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, w.Pending())
}
