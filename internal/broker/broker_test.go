package broker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opbridge/opbridge/pkg/cerr"
)

func TestBroker_ResolveBeforeWait(t *testing.T) {
	b := New()
	b.Register("req-1")

	ok := b.Resolve("req-1", &Response{ID: "req-1", Value: "answer", RespondedAt: time.Now()})
	require.True(t, ok)

	// The outcome is buffered, so a late waiter still receives it.
	resp, err := b.Wait(context.Background(), "req-1")
	require.NoError(t, err)
	assert.Equal(t, "answer", resp.Value)
}

func TestBroker_WaitThenResolve(t *testing.T) {
	b := New()
	b.Register("req-1")

	done := make(chan struct{})
	var resp *Response
	var waitErr error
	go func() {
		resp, waitErr = b.Wait(context.Background(), "req-1")
		close(done)
	}()

	// Give the waiter a moment to block.
	time.Sleep(10 * time.Millisecond)
	require.True(t, b.Resolve("req-1", &Response{ID: "req-1", Value: true}))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("waiter did not unblock")
	}
	require.NoError(t, waitErr)
	assert.Equal(t, true, resp.Value)
}

func TestBroker_SettleExactlyOnce(t *testing.T) {
	b := New()
	b.Register("req-1")

	require.True(t, b.Resolve("req-1", &Response{ID: "req-1", Value: "first"}))
	assert.False(t, b.Resolve("req-1", &Response{ID: "req-1", Value: "second"}))
	assert.False(t, b.Fail("req-1", cerr.NewError(cerr.Canceled, "late", nil)))

	// The settled future stays claimable until a waiter picks it up, and the
	// first settlement is the one delivered.
	assert.Equal(t, 1, b.Pending())
	resp, err := b.Wait(context.Background(), "req-1")
	require.NoError(t, err)
	assert.Equal(t, "first", resp.Value)
	assert.Equal(t, 0, b.Pending())
}

func TestBroker_WaitRetiresFuture(t *testing.T) {
	b := New()
	b.Register("req-1")
	require.True(t, b.Resolve("req-1", &Response{ID: "req-1", Value: "answer"}))

	_, err := b.Wait(context.Background(), "req-1")
	require.NoError(t, err)

	// The key is retired only after the outcome was delivered.
	_, err = b.Wait(context.Background(), "req-1")
	require.Error(t, err)
	assert.True(t, cerr.IsCode(err, cerr.NotFound))
}

func TestBroker_AbortedWaitKeepsFuture(t *testing.T) {
	b := New()
	b.Register("req-1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := b.Wait(ctx, "req-1")
	require.Error(t, err)

	// A retry after the aborted wait still receives the outcome.
	require.True(t, b.Resolve("req-1", &Response{ID: "req-1", Value: "answer"}))
	resp, err := b.Wait(context.Background(), "req-1")
	require.NoError(t, err)
	assert.Equal(t, "answer", resp.Value)
}

func TestBroker_FailPropagatesCode(t *testing.T) {
	b := New()
	b.Register("req-1")

	require.True(t, b.Fail("req-1", cerr.NewError(cerr.DeadlineExceeded, "timed out", nil)))

	_, err := b.Wait(context.Background(), "req-1")
	require.Error(t, err)
	assert.True(t, cerr.IsCode(err, cerr.DeadlineExceeded))
}

func TestBroker_WaitUnknownID(t *testing.T) {
	b := New()

	_, err := b.Wait(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, cerr.IsCode(err, cerr.NotFound))
}

func TestBroker_WaitCancelledContext(t *testing.T) {
	b := New()
	b.Register("req-1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := b.Wait(ctx, "req-1")
	require.Error(t, err)
	assert.True(t, cerr.IsCode(err, cerr.Canceled))
}

func TestBroker_Discard(t *testing.T) {
	b := New()
	b.Register("req-1")
	b.Discard("req-1")

	assert.Equal(t, 0, b.Pending())
	assert.False(t, b.Resolve("req-1", &Response{ID: "req-1"}))
}
