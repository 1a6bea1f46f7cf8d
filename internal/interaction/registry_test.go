package interaction

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opbridge/opbridge/internal/broker"
	"github.com/opbridge/opbridge/internal/config"
	"github.com/opbridge/opbridge/internal/eventbus"
	"github.com/opbridge/opbridge/pkg/cerr"
)

func testEnv() *config.InteractionEnv {
	return &config.InteractionEnv{
		Enabled:             true,
		DefaultTimeoutMs:    60000,
		MaxPendingRequests:  10,
		AutoRejectOnTimeout: true,
	}
}

func newTestRegistry(env *config.InteractionEnv) (*Registry, *broker.Broker, *eventbus.Bus) {
	bus := eventbus.New()
	b := broker.New()
	return NewRegistry(env, bus, b), b, bus
}

func TestRegistry_CreateAssignsUniqueIDs(t *testing.T) {
	registry, _, _ := newTestRegistry(testEnv())

	seen := make(map[string]bool)
	for i := 0; i < 5; i++ {
		req, err := registry.Create(KindPrompt, "what next?", nil, 0)
		require.NoError(t, err)
		assert.False(t, seen[req.ID], "duplicate id %s", req.ID)
		seen[req.ID] = true
		assert.True(t, registry.IsPending(req.ID))
	}
	assert.Equal(t, 5, registry.Stats().PendingCount)
}

func TestRegistry_CreateValidation(t *testing.T) {
	tests := []struct {
		name    string
		kind    Kind
		options []string
		code    cerr.Code
	}{
		{
			name: "unknown kind",
			kind: Kind("poke"),
			code: cerr.InvalidArgument,
		},
		{
			name: "selection without options",
			kind: KindSelection,
			code: cerr.InvalidArgument,
		},
	}

	registry, _, _ := newTestRegistry(testEnv())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := registry.Create(tt.kind, "msg", tt.options, 0)
			require.Error(t, err)
			assert.True(t, cerr.IsCode(err, tt.code))
		})
	}
}

func TestRegistry_CreateDisabled(t *testing.T) {
	env := testEnv()
	env.Enabled = false
	registry, _, _ := newTestRegistry(env)

	_, err := registry.Create(KindPrompt, "msg", nil, 0)
	require.Error(t, err)
	assert.True(t, cerr.IsCode(err, cerr.FailedPrecondition))
}

func TestRegistry_CapacityLimit(t *testing.T) {
	env := testEnv()
	env.MaxPendingRequests = 2
	registry, _, _ := newTestRegistry(env)

	first, err := registry.Create(KindPrompt, "one", nil, 0)
	require.NoError(t, err)
	_, err = registry.Create(KindPrompt, "two", nil, 0)
	require.NoError(t, err)

	_, err = registry.Create(KindPrompt, "three", nil, 0)
	require.Error(t, err)
	assert.True(t, cerr.IsCode(err, cerr.ResourceExhausted))

	// Settling one frees capacity.
	require.True(t, registry.ProvideResponse(first.ID, "done"))
	_, err = registry.Create(KindPrompt, "three again", nil, 0)
	assert.NoError(t, err)
}

func TestRegistry_ProvideResponseExactlyOnce(t *testing.T) {
	registry, b, _ := newTestRegistry(testEnv())

	req, err := registry.Create(KindConfirmation, "sure?", nil, 0)
	require.NoError(t, err)

	require.True(t, registry.ProvideResponse(req.ID, true))
	assert.False(t, registry.ProvideResponse(req.ID, false), "second response must be rejected")
	assert.False(t, registry.Cancel(req.ID), "cancel after response must be rejected")
	assert.False(t, registry.IsPending(req.ID))

	resp, err := b.Wait(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, true, resp.Value)
}

func TestRegistry_ResponseBeforeWaitIsDelivered(t *testing.T) {
	registry, b, _ := newTestRegistry(testEnv())

	req, err := registry.Create(KindPrompt, "what next?", nil, 0)
	require.NoError(t, err)

	// The operator answers before the agent starts waiting; the buffered
	// answer must survive until the wait arrives.
	require.True(t, registry.ProvideResponse(req.ID, "ship it"))

	resp, err := b.Wait(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, "ship it", resp.Value)
}

func TestRegistry_ProvideResponseUnknownID(t *testing.T) {
	registry, _, _ := newTestRegistry(testEnv())
	assert.False(t, registry.ProvideResponse("nope", "value"))
}

func TestRegistry_CancelFailsWaiter(t *testing.T) {
	registry, b, _ := newTestRegistry(testEnv())

	req, err := registry.Create(KindPrompt, "question", nil, 0)
	require.NoError(t, err)
	require.True(t, registry.Cancel(req.ID))

	_, err = b.Wait(context.Background(), req.ID)
	require.Error(t, err)
	assert.True(t, cerr.IsCode(err, cerr.Canceled))
}

func TestRegistry_TimeoutFailsWaiter(t *testing.T) {
	registry, b, bus := newTestRegistry(testEnv())
	_, events := bus.Subscribe(8)

	req, err := registry.Create(KindPrompt, "question", nil, 20*time.Millisecond)
	require.NoError(t, err)

	_, err = b.Wait(context.Background(), req.ID)
	require.Error(t, err)
	assert.True(t, cerr.IsCode(err, cerr.DeadlineExceeded))
	assert.False(t, registry.IsPending(req.ID))

	// Late answers after expiry are rejected.
	assert.False(t, registry.ProvideResponse(req.ID, "too late"))

	// Creation and expiry were both announced.
	types := collectEventTypes(t, events, 2)
	assert.Contains(t, types, eventbus.EventRequestCreated)
	assert.Contains(t, types, eventbus.EventRequestExpired)
}

func TestRegistry_TimeoutWithoutAutoRejectStillExpires(t *testing.T) {
	env := testEnv()
	env.AutoRejectOnTimeout = false
	registry, b, bus := newTestRegistry(env)
	_, events := bus.Subscribe(8)

	req, err := registry.Create(KindPrompt, "question", nil, 20*time.Millisecond)
	require.NoError(t, err)

	// The waiter still observes the timeout; only the expiry announcement
	// is suppressed.
	_, err = b.Wait(context.Background(), req.ID)
	require.Error(t, err)
	assert.True(t, cerr.IsCode(err, cerr.DeadlineExceeded))

	types := collectEventTypes(t, events, 1)
	assert.Contains(t, types, eventbus.EventRequestCreated)
	assert.NotContains(t, types, eventbus.EventRequestExpired)
}

func TestRegistry_DefaultTimeoutApplied(t *testing.T) {
	registry, _, _ := newTestRegistry(testEnv())

	// The returned request reports the effective timeout, not the zero
	// value the caller passed.
	req, err := registry.Create(KindPrompt, "question", nil, 0)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, req.Timeout)
	assert.False(t, req.CreatedAt.IsZero())

	custom, err := registry.Create(KindPrompt, "question", nil, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, custom.Timeout)
}

func TestRegistry_SweepExpiresOverdueRequests(t *testing.T) {
	registry, b, _ := newTestRegistry(testEnv())

	req, err := registry.Create(KindPrompt, "question", nil, 10*time.Millisecond)
	require.NoError(t, err)
	id := req.ID

	// Stop the primary timer to simulate a lost timer, then sweep.
	registry.mu.Lock()
	registry.timers[id].Stop()
	registry.mu.Unlock()

	time.Sleep(20 * time.Millisecond)
	registry.sweep(time.Now())

	assert.False(t, registry.IsPending(id))
	_, err = b.Wait(context.Background(), id)
	assert.True(t, cerr.IsCode(err, cerr.DeadlineExceeded))

	// A second sweep is a no-op.
	registry.sweep(time.Now())
}

func TestRegistry_CancelAll(t *testing.T) {
	registry, _, _ := newTestRegistry(testEnv())

	for i := 0; i < 3; i++ {
		_, err := registry.Create(KindPrompt, "question", nil, 0)
		require.NoError(t, err)
	}
	registry.CancelAll()
	assert.Equal(t, 0, registry.Stats().PendingCount)
}

func collectEventTypes(t *testing.T, events <-chan *eventbus.Event, n int) []eventbus.EventType {
	t.Helper()
	var types []eventbus.EventType
	for i := 0; i < n; i++ {
		select {
		case event := <-events:
			types = append(types, event.Type)
		case <-time.After(time.Second):
			t.Fatalf("expected %d events, got %d", n, len(types))
		}
	}
	return types
}
