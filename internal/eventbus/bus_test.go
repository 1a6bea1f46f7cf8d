package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := New()
	id, events := bus.Subscribe(8)
	defer bus.Unsubscribe(id)

	bus.PublishNew(EventRequestCreated, "req-1", "need input", map[string]string{"kind": "prompt"})

	select {
	case event := <-events:
		assert.Equal(t, EventRequestCreated, event.Type)
		assert.Equal(t, "req-1", event.ResourceID)
		assert.Equal(t, "need input", event.Payload)
		assert.Equal(t, "prompt", event.Metadata["kind"])
		assert.NotEmpty(t, event.ID)
	case <-time.After(time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestBus_MultipleSubscribers(t *testing.T) {
	bus := New()
	id1, ch1 := bus.Subscribe(1)
	id2, ch2 := bus.Subscribe(1)
	defer bus.Unsubscribe(id1)
	defer bus.Unsubscribe(id2)

	bus.PublishNew(EventPromptCreated, "p-1", "hello", nil)

	for _, ch := range []<-chan *Event{ch1, ch2} {
		select {
		case event := <-ch:
			assert.Equal(t, "p-1", event.ResourceID)
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}
}

func TestBus_SlowSubscriberDoesNotBlockPublish(t *testing.T) {
	bus := New()
	id, events := bus.Subscribe(1)
	defer bus.Unsubscribe(id)

	// Fill the buffer; further publishes must not block.
	bus.PublishNew(EventRequestCreated, "req-1", "", nil)
	done := make(chan struct{})
	go func() {
		bus.PublishNew(EventRequestCreated, "req-2", "", nil)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}

	// Only the first event made it through.
	event := <-events
	require.Equal(t, "req-1", event.ResourceID)
	select {
	case extra := <-events:
		t.Fatalf("unexpected extra event: %s", extra.ResourceID)
	default:
	}
}

func TestBus_UnsubscribeClosesChannel(t *testing.T) {
	bus := New()
	id, events := bus.Subscribe(1)
	bus.Unsubscribe(id)

	_, open := <-events
	assert.False(t, open)
}
