package notification

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/opbridge/opbridge/internal/eventbus"
)

const eventBufSize = 64

// Dispatcher turns bus events into operator alerts. Out-of-band channels
// (web push, webhook) hear about every noteworthy transition; the chat
// channel only hears about expiries, since the channel adapter already
// carries request and prompt traffic itself.
type Dispatcher struct {
	bus     *eventbus.Bus
	manager *Manager
	chat    Notifier
}

func NewDispatcher(bus *eventbus.Bus, manager *Manager, chat Notifier) *Dispatcher {
	return &Dispatcher{
		bus:     bus,
		manager: manager,
		chat:    chat,
	}
}

// Run consumes bus events until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	subID, events := d.bus.Subscribe(eventBufSize)
	defer d.bus.Unsubscribe(subID)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			d.dispatch(ctx, event)
		}
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, event *eventbus.Event) {
	switch event.Type {
	case eventbus.EventRequestCreated:
		d.manager.SendToAll(ctx, &Message{
			Title: "Interaction request",
			Body:  event.Payload,
			Tag:   "request-" + event.ResourceID,
		})
	case eventbus.EventRequestExpired:
		msg := &Message{
			Title: "Interaction request expired",
			Body:  fmt.Sprintf("Request %s timed out without a response.", event.ResourceID),
			Tag:   "request-" + event.ResourceID,
		}
		d.manager.SendToAll(ctx, msg)
		if d.chat != nil && d.chat.Configured() {
			if err := d.chat.Send(ctx, msg); err != nil {
				slog.Warn("failed to notify chat of expiry", "error", err)
			}
		}
	case eventbus.EventPromptCreated:
		d.manager.SendToAll(ctx, &Message{
			Title: "Operator prompt queued",
			Body:  event.Payload,
			Tag:   "prompt-" + event.ResourceID,
		})
	}
}
