package notification

import (
	"context"
	"log/slog"

	"github.com/sourcegraph/conc"
)

// Manager fans one alert out to every configured channel. A failing channel
// is logged and never blocks the others.
type Manager struct {
	notifiers []Notifier
}

func NewManager(notifiers ...Notifier) *Manager {
	m := &Manager{}
	for _, n := range notifiers {
		if n.Configured() {
			m.notifiers = append(m.notifiers, n)
		} else {
			slog.Info("notification channel not configured, skipping", "channel", n.Name())
		}
	}
	return m
}

func (m *Manager) SendToAll(ctx context.Context, msg *Message) {
	var wg conc.WaitGroup
	for _, n := range m.notifiers {
		wg.Go(func() {
			if err := n.Send(ctx, msg); err != nil {
				slog.Error("failed to send notification", "channel", n.Name(), "error", err)
			}
		})
	}
	wg.Wait()
}

func (m *Manager) Channels() []string {
	names := make([]string, len(m.notifiers))
	for i, n := range m.notifiers {
		names[i] = n.Name()
	}
	return names
}
