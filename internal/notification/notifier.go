package notification

import "context"

// Message is a channel-independent operator alert.
type Message struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url,omitempty"`
	Tag   string `json:"tag,omitempty"`
}

// Notifier delivers alerts over one channel. Implementations must be safe for
// concurrent Send calls.
type Notifier interface {
	Name() string
	Send(ctx context.Context, msg *Message) error
	Configured() bool
}
