package interaction

import "time"

type Kind string

const (
	KindPrompt       Kind = "prompt"
	KindConfirmation Kind = "confirmation"
	KindSelection    Kind = "selection"
)

func (k Kind) Valid() bool {
	switch k {
	case KindPrompt, KindConfirmation, KindSelection:
		return true
	}
	return false
}

// Request is a question posed to the operator, owned by the Registry while
// pending. It is never mutated after creation; every lifecycle transition
// removes it from the pending set.
type Request struct {
	ID        string
	Kind      Kind
	Message   string
	Options   []string // non-empty only for KindSelection
	Timeout   time.Duration
	CreatedAt time.Time
}

// Stats is a point-in-time summary of the registry.
type Stats struct {
	Enabled             bool  `json:"enabled"`
	PendingCount        int   `json:"pending_count"`
	MaxPending          int   `json:"max_pending"`
	DefaultTimeoutMs    int64 `json:"default_timeout_ms"`
	AutoRejectOnTimeout bool  `json:"auto_reject_on_timeout"`
}
