package promptqueue

import (
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/opbridge/opbridge/internal/config"
	"github.com/opbridge/opbridge/internal/eventbus"
	"github.com/opbridge/opbridge/pkg/cerr"
)

// Prompt is an unsolicited operator message that did not correlate to any
// pending interaction request. Unlike registry requests, prompts stay in the
// queue after processing (for audit) until explicitly removed or cleaned up.
type Prompt struct {
	ID          string    `json:"id"`
	SessionKey  string    `json:"session_key"`
	SenderLabel string    `json:"sender_label,omitempty"`
	Text        string    `json:"text"`
	CreatedAt   time.Time `json:"created_at"`
	Processed   bool      `json:"processed"`
	Response    string    `json:"response,omitempty"`
}

type Stats struct {
	Enabled      bool `json:"enabled"`
	Total        int  `json:"total"`
	Pending      int  `json:"pending"`
	Processed    int  `json:"processed"`
	MaxQueueSize int  `json:"max_queue_size"`
}

// Queue is the bounded buffer for unsolicited prompts, independent of the
// interaction request registry.
type Queue struct {
	env *config.PromptEnv
	bus *eventbus.Bus

	mu      sync.Mutex
	prompts map[string]*Prompt
	order   []string // ids in insertion order
}

func NewQueue(env *config.PromptEnv, bus *eventbus.Bus) *Queue {
	return &Queue{
		env:     env,
		bus:     bus,
		prompts: make(map[string]*Prompt),
	}
}

// Add enqueues a new prompt. It fails rather than evicting when the queue is
// full; processed-but-unremoved entries still count against capacity.
func (q *Queue) Add(sessionKey, text, senderLabel string) (string, error) {
	if !q.env.Enabled {
		return "", cerr.NewError(cerr.FailedPrecondition, "prompt feature is disabled", nil)
	}

	id := ulid.Make().String()
	prompt := &Prompt{
		ID:          id,
		SessionKey:  sessionKey,
		SenderLabel: senderLabel,
		Text:        text,
		CreatedAt:   time.Now(),
	}

	q.mu.Lock()
	if len(q.prompts) >= q.env.MaxQueueSize {
		q.mu.Unlock()
		return "", cerr.NewError(cerr.ResourceExhausted, "prompt queue is full", nil)
	}
	q.prompts[id] = prompt
	q.order = append(q.order, id)
	q.mu.Unlock()

	q.bus.PublishNew(eventbus.EventPromptCreated, id, text, map[string]string{
		"session_key": sessionKey,
	})
	if q.env.AutoProcess {
		// The queue itself never processes; consumers decide what this means.
		q.bus.PublishNew(eventbus.EventPromptProcess, id, text, map[string]string{
			"session_key": sessionKey,
		})
	}

	return id, nil
}

// MarkProcessed records the consumer's outcome on the entry in place.
// Returns false for an unknown id.
func (q *Queue) MarkProcessed(id, response string) bool {
	q.mu.Lock()
	prompt, ok := q.prompts[id]
	if ok {
		prompt.Processed = true
		prompt.Response = response
	}
	q.mu.Unlock()
	if !ok {
		return false
	}

	q.bus.PublishNew(eventbus.EventPromptProcessed, id, response, map[string]string{
		"session_key": prompt.SessionKey,
	})
	return true
}

// Remove deletes a prompt regardless of processed state.
func (q *Queue) Remove(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.prompts[id]; !ok {
		return false
	}
	delete(q.prompts, id)
	q.dropFromOrder(id)
	return true
}

// CleanupProcessed removes every processed entry and returns the count.
func (q *Queue) CleanupProcessed() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	removed := 0
	for id, prompt := range q.prompts {
		if prompt.Processed {
			delete(q.prompts, id)
			q.dropFromOrder(id)
			removed++
		}
	}
	return removed
}

func (q *Queue) dropFromOrder(id string) {
	for i, oid := range q.order {
		if oid == id {
			q.order = append(q.order[:i], q.order[i+1:]...)
			return
		}
	}
}

// Get returns a copy of the prompt with the given id.
func (q *Queue) Get(id string) (*Prompt, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	prompt, ok := q.prompts[id]
	if !ok {
		return nil, false
	}
	c := *prompt
	return &c, true
}

// Pending returns unprocessed prompts in insertion order.
func (q *Queue) Pending() []*Prompt {
	return q.snapshot(func(p *Prompt) bool { return !p.Processed })
}

// All returns every prompt, processed included, in insertion order.
func (q *Queue) All() []*Prompt {
	return q.snapshot(func(p *Prompt) bool { return true })
}

func (q *Queue) snapshot(keep func(*Prompt) bool) []*Prompt {
	q.mu.Lock()
	defer q.mu.Unlock()
	prompts := make([]*Prompt, 0, len(q.order))
	for _, id := range q.order {
		if prompt, ok := q.prompts[id]; ok && keep(prompt) {
			c := *prompt
			prompts = append(prompts, &c)
		}
	}
	return prompts
}

func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	processed := 0
	for _, prompt := range q.prompts {
		if prompt.Processed {
			processed++
		}
	}
	return Stats{
		Enabled:      q.env.Enabled,
		Total:        len(q.prompts),
		Pending:      len(q.prompts) - processed,
		Processed:    processed,
		MaxQueueSize: q.env.MaxQueueSize,
	}
}
