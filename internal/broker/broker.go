package broker

import (
	"context"
	"sync"
	"time"

	"github.com/opbridge/opbridge/pkg/cerr"
)

// Response is the settled outcome of an interaction request. Value is either
// a string (prompt/selection) or a bool (confirmation).
type Response struct {
	ID          string    `json:"id"`
	Value       any       `json:"value"`
	RespondedAt time.Time `json:"responded_at"`
}

type settlement struct {
	response *Response
	err      *cerr.Error
}

// Broker correlates one blocked waiter per request id with the single party
// that settles that id. Each key is a single-assignment future: exactly one
// of Resolve/Fail settles it, and the key is retired when the waiter claims
// the outcome, so settling before the waiter arrives loses nothing.
// Concurrent waits on the same id are not supported; the reference flow is
// one synchronous caller per request. Futures nobody ever waits on must be
// dropped with Discard.
type Broker struct {
	mu      sync.Mutex
	futures map[string]chan settlement
}

func New() *Broker {
	return &Broker{
		futures: make(map[string]chan settlement),
	}
}

// Register creates the future for a request id. Must be called before any
// Resolve/Fail/Wait for that id. Settlement before Wait is fine: the outcome
// is buffered and the key stays registered until a waiter claims it.
func (b *Broker) Register(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.futures[id]; ok {
		return
	}
	b.futures[id] = make(chan settlement, 1)
}

// Resolve settles the future with a response. Returns false if the id is
// unknown or already settled.
func (b *Broker) Resolve(id string, response *Response) bool {
	return b.settle(id, settlement{response: response})
}

// Fail settles the future with a failure. Returns false if the id is unknown
// or already settled.
func (b *Broker) Fail(id string, err *cerr.Error) bool {
	return b.settle(id, settlement{err: err})
}

// settle buffers the outcome without retiring the key, so a waiter arriving
// after settlement still finds the future and receives the buffered value.
// The full buffer marks an already-settled future, making the first
// settlement the only one that counts.
func (b *Broker) settle(id string, s settlement) bool {
	b.mu.Lock()
	ch, ok := b.futures[id]
	b.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case ch <- s:
		return true
	default:
		return false
	}
}

// Discard drops a future without notifying anyone, settled or not.
func (b *Broker) Discard(id string) {
	b.mu.Lock()
	delete(b.futures, id)
	b.mu.Unlock()
}

// Wait blocks until the future for id settles or ctx is done, and retires the
// key once the outcome is delivered. A missing id yields NotFound: the
// request was never registered or already claimed by an earlier waiter.
// Aborting on ctx leaves the future in place for a retry.
func (b *Broker) Wait(ctx context.Context, id string) (*Response, error) {
	b.mu.Lock()
	ch, ok := b.futures[id]
	b.mu.Unlock()
	if !ok {
		return nil, cerr.NewError(cerr.NotFound, "interaction request not found", nil)
	}

	select {
	case <-ctx.Done():
		return nil, cerr.NewError(cerr.Canceled, "wait aborted", ctx.Err())
	case s := <-ch:
		b.mu.Lock()
		delete(b.futures, id)
		b.mu.Unlock()
		if s.err != nil {
			return nil, s.err
		}
		return s.response, nil
	}
}

// Pending returns the number of registered futures not yet claimed by a
// waiter, settled or not.
func (b *Broker) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.futures)
}
