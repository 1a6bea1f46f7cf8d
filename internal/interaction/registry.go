package interaction

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/opbridge/opbridge/internal/broker"
	"github.com/opbridge/opbridge/internal/config"
	"github.com/opbridge/opbridge/internal/eventbus"
	"github.com/opbridge/opbridge/pkg/cerr"
)

// sweepInterval is the period of the backstop sweep that expires requests
// whose per-request timer was lost or starved.
const sweepInterval = time.Minute

// Registry owns the set of in-flight interaction requests. A request enters
// the pending set atomically at creation and leaves it on exactly one of
// three terminal transitions: responded, timed out, or cancelled. Removal
// happens before the outcome is published, so a losing concurrent attempt
// always observes "not pending" and gets false.
type Registry struct {
	env    *config.InteractionEnv
	bus    *eventbus.Bus
	broker *broker.Broker

	mu      sync.Mutex
	pending map[string]*Request
	timers  map[string]*time.Timer
}

func NewRegistry(env *config.InteractionEnv, bus *eventbus.Bus, b *broker.Broker) *Registry {
	return &Registry{
		env:     env,
		bus:     bus,
		broker:  b,
		pending: make(map[string]*Request),
		timers:  make(map[string]*time.Timer),
	}
}

// Create validates capacity and enablement, stores a new pending request,
// arms its expiry timer, and announces it on the event bus. The announcement
// is the only way the channel adapter learns of new work. The returned
// request carries the effective timeout after default fallback.
//
// A non-positive customTimeout falls back to the configured default.
func (r *Registry) Create(kind Kind, message string, options []string, customTimeout time.Duration) (*Request, error) {
	if !r.env.Enabled {
		return nil, cerr.NewError(cerr.FailedPrecondition, "interaction feature is disabled", nil)
	}
	if !kind.Valid() {
		return nil, cerr.NewError(cerr.InvalidArgument, "unknown interaction kind", nil)
	}
	if kind == KindSelection && len(options) == 0 {
		return nil, cerr.NewError(cerr.InvalidArgument, "selection requires options", nil)
	}

	timeout := customTimeout
	if timeout <= 0 {
		timeout = r.env.DefaultTimeout()
	}

	// ULIDs carry a millisecond timestamp prefix and a random suffix, the
	// same uniqueness construction the id contract asks for.
	id := ulid.Make().String()
	req := &Request{
		ID:        id,
		Kind:      kind,
		Message:   message,
		Options:   options,
		Timeout:   timeout,
		CreatedAt: time.Now(),
	}

	r.mu.Lock()
	if len(r.pending) >= r.env.MaxPendingRequests {
		r.mu.Unlock()
		return nil, cerr.NewError(cerr.ResourceExhausted, "too many pending interaction requests", nil)
	}
	r.pending[id] = req
	r.broker.Register(id)
	r.timers[id] = time.AfterFunc(timeout, func() {
		r.expire(id)
	})
	r.mu.Unlock()

	r.bus.PublishNew(eventbus.EventRequestCreated, id, message, map[string]string{
		"kind": string(kind),
	})

	return req, nil
}

// ProvideResponse settles a pending request with a value. It returns false
// when the id is not pending (unknown, already resolved, expired, or
// cancelled); late and duplicate resolution attempts are expected under
// racing channel events and are not errors.
func (r *Registry) ProvideResponse(id string, value any) bool {
	req, ok := r.remove(id)
	if !ok {
		return false
	}

	resp := &broker.Response{
		ID:          id,
		Value:       value,
		RespondedAt: time.Now(),
	}
	r.broker.Resolve(id, resp)
	r.bus.PublishNew(eventbus.EventRequestResponded, id, "", map[string]string{
		"kind": string(req.Kind),
	})
	return true
}

// Cancel withdraws a pending request. Same removal semantics as
// ProvideResponse; the blocked waiter observes Cancelled instead of a value.
func (r *Registry) Cancel(id string) bool {
	req, ok := r.remove(id)
	if !ok {
		return false
	}

	r.broker.Fail(id, cerr.NewError(cerr.Canceled, "interaction request cancelled", nil))
	r.bus.PublishNew(eventbus.EventRequestCancelled, id, "", map[string]string{
		"kind": string(req.Kind),
	})
	return true
}

// CancelAll cancels every pending request, e.g. on shutdown.
func (r *Registry) CancelAll() {
	r.mu.Lock()
	ids := make([]string, 0, len(r.pending))
	for id := range r.pending {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	for _, id := range ids {
		r.Cancel(id)
	}
}

// expire is the timer path. The request is removed and the waiter always
// receives a timeout failure; AutoRejectOnTimeout only controls whether an
// expiry event is additionally announced for operator notification.
func (r *Registry) expire(id string) {
	req, ok := r.remove(id)
	if !ok {
		return
	}

	slog.Info("interaction request expired", "id", id, "kind", req.Kind)
	r.broker.Fail(id, cerr.NewError(cerr.DeadlineExceeded, "interaction request timed out", nil))
	if r.env.AutoRejectOnTimeout {
		r.bus.PublishNew(eventbus.EventRequestExpired, id, req.Message, map[string]string{
			"kind": string(req.Kind),
		})
	}
}

// remove takes a request out of the pending set and disarms its timer.
// Exactly one caller wins for a given id.
func (r *Registry) remove(id string) (*Request, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.pending[id]
	if !ok {
		return nil, false
	}
	delete(r.pending, id)
	if t, ok := r.timers[id]; ok {
		t.Stop()
		delete(r.timers, id)
	}
	return req, true
}

// Get returns the pending request for id, if any.
func (r *Registry) Get(id string) (*Request, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.pending[id]
	return req, ok
}

// IsPending reports whether id is still in the pending set.
func (r *Registry) IsPending(id string) bool {
	_, ok := r.Get(id)
	return ok
}

// PendingRequests returns a snapshot of the pending set. Requests are
// immutable, so sharing pointers is safe; the slice itself is a copy.
func (r *Registry) PendingRequests() []*Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	reqs := make([]*Request, 0, len(r.pending))
	for _, req := range r.pending {
		reqs = append(reqs, req)
	}
	return reqs
}

func (r *Registry) Stats() Stats {
	r.mu.Lock()
	pendingCount := len(r.pending)
	r.mu.Unlock()
	return Stats{
		Enabled:             r.env.Enabled,
		PendingCount:        pendingCount,
		MaxPending:          r.env.MaxPendingRequests,
		DefaultTimeoutMs:    r.env.DefaultTimeoutMs,
		AutoRejectOnTimeout: r.env.AutoRejectOnTimeout,
	}
}

// StartSweeper runs the periodic backstop that force-expires requests whose
// age exceeds their timeout. The per-request timer is the primary expiry
// path; the sweep is idempotent against it because expire re-checks the
// pending set.
func (r *Registry) StartSweeper(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep(time.Now())
		}
	}
}

func (r *Registry) sweep(now time.Time) {
	r.mu.Lock()
	var overdue []string
	for id, req := range r.pending {
		if now.Sub(req.CreatedAt) > req.Timeout {
			overdue = append(overdue, id)
		}
	}
	r.mu.Unlock()
	for _, id := range overdue {
		r.expire(id)
	}
}
