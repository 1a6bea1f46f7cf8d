package telegram

import (
	"regexp"
	"strings"
	"sync"
	"time"
)

const (
	// dedupMaxEntries bounds the seen-event set; when it overflows, the
	// oldest dedupEvictBatch keys are dropped at once.
	dedupMaxEntries = 1000
	dedupEvictBatch = 100
)

// requestIDPattern finds the request id token embedded in outbound request
// text, so a plain reply to that message can be correlated without buttons.
var requestIDPattern = regexp.MustCompile(`Request ID:\s*(?:<code>)?([0-9A-HJKMNP-TV-Z]{26})(?:</code>)?`)

// InboundEvent is a channel-agnostic view of one operator message or button
// press. EventKey must be stable across redeliveries of the same event.
type InboundEvent struct {
	SessionKey  string
	Text        string
	ActionToken string
	ReplyToText string
	SenderLabel string
	EventKey    string
}

type OutcomeKind int

const (
	// OutcomeNone means the event carried nothing actionable (malformed
	// token, bare command, empty text).
	OutcomeNone OutcomeKind = iota
	OutcomeResponse
	OutcomeCancel
	OutcomeExpired
	OutcomePrompt
	OutcomeDuplicate
	OutcomeUnauthorized
)

// Outcome is the correlation verdict for one inbound event. For
// OutcomeResponse, Value holds the operator's answer (bool for confirmations,
// string otherwise). For OutcomeExpired, RequestID names the request the
// operator tried to answer too late.
type Outcome struct {
	Kind      OutcomeKind
	RequestID string
	Value     any
}

// PendingChecker reports whether a request id is still awaiting a response.
// The waiting-state table is advisory; the registry stays the source of truth.
type PendingChecker interface {
	IsPending(id string) bool
}

// Correlator matches inbound chat events to pending interaction requests.
// Matching rules apply in priority order: explicit action token, reply to a
// message carrying a request id, waiting state for the session, and finally
// unsolicited prompt. Events from sessions other than the authorized one are
// rejected, and duplicate deliveries are absorbed before any rule runs.
type Correlator struct {
	authorizedSession string
	pending           PendingChecker

	mu        sync.Mutex
	seen      map[string]struct{}
	seenOrder []string
	waiting   map[string]string // session key -> request id, latest wins
	timers    map[string]*time.Timer
}

func NewCorrelator(authorizedSession string, pending PendingChecker) *Correlator {
	return &Correlator{
		authorizedSession: authorizedSession,
		pending:           pending,
		seen:              make(map[string]struct{}),
		waiting:           make(map[string]string),
		timers:            make(map[string]*time.Timer),
	}
}

// Correlate classifies one inbound event. It consumes waiting state when rule
// three matches, so calling it has side effects beyond dedup bookkeeping.
func (c *Correlator) Correlate(ev *InboundEvent) Outcome {
	if ev.SessionKey != c.authorizedSession {
		return Outcome{Kind: OutcomeUnauthorized}
	}
	if ev.EventKey != "" && !c.markSeen(ev.EventKey) {
		return Outcome{Kind: OutcomeDuplicate}
	}

	if ev.ActionToken != "" {
		return c.correlateAction(ev.ActionToken)
	}

	if id, ok := ExtractRequestID(ev.ReplyToText); ok {
		return Outcome{Kind: OutcomeResponse, RequestID: id, Value: ev.Text}
	}

	if id, ok := c.takeWaiting(ev.SessionKey); ok {
		if !c.pending.IsPending(id) {
			return Outcome{Kind: OutcomeExpired, RequestID: id}
		}
		return Outcome{Kind: OutcomeResponse, RequestID: id, Value: ev.Text}
	}

	if ev.Text == "" || strings.HasPrefix(ev.Text, "/") {
		return Outcome{Kind: OutcomeNone}
	}
	return Outcome{Kind: OutcomePrompt, Value: ev.Text}
}

func (c *Correlator) correlateAction(data string) Outcome {
	token, ok := ParseActionToken(data)
	if !ok {
		return Outcome{Kind: OutcomeNone}
	}
	switch token.Action {
	case ActionCancel:
		return Outcome{Kind: OutcomeCancel, RequestID: token.RequestID}
	case ActionConfirm:
		return Outcome{Kind: OutcomeResponse, RequestID: token.RequestID, Value: token.Value == "yes"}
	default:
		return Outcome{Kind: OutcomeResponse, RequestID: token.RequestID, Value: token.Value}
	}
}

// ExtractRequestID pulls the embedded request id out of outbound message
// text, if present.
func ExtractRequestID(text string) (string, bool) {
	if text == "" {
		return "", false
	}
	m := requestIDPattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// markSeen records an event key, returning false when it was already present.
func (c *Correlator) markSeen(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.seen[key]; ok {
		return false
	}
	c.seen[key] = struct{}{}
	c.seenOrder = append(c.seenOrder, key)
	if len(c.seenOrder) > dedupMaxEntries {
		for _, old := range c.seenOrder[:dedupEvictBatch] {
			delete(c.seen, old)
		}
		c.seenOrder = c.seenOrder[dedupEvictBatch:]
	}
	return true
}

// SetWaiting marks a session as expecting free-text input for a request.
// A later call for the same session overwrites the earlier one; the entry
// self-clears after ttl so stale state cannot swallow future messages.
func (c *Correlator) SetWaiting(sessionKey, requestID string, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.timers[sessionKey]; ok {
		t.Stop()
	}
	c.waiting[sessionKey] = requestID
	c.timers[sessionKey] = time.AfterFunc(ttl, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.waiting[sessionKey] == requestID {
			delete(c.waiting, sessionKey)
			delete(c.timers, sessionKey)
		}
	})
}

// ClearWaiting drops any waiting entry pointing at requestID, e.g. after an
// outbound delivery failure.
func (c *Correlator) ClearWaiting(requestID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for session, id := range c.waiting {
		if id == requestID {
			delete(c.waiting, session)
			if t, ok := c.timers[session]; ok {
				t.Stop()
				delete(c.timers, session)
			}
		}
	}
}

func (c *Correlator) takeWaiting(sessionKey string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.waiting[sessionKey]
	if !ok {
		return "", false
	}
	delete(c.waiting, sessionKey)
	if t, tok := c.timers[sessionKey]; tok {
		t.Stop()
		delete(c.timers, sessionKey)
	}
	return id, true
}
