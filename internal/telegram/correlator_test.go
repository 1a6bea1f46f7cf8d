package telegram

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePending map[string]bool

func (f fakePending) IsPending(id string) bool { return f[id] }

const (
	authorizedChat = "12345"
	testRequestID  = "01HZX5J8K2M3N4P5Q6R7S8T9V0"
)

func TestCorrelator_ActionTokens(t *testing.T) {
	tests := []struct {
		name      string
		data      string
		wantKind  OutcomeKind
		wantValue any
	}{
		{
			name:      "confirm yes",
			data:      "confirm:" + testRequestID + ":yes",
			wantKind:  OutcomeResponse,
			wantValue: true,
		},
		{
			name:      "confirm no",
			data:      "confirm:" + testRequestID + ":no",
			wantKind:  OutcomeResponse,
			wantValue: false,
		},
		{
			name:      "select option",
			data:      "select:" + testRequestID + ":option B",
			wantKind:  OutcomeResponse,
			wantValue: "option B",
		},
		{
			name:     "cancel",
			data:     "cancel:" + testRequestID,
			wantKind: OutcomeCancel,
		},
		{
			name:     "malformed token",
			data:     "frobnicate:" + testRequestID,
			wantKind: OutcomeNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCorrelator(authorizedChat, fakePending{testRequestID: true})
			outcome := c.Correlate(&InboundEvent{
				SessionKey:  authorizedChat,
				ActionToken: tt.data,
				EventKey:    "cb:1",
			})
			assert.Equal(t, tt.wantKind, outcome.Kind)
			if tt.wantKind != OutcomeNone {
				if tt.wantKind == OutcomeResponse {
					assert.Equal(t, tt.wantValue, outcome.Value)
				}
				assert.Equal(t, testRequestID, outcome.RequestID)
			}
		})
	}
}

func TestCorrelator_ReplyCorrelation(t *testing.T) {
	c := NewCorrelator(authorizedChat, fakePending{testRequestID: true})

	outcome := c.Correlate(&InboundEvent{
		SessionKey:  authorizedChat,
		Text:        "here is my answer",
		ReplyToText: fmt.Sprintf("💬 Input Required\n\nWhat next?\n\nRequest ID: <code>%s</code>", testRequestID),
		EventKey:    "1_2_3",
	})
	require.Equal(t, OutcomeResponse, outcome.Kind)
	assert.Equal(t, testRequestID, outcome.RequestID)
	assert.Equal(t, "here is my answer", outcome.Value)
}

func TestCorrelator_ActionTokenBeatsReply(t *testing.T) {
	c := NewCorrelator(authorizedChat, fakePending{testRequestID: true})
	other := "01HZX5J8K2M3N4P5Q6R7S8T9V1"

	outcome := c.Correlate(&InboundEvent{
		SessionKey:  authorizedChat,
		ActionToken: "confirm:" + testRequestID + ":yes",
		ReplyToText: fmt.Sprintf("Request ID: <code>%s</code>", other),
		EventKey:    "cb:1",
	})
	require.Equal(t, OutcomeResponse, outcome.Kind)
	assert.Equal(t, testRequestID, outcome.RequestID)
}

func TestCorrelator_WaitingState(t *testing.T) {
	c := NewCorrelator(authorizedChat, fakePending{testRequestID: true})
	c.SetWaiting(authorizedChat, testRequestID, time.Minute)

	outcome := c.Correlate(&InboundEvent{
		SessionKey: authorizedChat,
		Text:       "the answer",
		EventKey:   "1_2_3",
	})
	require.Equal(t, OutcomeResponse, outcome.Kind)
	assert.Equal(t, testRequestID, outcome.RequestID)
	assert.Equal(t, "the answer", outcome.Value)

	// Waiting state is consumed; the next plain message is a prompt.
	outcome = c.Correlate(&InboundEvent{
		SessionKey: authorizedChat,
		Text:       "another message",
		EventKey:   "1_3_4",
	})
	assert.Equal(t, OutcomePrompt, outcome.Kind)
}

func TestCorrelator_WaitingStateLatestWins(t *testing.T) {
	second := "01HZX5J8K2M3N4P5Q6R7S8T9V1"
	c := NewCorrelator(authorizedChat, fakePending{testRequestID: true, second: true})

	c.SetWaiting(authorizedChat, testRequestID, time.Minute)
	c.SetWaiting(authorizedChat, second, time.Minute)

	outcome := c.Correlate(&InboundEvent{
		SessionKey: authorizedChat,
		Text:       "answer",
		EventKey:   "1_2_3",
	})
	require.Equal(t, OutcomeResponse, outcome.Kind)
	assert.Equal(t, second, outcome.RequestID)
}

func TestCorrelator_WaitingStateExpiredRequest(t *testing.T) {
	c := NewCorrelator(authorizedChat, fakePending{})
	c.SetWaiting(authorizedChat, testRequestID, time.Minute)

	outcome := c.Correlate(&InboundEvent{
		SessionKey: authorizedChat,
		Text:       "too late",
		EventKey:   "1_2_3",
	})
	require.Equal(t, OutcomeExpired, outcome.Kind)
	assert.Equal(t, testRequestID, outcome.RequestID)
}

func TestCorrelator_ClearWaiting(t *testing.T) {
	c := NewCorrelator(authorizedChat, fakePending{testRequestID: true})
	c.SetWaiting(authorizedChat, testRequestID, time.Minute)
	c.ClearWaiting(testRequestID)

	outcome := c.Correlate(&InboundEvent{
		SessionKey: authorizedChat,
		Text:       "hello",
		EventKey:   "1_2_3",
	})
	assert.Equal(t, OutcomePrompt, outcome.Kind)
}

func TestCorrelator_UnsolicitedPrompt(t *testing.T) {
	c := NewCorrelator(authorizedChat, fakePending{})

	outcome := c.Correlate(&InboundEvent{
		SessionKey: authorizedChat,
		Text:       "the deploy looks broken",
		EventKey:   "1_2_3",
	})
	require.Equal(t, OutcomePrompt, outcome.Kind)
	assert.Equal(t, "the deploy looks broken", outcome.Value)
}

func TestCorrelator_CommandsAreNotPrompts(t *testing.T) {
	c := NewCorrelator(authorizedChat, fakePending{})

	outcome := c.Correlate(&InboundEvent{
		SessionKey: authorizedChat,
		Text:       "/help",
		EventKey:   "1_2_3",
	})
	assert.Equal(t, OutcomeNone, outcome.Kind)
}

func TestCorrelator_UnauthorizedSession(t *testing.T) {
	c := NewCorrelator(authorizedChat, fakePending{testRequestID: true})

	outcome := c.Correlate(&InboundEvent{
		SessionKey:  "99999",
		ActionToken: "confirm:" + testRequestID + ":yes",
		EventKey:    "cb:1",
	})
	assert.Equal(t, OutcomeUnauthorized, outcome.Kind)
}

func TestCorrelator_DuplicateEventAbsorbed(t *testing.T) {
	c := NewCorrelator(authorizedChat, fakePending{testRequestID: true})
	c.SetWaiting(authorizedChat, testRequestID, time.Minute)

	event := &InboundEvent{
		SessionKey: authorizedChat,
		Text:       "answer",
		EventKey:   "1_2_3",
	}
	first := c.Correlate(event)
	require.Equal(t, OutcomeResponse, first.Kind)

	// Redelivery of the same event must not turn into a prompt.
	second := c.Correlate(event)
	assert.Equal(t, OutcomeDuplicate, second.Kind)
}

func TestCorrelator_DedupEviction(t *testing.T) {
	c := NewCorrelator(authorizedChat, fakePending{})

	for i := 0; i < dedupMaxEntries+1; i++ {
		c.markSeen(fmt.Sprintf("key-%d", i))
	}

	// The oldest batch was evicted, so the first key reads as fresh again.
	assert.True(t, c.markSeen("key-0"))
	// Recent keys are still remembered.
	assert.False(t, c.markSeen(fmt.Sprintf("key-%d", dedupMaxEntries)))
}

func TestExtractRequestID(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		wantID string
		wantOK bool
	}{
		{
			name:   "with code tags",
			text:   "Request ID: <code>" + testRequestID + "</code>",
			wantID: testRequestID,
			wantOK: true,
		},
		{
			name:   "bare id",
			text:   "Request ID: " + testRequestID,
			wantID: testRequestID,
			wantOK: true,
		},
		{
			name:   "no marker",
			text:   "just some text",
			wantOK: false,
		},
		{
			name:   "empty",
			text:   "",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := ExtractRequestID(tt.text)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantID, id)
		})
	}
}
