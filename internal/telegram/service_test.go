package telegram

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opbridge/opbridge/internal/interaction"
)

func TestFormatRequest_EmbedsExtractableID(t *testing.T) {
	req := &interaction.Request{
		ID:        testRequestID,
		Kind:      interaction.KindPrompt,
		Message:   "What should I do next?",
		Timeout:   time.Minute,
		CreatedAt: time.Now(),
	}

	text := formatRequest(req)
	assert.Contains(t, text, "What should I do next?")

	// A reply to this message must correlate back to the request.
	id, ok := ExtractRequestID(text)
	require.True(t, ok)
	assert.Equal(t, req.ID, id)
}

func TestSenderLabel(t *testing.T) {
	tests := []struct {
		name string
		user *User
		want string
	}{
		{
			name: "username preferred",
			user: &User{Username: "alice", FirstName: "Alice"},
			want: "@alice",
		},
		{
			name: "full name fallback",
			user: &User{FirstName: "Alice", LastName: "Smith"},
			want: "Alice Smith",
		},
		{
			name: "first name only",
			user: &User{FirstName: "Alice"},
			want: "Alice",
		},
		{
			name: "nil user",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, senderLabel(tt.user))
		})
	}
}
