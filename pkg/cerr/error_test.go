package cerr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opbridge/opbridge/pkg/storage"
)

func TestNewError_StackCaptureByLevel(t *testing.T) {
	// Error-level codes capture a stack, expected failures do not.
	internal := NewError(Internal, "server error", nil)
	assert.NotEmpty(t, internal.Stack)

	notFound := NewError(NotFound, "missing", nil)
	assert.Empty(t, notFound.Stack)
}

func TestError_MessageFormat(t *testing.T) {
	err := NewError(InvalidArgument, "bad input", errors.New("parse failed"))
	assert.Equal(t, "[invalid_argument] bad input: parse failed", err.Error())

	bare := NewError(NotFound, "missing", nil)
	assert.Equal(t, "[not_found] missing", bare.Error())
}

func TestIsCode(t *testing.T) {
	err := NewError(DeadlineExceeded, "timed out", nil)
	assert.True(t, IsCode(err, DeadlineExceeded))
	assert.False(t, IsCode(err, Canceled))

	// Works through wrapping.
	wrapped := fmt.Errorf("outer: %w", err)
	assert.True(t, IsCode(wrapped, DeadlineExceeded))

	assert.False(t, IsCode(errors.New("plain"), DeadlineExceeded))
	assert.False(t, IsCode(nil, DeadlineExceeded))
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, OK, CodeOf(nil))
	assert.Equal(t, ResourceExhausted, CodeOf(NewError(ResourceExhausted, "full", nil)))
	assert.Equal(t, Unknown, CodeOf(errors.New("plain")))
}

func TestWrapStorageError(t *testing.T) {
	missing := fmt.Errorf("subs/x.yaml: %w", storage.ErrNotFound)
	err := WrapStorageError("read", "subscription", missing)
	assert.True(t, IsCode(err, NotFound))
	assert.Contains(t, err.Error(), "subscription not found")

	err = WrapStorageError("save", "subscription", errors.New("disk full"))
	assert.True(t, IsCode(err, Internal))
	// The client message stays opaque; the cause carries the detail.
	assert.Contains(t, err.Error(), "server error")
}

func TestCode_HTTPCode(t *testing.T) {
	tests := []struct {
		code Code
		want int
	}{
		{OK, http.StatusOK},
		{InvalidArgument, http.StatusBadRequest},
		{NotFound, http.StatusNotFound},
		{DeadlineExceeded, http.StatusGatewayTimeout},
		{ResourceExhausted, http.StatusTooManyRequests},
		{FailedPrecondition, http.StatusPreconditionFailed},
		{Unavailable, http.StatusServiceUnavailable},
		{Internal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			require.Equal(t, tt.want, tt.code.HTTPCode())
		})
	}
}
