package cerr

import (
	"errors"
	"fmt"

	"github.com/opbridge/opbridge/pkg/storage"
)

// WrapStorageError converts a storage failure into an API error. A missing
// document surfaces as NotFound with the target named in the client message;
// anything else becomes an opaque Internal error, with op and target recorded
// in the wrapped cause for the log.
func WrapStorageError(op, target string, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return NewError(NotFound, fmt.Sprintf("%s not found", target), err)
	}
	return NewError(Internal, "server error", fmt.Errorf("failed to %s %s: %w", op, target, err))
}
