// Provides common zieook error definitions.
package zieook_errors

import "errors"

var (
	// ErrStoreUnavailable wraps any failure of the underlying key-value
	// store: open, read, write, or iterator errors. Callers must be able
	// to tell a backend outage apart from an absent row.
	ErrStoreUnavailable = errors.New("zieook: store unavailable")

	// ErrKeyFormat marks a row key (or packed value) whose byte layout
	// does not match the expected kind.
	ErrKeyFormat = errors.New("zieook: malformed row key")

	ErrNotFound        = errors.New("zieook: not found")
	ErrInvalidArgument = errors.New("zieook: invalid argument")

	ErrTenantUnknown = errors.New("zieook: unknown tenant")
	ErrClosed        = errors.New("zieook: engine closed")
)
