package chat

import "errors"

// Error kinds surfaced to presentation consumers. Callers match them with
// errors.Is; the wrapping message carries the detail.
var (
	// ErrValidation marks caller-correctable input (empty name, contact or body).
	ErrValidation = errors.New("validation failed")

	// ErrNotFound marks an unknown session id.
	ErrNotFound = errors.New("session not found")

	// ErrInvalidTransition marks a status change the lifecycle forbids.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrSendFailed marks a message write that did not complete in time or
	// was rejected by the store. The write may still have landed; retry with
	// the same correlation id to avoid a duplicate.
	ErrSendFailed = errors.New("send failed")

	// ErrFeedUnavailable marks a push channel that could not be joined. It is
	// logged and absorbed by the sync engine, never returned to presentation.
	ErrFeedUnavailable = errors.New("change feed unavailable")

	// ErrStoreUnavailable marks a failed read against the backing store.
	ErrStoreUnavailable = errors.New("store unavailable")
)
