package apperror

import "errors"

var (
	// ErrSessionNotFound covers unknown ids, expired sessions and owner
	// mismatches alike. Callers must not be able to tell them apart.
	ErrSessionNotFound = errors.New("session not found or expired")

	// ErrNotWaiting is returned by the store when the conditional
	// waiting -> uploading transition loses. The caller re-reads the
	// session to classify the outcome.
	ErrNotWaiting = errors.New("session is not awaiting an upload")

	ErrUploadConflict = errors.New("upload already in progress, try again")
	ErrSessionClosed  = errors.New("session already finished, request a new link")

	ErrReceiptNotFound = errors.New("receipt not found")

	ErrStoreUnavailable = errors.New("session store unavailable")
)

// ProcessingError carries the sanitized, user-facing message that was
// recorded into the session row. The HTTP layer returns it verbatim.
type ProcessingError struct {
	Msg string
}

func (e *ProcessingError) Error() string {
	return e.Msg
}

func NewProcessingError(msg string) *ProcessingError {
	return &ProcessingError{Msg: msg}
}
