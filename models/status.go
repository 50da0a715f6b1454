package models

import "fmt"

// SessionStatus is the state of a hand-off session.
// waiting -> uploading -> processed | error; the last two are terminal.
type SessionStatus string

const (
	StatusWaiting   SessionStatus = "waiting"
	StatusUploading SessionStatus = "uploading"
	StatusProcessed SessionStatus = "processed"
	StatusError     SessionStatus = "error"
)

func ParseSessionStatus(s string) (SessionStatus, error) {
	switch SessionStatus(s) {
	case StatusWaiting, StatusUploading, StatusProcessed, StatusError:
		return SessionStatus(s), nil
	}
	return "", fmt.Errorf("unknown session status %q", s)
}

func (s SessionStatus) String() string {
	return string(s)
}

// Terminal reports whether no further transition can leave s.
func (s SessionStatus) Terminal() bool {
	return s == StatusProcessed || s == StatusError
}

// ReceiptStatus tracks the out-of-band extraction pipeline, not the
// session. It lives on the receipt record only.
type ReceiptStatus string

const (
	ReceiptPending   ReceiptStatus = "pending"
	ReceiptExtracted ReceiptStatus = "extracted"
	ReceiptFailed    ReceiptStatus = "failed"
)
