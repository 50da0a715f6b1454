package models

import "time"

// SessionTTL is the validity window of a hand-off session. Expiry is
// soft: rows are hidden from readers, never deleted here.
const SessionTTL = 3600 * time.Second

// Session coordinates one cross-device receipt upload. The session id
// doubles as a bearer capability embedded in the QR link, so it is
// generated from 256 bits of randomness and never logged whole.
type Session struct {
	SessionID string        `dynamodbav:"session_id"` // Unique capability id
	UserID    string        `dynamodbav:"user_id"`    // Owner; never serialized to clients
	Status    SessionStatus `dynamodbav:"status"`
	ReceiptID *string       `dynamodbav:"receipt_id"` // Set iff status == processed
	Error     *string       `dynamodbav:"error"`      // Set iff status == error
	CreatedAt time.Time     `dynamodbav:"created_at"`
	UpdatedAt time.Time     `dynamodbav:"updated_at"`
	ExpiresAt time.Time     `dynamodbav:"expires_at"` // created_at + SessionTTL
}

// ExpiredAt reports whether the session must be treated as not found.
func (s *Session) ExpiredAt(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
