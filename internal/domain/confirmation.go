package domain

import "time"

// ConfirmationToken is the single-use, time-boxed handshake record proving
// control of a registered email address.
// PK: token. ConfirmedAt is absent until the token is consumed; the record is
// never deleted by the service (retention is an operational concern).
type ConfirmationToken struct {
	Token       string `json:"token" dynamodbav:"token"`
	UserID      string `json:"user_id" dynamodbav:"user_id"`
	CreatedAt   int64  `json:"created_at" dynamodbav:"created_at"`
	ExpiresAt   int64  `json:"expires_at" dynamodbav:"expires_at"` // Unix seconds
	ConfirmedAt *int64 `json:"confirmed_at,omitempty" dynamodbav:"confirmed_at,omitempty"`
}

// Consumed reports whether the token has already been used.
func (c *ConfirmationToken) Consumed() bool { return c.ConfirmedAt != nil }

// Expired reports whether the token can no longer be consumed at the given time.
func (c *ConfirmationToken) Expired(now time.Time) bool { return now.Unix() >= c.ExpiresAt }
