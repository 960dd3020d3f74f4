package token

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// NewConfirmationToken generates a cryptographically random 64-character hex
// token. Never derived from sequential ids.
func NewConfirmationToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate confirmation token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
