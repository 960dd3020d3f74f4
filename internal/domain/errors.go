package domain

import "errors"

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to HTTP status codes without leaking infrastructure details.
var (
	ErrInvalidEmail       = errors.New("invalid email")
	ErrEmailTaken         = errors.New("email already taken")
	ErrInvalidCredentials = errors.New("invalid credentials")

	ErrUserNotFound = errors.New("user not found")

	ErrTokenNotFound    = errors.New("token not found")
	ErrAlreadyConfirmed = errors.New("email already confirmed")
	ErrTokenExpired     = errors.New("token expired")

	ErrInvalidSignature = errors.New("invalid token signature")
	ErrMalformedToken   = errors.New("malformed token")

	ErrBadRequest = errors.New("bad request")

	ErrStorageFailure  = errors.New("storage failure")
	ErrDispatchFailure = errors.New("email dispatch failure")
)
