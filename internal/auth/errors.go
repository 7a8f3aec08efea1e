// Package auth verifies the bearer credential presented during the websocket
// handshake and maps it to a connection identity. All verification failures
// fail closed: there is no anonymous fallback.
package auth

import "errors"

var (
	// ErrMissingToken is returned when no credential is found in any of
	// the accepted handshake locations.
	ErrMissingToken = errors.New("authentication token required")
	// ErrMalformedToken is returned when the credential is not a parseable token.
	ErrMalformedToken = errors.New("malformed token")
	// ErrInvalidSignature is returned when the signature does not verify
	// or the token uses a signing algorithm other than HS256.
	ErrInvalidSignature = errors.New("invalid token signature")
	// ErrTokenExpired is returned when the expiry claim is in the past.
	ErrTokenExpired = errors.New("token expired")
	// ErrInvalidPayload is returned when a verified token is missing the
	// user id or display name claim, or fails strict issuer/audience checks.
	ErrInvalidPayload = errors.New("invalid token payload")
	// ErrNotAuthenticated is returned when a room action is attempted by a
	// connection with no identity attached.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrServerMisconfigured is returned at startup when the signing
	// secret is absent. It is fatal for the whole listening service.
	ErrServerMisconfigured = errors.New("signing secret is not configured")
)
