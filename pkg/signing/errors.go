// Package signing issues and verifies the signed tokens that bind a remote
// pipeline run to its local record.
package signing

import "errors"

// ErrUnauthenticated is wrapped by every verification failure.
var ErrUnauthenticated = errors.New("unauthenticated")

var (
	ErrMalformedEnvelope error = &authError{"malformed envelope"}
	ErrInvalidSignature  error = &authError{"invalid signature"}
	ErrSignatureExpired  error = &authError{"signature expired"}
)

// ErrWeakSecret is a startup configuration error.
var ErrWeakSecret = errors.New("secret key must be at least 32 bytes")

type authError struct {
	reason string
}

func (e *authError) Error() string {
	return "unauthenticated: " + e.reason
}

func (e *authError) Unwrap() error {
	return ErrUnauthenticated
}
