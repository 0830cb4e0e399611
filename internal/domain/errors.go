package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidKey          = errors.New("verification key must be a 64-character hexadecimal string")
	ErrNotPNG              = errors.New("not a png file")
	ErrPayloadMissing      = errors.New("no verification data in certificate")
	ErrTransport           = errors.New("authority unreachable")
	ErrMalformedResponse   = errors.New("invalid response from verification service")
	ErrAuthorityRejected   = errors.New("authority rejected certificate")
	ErrConsistencyMismatch = errors.New("certificate data mismatch")
	ErrBoostedDisallowed   = errors.New("boosted certificates are not allowed")
	ErrPolicyDenied        = errors.New("acceptance policy denied certificate")
	ErrNotFound            = errors.New("not found")
	ErrDBUnavailable       = errors.New("db unavailable")
)

// TransportError is a failed round trip to the authority. StatusCode is zero
// when no HTTP response was received.
type TransportError struct {
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("authority returned HTTP %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("authority request failed: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}
