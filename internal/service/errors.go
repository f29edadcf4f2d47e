package service

import (
	"errors"
	"fmt"
)

var (
	// ErrConnectivity marks a failure to reach the platform at all.
	ErrConnectivity = errors.New("platform unreachable")

	ErrMissingSignature     = errors.New("missing signature header")
	ErrMalformedSignature   = errors.New("malformed signature header")
	ErrUnsupportedAlgorithm = errors.New("unsupported signature algorithm")
	ErrSignatureMismatch    = errors.New("signature verification failed")
	ErrDigestMismatch       = errors.New("digest does not match body")
	ErrClockSkew            = errors.New("signature outside allowed clock skew")

	ErrKeySetUnreachable = errors.New("key set unreachable")
	ErrKeySetMalformed   = errors.New("key set malformed")
	ErrUnknownKeyID      = errors.New("unknown key id")
)

// AuthError is returned when the client-credentials exchange fails.
// Status is zero when no response was received.
type AuthError struct {
	Status int
	Body   []byte
	Err    error
}

func (e *AuthError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("token exchange failed: %v", e.Err)
	}
	return fmt.Sprintf("token exchange rejected with status %d", e.Status)
}

func (e *AuthError) Unwrap() error { return e.Err }

// APIError is returned when a platform resource call does not succeed.
// Status is zero when no response was received.
type APIError struct {
	Status int
	Body   []byte
	Err    error
}

func (e *APIError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("platform request failed: %v", e.Err)
	}
	return fmt.Sprintf("platform responded with status %d", e.Status)
}

func (e *APIError) Unwrap() error { return e.Err }

// KeyLookupError is returned when the signer's public key cannot be resolved.
type KeyLookupError struct {
	KeyID string
	Err   error
}

func (e *KeyLookupError) Error() string {
	return fmt.Sprintf("key lookup for %q failed: %v", e.KeyID, e.Err)
}

func (e *KeyLookupError) Unwrap() error { return e.Err }

// SignatureError is returned when a callback signature cannot be parsed or
// does not verify.
type SignatureError struct {
	Err error
}

func (e *SignatureError) Error() string {
	return fmt.Sprintf("callback signature rejected: %v", e.Err)
}

func (e *SignatureError) Unwrap() error { return e.Err }

func signatureErrorf(sentinel error, format string, args ...any) error {
	return &SignatureError{Err: fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))}
}
