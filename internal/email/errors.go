package email

import (
	"errors"
	"fmt"
)

var (
	errNotConnected  = errors.New("not connected")
	errNoMessageData = errors.New("server returned no message data")
)

// AuthError means the server rejected the account credentials. It is
// never retried; retrying a bad password only triggers lockouts.
type AuthError struct {
	Op  string
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: authentication failed: %v", e.Op, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// ConnError is a transport or negotiation failure. Operations wrapped in
// a retry policy treat it as transient.
type ConnError struct {
	Op  string
	Err error
}

func (e *ConnError) Error() string {
	return fmt.Sprintf("%s: connection failed: %v", e.Op, e.Err)
}

func (e *ConnError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is a transient connection failure.
func IsRetryable(err error) bool {
	var ce *ConnError
	return errors.As(err, &ce)
}

// IsAuthError reports whether err is a credential rejection.
func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}
