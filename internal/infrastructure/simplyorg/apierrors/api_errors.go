package apierrors

import (
	"errors"
	"fmt"
)

var (
	ErrMissingCredentials = errors.New("base url, email and password must all be set")
	ErrTokenNotFound      = errors.New("verification token not found in landing page")
	ErrNoSessionCookies   = errors.New("landing response carried no cookies")
	ErrNoAuthCookies      = errors.New("login response carried no cookies")
)

// ConnectionError reports a network-level failure during the auth handshake.
type ConnectionError struct {
	Step string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection failed during %s: %v", e.Step, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// LoginRejectedError reports a login response with a status other than
// 200 or 204.
type LoginRejectedError struct {
	Status int
}

func (e *LoginRejectedError) Error() string {
	return fmt.Sprintf("login rejected with status %d", e.Status)
}

// TransportError reports a network-level failure of a data call.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("schedule request failed: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// UnexpectedStatusError reports a non-200 response to a data call.
type UnexpectedStatusError struct {
	Status int
}

func (e *UnexpectedStatusError) Error() string {
	return fmt.Sprintf("schedule endpoint returned status %d", e.Status)
}

// DecodeError reports a malformed data payload.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("malformed schedule payload: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
