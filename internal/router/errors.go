package router

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthFailure means the gateway rejected our credentials.
	ErrAuthFailure = errors.New("authentication failed")

	// ErrSessionExpired means the gateway no longer recognizes our session
	// cookie, usually because someone logged into the web UI and evicted us.
	ErrSessionExpired = errors.New("session expired")

	// ErrDeviceNotFound is returned by name lookups that match nothing.
	ErrDeviceNotFound = errors.New("device not found")
)

// TransportError wraps a network-level failure talking to the gateway.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("router %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError means the gateway answered, but not with what we expected:
// a non-JSON body, an unexpected HTTP status, or an API-level error field.
type ProtocolError struct {
	Op     string
	Status int
	Detail string
}

func (e *ProtocolError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("router %s: %s", e.Op, e.Detail)
	}
	return fmt.Sprintf("router %s: unexpected status %d", e.Op, e.Status)
}

func transportErr(op string, err error) error {
	return &TransportError{Op: op, Err: err}
}

func protocolErr(op, format string, args ...interface{}) error {
	return &ProtocolError{Op: op, Detail: fmt.Sprintf(format, args...)}
}
