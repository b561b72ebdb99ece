package transport

import "errors"

var (
	// ErrSessionClosed is returned by Exec after Close.
	ErrSessionClosed = errors.New("transport: session closed")

	// ErrDialFailed wraps connection establishment failures.
	ErrDialFailed = errors.New("transport: dial failed")
)
