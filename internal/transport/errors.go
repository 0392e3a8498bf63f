package transport

import "errors"

var (
	// ErrClosed indicates an operation on a transport that has been closed.
	ErrClosed = errors.New("transport: connection closed")

	// ErrTimeout indicates the instrument did not answer within the
	// configured I/O timeout.
	ErrTimeout = errors.New("transport: i/o timeout")

	// ErrConfig indicates an invalid transport configuration.
	ErrConfig = errors.New("transport: invalid configuration")
)
