package rig

import "errors"

// Domain errors for the rig package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, rig.ErrNotFound) {
//	    // handle not found case
//	}
var (
	// ErrNotFound is returned when an instrument ID is not managed by
	// the rig.
	ErrNotFound = errors.New("rig: instrument not found")

	// ErrDuplicateID is returned when two configured instruments share
	// an ID.
	ErrDuplicateID = errors.New("rig: duplicate instrument id")

	// ErrUnknownDriver is returned when a configured driver family is
	// not recognised.
	ErrUnknownDriver = errors.New("rig: unknown driver family")

	// ErrUnsupported is returned when an operation requires a
	// capability the instrument's driver does not implement.
	ErrUnsupported = errors.New("rig: operation not supported")
)
