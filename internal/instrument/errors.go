package instrument

import "errors"

// Domain errors for the instrument framework.
var (
	// ErrUnknownAttribute is returned when a get or set names an attribute
	// path that was never registered.
	ErrUnknownAttribute = errors.New("instrument: unknown attribute")

	// ErrAttributeExists is returned when an attribute path is registered
	// twice on the same registry.
	ErrAttributeExists = errors.New("instrument: attribute already registered")

	// ErrReadOnlyAttribute is returned when a set targets an attribute
	// registered without a setter.
	ErrReadOnlyAttribute = errors.New("instrument: attribute is read-only")

	// ErrUnknownCollection is returned when an operation names a repeated
	// capability collection that was never defined.
	ErrUnknownCollection = errors.New("instrument: unknown capability collection")

	// ErrSelectorRange is returned when an index selector is outside
	// [0, count) or a name selector matches no item in the collection.
	ErrSelectorRange = errors.New("instrument: selector out of range")

	// ErrDuplicateName is returned when renaming a collection item to a
	// name already held by another item in the same collection.
	ErrDuplicateName = errors.New("instrument: duplicate capability name")

	// ErrValueNotSupported is returned when a value lies outside the fixed
	// set an attribute accepts.
	ErrValueNotSupported = errors.New("instrument: value not supported")

	// ErrIDMismatch is returned by initialization when the identification
	// string reported by the instrument does not start with the expected
	// model prefix.
	ErrIDMismatch = errors.New("instrument: instrument id mismatch")

	// ErrOutOfRange is returned when a memory slot index is outside
	// [0, memory size).
	ErrOutOfRange = errors.New("instrument: index out of range")

	// ErrProtocol is returned when the instrument sends a response the
	// driver does not understand. It is never coerced to a default.
	ErrProtocol = errors.New("instrument: protocol error")

	// ErrTimeout is returned when a fetch or read exceeds its maximum wait.
	ErrTimeout = errors.New("instrument: operation timed out")

	// ErrNotInitialized is returned when a hardware-facing operation runs
	// before Initialize has completed.
	ErrNotInitialized = errors.New("instrument: not initialized")

	// ErrNoAcquisition is returned by fetch when no acquisition has been
	// initiated.
	ErrNoAcquisition = errors.New("instrument: no acquisition in progress")
)
