// Package transport provides the I/O links instrument drivers talk through:
// a line-oriented ASCII transport for SCPI-style instruments and a register
// bus for Modbus-attached controllers. Drivers depend on the interfaces
// here, never on a concrete link, so tests and simulation substitute freely.
package transport

import "time"

// Transport is a line-oriented ASCII link to one instrument. Implementations
// are not safe for concurrent use; the owning driver serializes access.
type Transport interface {
	// Write sends one command with the link terminator appended.
	Write(cmd string) error

	// Ask sends one query and returns the response line with the
	// terminator and surrounding whitespace stripped.
	Ask(cmd string) (string, error)

	// WriteRaw sends bytes unmodified, for binary setup blocks.
	WriteRaw(p []byte) error

	// ReadRaw reads whatever the instrument has pending, up to the
	// internal buffer size, without terminator handling.
	ReadRaw() ([]byte, error)

	// Timeout reports the current per-operation I/O timeout.
	Timeout() time.Duration

	// SetTimeout adjusts the per-operation I/O timeout. Used by bounded
	// waits such as measurement fetches.
	SetTimeout(d time.Duration)

	// Close releases the link. Further operations fail with ErrClosed.
	Close() error
}

// RegisterBus is a 16-bit register link to one controller. Values are
// signed because process values such as temperatures go below zero.
// Implementations are not safe for concurrent use.
type RegisterBus interface {
	// ReadRegister reads one holding register.
	ReadRegister(addr uint16) (int16, error)

	// WriteRegister writes one holding register.
	WriteRegister(addr uint16, value int16) error

	// Close releases the link.
	Close() error
}

// Logger is the minimal logging interface the transports depend on.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(msg string, args ...any) {}
func (noopLogger) Info(msg string, args ...any)  {}
func (noopLogger) Warn(msg string, args ...any)  {}
func (noopLogger) Error(msg string, args ...any) {}
