// Package scpi layers the common SCPI message ceremony over a transport:
// formatted commands and queries, typed response decoding, the IEEE 488.2
// star commands, and identification parsing. Drivers compose a Session
// with their own command tables.
package scpi

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/davmor83/labrig-core/internal/instrument"
	"github.com/davmor83/labrig-core/internal/instrument/wire"
	"github.com/davmor83/labrig-core/internal/transport"
)

// Identity is the parsed *IDN? response.
type Identity struct {
	Manufacturer     string `json:"manufacturer"`
	Model            string `json:"model"`
	SerialNumber     string `json:"serial_number"`
	FirmwareRevision string `json:"firmware_revision"`
}

// Session speaks the SCPI dialect over one transport. Not safe for
// concurrent use; the owning driver serializes access.
type Session struct {
	link transport.Transport
}

// NewSession wraps a transport.
func NewSession(link transport.Transport) *Session {
	return &Session{link: link}
}

// Command sends one command expecting no response.
func (s *Session) Command(cmd string) error {
	return mapErr(s.link.Write(cmd))
}

// Commandf formats and sends one command expecting no response.
func (s *Session) Commandf(format string, args ...any) error {
	return s.Command(fmt.Sprintf(format, args...))
}

// Query sends one query and returns the trimmed response line.
func (s *Session) Query(cmd string) (string, error) {
	resp, err := s.link.Ask(cmd)
	if err != nil {
		return "", mapErr(err)
	}
	return strings.TrimSpace(resp), nil
}

// Queryf formats and sends one query.
func (s *Session) Queryf(format string, args ...any) (string, error) {
	return s.Query(fmt.Sprintf(format, args...))
}

// QueryString sends one query and strips surrounding quotes from the
// response, for instruments that return quoted strings.
func (s *Session) QueryString(cmd string) (string, error) {
	resp, err := s.Query(cmd)
	if err != nil {
		return "", err
	}
	return strings.Trim(resp, `"`), nil
}

// QueryFloat sends one query and decodes a numeric response. Responses
// carrying one of the out-of-range suffixes decode to +Inf.
func (s *Session) QueryFloat(cmd string, outOfRange ...string) (float64, error) {
	resp, err := s.Query(cmd)
	if err != nil {
		return 0, err
	}
	return wire.ParseFloat(resp, outOfRange...)
}

// QueryBool sends one query and decodes a boolean response.
func (s *Session) QueryBool(cmd string) (bool, error) {
	resp, err := s.Query(cmd)
	if err != nil {
		return false, err
	}
	return wire.ParseBool(resp)
}

// QueryInt sends one query and decodes an integer response.
func (s *Session) QueryInt(cmd string) (int, error) {
	resp, err := s.Query(cmd)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(strings.Trim(resp, `"`))
	if err != nil {
		return 0, fmt.Errorf("%w: integer response %q", instrument.ErrProtocol, resp)
	}
	return n, nil
}

// QueryWithin runs one query under a temporary I/O timeout, restoring the
// previous timeout afterwards. Used for bounded waits such as measurement
// fetches; expiry surfaces as a timeout error.
func (s *Session) QueryWithin(d time.Duration, cmd string) (string, error) {
	if d > 0 {
		prev := s.link.Timeout()
		s.link.SetTimeout(d)
		defer s.link.SetTimeout(prev)
	}
	return s.Query(cmd)
}

// WriteRaw sends bytes unmodified, for binary setup blocks.
func (s *Session) WriteRaw(p []byte) error {
	return mapErr(s.link.WriteRaw(p))
}

// ReadRaw reads the pending response bytes unmodified.
func (s *Session) ReadRaw() ([]byte, error) {
	p, err := s.link.ReadRaw()
	if err != nil {
		return nil, mapErr(err)
	}
	return p, nil
}

// Timeout reports the link's per-operation timeout.
func (s *Session) Timeout() time.Duration { return s.link.Timeout() }

// SetTimeout adjusts the link's per-operation timeout.
func (s *Session) SetTimeout(d time.Duration) { s.link.SetTimeout(d) }

// Clear clears the instrument status registers.
func (s *Session) Clear() error { return s.Command("*CLS") }

// Reset restores the instrument's power-on defaults.
func (s *Session) Reset() error { return s.Command("*RST") }

// Trigger issues the bus trigger.
func (s *Session) Trigger() error { return s.Command("*TRG") }

// Remote switches the front panel to remote control.
func (s *Session) Remote() error { return s.Command("SYST:REM") }

// Local returns the front panel to local control.
func (s *Session) Local() error { return s.Command("SYST:LOC") }

// SelfTest runs the instrument self test and returns its result code,
// 0 meaning pass.
func (s *Session) SelfTest() (int, error) {
	return s.QueryInt("*TST?")
}

// Identify queries and parses the instrument identification.
func (s *Session) Identify() (Identity, error) {
	resp, err := s.Query("*IDN?")
	if err != nil {
		return Identity{}, err
	}
	return ParseIdentity(resp)
}

// ParseIdentity splits a comma-separated identification response into its
// four fields.
func ParseIdentity(resp string) (Identity, error) {
	parts := strings.Split(resp, ",")
	if len(parts) < 4 {
		return Identity{}, fmt.Errorf("%w: identification %q has %d fields, want 4",
			instrument.ErrProtocol, resp, len(parts))
	}
	return Identity{
		Manufacturer:     strings.TrimSpace(parts[0]),
		Model:            strings.TrimSpace(parts[1]),
		SerialNumber:     strings.TrimSpace(parts[2]),
		FirmwareRevision: strings.TrimSpace(strings.Join(parts[3:], ",")),
	}, nil
}

// ErrorQuery drains one entry from the instrument error queue.
func (s *Session) ErrorQuery() (int, string, error) {
	resp, err := s.Query("SYST:ERR?")
	if err != nil {
		return 0, "", err
	}
	code, message, found := strings.Cut(resp, ",")
	n, cerr := strconv.Atoi(strings.TrimSpace(code))
	if cerr != nil {
		return 0, "", fmt.Errorf("%w: error queue response %q", instrument.ErrProtocol, resp)
	}
	if found {
		message = strings.Trim(strings.TrimSpace(message), `"`)
	}
	return n, message, nil
}

// mapErr lifts transport timeouts into the driver error taxonomy.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, transport.ErrTimeout) {
		return fmt.Errorf("%w: %w", instrument.ErrTimeout, err)
	}
	return err
}
