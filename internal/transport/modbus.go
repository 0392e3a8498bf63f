package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/goburrow/modbus"
)

// Serial line defaults for RTU-attached controllers.
const (
	defaultBaudRate = 9600
	defaultDataBits = 8
	defaultParity   = "N"
	defaultStopBits = 1
	defaultUnitID   = 1
)

// BusConfig holds the settings for one Modbus register link.
type BusConfig struct {
	// Resource is the controller address.
	// Supported formats:
	//   - "tcp://192.168.1.30:502" (Modbus TCP gateway)
	//   - "serial:///dev/ttyUSB0?baud=9600&parity=N" (Modbus RTU)
	Resource string

	// UnitID is the Modbus unit identifier. Default: 1.
	UnitID byte

	// Timeout is the per-transaction timeout. Default: 5 seconds.
	Timeout time.Duration
}

// Bus is a Modbus holding-register link to one controller. Not safe for
// concurrent use; the owning driver serializes access.
type Bus struct {
	client modbus.Client
	closer io.Closer
}

var _ RegisterBus = (*Bus)(nil)

// NewBus connects to a register controller over Modbus TCP or RTU.
//
// Parameters:
//   - cfg: Link configuration
//
// Returns:
//   - *Bus: Connected link ready for use
//   - error: If the resource is invalid or the connection fails
func NewBus(cfg BusConfig) (*Bus, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultIOTimeout
	}
	if cfg.UnitID == 0 {
		cfg.UnitID = defaultUnitID
	}
	if cfg.Resource == "" {
		return nil, fmt.Errorf("%w: empty resource", ErrConfig)
	}

	u, err := url.Parse(cfg.Resource)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid resource %q: %w", ErrConfig, cfg.Resource, err)
	}

	switch u.Scheme {
	case "tcp":
		if u.Port() == "" {
			return nil, fmt.Errorf("%w: resource %q needs a port", ErrConfig, cfg.Resource)
		}
		h := modbus.NewTCPClientHandler(u.Host)
		h.Timeout = cfg.Timeout
		h.SlaveId = cfg.UnitID
		if err := h.Connect(); err != nil {
			return nil, fmt.Errorf("transport: modbus connect %s: %w", u.Host, err)
		}
		return &Bus{client: modbus.NewClient(h), closer: h}, nil

	case "serial":
		if u.Path == "" {
			return nil, fmt.Errorf("%w: resource %q needs a device path", ErrConfig, cfg.Resource)
		}
		h := modbus.NewRTUClientHandler(u.Path)
		h.BaudRate = defaultBaudRate
		h.DataBits = defaultDataBits
		h.Parity = defaultParity
		h.StopBits = defaultStopBits
		h.Timeout = cfg.Timeout
		h.SlaveId = cfg.UnitID
		if err := applySerialParams(h, u.Query()); err != nil {
			return nil, fmt.Errorf("%w: resource %q: %w", ErrConfig, cfg.Resource, err)
		}
		if err := h.Connect(); err != nil {
			return nil, fmt.Errorf("transport: modbus connect %s: %w", u.Path, err)
		}
		return &Bus{client: modbus.NewClient(h), closer: h}, nil

	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrConfig, u.Scheme)
	}
}

// applySerialParams overrides line settings from resource query parameters.
func applySerialParams(h *modbus.RTUClientHandler, q url.Values) error {
	if v := q.Get("baud"); v != "" {
		baud, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid baud %q", v)
		}
		h.BaudRate = baud
	}
	if v := q.Get("data"); v != "" {
		bits, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid data bits %q", v)
		}
		h.DataBits = bits
	}
	if v := q.Get("parity"); v != "" {
		switch v {
		case "N", "E", "O":
			h.Parity = v
		default:
			return fmt.Errorf("invalid parity %q", v)
		}
	}
	if v := q.Get("stop"); v != "" {
		bits, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid stop bits %q", v)
		}
		h.StopBits = bits
	}
	return nil
}

// ReadRegister reads one holding register.
func (b *Bus) ReadRegister(addr uint16) (int16, error) {
	res, err := b.client.ReadHoldingRegisters(addr, 1)
	if err != nil {
		return 0, b.ioError("read register", addr, err)
	}
	if len(res) < 2 {
		return 0, fmt.Errorf("transport: read register %d: short response (%d bytes)", addr, len(res))
	}
	return int16(binary.BigEndian.Uint16(res)), nil
}

// WriteRegister writes one holding register.
func (b *Bus) WriteRegister(addr uint16, value int16) error {
	if _, err := b.client.WriteSingleRegister(addr, uint16(value)); err != nil {
		return b.ioError("write register", addr, err)
	}
	return nil
}

// Close releases the link.
func (b *Bus) Close() error {
	return b.closer.Close()
}

func (b *Bus) ioError(op string, addr uint16, err error) error {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return fmt.Errorf("%w: %s %d: %w", ErrTimeout, op, addr, err)
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return fmt.Errorf("%w: %s %d: %w", ErrTimeout, op, addr, err)
	}
	return fmt.Errorf("transport: %s %d: %w", op, addr, err)
}
