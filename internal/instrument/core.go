package instrument

import (
	"fmt"
	"strings"
)

// Logger is the minimal logging interface the framework depends on.
// Compatible with the project's slog wrapper.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger discards all log output. Used when no logger is configured.
type noopLogger struct{}

func (noopLogger) Debug(msg string, args ...any) {}
func (noopLogger) Info(msg string, args ...any)  {}
func (noopLogger) Warn(msg string, args ...any)  {}
func (noopLogger) Error(msg string, args ...any) {}

// SimulatedPlaceholder is the identity string reported while simulating.
const SimulatedPlaceholder = "Not available while simulating"

// Driver operation attribute paths.
const (
	PathOperationCache       = Path("operation.cache")
	PathOperationSimulate    = Path("operation.simulate")
	PathOperationRangeCheck  = Path("operation.range_check")
	PathOperationQueryStatus = Path("operation.query_instrument_status")
)

// Identity attribute paths.
const (
	PathIdentityDescription  = Path("identity.description")
	PathIdentityManufacturer = Path("identity.instrument_manufacturer")
	PathIdentityModel        = Path("identity.instrument_model")
	PathIdentitySerial       = Path("identity.instrument_serial_number")
	PathIdentityFirmware     = Path("identity.instrument_firmware_revision")
)

// InitOptions control the Initialize ceremony shared by every driver.
type InitOptions struct {
	// IDQuery verifies the instrument identification against the
	// driver's expected prefix.
	IDQuery bool

	// Reset restores power-on defaults and drops every cached value.
	Reset bool
}

// CoreOptions configure the shared driver state.
type CoreOptions struct {
	// MemorySize is the number of instrument memory slots, 0 if the
	// instrument has none.
	MemorySize int

	// Simulate mirrors the transport's simulate flag. Fixed for the life
	// of the session.
	Simulate bool

	// Cache enables the value cache. Drivers for instruments whose state
	// drifts outside the session (environmental chambers) disable it.
	Cache bool
}

// Core is the state every concrete driver shares: the attribute registry
// with its cache and collections, the driver operation flags, the
// measurement state machine, and the lifecycle bookkeeping. Capability
// components attach their attributes to a Core; a concrete driver is a Core
// plus a transport plus the components it supports, attached in a fixed
// order.
type Core struct {
	reg    *Registry
	acq    Acquisition
	logger Logger

	memorySize  int
	initialized bool
}

// NewCore builds the shared state and registers the driver operation
// attribute group.
func NewCore(opts CoreOptions) *Core {
	c := &Core{
		reg:        NewRegistry(),
		logger:     noopLogger{},
		memorySize: opts.MemorySize,
	}
	c.registerOperation(opts)
	return c
}

// SetLogger installs a logger for lifecycle events. Passing nil restores
// the no-op logger.
func (c *Core) SetLogger(l Logger) {
	if l == nil {
		c.logger = noopLogger{}
		return
	}
	c.logger = l
}

// Logger returns the configured logger.
func (c *Core) Logger() Logger { return c.logger }

// Attributes exposes the attribute registry.
func (c *Core) Attributes() *Registry { return c.reg }

// Cache exposes the value cache.
func (c *Core) Cache() *Cache { return c.reg.Cache() }

// Collections exposes the repeated capability collections.
func (c *Core) Collections() *Collections { return c.reg.Collections() }

// Acquisition exposes the measurement state machine.
func (c *Core) Acquisition() *Acquisition { return &c.acq }

func (c *Core) registerOperation(opts CoreOptions) {
	c.reg.MustRegister(Descriptor{
		Path:    PathOperationCache,
		Group:   "operation",
		Doc:     "Enables the per-attribute value cache. When disabled every get in live mode issues a fresh query.",
		Local:   true,
		Default: opts.Cache,
		Get:     c.localGetter(PathOperationCache),
		Set:     c.localBoolSetter(PathOperationCache),
	})
	c.reg.MustRegister(Descriptor{
		Path:    PathOperationSimulate,
		Group:   "operation",
		Doc:     "True when the session never touches real hardware. Fixed at construction.",
		Local:   true,
		Default: opts.Simulate,
		Get:     c.localGetter(PathOperationSimulate),
	})
	c.reg.MustRegister(Descriptor{
		Path:    PathOperationRangeCheck,
		Group:   "operation",
		Doc:     "Enables range validation of attribute values before they reach the wire.",
		Local:   true,
		Default: true,
		Get:     c.localGetter(PathOperationRangeCheck),
		Set:     c.localBoolSetter(PathOperationRangeCheck),
	})
	c.reg.MustRegister(Descriptor{
		Path:    PathOperationQueryStatus,
		Group:   "operation",
		Doc:     "Queries the instrument status register after each operation when supported.",
		Local:   true,
		Default: false,
		Get:     c.localGetter(PathOperationQueryStatus),
		Set:     c.localBoolSetter(PathOperationQueryStatus),
	})
}

// localGetter reads a seeded local cache entry.
func (c *Core) localGetter(path Path) Getter {
	return func(index int) (any, error) {
		v, _ := c.reg.Cache().Read(Key{Path: path, Index: index})
		return v, nil
	}
}

// localBoolSetter stores a local bool cache entry.
func (c *Core) localBoolSetter(path Path) Setter {
	return func(index int, value any) error {
		b, ok := value.(bool)
		if !ok {
			return fmt.Errorf("%w: %q wants bool, got %T", ErrValueNotSupported, path, value)
		}
		c.reg.Cache().Write(Key{Path: path, Index: index}, b)
		return nil
	}
}

func (c *Core) localBool(path Path) bool {
	v, _ := c.reg.Cache().Read(ScalarKey(path))
	b, _ := v.(bool)
	return b
}

// Simulated reports whether the session runs in simulate mode. Consulted by
// drivers before every hardware touch.
func (c *Core) Simulated() bool { return c.localBool(PathOperationSimulate) }

// CacheEnabled reports whether getters may trust valid cache entries.
func (c *Core) CacheEnabled() bool { return c.localBool(PathOperationCache) }

// Initialized reports whether Initialize completed.
func (c *Core) Initialized() bool { return c.initialized }

// MarkInitialized records a completed Initialize.
func (c *Core) MarkInitialized() { c.initialized = true }

// RequireInitialized guards hardware-facing operations.
func (c *Core) RequireInitialized() error {
	if !c.initialized {
		return ErrNotInitialized
	}
	return nil
}

// MemorySize returns the number of instrument memory slots.
func (c *Core) MemorySize() int { return c.memorySize }

// CheckMemorySlot validates a memory slot index against [0, MemorySize).
func (c *Core) CheckMemorySlot(index int) error {
	if index < 0 || index >= c.memorySize {
		return fmt.Errorf("%w: memory slot %d outside [0,%d)", ErrOutOfRange, index, c.memorySize)
	}
	return nil
}

// CheckIdentity compares the model reported by the instrument against the
// expected id prefix. An empty expectation always passes.
func (c *Core) CheckIdentity(expected, reported string) error {
	if expected == "" {
		return nil
	}
	if !strings.HasPrefix(reported, expected) {
		return fmt.Errorf("%w: expecting %q, got %q", ErrIDMismatch, expected, reported)
	}
	return nil
}

// CachedGet implements the standard hardware-backed getter policy: return
// the cached value while the cache is enabled and holds a valid entry, fall
// back to the descriptor default in simulate mode, otherwise fetch from
// hardware and record the result.
func (c *Core) CachedGet(key Key, def any, fetch func() (any, error)) (any, error) {
	if c.CacheEnabled() {
		if v, ok := c.reg.Cache().Read(key); ok {
			return v, nil
		}
	}
	if c.Simulated() {
		if v, ok := c.reg.Cache().Read(key); ok {
			return v, nil
		}
		return def, nil
	}
	v, err := fetch()
	if err != nil {
		return nil, err
	}
	c.reg.Cache().Write(key, v)
	return v, nil
}

// CachedSet implements the standard hardware-backed setter policy: in
// simulate mode only the local cache entry changes; in live mode the store
// callback runs first and the cache is updated only when it succeeds.
func (c *Core) CachedSet(key Key, value any, store func() error) error {
	if !c.Simulated() {
		if err := store(); err != nil {
			return err
		}
	}
	c.reg.Cache().Write(key, value)
	return nil
}

// IdentityValues carries the identity group values for one instrument.
type IdentityValues struct {
	Description      string
	Manufacturer     string
	Model            string
	SerialNumber     string
	FirmwareRevision string
}

// RegisterIdentity attaches the identity attribute group. Static values
// come from the driver's construction; when load is non-nil the
// manufacturer, model, serial number, and firmware revision attributes are
// populated lazily from the instrument on first read outside simulate
// mode. One successful load validates all four entries.
func (c *Core) RegisterIdentity(static IdentityValues, load func() (IdentityValues, error)) {
	c.reg.MustRegister(Descriptor{
		Path:    PathIdentityDescription,
		Group:   "identity",
		Doc:     "Human-readable driver description.",
		Local:   true,
		Default: static.Description,
		Get:     c.localGetter(PathIdentityDescription),
	})

	lazy := func(path Path, staticValue string, pick func(IdentityValues) string) Getter {
		return func(index int) (any, error) {
			key := ScalarKey(path)
			if v, ok := c.reg.Cache().Read(key); ok {
				return v, nil
			}
			if c.Simulated() {
				return SimulatedPlaceholder, nil
			}
			if load == nil {
				c.reg.Cache().Write(key, staticValue)
				return staticValue, nil
			}
			vals, err := load()
			if err != nil {
				return nil, err
			}
			c.reg.Cache().Write(ScalarKey(PathIdentityManufacturer), vals.Manufacturer)
			c.reg.Cache().Write(ScalarKey(PathIdentityModel), vals.Model)
			c.reg.Cache().Write(ScalarKey(PathIdentitySerial), vals.SerialNumber)
			c.reg.Cache().Write(ScalarKey(PathIdentityFirmware), vals.FirmwareRevision)
			return pick(vals), nil
		}
	}

	c.reg.MustRegister(Descriptor{
		Path:  PathIdentityManufacturer,
		Group: "identity",
		Doc:   "Instrument manufacturer reported by the identification query.",
		Get: lazy(PathIdentityManufacturer, static.Manufacturer,
			func(v IdentityValues) string { return v.Manufacturer }),
	})
	c.reg.MustRegister(Descriptor{
		Path:  PathIdentityModel,
		Group: "identity",
		Doc:   "Instrument model reported by the identification query.",
		Get: lazy(PathIdentityModel, static.Model,
			func(v IdentityValues) string { return v.Model }),
	})
	c.reg.MustRegister(Descriptor{
		Path:  PathIdentitySerial,
		Group: "identity",
		Doc:   "Instrument serial number reported by the identification query.",
		Get: lazy(PathIdentitySerial, static.SerialNumber,
			func(v IdentityValues) string { return v.SerialNumber }),
	})
	c.reg.MustRegister(Descriptor{
		Path:  PathIdentityFirmware,
		Group: "identity",
		Doc:   "Installed firmware revision reported by the identification query.",
		Get: lazy(PathIdentityFirmware, static.FirmwareRevision,
			func(v IdentityValues) string { return v.FirmwareRevision }),
	})
}

// InstrumentModel reads the identity model attribute, loading it from the
// instrument when necessary. Used by initialization id queries.
func (c *Core) InstrumentModel() (string, error) {
	return c.reg.GetString(PathIdentityModel)
}
