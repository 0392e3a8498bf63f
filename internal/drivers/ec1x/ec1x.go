// Package ec1x drives Sun Systems EC1x environmental chamber controllers.
//
// The controller exposes its process values as signed 16-bit holding
// registers and reports them in tenths of a degree when the decimal option
// is fitted. An optional ASCII link serves the identification queries only.
// Chamber state drifts on its own between commands, so the driver runs with
// the value cache disabled and every read in live mode goes to the
// hardware.
package ec1x

import (
	"fmt"
	"math"
	"time"

	"github.com/davmor83/labrig-core/internal/instrument"
	"github.com/davmor83/labrig-core/internal/instrument/wire"
	"github.com/davmor83/labrig-core/internal/transport"
)

// Attribute paths of the chamber group.
const (
	PathChamberTemperature = instrument.Path("chamber.temperature")
	PathChamberSetpoint    = instrument.Path("chamber.temperature_setpoint")
	PathChamberDecimal     = instrument.Path("chamber.decimal_config")
)

// Holding registers of the process values.
const (
	regTemperature uint16 = 100
	regSetpoint    uint16 = 300
)

// Measurement kinds accepted by Measure.
const (
	MeasureTemperature = "temperature"
	MeasureSetpoint    = "setpoint"
)

// expectedIDPrefix is the leading text of the controller's ID? response.
const expectedIDPrefix = "SUN EC1x"

// clearTimeout bounds the pre-identification drain of stale output on the
// ASCII link.
const clearTimeout = 100 * time.Millisecond

// Options configure a chamber driver instance.
type Options struct {
	// Simulate runs the driver without hardware. Reads return defaults
	// and writes only touch the session state.
	Simulate bool

	// Description overrides the default driver description.
	Description string

	// ExpectedID is the prefix the identification response must carry
	// when Initialize runs an id query. Defaults to "SUN EC1x".
	ExpectedID string
}

// Driver is a Sun Systems EC1x chamber controller session.
type Driver struct {
	core *instrument.Core
	bus  transport.RegisterBus
	link transport.Transport
	opts Options
}

// New builds the driver over a register bus and an optional ASCII
// identification link. Both may be nil when Simulate is set; link may be
// nil on controllers wired for register traffic only, in which case the
// identity attributes fall back to their static values and the id query is
// skipped.
func New(bus transport.RegisterBus, link transport.Transport, opts Options) (*Driver, error) {
	if opts.Description == "" {
		opts.Description = "Sun Systems EC1x environmental chamber"
	}
	if opts.ExpectedID == "" {
		opts.ExpectedID = expectedIDPrefix
	}
	d := &Driver{
		core: instrument.NewCore(instrument.CoreOptions{Simulate: opts.Simulate, Cache: false}),
		bus:  bus,
		link: link,
		opts: opts,
	}
	d.registerChamber()
	static := instrument.IdentityValues{
		Description:  opts.Description,
		Manufacturer: "Sun Systems",
		Model:        "EC1x",
	}
	if link != nil {
		d.core.RegisterIdentity(static, d.loadIdentity)
	} else {
		d.core.RegisterIdentity(static, nil)
	}
	return d, nil
}

// SetLogger installs a logger for lifecycle events.
func (d *Driver) SetLogger(l instrument.Logger) { d.core.SetLogger(l) }

// Attributes exposes the attribute registry.
func (d *Driver) Attributes() *instrument.Registry { return d.core.Attributes() }

// Simulated reports whether the session runs without hardware.
func (d *Driver) Simulated() bool { return d.core.Simulated() }

// AcquisitionState reports the measurement state machine, idle for this
// driver since the chamber streams no acquisitions.
func (d *Driver) AcquisitionState() instrument.AcquisitionState {
	return d.core.Acquisition().State()
}

func (d *Driver) registerChamber() {
	reg := d.core.Attributes()

	reg.MustRegister(instrument.Descriptor{
		Path:  PathChamberTemperature,
		Group: "chamber",
		Doc:   "Chamber air temperature in degrees Celsius.",
		Get: func(int) (any, error) {
			return d.core.CachedGet(instrument.ScalarKey(PathChamberTemperature), 0.0, func() (any, error) {
				raw, err := d.bus.ReadRegister(regTemperature)
				if err != nil {
					return nil, err
				}
				return d.fromRaw(raw), nil
			})
		},
	})

	reg.MustRegister(instrument.Descriptor{
		Path:  PathChamberSetpoint,
		Group: "chamber",
		Doc:   "Chamber temperature setpoint in degrees Celsius.",
		Get: func(int) (any, error) {
			return d.core.CachedGet(instrument.ScalarKey(PathChamberSetpoint), 0.0, func() (any, error) {
				raw, err := d.bus.ReadRegister(regSetpoint)
				if err != nil {
					return nil, err
				}
				return d.fromRaw(raw), nil
			})
		},
		Set: func(_ int, value any) error {
			n, err := wire.NumberFrom(value)
			if err != nil {
				return err
			}
			if n.Sentinel != "" {
				return fmt.Errorf("%w: the register interface has no %s form",
					instrument.ErrValueNotSupported, n.Sentinel)
			}
			raw, err := d.toRaw(n.Value)
			if err != nil {
				return err
			}
			return d.core.CachedSet(instrument.ScalarKey(PathChamberSetpoint), n.Value, func() error {
				return d.bus.WriteRegister(regSetpoint, raw)
			})
		},
	})

	reg.MustRegister(instrument.Descriptor{
		Path:    PathChamberDecimal,
		Group:   "chamber",
		Doc:     "Reading scale fitted to the controller: 1 when register values travel in tenths of a degree, 0 for whole degrees.",
		Local:   true,
		Default: 1,
		Get: func(int) (any, error) {
			v, _ := d.core.Cache().Read(instrument.ScalarKey(PathChamberDecimal))
			return v, nil
		},
		Set: func(_ int, value any) error {
			n, ok := asInt(value)
			if !ok || (n != 0 && n != 1) {
				return fmt.Errorf("%w: decimal_config wants 0 or 1, got %v",
					instrument.ErrValueNotSupported, value)
			}
			d.core.Cache().Write(instrument.ScalarKey(PathChamberDecimal), n)
			return nil
		},
	})
}

func asInt(value any) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		if v == math.Trunc(v) {
			return int(v), true
		}
	}
	return 0, false
}

func (d *Driver) decimalOn() bool {
	v, _ := d.core.Cache().Read(instrument.ScalarKey(PathChamberDecimal))
	n, _ := v.(int)
	return n == 1
}

// fromRaw converts a register reading to degrees.
func (d *Driver) fromRaw(raw int16) float64 {
	if d.decimalOn() {
		return float64(raw) / 10
	}
	return float64(raw)
}

// toRaw converts degrees to the register form, rejecting values the signed
// 16-bit register cannot hold.
func (d *Driver) toRaw(v float64) (int16, error) {
	scaled := v
	if d.decimalOn() {
		scaled = v * 10
	}
	r := math.Round(scaled)
	if r < math.MinInt16 || r > math.MaxInt16 {
		return 0, fmt.Errorf("%w: %g is outside the register range", instrument.ErrOutOfRange, v)
	}
	return int16(r), nil
}

// Initialize runs the connection ceremony: drain stale output left on the
// identification link, optionally verify the controller identification,
// optionally reset.
func (d *Driver) Initialize(opts instrument.InitOptions) error {
	if d.core.Initialized() {
		return nil
	}
	if !d.core.Simulated() && d.link != nil {
		d.clear()
	}
	if opts.IDQuery {
		if err := d.checkID(); err != nil {
			return err
		}
	}
	if opts.Reset {
		d.reset()
	}
	d.core.MarkInitialized()
	d.core.Logger().Info("instrument initialized",
		"driver", "ec1x", "simulate", d.core.Simulated())
	return nil
}

// clear drops whatever a previous session left unread on the ASCII link so
// the identification queries start on a quiet line.
func (d *Driver) clear() {
	t := d.link.Timeout()
	d.link.SetTimeout(clearTimeout)
	_, _ = d.link.ReadRaw()
	d.link.SetTimeout(t)
}

func (d *Driver) checkID() error {
	if d.core.Simulated() || d.opts.ExpectedID == "" || d.link == nil {
		return nil
	}
	model, err := d.core.InstrumentModel()
	if err != nil {
		return err
	}
	return d.core.CheckIdentity(d.opts.ExpectedID, model)
}

// Reset drops the loaded identity and any recorded setpoint state. The
// controller has no remote preset command.
func (d *Driver) Reset() error {
	if err := d.core.RequireInitialized(); err != nil {
		return err
	}
	d.reset()
	return nil
}

func (d *Driver) reset() {
	d.core.Cache().InvalidateAll()
}

// Measure reads one chamber process value.
func (d *Driver) Measure(kind string) (float64, error) {
	if err := d.core.RequireInitialized(); err != nil {
		return 0, err
	}
	switch kind {
	case MeasureTemperature:
		return d.core.Attributes().GetFloat(PathChamberTemperature)
	case MeasureSetpoint:
		return d.core.Attributes().GetFloat(PathChamberSetpoint)
	default:
		return 0, fmt.Errorf("%w: measurement kind %q", instrument.ErrValueNotSupported, kind)
	}
}

// Close releases both links. Safe on a simulated driver with none.
func (d *Driver) Close() error {
	var first error
	if d.bus != nil {
		if err := d.bus.Close(); err != nil {
			first = err
		}
	}
	if d.link != nil {
		if err := d.link.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// loadIdentity reads the identification trio over the ASCII link. The ID?
// response carries the family name, so it doubles as the model string.
func (d *Driver) loadIdentity() (instrument.IdentityValues, error) {
	id, err := d.link.Ask("ID?")
	if err != nil {
		return instrument.IdentityValues{}, err
	}
	serial, err := d.link.Ask("SER?")
	if err != nil {
		return instrument.IdentityValues{}, err
	}
	rev, err := d.link.Ask("REV?")
	if err != nil {
		return instrument.IdentityValues{}, err
	}
	return instrument.IdentityValues{
		Manufacturer:     "Sun Systems",
		Model:            id,
		SerialNumber:     serial,
		FirmwareRevision: rev,
	}, nil
}
