// Package load drives SCPI programmable DC electronic loads. The generic
// driver covers the common command set (mode, input, setpoints, protection,
// slew, trigger, measurements); model presets such as New8542B pin down the
// identity string, memory depth, and optional capabilities.
package load

import (
	"fmt"

	"github.com/davmor83/labrig-core/internal/instrument"
	"github.com/davmor83/labrig-core/internal/instrument/wire"
	"github.com/davmor83/labrig-core/internal/scpi"
	"github.com/davmor83/labrig-core/internal/transport"
)

// Attribute paths exposed by the driver, in addition to the operation and
// identity groups every driver carries.
const (
	PathChannel           = instrument.Path("channel")
	PathName              = instrument.Path("name")
	PathChannelName       = instrument.Path("channels[].name")
	PathMode              = instrument.Path("mode")
	PathInputEnabled      = instrument.Path("input.enabled")
	PathInputShorted      = instrument.Path("input.shorted")
	PathVoltageRange      = instrument.Path("voltage.range")
	PathVoltageOn         = instrument.Path("voltage.on")
	PathVoltageOff        = instrument.Path("voltage.off")
	PathCurrentSetpoint   = instrument.Path("current.setpoint")
	PathCurrentRange      = instrument.Path("current.range")
	PathCurrentSlew       = instrument.Path("current.slew")
	PathCurrentSlewRise   = instrument.Path("current.slew_rise")
	PathCurrentSlewFall   = instrument.Path("current.slew_fall")
	PathCurrentProtection = instrument.Path("current.protection")
	PathPowerSetpoint     = instrument.Path("power.setpoint")
	PathPowerProtection   = instrument.Path("power.protection")
	PathResistance        = instrument.Path("resistance")
	PathTriggerSource     = instrument.Path("trigger.source")
	PathTriggerDelayAuto  = instrument.Path("trigger.delay_auto")
)

// Regulation modes.
const (
	ModeConstantCurrent    = "constant_current"
	ModeConstantVoltage    = "constant_voltage"
	ModeConstantResistance = "constant_resistance"
	ModeConstantPower      = "constant_power"
)

// Trigger sources.
const (
	TriggerSourceBus       = "bus"
	TriggerSourceExternal  = "external"
	TriggerSourceImmediate = "immediate"
)

// CollectionChannels is the repeated capability holding the load channels.
const CollectionChannels = "channels"

// resistanceOverRange marks open-circuit resistance responses on this
// instrument family.
const resistanceOverRange = "INF0"

var modeTable = wire.NewTable([][2]string{
	{ModeConstantCurrent, "CURRENT"},
	{ModeConstantVoltage, "VOLTAGE"},
	{ModeConstantResistance, "RESISTANCE"},
	{ModeConstantPower, "POWER"},
})

var triggerSourceTable = wire.NewTable([][2]string{
	{TriggerSourceBus, "BUS"},
	{TriggerSourceExternal, "EXT"},
	{TriggerSourceImmediate, "IMM"},
})

// Modes lists the regulation modes the driver accepts.
func Modes() []string { return modeTable.Values() }

// TriggerSources lists the trigger sources the driver accepts.
func TriggerSources() []string { return triggerSourceTable.Values() }

// Options configure a driver instance. Model presets fill the identity
// fields; the zero value is a single-channel generic load.
type Options struct {
	// Channels is the channel count. Default: 1.
	Channels int

	// Simulate runs the driver without hardware: gets return defaults or
	// previously set values, sets and lifecycle ceremony never touch the
	// transport.
	Simulate bool

	// Description is the identity.description value.
	Description string

	// Manufacturer and Model are the static identity fallbacks when the
	// instrument cannot be queried.
	Manufacturer string
	Model        string

	// ExpectedID is the identification prefix verified by an IDQuery
	// initialize. Empty disables the check.
	ExpectedID string

	// MemorySize is the number of save/recall slots. 0 if unsupported.
	MemorySize int

	// SoftwareTrigger enables SendSoftwareTrigger for instruments that
	// honor the bus trigger.
	SoftwareTrigger bool
}

// Driver is a SCPI electronic load. Not safe for concurrent use; callers
// serialize access to one instance.
type Driver struct {
	core *instrument.Core
	sess *scpi.Session
	link transport.Transport
	opts Options
}

// New builds the driver and registers its attribute surface. The transport
// may be nil when Simulate is set.
func New(link transport.Transport, opts Options) (*Driver, error) {
	if opts.Channels <= 0 {
		opts.Channels = 1
	}
	d := &Driver{
		core: instrument.NewCore(instrument.CoreOptions{
			MemorySize: opts.MemorySize,
			Simulate:   opts.Simulate,
			Cache:      true,
		}),
		sess: scpi.NewSession(link),
		link: link,
		opts: opts,
	}
	if err := d.registerChannels(opts.Channels); err != nil {
		return nil, err
	}
	d.registerBase()
	d.registerTrigger()
	d.core.RegisterIdentity(instrument.IdentityValues{
		Description:  opts.Description,
		Manufacturer: opts.Manufacturer,
		Model:        opts.Model,
	}, d.loadIdentity)
	return d, nil
}

// SetLogger installs a logger for lifecycle events.
func (d *Driver) SetLogger(l instrument.Logger) { d.core.SetLogger(l) }

// Attributes exposes the attribute registry for get/set and introspection.
func (d *Driver) Attributes() *instrument.Registry { return d.core.Attributes() }

// Simulated reports whether the driver runs without hardware.
func (d *Driver) Simulated() bool { return d.core.Simulated() }

// AcquisitionState reports the measurement state machine's state.
func (d *Driver) AcquisitionState() instrument.AcquisitionState {
	return d.core.Acquisition().State()
}

func (d *Driver) registerChannels(count int) error {
	names := make([]string, count)
	for i := range names {
		names[i] = fmt.Sprintf("CH%d", i+1)
	}
	cols := d.core.Collections()
	if err := cols.Define(CollectionChannels, names); err != nil {
		return err
	}
	reg := d.core.Attributes()

	reg.MustRegister(instrument.Descriptor{
		Path:  PathChannel,
		Group: "channels",
		Doc:   "Channel addressed by scalar channel attributes. Accepts a channel name or 0-based index.",
		Get: func(int) (any, error) {
			idx, err := cols.Current(CollectionChannels)
			if err != nil {
				return nil, err
			}
			return cols.NameOf(CollectionChannels, instrument.ByIndex(idx))
		},
		Set: func(_ int, value any) error {
			var sel instrument.Selector
			switch v := value.(type) {
			case string:
				sel = instrument.ByName(v)
			case int:
				sel = instrument.ByIndex(v)
			default:
				return fmt.Errorf("%w: channel selector of type %T", instrument.ErrValueNotSupported, value)
			}
			idx, err := cols.Resolve(CollectionChannels, sel)
			if err != nil {
				return err
			}
			if !d.core.Simulated() {
				if err := d.sess.Commandf(":CHAN %d", idx+1); err != nil {
					return err
				}
			}
			return cols.Select(CollectionChannels, instrument.ByIndex(idx))
		},
	})

	reg.MustRegister(instrument.Descriptor{
		Path:  PathName,
		Group: "channels",
		Doc:   "Name of the currently selected channel.",
		Get: func(int) (any, error) {
			idx, err := cols.Current(CollectionChannels)
			if err != nil {
				return nil, err
			}
			return cols.NameOf(CollectionChannels, instrument.ByIndex(idx))
		},
	})

	// Channel names live in the collection so renames keep name-based
	// selectors coherent.
	reg.MustRegister(instrument.Descriptor{
		Path:       PathChannelName,
		Group:      "channels",
		Collection: CollectionChannels,
		Doc:        "User-assigned channel name. Renames must stay unique within the collection.",
		Local:      true,
		Get: func(index int) (any, error) {
			return cols.NameOf(CollectionChannels, instrument.ByIndex(index))
		},
		Set: func(index int, value any) error {
			name, ok := value.(string)
			if !ok {
				return fmt.Errorf("%w: channel name of type %T", instrument.ErrValueNotSupported, value)
			}
			return cols.Rename(CollectionChannels, instrument.ByIndex(index), name)
		},
	})
	return nil
}

func (d *Driver) registerBase() {
	d.registerEnum(PathMode, "base", ":SOUR:MODE",
		"Regulation mode of the load.", modeTable, ModeConstantCurrent)
	d.registerBool(PathInputEnabled, "base", ":INP",
		"Enables the load input.", false)
	d.registerBool(PathInputShorted, "base", ":INP:SHOR",
		"Applies a short across the input terminals.", false)
	d.registerNumber(PathVoltageRange, "base", ":VOLT:RANG",
		"Voltage measurement range in volts.", 0)
	d.registerNumber(PathVoltageOn, "base", ":VOLT:ON",
		"Input voltage above which the load starts sinking, in volts.", 0.1)
	d.registerNumber(PathVoltageOff, "base", ":VOLT:OFF",
		"Input voltage below which the load stops sinking, in volts.", 0)
	d.registerNumber(PathCurrentSetpoint, "base", ":CURR",
		"Constant-current setpoint in amps.", 0)
	d.registerNumber(PathCurrentRange, "base", ":CURR:RANG",
		"Current range in amps.", 0)
	d.registerNumber(PathCurrentSlew, "base", ":CURR:SLEW",
		"Current slew rate for both edges, in amps per second.", 0)
	d.registerNumber(PathCurrentSlewRise, "base", ":CURR:SLEW:RISE",
		"Rising-edge current slew rate in amps per second.", 0)
	d.registerNumber(PathCurrentSlewFall, "base", ":CURR:SLEW:FALL",
		"Falling-edge current slew rate in amps per second.", 0)
	d.registerNumber(PathCurrentProtection, "base", ":CURR:PROT",
		"Current protection limit in amps.", 0)
	d.registerNumber(PathPowerSetpoint, "base", ":POW",
		"Constant-power setpoint in watts.", 0)
	d.registerNumber(PathPowerProtection, "base", ":POW:PROT",
		"Power protection limit in watts.", 0)
	d.registerNumber(PathResistance, "base", ":RES",
		"Constant-resistance setpoint in ohms.", 0, resistanceOverRange)
}

func (d *Driver) registerTrigger() {
	d.registerEnum(PathTriggerSource, "trigger", ":TRIG:SOUR",
		"Event source that starts a triggered transition.", triggerSourceTable, TriggerSourceImmediate)

	reg := d.core.Attributes()
	reg.MustRegister(instrument.Descriptor{
		Path:    PathTriggerDelayAuto,
		Group:   "trigger",
		Doc:     "Lets the instrument choose the trigger delay.",
		Local:   true,
		Default: true,
		Get: func(int) (any, error) {
			v, _ := d.core.Cache().Read(instrument.ScalarKey(PathTriggerDelayAuto))
			return v, nil
		},
		Set: func(_ int, value any) error {
			b, ok := value.(bool)
			if !ok {
				return fmt.Errorf("%w: %q wants bool, got %T", instrument.ErrValueNotSupported, PathTriggerDelayAuto, value)
			}
			d.core.Cache().Write(instrument.ScalarKey(PathTriggerDelayAuto), b)
			return nil
		},
	})
}

// registerNumber wires a float attribute to a SCPI command. Sets accept
// float64, the integer widths, or the MIN/MAX sentinels; the cache holds
// whichever form was set.
func (d *Driver) registerNumber(path instrument.Path, group, cmd, doc string, def float64, outOfRange ...string) {
	key := instrument.ScalarKey(path)
	d.core.Attributes().MustRegister(instrument.Descriptor{
		Path:    path,
		Group:   group,
		Doc:     doc,
		Default: def,
		Get: func(int) (any, error) {
			return d.core.CachedGet(key, def, func() (any, error) {
				return d.sess.QueryFloat(cmd+"?", outOfRange...)
			})
		},
		Set: func(_ int, value any) error {
			n, err := wire.NumberFrom(value)
			if err != nil {
				return err
			}
			stored := any(n.Value)
			if n.Sentinel != "" {
				stored = n.Sentinel
			}
			return d.core.CachedSet(key, stored, func() error {
				return d.sess.Commandf("%s %s", cmd, n.Token())
			})
		},
	})
}

// registerBool wires a bool attribute to a SCPI command.
func (d *Driver) registerBool(path instrument.Path, group, cmd, doc string, def bool) {
	key := instrument.ScalarKey(path)
	d.core.Attributes().MustRegister(instrument.Descriptor{
		Path:    path,
		Group:   group,
		Doc:     doc,
		Default: def,
		Get: func(int) (any, error) {
			return d.core.CachedGet(key, def, func() (any, error) {
				return d.sess.QueryBool(cmd + "?")
			})
		},
		Set: func(_ int, value any) error {
			b, ok := value.(bool)
			if !ok {
				return fmt.Errorf("%w: %q wants bool, got %T", instrument.ErrValueNotSupported, path, value)
			}
			return d.core.CachedSet(key, b, func() error {
				return d.sess.Commandf("%s %s", cmd, wire.FormatBool(b))
			})
		},
	})
}

// registerEnum wires a table-mapped enum attribute to a SCPI command.
func (d *Driver) registerEnum(path instrument.Path, group, cmd, doc string, table wire.Table, def string) {
	key := instrument.ScalarKey(path)
	d.core.Attributes().MustRegister(instrument.Descriptor{
		Path:    path,
		Group:   group,
		Doc:     doc + " One of: " + fmt.Sprint(table.Values()) + ".",
		Default: def,
		Get: func(int) (any, error) {
			return d.core.CachedGet(key, def, func() (any, error) {
				resp, err := d.sess.Query(cmd + "?")
				if err != nil {
					return nil, err
				}
				return table.FromWire(resp)
			})
		},
		Set: func(_ int, value any) error {
			s, ok := value.(string)
			if !ok {
				return fmt.Errorf("%w: %q wants string, got %T", instrument.ErrValueNotSupported, path, value)
			}
			token, err := table.ToWire(s)
			if err != nil {
				return err
			}
			return d.core.CachedSet(key, s, func() error {
				return d.sess.Commandf("%s %s", cmd, token)
			})
		},
	})
}

func (d *Driver) loadIdentity() (instrument.IdentityValues, error) {
	id, err := d.sess.Identify()
	if err != nil {
		return instrument.IdentityValues{}, err
	}
	return instrument.IdentityValues{
		Manufacturer:     id.Manufacturer,
		Model:            id.Model,
		SerialNumber:     id.SerialNumber,
		FirmwareRevision: id.FirmwareRevision,
	}, nil
}
