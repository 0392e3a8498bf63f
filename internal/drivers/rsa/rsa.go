// Package rsa drives Tektronix RSA series spectrum analyzers. The family
// mixes terse legacy mnemonics ("cf 1e9 hz", "rb auto") with SCPI-style
// commands, reports its usable model only through a compound identity
// query, and resets on *CLS, so the lifecycle ceremony differs from the
// plain SCPI drivers.
package rsa

import (
	"fmt"
	"math"
	"strconv"

	"github.com/davmor83/labrig-core/internal/instrument"
	"github.com/davmor83/labrig-core/internal/instrument/wire"
	"github.com/davmor83/labrig-core/internal/scpi"
	"github.com/davmor83/labrig-core/internal/transport"
)

// Attribute paths exposed by the driver, in addition to the operation and
// identity groups every driver carries.
const (
	PathFrequencyCenter = instrument.Path("frequency.center")
	PathFrequencySpan   = instrument.Path("frequency.span")
	PathFrequencyStart  = instrument.Path("frequency.start")
	PathFrequencyStop   = instrument.Path("frequency.stop")
	PathFrequencyOffset = instrument.Path("frequency.offset")

	PathResolutionBandwidth     = instrument.Path("sweep_coupling.resolution_bandwidth")
	PathResolutionBandwidthAuto = instrument.Path("sweep_coupling.resolution_bandwidth_auto")
	PathVideoBandwidth          = instrument.Path("sweep_coupling.video_bandwidth")
	PathVideoBandwidthAuto      = instrument.Path("sweep_coupling.video_bandwidth_auto")
	PathSweepTime               = instrument.Path("sweep_coupling.sweep_time")
	PathSweepTimeAuto           = instrument.Path("sweep_coupling.sweep_time_auto")

	PathAmplitudeUnits       = instrument.Path("level.amplitude_units")
	PathLevelAttenuation     = instrument.Path("level.attenuation")
	PathLevelAttenuationAuto = instrument.Path("level.attenuation_auto")
	PathLevelReference       = instrument.Path("level.reference")
	PathLevelReferenceOffset = instrument.Path("level.reference_offset")
	PathInputImpedance       = instrument.Path("level.input_impedance")

	PathRFLevel           = instrument.Path("rf.level")
	PathRFAttenuation     = instrument.Path("rf.attenuation")
	PathRFAttenuationAuto = instrument.Path("rf.attenuation_auto")
	PathRFOutputEnabled   = instrument.Path("rf.output_enabled")
	PathRFPowerMode       = instrument.Path("rf.power_mode")
	PathRFPowerOffset     = instrument.Path("rf.power_offset")
	PathRFPowerSpan       = instrument.Path("rf.power_span")
	PathRFTrackingAdjust  = instrument.Path("rf.tracking_adjust")

	PathALCSource        = instrument.Path("alc.source")
	PathOscillatorSource = instrument.Path("oscillator.source")
	PathOscillatorLocked = instrument.Path("oscillator.locked")

	PathContinuous          = instrument.Path("acquisition.continuous")
	PathDetectorType        = instrument.Path("acquisition.detector_type")
	PathDetectorTypeAuto    = instrument.Path("acquisition.detector_type_auto")
	PathVerticalScale       = instrument.Path("acquisition.vertical_scale")
	PathNumberOfSweeps      = instrument.Path("acquisition.number_of_sweeps")
	PathSweepModeContinuous = instrument.Path("acquisition.sweep_mode_continuous")

	PathTraceType             = instrument.Path("traces[].type")
	PathSpuriousConfig        = instrument.Path("spurious.config")
	PathSpuriousCarrierConfig = instrument.Path("spurious.carrier.config")
	PathSpuriousRangeConfig   = instrument.Path("spurious.ranges[].config")
	PathSpuriousTraceConfig   = instrument.Path("spurious.traces[].config")
	PathDisplaySpuriousConfig = instrument.Path("display.spurious.config")
	PathDisplayTitle          = instrument.Path("display.title")
)

// Vertical scale of the displayed spectrum.
const (
	VerticalScaleLinear      = "linear"
	VerticalScaleLogarithmic = "logarithmic"
)

// Tracking generator power modes.
const (
	PowerModeFixed = "fixed"
	PowerModeSweep = "sweep"
)

// Display detector types.
const (
	DetectorMaximumPeak = "maximum_peak"
	DetectorMinimumPeak = "minimum_peak"
	DetectorSample      = "sample"
)

// ALC feedback sources.
const (
	ALCSourceInternal = "internal"
	ALCSourceExternal = "external"
)

// Reference oscillator sources.
const (
	OscillatorSourceInternal = "int"
	OscillatorSourceExternal = "ext"
)

// Trace accumulation types.
const (
	TraceTypeClearWrite   = "clear_write"
	TraceTypeMaximumHold  = "maximum_hold"
	TraceTypeMinimumHold  = "minimum_hold"
	TraceTypeVideoAverage = "video_average"
	TraceTypeView         = "view"
	TraceTypeStore        = "store"
)

// Repeated capabilities of the spurious measurement application.
const (
	CollectionTraces = "traces"
	CollectionRanges = "spurious.ranges"
)

// memorySize is the number of save/recall slots on this family.
const memorySize = 9

var detectorTable = wire.NewTable([][2]string{
	{DetectorMaximumPeak, "pos"},
	{DetectorMinimumPeak, "neg"},
	{DetectorSample, "smp"},
})

var alcSourceTable = wire.NewTable([][2]string{
	{ALCSourceInternal, "int"},
	{ALCSourceExternal, "ext"},
})

var oscillatorSourceTable = wire.NewTable([][2]string{
	{OscillatorSourceInternal, "INT"},
	{OscillatorSourceExternal, "EXT"},
})

var amplitudeUnitsTable = wire.NewTable([][2]string{
	{"dbm", "DBM"},
	{"dbv", "DBV"},
	{"volt", "VOLT"},
	{"watt", "WATT"},
	{"dbuw", "DBUW"},
	{"dbw", "DBW"},
	{"dbuv", "DBUV"},
	{"dbmv", "DBMV"},
	{"dbua", "DBUA"},
	{"dbuv_m", "DBUV_M"},
	{"dbua_m", "DBUA_M"},
	{"amp", "AMP"},
})

var traceTypes = []string{
	TraceTypeClearWrite, TraceTypeMaximumHold, TraceTypeMinimumHold,
	TraceTypeVideoAverage, TraceTypeView, TraceTypeStore,
}

// supportedModels lists the family members this driver talks to.
var supportedModels = []string{"RSA306B", "RSA500", "RSA600", "RSA5000B", "RSA7100B"}

// AmplitudeUnits lists the amplitude units the driver accepts.
func AmplitudeUnits() []string { return amplitudeUnitsTable.Values() }

// DetectorTypes lists the display detector types the driver accepts.
func DetectorTypes() []string { return detectorTable.Values() }

// TraceTypes lists the trace accumulation types the driver accepts.
func TraceTypes() []string {
	out := make([]string, len(traceTypes))
	copy(out, traceTypes)
	return out
}

// SupportedModels lists the family members the driver supports.
func SupportedModels() []string {
	out := make([]string, len(supportedModels))
	copy(out, supportedModels)
	return out
}

func validTraceType(s string) bool {
	for _, t := range traceTypes {
		if s == t {
			return true
		}
	}
	return false
}

// Options configure a driver instance. The zero value is a live driver
// with the family defaults.
type Options struct {
	// Simulate runs the driver without hardware: gets return defaults or
	// previously set values, sets and lifecycle ceremony never touch the
	// transport.
	Simulate bool

	// Description is the identity.description value. A family default is
	// applied when empty.
	Description string

	// Manufacturer and Model are the static identity fallbacks when the
	// instrument cannot be queried. Manufacturer defaults to Tektronix.
	Manufacturer string
	Model        string

	// ExpectedID is the model prefix verified by an IDQuery initialize,
	// for example RSA306B. Empty disables the check.
	ExpectedID string
}

// Driver is a Tektronix RSA series spectrum analyzer. Not safe for
// concurrent use; callers serialize access to one instance.
type Driver struct {
	core *instrument.Core
	sess *scpi.Session
	link transport.Transport
	opts Options
}

// New builds the driver and registers its attribute surface. The transport
// may be nil when Simulate is set.
func New(link transport.Transport, opts Options) (*Driver, error) {
	if opts.Description == "" {
		opts.Description = "Tektronix RSA series spectrum analyzer"
	}
	if opts.Manufacturer == "" {
		opts.Manufacturer = "Tektronix"
	}
	d := &Driver{
		core: instrument.NewCore(instrument.CoreOptions{
			MemorySize: memorySize,
			Simulate:   opts.Simulate,
			Cache:      true,
		}),
		sess: scpi.NewSession(link),
		link: link,
		opts: opts,
	}
	d.registerFrequency()
	d.registerSweepCoupling()
	d.registerLevel()
	d.registerRF()
	d.registerOscillator()
	d.registerAcquisition()
	if err := d.registerSpurious(); err != nil {
		return nil, err
	}
	d.registerDisplay()
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

func (d *Driver) registerFrequency() {
	d.registerNumber(PathFrequencyCenter, "frequency",
		"Center frequency in hertz.",
		numberSpec{query: "cf?", set: "cf %s hz", verb: 'f'}, 0)
	d.registerNumber(PathFrequencySpan, "frequency",
		"Frequency span in hertz.",
		numberSpec{query: "sp?", set: "sp %s hz", verb: 'f'}, 0)
	d.registerNumber(PathFrequencyStart, "frequency",
		"Sweep start frequency in hertz.",
		numberSpec{query: "fa?", set: "fa %s hz", verb: 'f'}, 0)
	d.registerNumber(PathFrequencyStop, "frequency",
		"Sweep stop frequency in hertz.",
		numberSpec{query: "fb?", set: "fb %s hz", verb: 'f'}, 0)
	d.registerNumber(PathFrequencyOffset, "frequency",
		"Offset added to displayed frequency readouts, in hertz.",
		numberSpec{query: "foffset?", set: "foffset %s hz", verb: 'e'}, 0)

	// Center/span and start/stop are two views of the same axis, and the
	// instrument retunes the coupled sweep settings whenever the axis
	// moves.
	reg := d.core.Attributes()
	coupled := []instrument.Path{PathResolutionBandwidth, PathSweepTime, PathVideoBandwidth}
	reg.Affects(PathFrequencyCenter, append([]instrument.Path{PathFrequencyStart, PathFrequencyStop}, coupled...)...)
	reg.Affects(PathFrequencySpan, append([]instrument.Path{PathFrequencyStart, PathFrequencyStop}, coupled...)...)
	reg.Affects(PathFrequencyStart, append([]instrument.Path{PathFrequencyCenter, PathFrequencySpan}, coupled...)...)
	reg.Affects(PathFrequencyStop, append([]instrument.Path{PathFrequencyCenter, PathFrequencySpan}, coupled...)...)
}

func (d *Driver) registerSweepCoupling() {
	d.registerManualNumber(PathResolutionBandwidth, PathResolutionBandwidthAuto, "sweep_coupling",
		"Resolution bandwidth in hertz. A manual set switches the coupling to manual.",
		numberSpec{query: "rb?", set: "rb %s hz", verb: 'e'}, 0)
	d.registerAutoFlag(PathResolutionBandwidthAuto, PathResolutionBandwidth, "sweep_coupling",
		"Couples the resolution bandwidth to the span.", "rb auto")
	d.registerManualNumber(PathVideoBandwidth, PathVideoBandwidthAuto, "sweep_coupling",
		"Video bandwidth in hertz. A manual set switches the coupling to manual.",
		numberSpec{query: "vb?", set: "vb %s hz", verb: 'e'}, 0)
	d.registerAutoFlag(PathVideoBandwidthAuto, PathVideoBandwidth, "sweep_coupling",
		"Couples the video bandwidth to the resolution bandwidth.", "vb auto")
	d.registerManualNumber(PathSweepTime, PathSweepTimeAuto, "sweep_coupling",
		"Sweep time in seconds. A manual set switches the coupling to manual.",
		numberSpec{query: "st?", set: "st %s s", verb: 'e'}, 0)
	d.registerAutoFlag(PathSweepTimeAuto, PathSweepTime, "sweep_coupling",
		"Couples the sweep time to the span and bandwidth settings.", "st auto")
}

func (d *Driver) registerLevel() {
	d.registerEnum(PathAmplitudeUnits, "level", "POW:UNIT?", "POW:UNIT %s",
		"Amplitude units for level entries and readouts.", amplitudeUnitsTable, "dbm")
	d.registerNumber(PathLevelAttenuation, "level",
		"Input attenuation in decibels.",
		numberSpec{query: "INP:ATT?", set: "INP:ATT %s", verb: 'g'}, 0)
	d.registerBoolCmd(PathLevelAttenuationAuto, "level", "INP:ATT:AUTO?", "INP:ATT:AUTO %s",
		"Couples the input attenuation to the reference level.", true)
	d.registerNumber(PathLevelReference, "level",
		"Reference level in the current amplitude units.",
		numberSpec{query: "INP:RLEVEL?", set: "INP:RLEVEL %s", verb: 'e'}, 0)
	d.registerNumber(PathLevelReferenceOffset, "level",
		"Offset applied to the reference level, in decibels.",
		numberSpec{query: "roffset?", set: "roffset %s db", verb: 'e'}, 0)
	d.registerLocalFloat(PathInputImpedance, "level",
		"Nominal input impedance in ohms.", 50)
}

func (d *Driver) registerRF() {
	d.registerNumber(PathRFLevel, "rf",
		"Tracking generator output level in the current amplitude units.",
		numberSpec{query: "srcpwr?", set: "srcpwr %s", verb: 'e'}, 0)
	d.registerManualNumber(PathRFAttenuation, PathRFAttenuationAuto, "rf",
		"Tracking generator output attenuation in decibels. A manual set switches the coupling to manual.",
		numberSpec{query: "srcat?", set: "srcat %s", verb: 'e'}, 0)
	d.registerWordBool(PathRFAttenuationAuto, "rf",
		"Couples the generator attenuation to the output level.", true,
		func(b bool) string {
			if b {
				return "srcat auto"
			}
			return "srcat man"
		})
	d.registerWordBool(PathRFOutputEnabled, "rf",
		"Switches the tracking generator output on.", false,
		func(b bool) string {
			if b {
				return "srcpwr on"
			}
			return "srcpwr off"
		})

	reg := d.core.Attributes()
	modeKey := instrument.ScalarKey(PathRFPowerMode)
	reg.MustRegister(instrument.Descriptor{
		Path:    PathRFPowerMode,
		Group:   "rf",
		Doc:     "Generator power mode. One of: [fixed sweep].",
		Local:   true,
		Default: PowerModeFixed,
		Get: func(int) (any, error) {
			v, _ := d.core.Cache().Read(modeKey)
			return v, nil
		},
		Set: func(_ int, value any) error {
			s, ok := value.(string)
			if !ok || (s != PowerModeFixed && s != PowerModeSweep) {
				return fmt.Errorf("%w: power mode %v", instrument.ErrValueNotSupported, value)
			}
			cmd := "srcpswp off"
			if s == PowerModeSweep {
				cmd = "srcpswp on"
			}
			return d.core.CachedSet(modeKey, s, func() error {
				return d.sess.Command(cmd)
			})
		},
	})
	reg.Affects(PathRFPowerMode, PathRFPowerSpan)

	d.registerNumber(PathRFPowerOffset, "rf",
		"Offset added to the generator level, in decibels.",
		numberSpec{query: "srcpofs?", set: "srcpofs %s", verb: 'e'}, 0)
	reg.Affects(PathRFPowerOffset, PathRFLevel)

	d.registerNumber(PathRFPowerSpan, "rf",
		"Level span of a generator power sweep, in decibels.",
		numberSpec{query: "srcpswp?", set: "srcpswp %s", verb: 'e'}, 0)

	d.registerInt(PathRFTrackingAdjust, "rf",
		"Fine adjustment of the generator tracking, in DAC counts.",
		"srctk?", "srctk %d", 0)

	d.registerEnum(PathALCSource, "alc", "srcalc?", "srcalc %s",
		"Generator leveling feedback source.", alcSourceTable, ALCSourceInternal)
}

func (d *Driver) registerOscillator() {
	d.registerEnum(PathOscillatorSource, "oscillator", "ROSC:SOUR?", "ROSC:SOUR %s",
		"Reference oscillator source.", oscillatorSourceTable, OscillatorSourceInternal)

	d.core.Attributes().MustRegister(instrument.Descriptor{
		Path:  PathOscillatorLocked,
		Group: "oscillator",
		Doc:   "Whether the timebase is locked to the external reference. Status is read live, never cached.",
		Get: func(int) (any, error) {
			if d.core.Simulated() {
				return false, nil
			}
			return d.sess.QueryBool("ROSC:EXT:TIME:STAT?")
		},
	})
}

// RFTrackingPeak runs the automatic tracking adjustment of the generator.
func (d *Driver) RFTrackingPeak() error {
	if err := d.core.RequireInitialized(); err != nil {
		return err
	}
	if d.core.Simulated() {
		return nil
	}
	return d.sess.Command("srctkpk")
}

// numberSpec describes one float attribute on the wire. The family mixes
// bare mnemonics with unit suffixes, so query and set forms are spelled
// out per attribute. verb is the strconv verb the set form expects, 'f',
// 'e', or 'g'.
type numberSpec struct {
	query string
	set   string
	verb  byte
}

func (s numberSpec) render(n wire.Number) string {
	if n.Sentinel != "" {
		return n.Sentinel
	}
	return strconv.FormatFloat(n.Value, s.verb, -1, 64)
}

// registerNumber wires a float attribute to its command pair. Sets accept
// float64, the integer widths, or the MIN/MAX sentinels; the cache holds
// whichever form was set.
func (d *Driver) registerNumber(path instrument.Path, group, doc string, spec numberSpec, def float64) {
	d.registerNumberAfter(path, group, doc, spec, def, nil)
}

// registerNumberAfter additionally runs after on every successful set.
func (d *Driver) registerNumberAfter(path instrument.Path, group, doc string, spec numberSpec, def float64, after func()) {
	key := instrument.ScalarKey(path)
	d.core.Attributes().MustRegister(instrument.Descriptor{
		Path:    path,
		Group:   group,
		Doc:     doc,
		Default: def,
		Get: func(int) (any, error) {
			return d.core.CachedGet(key, def, func() (any, error) {
				return d.sess.QueryFloat(spec.query)
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
			err = d.core.CachedSet(key, stored, func() error {
				return d.sess.Commandf(spec.set, spec.render(n))
			})
			if err != nil {
				return err
			}
			if after != nil {
				after()
			}
			return nil
		},
	})
}

// registerManualNumber wires a float attribute whose manual set also drops
// the companion auto flag.
func (d *Driver) registerManualNumber(path, auto instrument.Path, group, doc string, spec numberSpec, def float64) {
	d.registerNumberAfter(path, group, doc, spec, def, func() {
		d.core.Cache().Write(instrument.ScalarKey(auto), false)
	})
}

// registerAutoFlag wires the locally tracked auto flag of a coupled
// setting. Enabling writes the instrument's auto command; disabling
// reprograms the manual value currently in effect, which is how the
// family drops out of coupled mode.
func (d *Driver) registerAutoFlag(path, manual instrument.Path, group, doc, autoCmd string) {
	key := instrument.ScalarKey(path)
	reg := d.core.Attributes()
	reg.MustRegister(instrument.Descriptor{
		Path:    path,
		Group:   group,
		Doc:     doc,
		Local:   true,
		Default: true,
		Get: func(int) (any, error) {
			v, _ := d.core.Cache().Read(key)
			return v, nil
		},
		Set: func(_ int, value any) error {
			b, ok := value.(bool)
			if !ok {
				return fmt.Errorf("%w: %q wants bool, got %T", instrument.ErrValueNotSupported, path, value)
			}
			if !b {
				v, err := reg.Get(manual)
				if err != nil {
					return err
				}
				return reg.Set(manual, v)
			}
			return d.core.CachedSet(key, true, func() error {
				return d.sess.Command(autoCmd)
			})
		},
	})
}

// registerBoolCmd wires a bool attribute to its command pair using the 1/0
// wire convention.
func (d *Driver) registerBoolCmd(path instrument.Path, group, query, set, doc string, def bool) {
	key := instrument.ScalarKey(path)
	d.core.Attributes().MustRegister(instrument.Descriptor{
		Path:    path,
		Group:   group,
		Doc:     doc,
		Default: def,
		Get: func(int) (any, error) {
			return d.core.CachedGet(key, def, func() (any, error) {
				return d.sess.QueryBool(query)
			})
		},
		Set: func(_ int, value any) error {
			b, ok := value.(bool)
			if !ok {
				return fmt.Errorf("%w: %q wants bool, got %T", instrument.ErrValueNotSupported, path, value)
			}
			return d.core.CachedSet(key, b, func() error {
				return d.sess.Commandf(set, wire.FormatBool(b))
			})
		},
	})
}

// registerWordBool wires a bool the instrument cannot report back. The
// last written state is tracked locally; cmd renders the full command for
// a state.
func (d *Driver) registerWordBool(path instrument.Path, group, doc string, def bool, cmd func(bool) string) {
	key := instrument.ScalarKey(path)
	d.core.Attributes().MustRegister(instrument.Descriptor{
		Path:    path,
		Group:   group,
		Doc:     doc,
		Local:   true,
		Default: def,
		Get: func(int) (any, error) {
			v, _ := d.core.Cache().Read(key)
			return v, nil
		},
		Set: func(_ int, value any) error {
			b, ok := value.(bool)
			if !ok {
				return fmt.Errorf("%w: %q wants bool, got %T", instrument.ErrValueNotSupported, path, value)
			}
			return d.core.CachedSet(key, b, func() error {
				return d.sess.Command(cmd(b))
			})
		},
	})
}

// registerEnum wires a table-mapped enum attribute to its command pair.
func (d *Driver) registerEnum(path instrument.Path, group, query, set, doc string, table wire.Table, def string) {
	key := instrument.ScalarKey(path)
	d.core.Attributes().MustRegister(instrument.Descriptor{
		Path:    path,
		Group:   group,
		Doc:     doc + " One of: " + fmt.Sprint(table.Values()) + ".",
		Default: def,
		Get: func(int) (any, error) {
			return d.core.CachedGet(key, def, func() (any, error) {
				resp, err := d.sess.Query(query)
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
				return d.sess.Commandf(set, token)
			})
		},
	})
}

// registerInt wires an integer attribute to its command pair.
func (d *Driver) registerInt(path instrument.Path, group, doc, query, set string, def int) {
	key := instrument.ScalarKey(path)
	d.core.Attributes().MustRegister(instrument.Descriptor{
		Path:    path,
		Group:   group,
		Doc:     doc,
		Default: def,
		Get: func(int) (any, error) {
			return d.core.CachedGet(key, def, func() (any, error) {
				return d.sess.QueryInt(query)
			})
		},
		Set: func(_ int, value any) error {
			n, err := coerceInt(path, value)
			if err != nil {
				return err
			}
			return d.core.CachedSet(key, n, func() error {
				return d.sess.Commandf(set, n)
			})
		},
	})
}

func (d *Driver) registerLocalBool(path instrument.Path, group, doc string, def bool) {
	key := instrument.ScalarKey(path)
	d.core.Attributes().MustRegister(instrument.Descriptor{
		Path:    path,
		Group:   group,
		Doc:     doc,
		Local:   true,
		Default: def,
		Get: func(int) (any, error) {
			v, _ := d.core.Cache().Read(key)
			return v, nil
		},
		Set: func(_ int, value any) error {
			b, ok := value.(bool)
			if !ok {
				return fmt.Errorf("%w: %q wants bool, got %T", instrument.ErrValueNotSupported, path, value)
			}
			d.core.Cache().Write(key, b)
			return nil
		},
	})
}

func (d *Driver) registerLocalFloat(path instrument.Path, group, doc string, def float64) {
	key := instrument.ScalarKey(path)
	d.core.Attributes().MustRegister(instrument.Descriptor{
		Path:    path,
		Group:   group,
		Doc:     doc,
		Local:   true,
		Default: def,
		Get: func(int) (any, error) {
			v, _ := d.core.Cache().Read(key)
			return v, nil
		},
		Set: func(_ int, value any) error {
			n, err := wire.NumberFrom(value)
			if err != nil {
				return err
			}
			if n.Sentinel != "" {
				return fmt.Errorf("%w: %q cannot take %s", instrument.ErrValueNotSupported, path, n.Sentinel)
			}
			d.core.Cache().Write(key, n.Value)
			return nil
		},
	})
}

func (d *Driver) registerLocalInt(path instrument.Path, group, doc string, def int) {
	key := instrument.ScalarKey(path)
	d.core.Attributes().MustRegister(instrument.Descriptor{
		Path:    path,
		Group:   group,
		Doc:     doc,
		Local:   true,
		Default: def,
		Get: func(int) (any, error) {
			v, _ := d.core.Cache().Read(key)
			return v, nil
		},
		Set: func(_ int, value any) error {
			n, err := coerceInt(path, value)
			if err != nil {
				return err
			}
			d.core.Cache().Write(key, n)
			return nil
		},
	})
}

func coerceInt(path instrument.Path, value any) (int, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(math.Round(v)), nil
	}
	return 0, fmt.Errorf("%w: %q wants int, got %T", instrument.ErrValueNotSupported, path, value)
}
