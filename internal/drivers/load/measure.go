package load

import (
	"fmt"
	"time"

	"github.com/davmor83/labrig-core/internal/instrument"
	"github.com/davmor83/labrig-core/internal/instrument/wire"
)

// Measurement kinds accepted by Measure, Fetch, and Read.
const (
	MeasureVoltage    = "voltage"
	MeasureVoltageMin = "min_voltage"
	MeasureVoltageMax = "max_voltage"
	MeasureVoltagePtp = "ptp_voltage"
	MeasureCurrent    = "current"
	MeasureCurrentMin = "min_current"
	MeasureCurrentMax = "max_current"
	MeasureCurrentPtp = "ptp_current"
	MeasurePower      = "power"
	MeasureResistance = "resistance"
)

type measureSpec struct {
	meas       string
	fetch      string
	outOfRange string
}

var measureCommands = map[string]measureSpec{
	MeasureVoltage:    {meas: ":MEAS:VOLT?", fetch: ":FETC:VOLT?"},
	MeasureVoltageMin: {meas: ":MEAS:VOLT:MIN?", fetch: ":FETC:VOLT:MIN?"},
	MeasureVoltageMax: {meas: ":MEAS:VOLT:MAX?", fetch: ":FETC:VOLT:MAX?"},
	MeasureVoltagePtp: {meas: ":MEAS:VOLT:PTP?", fetch: ":FETC:VOLT:PTP?"},
	MeasureCurrent:    {meas: ":MEAS:CURR?", fetch: ":FETC:CURR?"},
	MeasureCurrentMin: {meas: ":MEAS:CURR:MIN?", fetch: ":FETC:CURR:MIN?"},
	MeasureCurrentMax: {meas: ":MEAS:CURR:MAX?", fetch: ":FETC:CURR:MAX?"},
	MeasureCurrentPtp: {meas: ":MEAS:CURR:PTP?", fetch: ":FETC:CURR:PTP?"},
	MeasurePower:      {meas: ":MEAS:POW?", fetch: ":FETC:POW?"},
	MeasureResistance: {meas: ":MEAS:RES?", fetch: ":FETC:RES?", outOfRange: resistanceOverRange},
}

// measureOrder fixes the enumeration order of MeasureKinds.
var measureOrder = []string{
	MeasureVoltage, MeasureVoltageMin, MeasureVoltageMax, MeasureVoltagePtp,
	MeasureCurrent, MeasureCurrentMin, MeasureCurrentMax, MeasureCurrentPtp,
	MeasurePower, MeasureResistance,
}

// MeasureKinds lists the measurement kinds the driver supports.
func MeasureKinds() []string {
	out := make([]string, len(measureOrder))
	copy(out, measureOrder)
	return out
}

// Measure takes an immediate measurement, bypassing the acquisition state
// machine and the value cache.
func (d *Driver) Measure(kind string) (float64, error) {
	if err := d.core.RequireInitialized(); err != nil {
		return 0, err
	}
	spec, ok := measureCommands[kind]
	if !ok {
		return 0, fmt.Errorf("%w: measurement kind %q", instrument.ErrValueNotSupported, kind)
	}
	if d.core.Simulated() {
		return 0, nil
	}
	return d.sess.QueryFloat(spec.meas, oor(spec)...)
}

// Initiate arms an acquisition. Initiating while one is already in
// progress re-arms the instrument.
func (d *Driver) Initiate() error {
	if err := d.core.RequireInitialized(); err != nil {
		return err
	}
	if !d.core.Simulated() {
		if err := d.sess.Command(":INIT"); err != nil {
			return err
		}
	}
	d.core.Acquisition().Initiate()
	return nil
}

// Abort cancels any acquisition in progress. Aborting an idle driver is
// harmless.
func (d *Driver) Abort() error {
	if err := d.core.RequireInitialized(); err != nil {
		return err
	}
	if !d.core.Simulated() {
		if err := d.sess.Command(":ABOR"); err != nil {
			return err
		}
	}
	d.core.Acquisition().Abort()
	return nil
}

// Fetch collects the result of an initiated acquisition, waiting at most
// maxTime for the instrument to answer. Expiry surfaces as a timeout error
// and the acquisition stays in progress; fetching with no acquisition in
// progress fails without touching the instrument.
func (d *Driver) Fetch(kind string, maxTime time.Duration) (float64, error) {
	if err := d.core.RequireInitialized(); err != nil {
		return 0, err
	}
	spec, ok := measureCommands[kind]
	if !ok {
		return 0, fmt.Errorf("%w: measurement kind %q", instrument.ErrValueNotSupported, kind)
	}
	if err := d.core.Acquisition().Begin(); err != nil {
		return 0, err
	}
	if d.core.Simulated() {
		d.core.Acquisition().Complete()
		return 0, nil
	}
	resp, err := d.sess.QueryWithin(maxTime, spec.fetch)
	if err != nil {
		return 0, err
	}
	v, err := wire.ParseFloat(resp, oor(spec)...)
	if err != nil {
		return 0, err
	}
	d.core.Acquisition().Complete()
	return v, nil
}

// Read runs initiate and fetch as one unit.
func (d *Driver) Read(kind string, maxTime time.Duration) (float64, error) {
	if err := d.Initiate(); err != nil {
		return 0, err
	}
	return d.Fetch(kind, maxTime)
}

// OutOfRange reports whether a measured value lies beyond the instrument's
// representable range in either direction.
func (d *Driver) OutOfRange(v float64) bool {
	return wire.DefaultSentinels().IsOutOfRange(v)
}

// SendSoftwareTrigger issues the bus trigger. The call is a documented
// no-op unless the trigger source is set to bus; drivers built without the
// software trigger capability reject it.
func (d *Driver) SendSoftwareTrigger() error {
	if err := d.core.RequireInitialized(); err != nil {
		return err
	}
	if !d.opts.SoftwareTrigger {
		return fmt.Errorf("%w: software trigger", instrument.ErrValueNotSupported)
	}
	source, err := d.core.Attributes().GetString(PathTriggerSource)
	if err != nil {
		return err
	}
	if source != TriggerSourceBus {
		return nil
	}
	if d.core.Simulated() {
		return nil
	}
	return d.sess.Trigger()
}

func oor(spec measureSpec) []string {
	if spec.outOfRange == "" {
		return nil
	}
	return []string{spec.outOfRange}
}
