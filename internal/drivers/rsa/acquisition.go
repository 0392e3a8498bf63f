package rsa

import (
	"fmt"

	"github.com/davmor83/labrig-core/internal/instrument"
)

func (d *Driver) registerAcquisition() {
	d.registerBoolCmd(PathContinuous, "acquisition", "INIT:CONT?", "INIT:CONT %s;*WAI",
		"Runs sweeps continuously instead of one per start.", true)
	d.registerEnum(PathDetectorType, "acquisition", "det?", ":det %s",
		"Display detector.", detectorTable, DetectorMaximumPeak)
	d.registerLocalBool(PathDetectorTypeAuto, "acquisition",
		"Lets the instrument choose the display detector.", true)

	// The vertical scale readback is a log-scale factor, not a mnemonic:
	// zero means linear, anything else logarithmic. Changing scale moves
	// the reference level.
	reg := d.core.Attributes()
	scaleKey := instrument.ScalarKey(PathVerticalScale)
	reg.MustRegister(instrument.Descriptor{
		Path:    PathVerticalScale,
		Group:   "acquisition",
		Doc:     "Vertical scale of the display. One of: [linear logarithmic].",
		Default: VerticalScaleLogarithmic,
		Get: func(int) (any, error) {
			return d.core.CachedGet(scaleKey, VerticalScaleLogarithmic, func() (any, error) {
				resp, err := d.sess.Query("lg?")
				if err != nil {
					return nil, err
				}
				if resp == "0" {
					return VerticalScaleLinear, nil
				}
				return VerticalScaleLogarithmic, nil
			})
		},
		Set: func(_ int, value any) error {
			s, ok := value.(string)
			if !ok || (s != VerticalScaleLinear && s != VerticalScaleLogarithmic) {
				return fmt.Errorf("%w: vertical scale %v", instrument.ErrValueNotSupported, value)
			}
			cmd := "lg"
			if s == VerticalScaleLinear {
				cmd = "ln"
			}
			return d.core.CachedSet(scaleKey, s, func() error {
				return d.sess.Command(cmd)
			})
		},
	})
	reg.Affects(PathVerticalScale, PathLevelReference)

	d.registerLocalInt(PathNumberOfSweeps, "acquisition",
		"Sweeps accumulated per acquisition.", 1)
	d.registerLocalBool(PathSweepModeContinuous, "acquisition",
		"Restarts the sweep automatically when one completes.", true)
}

// AcquisitionStart begins a new acquisition and waits for the instrument
// to accept the command.
func (d *Driver) AcquisitionStart() error {
	if err := d.core.RequireInitialized(); err != nil {
		return err
	}
	if !d.core.Simulated() {
		if err := d.sess.Command("INIT:IMM;*WAI"); err != nil {
			return err
		}
	}
	d.core.Acquisition().Initiate()
	return nil
}

// AcquisitionResume restarts signal processing without clearing
// accumulated results.
func (d *Driver) AcquisitionResume() error {
	if err := d.core.RequireInitialized(); err != nil {
		return err
	}
	if !d.core.Simulated() {
		if err := d.sess.Command("INIT:RES;*WAI"); err != nil {
			return err
		}
	}
	d.core.Acquisition().Initiate()
	return nil
}

// AcquisitionAbort resets the trigger system and stops measurements.
// Aborting an idle driver is harmless.
func (d *Driver) AcquisitionAbort() error {
	if err := d.core.RequireInitialized(); err != nil {
		return err
	}
	if !d.core.Simulated() {
		if err := d.sess.Command("ABOR"); err != nil {
			return err
		}
	}
	d.core.Acquisition().Abort()
	return nil
}
