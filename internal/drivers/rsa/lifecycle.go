package rsa

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/davmor83/labrig-core/internal/instrument"
)

// selfTestTimeout bounds the CNF? confidence test; the suite runs for
// about forty seconds.
const selfTestTimeout = 60 * time.Second

func parseTestResult(resp string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(resp))
	if err != nil {
		return 0, fmt.Errorf("%w: self test response %q", instrument.ErrProtocol, resp)
	}
	return n, nil
}

// Initialize opens the driver for use. The ceremony deliberately skips
// *CLS: a status clear resets this family. A second call is a no-op.
func (d *Driver) Initialize(opts instrument.InitOptions) error {
	if d.core.Initialized() {
		return nil
	}
	if opts.IDQuery {
		if err := d.checkID(); err != nil {
			return err
		}
	}
	if opts.Reset {
		if err := d.reset(); err != nil {
			return err
		}
	}
	d.core.MarkInitialized()
	d.core.Logger().Info("instrument initialized",
		"driver", "rsa", "model", d.opts.Model, "simulate", d.core.Simulated())
	return nil
}

// checkID verifies the reported model against the expected prefix. The
// model attribute is used rather than the raw identification response
// because the usable model of Signal-VU hosts appears only in the
// compound identity.
func (d *Driver) checkID() error {
	if d.core.Simulated() || d.opts.ExpectedID == "" {
		return nil
	}
	model, err := d.core.InstrumentModel()
	if err != nil {
		return err
	}
	return d.core.CheckIdentity(d.opts.ExpectedID, model)
}

// Reset restores instrument presets and drops every cached value.
func (d *Driver) Reset() error {
	if err := d.core.RequireInitialized(); err != nil {
		return err
	}
	return d.reset()
}

func (d *Driver) reset() error {
	if !d.core.Simulated() {
		if err := d.sess.Command("IP"); err != nil {
			return err
		}
	}
	d.core.Cache().InvalidateAll()
	return nil
}

// SelfTest runs the confidence test, 0 meaning pass.
func (d *Driver) SelfTest() (int, error) {
	if err := d.core.RequireInitialized(); err != nil {
		return 0, err
	}
	if d.core.Simulated() {
		return 0, nil
	}
	resp, err := d.sess.QueryWithin(selfTestTimeout, "CNF?")
	if err != nil {
		return 0, err
	}
	return parseTestResult(resp)
}

// SaveToMemory stores the instrument state in a memory slot.
func (d *Driver) SaveToMemory(slot int) error {
	if err := d.core.RequireInitialized(); err != nil {
		return err
	}
	if err := d.core.CheckMemorySlot(slot); err != nil {
		return err
	}
	if d.core.Simulated() {
		return nil
	}
	return d.sess.Commandf("SAVES %d", slot+1)
}

// RecallFromMemory restores the instrument state from a memory slot. The
// recalled state is unknown to the driver, so every cached value is
// dropped.
func (d *Driver) RecallFromMemory(slot int) error {
	if err := d.core.RequireInitialized(); err != nil {
		return err
	}
	if err := d.core.CheckMemorySlot(slot); err != nil {
		return err
	}
	if !d.core.Simulated() {
		if err := d.sess.Commandf("RCLS %d", slot+1); err != nil {
			return err
		}
	}
	d.core.Cache().InvalidateAll()
	return nil
}

// SaveSetup reads the instrument's complete learn string. Feeding it back
// through LoadSetup restores the captured state.
func (d *Driver) SaveSetup() ([]byte, error) {
	if err := d.core.RequireInitialized(); err != nil {
		return nil, err
	}
	if d.core.Simulated() {
		return nil, nil
	}
	if err := d.sess.Command("OL?"); err != nil {
		return nil, err
	}
	return d.sess.ReadRaw()
}

// LoadSetup writes a learn string previously captured by SaveSetup. The
// restored state is unknown to the driver, so every cached value is
// dropped.
func (d *Driver) LoadSetup(data []byte) error {
	if err := d.core.RequireInitialized(); err != nil {
		return err
	}
	if !d.core.Simulated() {
		if err := d.sess.WriteRaw(data); err != nil {
			return err
		}
	}
	d.core.Cache().InvalidateAll()
	return nil
}

// Close releases the transport. Safe to call on a simulated driver.
func (d *Driver) Close() error {
	if d.link == nil {
		return nil
	}
	return d.link.Close()
}

func (d *Driver) loadIdentity() (instrument.IdentityValues, error) {
	id, err := d.sess.Identify()
	if err != nil {
		return instrument.IdentityValues{}, err
	}
	// The usable firmware revision is the last element of a colon-joined
	// list; Signal-VU hosts prepend their own component versions.
	if i := strings.LastIndex(id.FirmwareRevision, ":"); i >= 0 {
		id.FirmwareRevision = id.FirmwareRevision[i+1:]
	}
	model, err := d.sess.QueryString("SYST:SVPC:INST:MOD?")
	if err != nil {
		return instrument.IdentityValues{}, err
	}
	serial, err := d.sess.QueryString("SYST:SVPC:INST:SER?")
	if err != nil {
		return instrument.IdentityValues{}, err
	}
	return instrument.IdentityValues{
		Manufacturer:     id.Manufacturer,
		Model:            id.Model + "/" + model,
		SerialNumber:     id.SerialNumber + "/" + serial,
		FirmwareRevision: id.FirmwareRevision,
	}, nil
}
