package load

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/davmor83/labrig-core/internal/instrument"
)

// selfTestTimeout bounds the *TST? wait; this family needs tens of seconds.
const selfTestTimeout = 40 * time.Second

func parseTestResult(resp string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(resp))
	if err != nil {
		return 0, fmt.Errorf("%w: self test response %q", instrument.ErrProtocol, resp)
	}
	return n, nil
}

// Initialize performs the connection ceremony: status clear and remote
// mode, then the optional identity check and reset. A second call is a
// no-op. In simulate mode nothing reaches the transport.
func (d *Driver) Initialize(opts instrument.InitOptions) error {
	if d.core.Initialized() {
		return nil
	}
	if !d.core.Simulated() {
		if err := d.sess.Clear(); err != nil {
			return err
		}
		if err := d.sess.Remote(); err != nil {
			return err
		}
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
		"driver", "load", "model", d.opts.Model, "simulate", d.core.Simulated())
	return nil
}

func (d *Driver) checkID() error {
	if d.core.Simulated() || d.opts.ExpectedID == "" {
		return nil
	}
	reported, err := d.sess.Query("*IDN?")
	if err != nil {
		return err
	}
	return d.core.CheckIdentity(d.opts.ExpectedID, reported)
}

// Reset restores power-on defaults and drops every cached value.
func (d *Driver) Reset() error {
	if err := d.core.RequireInitialized(); err != nil {
		return err
	}
	return d.reset()
}

func (d *Driver) reset() error {
	if !d.core.Simulated() {
		if err := d.sess.Reset(); err != nil {
			return err
		}
	}
	d.core.Cache().InvalidateAll()
	return nil
}

// SelfTest runs the instrument self test, 0 meaning pass.
func (d *Driver) SelfTest() (int, error) {
	if err := d.core.RequireInitialized(); err != nil {
		return 0, err
	}
	if d.core.Simulated() {
		return 0, nil
	}
	resp, err := d.sess.QueryWithin(selfTestTimeout, "*TST?")
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
	return d.sess.Commandf("*SAV %d", slot+1)
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
		if err := d.sess.Commandf("*RCL %d", slot+1); err != nil {
			return err
		}
	}
	d.core.Cache().InvalidateAll()
	return nil
}

// Close returns the front panel to local control and releases the
// transport. Safe to call on a simulated driver.
func (d *Driver) Close() error {
	if !d.core.Simulated() && d.link != nil {
		if err := d.sess.Local(); err != nil {
			d.core.Logger().Warn("front panel local failed", "error", err)
		}
	}
	if d.link == nil {
		return nil
	}
	return d.link.Close()
}
