package rig

import (
	"context"
	"fmt"
	"time"

	"github.com/davmor83/labrig-core/internal/instrument"
)

// Measure performs an immediate measurement and records the result.
// The value is returned even when an effect sink fails.
func (r *Rig) Measure(ctx context.Context, id, kind string) (float64, error) {
	inst, err := r.get(id)
	if err != nil {
		return 0, err
	}

	inst.mu.Lock()
	value, err := inst.drv.Measure(kind)
	outOfRange := err == nil && driverOutOfRange(inst.drv, value)
	inst.mu.Unlock()
	if err != nil {
		return 0, err
	}

	r.recordMeasurement(ctx, inst, kind, value, outOfRange)
	return value, nil
}

// Initiate starts an acquisition on an instrument with the
// initiate/fetch trigger protocol.
func (r *Rig) Initiate(id string) error {
	inst, err := r.get(id)
	if err != nil {
		return err
	}
	acq, ok := inst.drv.(Acquirer)
	if !ok {
		return fmt.Errorf("%w: %s has no initiate/fetch protocol", ErrUnsupported, id)
	}

	inst.mu.Lock()
	err = acq.Initiate()
	inst.mu.Unlock()
	if err != nil {
		return err
	}

	r.publishAcquisition(inst)
	return nil
}

// Fetch retrieves the result of a running acquisition, waiting up to
// maxTime, and records it. The acquisition returns to idle on success.
func (r *Rig) Fetch(ctx context.Context, id, kind string, maxTime time.Duration) (float64, error) {
	inst, err := r.get(id)
	if err != nil {
		return 0, err
	}
	acq, ok := inst.drv.(Acquirer)
	if !ok {
		return 0, fmt.Errorf("%w: %s has no initiate/fetch protocol", ErrUnsupported, id)
	}

	inst.mu.Lock()
	value, err := acq.Fetch(kind, maxTime)
	outOfRange := err == nil && driverOutOfRange(inst.drv, value)
	inst.mu.Unlock()
	if err != nil {
		return 0, err
	}

	r.recordMeasurement(ctx, inst, kind, value, outOfRange)
	r.publishAcquisition(inst)
	return value, nil
}

// Abort cancels a running acquisition and returns the instrument to
// idle.
func (r *Rig) Abort(id string) error {
	inst, err := r.get(id)
	if err != nil {
		return err
	}
	acq, ok := inst.drv.(Acquirer)
	if !ok {
		return fmt.Errorf("%w: %s has no initiate/fetch protocol", ErrUnsupported, id)
	}

	inst.mu.Lock()
	err = acq.Abort()
	inst.mu.Unlock()
	if err != nil {
		return err
	}

	r.publishAcquisition(inst)
	return nil
}

// SoftwareTrigger fires the bus trigger on an instrument that honors it.
func (r *Rig) SoftwareTrigger(id string) error {
	inst, err := r.get(id)
	if err != nil {
		return err
	}
	trig, ok := inst.drv.(SoftwareTriggerer)
	if !ok {
		return fmt.Errorf("%w: %s has no software trigger", ErrUnsupported, id)
	}

	inst.mu.Lock()
	defer inst.mu.Unlock()
	return trig.SendSoftwareTrigger()
}

// SaveToMemory stores the instrument's current setup in a memory slot.
func (r *Rig) SaveToMemory(id string, slot int) error {
	inst, err := r.get(id)
	if err != nil {
		return err
	}
	mem, ok := inst.drv.(MemoryStore)
	if !ok {
		return fmt.Errorf("%w: %s has no setup memory", ErrUnsupported, id)
	}

	inst.mu.Lock()
	err = mem.SaveToMemory(slot)
	inst.mu.Unlock()
	if err != nil {
		return err
	}

	r.logger.Info("setup saved", "id", id, "slot", slot)
	return nil
}

// RecallFromMemory restores a setup from a memory slot. Cached attribute
// values are dropped by the driver, so subsequent reads reflect the
// recalled setup.
func (r *Rig) RecallFromMemory(id string, slot int) error {
	inst, err := r.get(id)
	if err != nil {
		return err
	}
	mem, ok := inst.drv.(MemoryStore)
	if !ok {
		return fmt.Errorf("%w: %s has no setup memory", ErrUnsupported, id)
	}

	inst.mu.Lock()
	err = mem.RecallFromMemory(slot)
	inst.mu.Unlock()
	if err != nil {
		return err
	}

	r.logger.Info("setup recalled", "id", id, "slot", slot)
	return nil
}

// Reset restores an instrument's power-on defaults and drops its cached
// attribute values.
func (r *Rig) Reset(id string) error {
	inst, err := r.get(id)
	if err != nil {
		return err
	}

	inst.mu.Lock()
	err = inst.drv.Reset()
	inst.mu.Unlock()
	if err != nil {
		return err
	}

	r.logger.Info("instrument reset", "id", id)
	return nil
}

// SelfTest runs the instrument self-test and returns its result code,
// 0 meaning pass.
func (r *Rig) SelfTest(id string) (int, error) {
	inst, err := r.get(id)
	if err != nil {
		return 0, err
	}
	st, ok := inst.drv.(SelfTester)
	if !ok {
		return 0, fmt.Errorf("%w: %s has no self-test", ErrUnsupported, id)
	}

	inst.mu.Lock()
	defer inst.mu.Unlock()
	return st.SelfTest()
}

// GetAttribute reads one attribute value. A nil index addresses the
// collection's current selection for indexed attributes.
func (r *Rig) GetAttribute(id string, path instrument.Path, index *int) (any, error) {
	inst, err := r.get(id)
	if err != nil {
		return nil, err
	}

	inst.mu.Lock()
	defer inst.mu.Unlock()
	if index != nil {
		return inst.drv.Attributes().GetAt(path, instrument.ByIndex(*index))
	}
	return inst.drv.Attributes().Get(path)
}

// SetAttribute writes one attribute value and records the write. A nil
// index addresses the collection's current selection for indexed
// attributes.
func (r *Rig) SetAttribute(ctx context.Context, id string, path instrument.Path, index *int, value any) error {
	inst, err := r.get(id)
	if err != nil {
		return err
	}

	inst.mu.Lock()
	if index != nil {
		err = inst.drv.Attributes().SetAt(path, instrument.ByIndex(*index), value)
	} else {
		err = inst.drv.Attributes().Set(path, value)
	}
	inst.mu.Unlock()
	if err != nil {
		return err
	}

	idx := 0
	if index != nil {
		idx = *index
	}
	r.recordAttributeWrite(ctx, inst, path, idx, value)
	return nil
}

// DescribeAttributes enumerates an instrument's attribute surface in
// registration order.
func (r *Rig) DescribeAttributes(id string) ([]instrument.Info, error) {
	inst, err := r.get(id)
	if err != nil {
		return nil, err
	}

	inst.mu.Lock()
	defer inst.mu.Unlock()
	return inst.drv.Attributes().Describe(), nil
}

// driverOutOfRange reports whether a driver recognises the value as the
// instrument's out-of-range marker. Drivers without a marker never
// report out of range.
func driverOutOfRange(drv Driver, v float64) bool {
	rc, ok := drv.(RangeChecker)
	return ok && rc.OutOfRange(v)
}
