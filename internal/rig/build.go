package rig

import (
	"context"
	"errors"
	"fmt"

	"github.com/davmor83/labrig-core/internal/drivers/ec1x"
	"github.com/davmor83/labrig-core/internal/drivers/load"
	"github.com/davmor83/labrig-core/internal/drivers/rsa"
	"github.com/davmor83/labrig-core/internal/infrastructure/config"
	"github.com/davmor83/labrig-core/internal/instrument"
	"github.com/davmor83/labrig-core/internal/transport"
)

// Build constructs a driver for every configured instrument and attaches
// it to the rig. Links are dialled here; simulated instruments get no
// transport. The first failure aborts the build and the error names the
// offending instrument.
func (r *Rig) Build(ctx context.Context, cfgs []config.InstrumentConfig) error {
	for _, cfg := range cfgs {
		if err := r.attach(ctx, cfg); err != nil {
			return fmt.Errorf("instrument %s: %w", cfg.ID, err)
		}
	}
	return nil
}

// attach builds one driver and registers it under its configured ID.
func (r *Rig) attach(ctx context.Context, cfg config.InstrumentConfig) error {
	if cfg.ID == "" {
		return errors.New("rig: instrument id is required")
	}

	r.mu.RLock()
	_, exists := r.instruments[cfg.ID]
	r.mu.RUnlock()
	if exists {
		return ErrDuplicateID
	}

	drv, err := r.buildDriver(ctx, cfg)
	if err != nil {
		return err
	}
	drv.SetLogger(r.logger)

	inst := &managed{
		id:     cfg.ID,
		family: cfg.Driver,
		drv:    drv,
		init: instrument.InitOptions{
			IDQuery: cfg.IDQuery,
			Reset:   cfg.Reset,
		},
	}

	r.mu.Lock()
	if _, exists := r.instruments[cfg.ID]; exists {
		r.mu.Unlock()
		if cerr := drv.Close(); cerr != nil {
			r.logger.Warn("closing duplicate driver failed", "id", cfg.ID, "error", cerr)
		}
		return ErrDuplicateID
	}
	r.instruments[cfg.ID] = inst
	r.order = append(r.order, cfg.ID)
	r.mu.Unlock()

	r.logger.Info("instrument attached",
		"id", cfg.ID, "driver", cfg.Driver, "simulate", cfg.Simulate)
	return nil
}

// buildDriver dials the configured resources and constructs the driver
// for one instrument. On failure any opened link is closed before
// returning.
func (r *Rig) buildDriver(ctx context.Context, cfg config.InstrumentConfig) (Driver, error) {
	switch cfg.Driver {
	case config.DriverLoad:
		link, err := r.dialCommandLink(ctx, cfg)
		if err != nil {
			return nil, err
		}
		drv, err := newLoadDriver(link, cfg)
		if err != nil {
			closeLink(link)
			return nil, err
		}
		return drv, nil

	case config.DriverRSA:
		link, err := r.dialCommandLink(ctx, cfg)
		if err != nil {
			return nil, err
		}
		drv, err := rsa.New(link, rsa.Options{
			Simulate:   cfg.Simulate,
			ExpectedID: cfg.ExpectedID,
		})
		if err != nil {
			closeLink(link)
			return nil, err
		}
		return drv, nil

	case config.DriverEC1x:
		bus, err := r.dialRegisterBus(cfg)
		if err != nil {
			return nil, err
		}
		link, err := r.dialCommandLink(ctx, cfg)
		if err != nil {
			closeBus(bus)
			return nil, err
		}
		drv, err := ec1x.New(bus, link, ec1x.Options{
			Simulate:   cfg.Simulate,
			ExpectedID: cfg.ExpectedID,
		})
		if err != nil {
			closeBus(bus)
			closeLink(link)
			return nil, err
		}
		return drv, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}

// newLoadDriver builds the load driver. With no channel or identity
// overrides the bench-standard B&K 8542B profile applies; overrides
// switch to a generic SCPI load without setup memory.
func newLoadDriver(link transport.Transport, cfg config.InstrumentConfig) (Driver, error) {
	if cfg.Channels <= 1 && cfg.ExpectedID == "" {
		return load.New8542B(link, cfg.Simulate)
	}
	return load.New(link, load.Options{
		Channels:        cfg.Channels,
		Simulate:        cfg.Simulate,
		ExpectedID:      cfg.ExpectedID,
		SoftwareTrigger: true,
	})
}

// dialCommandLink opens the ASCII command link, or returns no transport
// for a simulated instrument or an instrument configured without one.
func (r *Rig) dialCommandLink(ctx context.Context, cfg config.InstrumentConfig) (transport.Transport, error) {
	if cfg.Simulate || cfg.Resource == "" {
		return nil, nil
	}
	r.logger.Debug("dialling command link", "id", cfg.ID, "resource", cfg.Resource)
	link, err := transport.Dial(ctx, transport.TCPConfig{Resource: cfg.Resource})
	if err != nil {
		return nil, fmt.Errorf("dialling %s: %w", cfg.Resource, err)
	}
	return link, nil
}

// dialRegisterBus opens the register bus, or returns no bus for a
// simulated instrument or an instrument configured without one.
func (r *Rig) dialRegisterBus(cfg config.InstrumentConfig) (transport.RegisterBus, error) {
	if cfg.Simulate || cfg.RegisterResource == "" {
		return nil, nil
	}
	r.logger.Debug("dialling register bus", "id", cfg.ID, "resource", cfg.RegisterResource)
	bus, err := transport.NewBus(transport.BusConfig{Resource: cfg.RegisterResource})
	if err != nil {
		return nil, fmt.Errorf("dialling %s: %w", cfg.RegisterResource, err)
	}
	return bus, nil
}

func closeLink(link transport.Transport) {
	if link != nil {
		_ = link.Close() //nolint:errcheck // Cleanup on a failed build
	}
}

func closeBus(bus transport.RegisterBus) {
	if bus != nil {
		_ = bus.Close() //nolint:errcheck // Cleanup on a failed build
	}
}

// InitializeAll runs the connection ceremony on every attached instrument
// in build order. Instruments that initialize successfully come online
// even when siblings fail; the returned error joins every failure.
func (r *Rig) InitializeAll() error {
	r.mu.RLock()
	ordered := make([]*managed, 0, len(r.order))
	for _, id := range r.order {
		ordered = append(ordered, r.instruments[id])
	}
	r.mu.RUnlock()

	var errs []error
	for _, inst := range ordered {
		inst.mu.Lock()
		err := inst.drv.Initialize(inst.init)
		if err == nil {
			inst.online = true
		}
		inst.mu.Unlock()

		if err != nil {
			r.logger.Error("instrument initialize failed", "id", inst.id, "error", err)
			errs = append(errs, fmt.Errorf("instrument %s: %w", inst.id, err))
			continue
		}
		r.logger.Info("instrument online", "id", inst.id, "driver", inst.family)
		r.publishState(inst)
	}
	return errors.Join(errs...)
}

// Close releases every instrument and empties the rig. Each instrument's
// offline state is published before its driver errors, if any, are
// joined into the returned error.
func (r *Rig) Close() error {
	r.mu.Lock()
	ordered := make([]*managed, 0, len(r.order))
	for _, id := range r.order {
		ordered = append(ordered, r.instruments[id])
	}
	r.instruments = make(map[string]*managed)
	r.order = nil
	r.mu.Unlock()

	var errs []error
	for _, inst := range ordered {
		inst.mu.Lock()
		inst.online = false
		err := inst.drv.Close()
		inst.mu.Unlock()

		r.publishState(inst)
		if err != nil {
			errs = append(errs, fmt.Errorf("instrument %s: %w", inst.id, err))
			continue
		}
		r.logger.Info("instrument closed", "id", inst.id)
	}
	return errors.Join(errs...)
}
