package instrument

import "fmt"

// AcquisitionState tracks the measurement trigger protocol of a driver.
type AcquisitionState int

const (
	// AcqIdle means no acquisition is running.
	AcqIdle AcquisitionState = iota

	// AcqAcquiring means an acquisition was initiated and a result can be
	// fetched.
	AcqAcquiring
)

// String returns the state name.
func (s AcquisitionState) String() string {
	switch s {
	case AcqIdle:
		return "idle"
	case AcqAcquiring:
		return "acquiring"
	default:
		return "unknown"
	}
}

// Acquisition is the per-driver measurement state machine:
//
//	idle → (Initiate) → acquiring → (Complete) → idle
//
// Abort returns to idle from any state. Fetching a result while idle fails
// with ErrNoAcquisition.
type Acquisition struct {
	state AcquisitionState
}

// State returns the current state.
func (a *Acquisition) State() AcquisitionState { return a.state }

// Initiate moves to acquiring. Initiating while already acquiring is
// allowed; the new acquisition replaces the old one.
func (a *Acquisition) Initiate() {
	a.state = AcqAcquiring
}

// Begin guards a fetch: the state must be acquiring.
func (a *Acquisition) Begin() error {
	if a.state != AcqAcquiring {
		return fmt.Errorf("%w: state is %s", ErrNoAcquisition, a.state)
	}
	return nil
}

// Complete records a delivered result and returns to idle.
func (a *Acquisition) Complete() {
	a.state = AcqIdle
}

// Abort returns to idle from any state.
func (a *Acquisition) Abort() {
	a.state = AcqIdle
}
