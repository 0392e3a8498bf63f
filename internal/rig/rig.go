// Package rig manages the live instruments of one bench station.
//
// The rig builds drivers from configuration, holds them in a registry
// keyed by instrument ID, and serializes access to each driver: a driver
// instance is not safe for concurrent use, so every operation routed
// through the rig takes that instrument's mutex first. Cross-cutting
// effects hang off the operations — attribute writes land in the archive
// and on the MQTT bus, measurement results additionally feed the
// time-series store, and every event is relayed to the in-process
// notifier for connected clients.
//
// All effect sinks are optional. A rig built with none of them still
// drives the instruments; it just leaves no trail.
package rig

import (
	"sync"
	"time"

	"github.com/davmor83/labrig-core/internal/archive"
	"github.com/davmor83/labrig-core/internal/instrument"
)

// Logger defines the logging interface used by the Rig.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Driver is the surface every instrument driver presents to the rig.
// Implementations are not safe for concurrent use; the rig serializes
// calls per instrument.
type Driver interface {
	SetLogger(l instrument.Logger)
	Attributes() *instrument.Registry
	Simulated() bool
	AcquisitionState() instrument.AcquisitionState
	Initialize(opts instrument.InitOptions) error
	Reset() error
	Measure(kind string) (float64, error)
	Close() error
}

// Acquirer is implemented by drivers that support the initiate/fetch
// trigger protocol in addition to immediate measurements.
type Acquirer interface {
	Initiate() error
	Abort() error
	Fetch(kind string, maxTime time.Duration) (float64, error)
}

// SoftwareTriggerer is implemented by drivers that honor the bus trigger.
type SoftwareTriggerer interface {
	SendSoftwareTrigger() error
}

// MemoryStore is implemented by drivers with instrument setup memory.
type MemoryStore interface {
	SaveToMemory(slot int) error
	RecallFromMemory(slot int) error
}

// SelfTester is implemented by drivers that expose the instrument
// self-test.
type SelfTester interface {
	SelfTest() (int, error)
}

// RangeChecker is implemented by drivers that can recognise the
// instrument's out-of-range measurement marker.
type RangeChecker interface {
	OutOfRange(v float64) bool
}

// Publisher sends rig events to the MQTT broker for station displays and
// other external consumers.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	PublishRetained(topic string, payload []byte) error
}

// SampleWriter feeds measurement samples and presence gauges to the
// time-series store.
type SampleWriter interface {
	WriteMeasurement(instrumentID, function string, value float64, outOfRange bool)
	WriteInstrumentStatus(instrumentID string, online, simulated bool)
}

// Notifier relays rig events to connected clients, typically a WebSocket
// hub. Broadcast must be safe for concurrent use.
type Notifier interface {
	Broadcast(channel string, payload any)
}

// Options wires the optional effect sinks. Any nil field disables the
// corresponding effect.
type Options struct {
	// Archive records measurements and attribute writes locally.
	Archive archive.Repository

	// Broker publishes instrument telemetry to MQTT.
	Broker Publisher

	// Samples writes measurement points to the time-series store.
	Samples SampleWriter
}

// managed is one instrument under rig control. The mutex serializes all
// driver access for this instrument.
type managed struct {
	id     string
	family string
	drv    Driver
	init   instrument.InitOptions

	mu     sync.Mutex
	online bool
}

// Rig is the registry of live instruments for one bench station.
//
// All public methods are thread-safe. Operations on different instruments
// run concurrently; operations on the same instrument are serialized.
type Rig struct {
	instruments map[string]*managed
	order       []string // build order, for stable listings
	mu          sync.RWMutex

	archive archive.Repository
	broker  Publisher
	samples SampleWriter

	notifier   Notifier
	notifierMu sync.RWMutex

	logger Logger
}

// New creates an empty rig with the given effect sinks. Instruments are
// attached with Build.
func New(opts Options) *Rig {
	return &Rig{
		instruments: make(map[string]*managed),
		archive:     opts.Archive,
		broker:      opts.Broker,
		samples:     opts.Samples,
		logger:      noopLogger{},
	}
}

// SetLogger sets the logger for the rig and every attached driver.
func (r *Rig) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	r.mu.Lock()
	r.logger = logger
	for _, inst := range r.instruments {
		inst.drv.SetLogger(logger)
	}
	r.mu.Unlock()
}

// SetNotifier attaches the client event relay. Pass nil to detach.
func (r *Rig) SetNotifier(n Notifier) {
	r.notifierMu.Lock()
	r.notifier = n
	r.notifierMu.Unlock()
}

// get looks up a managed instrument by ID.
func (r *Rig) get(id string) (*managed, error) {
	r.mu.RLock()
	inst, ok := r.instruments[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return inst, nil
}

// Info is a point-in-time snapshot of one managed instrument.
type Info struct {
	ID           string   `json:"id"`
	Family       string   `json:"family"`
	Simulated    bool     `json:"simulated"`
	Online       bool     `json:"online"`
	Acquisition  string   `json:"acquisition"`
	Attributes   int      `json:"attributes"`
	Capabilities []string `json:"capabilities"`
}

// snapshot builds the Info for one instrument under its lock.
func (r *Rig) snapshot(inst *managed) Info {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	return Info{
		ID:           inst.id,
		Family:       inst.family,
		Simulated:    inst.drv.Simulated(),
		Online:       inst.online,
		Acquisition:  inst.drv.AcquisitionState().String(),
		Attributes:   inst.drv.Attributes().Len(),
		Capabilities: capabilityNames(inst.drv),
	}
}

// capabilityNames reports the optional capability groups a driver
// implements, in a fixed order.
func capabilityNames(drv Driver) []string {
	caps := []string{"measure"}
	if _, ok := drv.(Acquirer); ok {
		caps = append(caps, "acquire")
	}
	if _, ok := drv.(SoftwareTriggerer); ok {
		caps = append(caps, "software_trigger")
	}
	if _, ok := drv.(MemoryStore); ok {
		caps = append(caps, "memory")
	}
	if _, ok := drv.(SelfTester); ok {
		caps = append(caps, "self_test")
	}
	return caps
}

// GetInstrument retrieves a snapshot of one instrument.
// Returns ErrNotFound if the ID is not managed by this rig.
func (r *Rig) GetInstrument(id string) (Info, error) {
	inst, err := r.get(id)
	if err != nil {
		return Info{}, err
	}
	return r.snapshot(inst), nil
}

// GetAllInstruments retrieves snapshots of every managed instrument in
// build order.
func (r *Rig) GetAllInstruments() []Info {
	r.mu.RLock()
	ordered := make([]*managed, 0, len(r.order))
	for _, id := range r.order {
		ordered = append(ordered, r.instruments[id])
	}
	r.mu.RUnlock()

	infos := make([]Info, 0, len(ordered))
	for _, inst := range ordered {
		infos = append(infos, r.snapshot(inst))
	}
	return infos
}

// Stats returns rig statistics for monitoring.
type Stats struct {
	Instruments int            `json:"instruments"`
	ByFamily    map[string]int `json:"by_family"`
	Simulated   int            `json:"simulated"`
	Online      int            `json:"online"`
	Acquiring   int            `json:"acquiring"`
}

// GetStats returns current rig statistics.
func (r *Rig) GetStats() Stats {
	infos := r.GetAllInstruments()

	stats := Stats{
		Instruments: len(infos),
		ByFamily:    make(map[string]int),
	}
	for _, info := range infos {
		stats.ByFamily[info.Family]++
		if info.Simulated {
			stats.Simulated++
		}
		if info.Online {
			stats.Online++
		}
		if info.Acquisition == instrument.AcqAcquiring.String() {
			stats.Acquiring++
		}
	}
	return stats
}
