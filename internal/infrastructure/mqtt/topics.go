package mqtt

import "fmt"

// Topic prefixes for the Lab Rig telemetry bus.
//
// Instrument topics use the scheme: labrig/instrument/{instrument_id}/{category}[/{detail}]
// Attribute paths ("source.voltage", "chan.current") contain no slashes, so a
// dotted path always occupies a single topic level.
const (
	// TopicPrefix is the base for all Lab Rig topics.
	TopicPrefix = "labrig"

	// TopicPrefixInstrument is the base for per-instrument telemetry.
	TopicPrefixInstrument = "labrig/instrument"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "labrig/system"

	// TopicPrefixStation is the base for station (bench display) topics.
	TopicPrefixStation = "labrig/station"
)

// Topics provides builders for Lab Rig MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
// Example:
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.InstrumentState("load-bench1")
//	// Returns: "labrig/instrument/load-bench1/state"
type Topics struct{}

// =============================================================================
// Instrument Topics
// =============================================================================

// InstrumentState returns the topic for instrument presence updates.
// Published retained so new subscribers see the current state immediately.
//
// Example: labrig/instrument/load-bench1/state
func (Topics) InstrumentState(instrumentID string) string {
	return fmt.Sprintf("%s/%s/state", TopicPrefixInstrument, instrumentID)
}

// InstrumentAttribute returns the topic for attribute change events.
// The dotted attribute path is a single topic level; the channel index
// (for repeated capabilities) travels in the payload.
//
// Example: labrig/instrument/load-bench1/attribute/chan.current
func (Topics) InstrumentAttribute(instrumentID, path string) string {
	return fmt.Sprintf("%s/%s/attribute/%s", TopicPrefixInstrument, instrumentID, path)
}

// InstrumentMeasurement returns the topic for completed measurement results.
//
// Example: labrig/instrument/rsa-bench1/measurement/power
func (Topics) InstrumentMeasurement(instrumentID, function string) string {
	return fmt.Sprintf("%s/%s/measurement/%s", TopicPrefixInstrument, instrumentID, function)
}

// InstrumentAcquisition returns the topic for acquisition lifecycle events
// (initiated, fetched, aborted, software trigger).
//
// Example: labrig/instrument/load-bench1/acquisition
func (Topics) InstrumentAcquisition(instrumentID string) string {
	return fmt.Sprintf("%s/%s/acquisition", TopicPrefixInstrument, instrumentID)
}

// InstrumentAlert returns the topic for instrument alerts: out-of-range
// readings, identity mismatches, transport faults.
//
// Example: labrig/instrument/ec1x-chamber/alert
func (Topics) InstrumentAlert(instrumentID string) string {
	return fmt.Sprintf("%s/%s/alert", TopicPrefixInstrument, instrumentID)
}

// =============================================================================
// System Topics
// =============================================================================

// SystemStatus returns the system status topic.
// The broker publishes the Last Will here if Core disconnects unexpectedly.
//
// Example: labrig/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// SystemShutdown returns the shutdown signal topic.
//
// Example: labrig/system/shutdown
func (Topics) SystemShutdown() string {
	return fmt.Sprintf("%s/shutdown", TopicPrefixSystem)
}

// =============================================================================
// Station Topics
// =============================================================================

// StationNotification returns the notification topic for a bench display.
//
// Example: labrig/station/stn-bench1/notification
func (Topics) StationNotification(stationID string) string {
	return fmt.Sprintf("%s/%s/notification", TopicPrefixStation, stationID)
}

// StationPresence returns the presence topic for a bench display.
//
// Example: labrig/station/stn-bench1/presence
func (Topics) StationPresence(stationID string) string {
	return fmt.Sprintf("%s/%s/presence", TopicPrefixStation, stationID)
}

// =============================================================================
// Wildcard Patterns for Subscriptions
// =============================================================================

// AllInstrumentStates returns a pattern matching all instrument state updates.
//
// Pattern: labrig/instrument/+/state
func (Topics) AllInstrumentStates() string {
	return fmt.Sprintf("%s/+/state", TopicPrefixInstrument)
}

// AllInstrumentAttributes returns a pattern matching all attribute changes.
//
// Pattern: labrig/instrument/+/attribute/+
func (Topics) AllInstrumentAttributes() string {
	return fmt.Sprintf("%s/+/attribute/+", TopicPrefixInstrument)
}

// AllInstrumentMeasurements returns a pattern matching all measurement results.
//
// Pattern: labrig/instrument/+/measurement/+
func (Topics) AllInstrumentMeasurements() string {
	return fmt.Sprintf("%s/+/measurement/+", TopicPrefixInstrument)
}

// AllInstrumentAcquisitions returns a pattern matching all acquisition events.
//
// Pattern: labrig/instrument/+/acquisition
func (Topics) AllInstrumentAcquisitions() string {
	return fmt.Sprintf("%s/+/acquisition", TopicPrefixInstrument)
}

// AllInstrumentAlerts returns a pattern matching all instrument alerts.
//
// Pattern: labrig/instrument/+/alert
func (Topics) AllInstrumentAlerts() string {
	return fmt.Sprintf("%s/+/alert", TopicPrefixInstrument)
}

// InstrumentAll returns a pattern matching every topic for one instrument.
// Station displays subscribe here to follow a single bench.
//
// Pattern: labrig/instrument/load-bench1/#
func (Topics) InstrumentAll(instrumentID string) string {
	return fmt.Sprintf("%s/%s/#", TopicPrefixInstrument, instrumentID)
}

// AllStationPresence returns a pattern matching all station presence updates.
//
// Pattern: labrig/station/+/presence
func (Topics) AllStationPresence() string {
	return fmt.Sprintf("%s/+/presence", TopicPrefixStation)
}

// AllTopics returns a pattern matching all Lab Rig topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: labrig/#
func (Topics) AllTopics() string {
	return "labrig/#"
}
