package rig

// Event channels relayed to connected clients. Measurement and attribute
// events carry the archive record types; the rest carry the structs
// below.
const (
	EventMeasurement = "instrument.measurement_taken"
	EventAttribute   = "instrument.attribute_written"
	EventAcquisition = "instrument.acquisition_changed"
	EventState       = "instrument.state_changed"
	EventAlert       = "instrument.alert"
)

// StatusEvent is the retained instrument state payload.
type StatusEvent struct {
	InstrumentID string `json:"instrument_id"`
	Family       string `json:"family"`
	Online       bool   `json:"online"`
	Simulated    bool   `json:"simulated"`
	Timestamp    string `json:"timestamp"`
}

// AcquisitionEvent reports a trigger protocol state change.
type AcquisitionEvent struct {
	InstrumentID string `json:"instrument_id"`
	State        string `json:"state"`
	Timestamp    string `json:"timestamp"`
}

// AlertEvent flags a measurement that came back out of range.
type AlertEvent struct {
	InstrumentID string  `json:"instrument_id"`
	Function     string  `json:"function"`
	Value        float64 `json:"value"`
	Message      string  `json:"message"`
	Timestamp    string  `json:"timestamp"`
}
