package rig

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/davmor83/labrig-core/internal/archive"
	"github.com/davmor83/labrig-core/internal/infrastructure/mqtt"
	"github.com/davmor83/labrig-core/internal/instrument"
)

// eventQoS is the delivery guarantee for non-retained event publishes.
const eventQoS byte = 1

// recordMeasurement fans one measurement result out to the archive, the
// MQTT bus, the time-series store, and connected clients. Sink failures
// are logged, never propagated: the caller already has the value.
func (r *Rig) recordMeasurement(ctx context.Context, inst *managed, function string, value float64, outOfRange bool) {
	m := &archive.Measurement{
		InstrumentID: inst.id,
		Function:     function,
		Value:        value,
		OutOfRange:   outOfRange,
		TakenAt:      time.Now().UTC(),
	}

	if r.archive != nil {
		if err := r.archive.RecordMeasurement(ctx, m); err != nil {
			r.logger.Warn("measurement archive write failed",
				"id", inst.id, "function", function, "error", err)
		}
	}
	r.publish(mqtt.Topics{}.InstrumentMeasurement(inst.id, function), m, false)
	if r.samples != nil {
		r.samples.WriteMeasurement(inst.id, function, value, outOfRange)
	}
	r.broadcast(EventMeasurement, m)

	if outOfRange {
		r.alert(inst, function, value)
	}
}

// recordAttributeWrite fans one successful attribute write out to the
// archive, the MQTT bus, and connected clients.
func (r *Rig) recordAttributeWrite(ctx context.Context, inst *managed, path instrument.Path, index int, value any) {
	w := &archive.AttributeWrite{
		InstrumentID: inst.id,
		Path:         string(path),
		Index:        index,
		Value:        fmt.Sprintf("%v", value),
		WrittenAt:    time.Now().UTC(),
	}

	if r.archive != nil {
		if err := r.archive.RecordAttributeWrite(ctx, w); err != nil {
			r.logger.Warn("attribute archive write failed",
				"id", inst.id, "path", w.Path, "error", err)
		}
	}
	r.publish(mqtt.Topics{}.InstrumentAttribute(inst.id, w.Path), w, false)
	r.broadcast(EventAttribute, w)
}

// publishState pushes the instrument's presence to the retained state
// topic, the time-series store, and connected clients.
func (r *Rig) publishState(inst *managed) {
	inst.mu.Lock()
	ev := StatusEvent{
		InstrumentID: inst.id,
		Family:       inst.family,
		Online:       inst.online,
		Simulated:    inst.drv.Simulated(),
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
	}
	inst.mu.Unlock()

	r.publish(mqtt.Topics{}.InstrumentState(inst.id), ev, true)
	if r.samples != nil {
		r.samples.WriteInstrumentStatus(ev.InstrumentID, ev.Online, ev.Simulated)
	}
	r.broadcast(EventState, ev)
}

// publishAcquisition reports the instrument's current trigger protocol
// state to the MQTT bus and connected clients.
func (r *Rig) publishAcquisition(inst *managed) {
	inst.mu.Lock()
	state := inst.drv.AcquisitionState().String()
	inst.mu.Unlock()

	ev := AcquisitionEvent{
		InstrumentID: inst.id,
		State:        state,
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
	}
	r.publish(mqtt.Topics{}.InstrumentAcquisition(inst.id), ev, false)
	r.broadcast(EventAcquisition, ev)
}

// alert raises an out-of-range alert on the MQTT bus and to connected
// clients.
func (r *Rig) alert(inst *managed, function string, value float64) {
	ev := AlertEvent{
		InstrumentID: inst.id,
		Function:     function,
		Value:        value,
		Message:      "measurement out of range",
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
	}
	r.publish(mqtt.Topics{}.InstrumentAlert(inst.id), ev, false)
	r.broadcast(EventAlert, ev)
	r.logger.Warn("measurement out of range", "id", inst.id, "function", function)
}

// publish marshals and sends one event payload to the broker, if one is
// attached.
func (r *Rig) publish(topic string, payload any, retained bool) {
	if r.broker == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		r.logger.Error("event payload marshal failed", "topic", topic, "error", err)
		return
	}
	if retained {
		err = r.broker.PublishRetained(topic, data)
	} else {
		err = r.broker.Publish(topic, data, eventQoS, false)
	}
	if err != nil {
		r.logger.Warn("event publish failed", "topic", topic, "error", err)
	}
}

// broadcast relays one event to the notifier, if one is attached.
func (r *Rig) broadcast(channel string, payload any) {
	r.notifierMu.RLock()
	n := r.notifier
	r.notifierMu.RUnlock()
	if n != nil {
		n.Broadcast(channel, payload)
	}
}
