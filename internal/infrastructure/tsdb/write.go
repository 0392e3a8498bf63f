package tsdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteMeasurement writes a single measurement sample to the time series.
//
// This is the primary method for recording instrument readings.
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - instrumentID: Unique identifier for the instrument (e.g., "load-bench1")
//   - function: The measurement function (e.g., "current", "power", "temperature")
//   - value: The measured value
//   - outOfRange: Whether the reading hit the instrument's over-range sentinel
//
// Example:
//
//	client.WriteMeasurement("load-bench1", "current", 1.253, false)
//	client.WriteMeasurement("ec1x-chamber", "temperature", 85.0, false)
func (c *Client) WriteMeasurement(instrumentID string, function string, value float64, outOfRange bool) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"measurements",
		map[string]string{
			"instrument_id": instrumentID,
			"function":      function,
		},
		map[string]interface{}{
			"value":        value,
			"out_of_range": outOfRange,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteInstrumentStatus writes an instrument presence gauge.
//
// Used for tracking which bench instruments are reachable over time.
//
// Parameters:
//   - instrumentID: Instrument identifier
//   - online: Whether the instrument link is up
//   - simulated: Whether the driver is running in simulation mode
func (c *Client) WriteInstrumentStatus(instrumentID string, online bool, simulated bool) {
	if !c.IsConnected() {
		return
	}

	onlineValue := 0.0
	if online {
		onlineValue = 1.0
	}

	point := write.NewPoint(
		"instrument_status",
		map[string]string{
			"instrument_id": instrumentID,
		},
		map[string]interface{}{
			"online":    onlineValue,
			"simulated": simulated,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
//
// Example:
//
//	client.WritePoint("system_stats",
//	    map[string]string{"host": "rig-01"},
//	    map[string]interface{}{"cpu_percent": 45.2, "memory_mb": 512})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., delayed data).
//
// Parameters:
//   - measurement: The measurement name
//   - tags: Key-value pairs for indexing
//   - fields: Key-value pairs for the data
//   - timestamp: The exact time for this data point
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
