// Package tsdb provides time-series database connectivity for Lab Rig Core.
//
// It wraps the official influxdb-client-go v2 library with Lab Rig-specific
// patterns for connection management, measurement writing, and health
// monitoring.
//
// # Purpose
//
// This package handles time-series data storage for:
//   - Measurement samples (readings per instrument and function)
//   - Instrument presence gauges (online/simulated over time)
//
// # Usage
//
//	cfg := config.InfluxDBConfig{
//	    Enabled: true,
//	    URL:     "http://localhost:8086",
//	    Token:   "your-token",
//	    Org:     "labrig",
//	    Bucket:  "measurements",
//	}
//
//	client, err := tsdb.Connect(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Write a measurement sample
//	client.WriteMeasurement("load-bench1", "current", 1.253, false)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are logged via a callback.
// Connection and health check errors are returned directly.
//
// # Performance
//
// Writes are batched according to config.yaml settings (batch_size, flush_interval).
// This reduces network overhead for high-frequency measurement polling.
package tsdb
