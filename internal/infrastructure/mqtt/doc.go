// Package mqtt provides MQTT client connectivity for Lab Rig Core.
//
// This package manages:
//   - Connection to Mosquitto broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// Lab Rig uses MQTT as the outbound telemetry bus. Core publishes
// instrument presence, attribute changes and measurement results; bench
// station displays and logging consumers subscribe without touching the
// instruments themselves.
//
//	Lab Rig Core → MQTT Broker → Station Displays / Consumers
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//   - Message payloads are not encrypted beyond TLS transport
//
// # Performance Characteristics
//
//   - Connection: <1 second to local broker
//   - Publish latency: <10ms for QoS 1 to local broker
//   - Reconnect: Exponential backoff 1s-60s with jitter
//   - Message throughput: Broker-limited (typically 10K+ msg/sec)
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Subscribe to all measurement results
//	err = client.Subscribe(mqtt.Topics{}.AllInstrumentMeasurements(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	// Publish a measurement result
//	topic := mqtt.Topics{}.InstrumentMeasurement("load-bench1", "current")
//	client.Publish(topic, []byte(`{"value":1.25}`), 1, false)
package mqtt
