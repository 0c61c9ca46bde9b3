// Package mqtt provides MQTT client connectivity for FleetBridge.
//
// This package manages:
//   - Connection to the broker with bounded exponential backoff
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring and status snapshots
//
// # Architecture
//
// MQTT is the ingestion bus connecting field gateways and their devices
// to the bridge. Devices publish heartbeats and telemetry, gateways
// publish status, and the bridge publishes commands back.
//
//	Devices/Gateways <-> MQTT Broker <-> FleetBridge
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//   - Message payloads are not encrypted beyond TLS transport
//
// # Reconnection
//
// Connect() retries with exponential backoff: the delay doubles from
// reconnect.initial_delay up to reconnect.max_delay, and the loop stops
// after reconnect.max_attempts failures (0 = retry forever). After a
// session is established, paho's auto-reconnect recovers dropped
// connections and tracked subscriptions are restored.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Subscribe to all device telemetry
//	err = client.Subscribe(mqtt.Topics{}.AllDeviceData(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	// Publish a command
//	topic := mqtt.Topics{}.DeviceCommands("lamp-01")
//	client.Publish(topic, []byte(`{"action":"toggle","state":"on"}`), 2, false)
package mqtt
