// Package command dispatches control messages to devices over MQTT.
//
// A command passes through four gates before it reaches the broker: the
// device type must be command-capable, the per-type validation rules must
// accept the action and parameters, the payload is stamped with routing
// context and a unique command_id, and the transport must be up (one
// reconnect attempt is made if it is not).
//
// Delivery is fire-and-forget: publishing at QoS 2 guarantees the broker
// receives the command exactly once, but whether the device acts on it is
// observed through its subsequent heartbeat and telemetry, not through an
// acknowledgment channel. Commands are never queued for offline devices.
package command
