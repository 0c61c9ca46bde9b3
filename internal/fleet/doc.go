// Package fleet holds the FleetBridge data model and state reconciler.
//
// The model is three entities and their readings:
//
//   - Gateway: a hub bridging local devices onto the broker. Identified
//     externally by gateway_id, claimed by an owner, with a last_seen
//     liveness timestamp.
//   - Device: an endpoint behind a gateway, identified by the pair
//     (gateway_id, device_id). The bare device_id is what MQTT topics carry.
//   - ModelDefinition: an optional registered schema for a device model,
//     used to validate telemetry payload shape.
//
// Store provides SQLite persistence. Reconciler sits on top and applies
// incoming MQTT reports (heartbeats, telemetry, gateway status) as atomic
// transactional units: unknown devices are auto-created under their
// declared gateway, liveness is refreshed, and telemetry is appended, all
// committing together or not at all. Concurrent reports for one device are
// serialized through a keyed mutex.
//
// Events describing committed changes are returned to the caller for
// fan-out; they are produced only after commit.
package fleet
