// Package bridge connects the MQTT broker to the fleet reconciler.
//
// The Bridge subscribes to the ingestion topics (device data and
// heartbeats, gateway status, diagnostics), routes each message to the
// matching reconciler operation, and fans committed telemetry events out
// to the WebSocket hub and the optional InfluxDB mirror.
//
// # Lifecycle
//
// A Bridge is constructed once in main with its collaborators and started
// explicitly with Start. Start and Stop are idempotent; Status exposes a
// health read for the API. There is no package-level bridge and no lazy
// start-on-first-message.
//
// # Resilience
//
// Each message is handled on its own goroutine by the MQTT client. The
// router absorbs everything a device can throw at it: non-JSON payloads
// are wrapped as {"raw": ...}, topics with fewer than three segments or
// unknown prefixes are logged and dropped, and reconciler errors are
// logged without disturbing subsequent messages. Fan-out happens only
// after the reconciler commits, and a fan-out failure never rolls back
// the stored reading.
package bridge
