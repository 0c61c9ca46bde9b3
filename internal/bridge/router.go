package bridge

import (
	"encoding/json"
	"strings"

	"github.com/fleetbridge/fleetbridge/internal/fleet"
)

// topicSegments is the minimum segment count for a routable topic,
// {prefix}/{id}/{event}.
const topicSegments = 3

// route is the single entry point for every subscribed message. It decodes
// the payload, parses the topic, and dispatches to the reconciler.
//
// Ingestion must survive anything a device sends: malformed JSON becomes a
// raw-wrapped payload, unroutable topics are logged and dropped, and
// reconciler errors are absorbed. A bad message never takes the bridge
// down and never poisons subsequent messages.
func (b *Bridge) route(topic string, raw []byte) error {
	payload := decodePayload(raw)

	parts := strings.Split(topic, "/")
	if len(parts) < topicSegments {
		b.logger.Warn("dropping message on unroutable topic", "topic", topic)
		return nil
	}

	prefix, id, event := parts[0], parts[1], parts[2]

	switch prefix {
	case "devices":
		b.routeDevice(id, event, payload, topic)
	case "gateways":
		b.routeGateway(id, event, payload, topic)
	case "debug":
		b.logger.Debug("debug message received", "topic", topic)
	default:
		b.logger.Warn("dropping message with unknown prefix", "topic", topic)
	}
	return nil
}

// routeDevice dispatches devices/{id}/{event} messages.
func (b *Bridge) routeDevice(deviceID, event string, payload fleet.Payload, topic string) {
	switch event {
	case "heartbeat":
		if _, err := b.reconciler.ApplyHeartbeat(b.ctx, deviceID, payload); err != nil {
			b.logger.Warn("heartbeat apply failed", "device_id", deviceID, "error", err)
		}
	case "data":
		ev, err := b.reconciler.ApplyTelemetry(b.ctx, deviceID, payload)
		if err != nil {
			b.logger.Warn("telemetry apply failed", "device_id", deviceID, "error", err)
			return
		}
		b.fanOut(ev)
	case "commands":
		// Our own outbound traffic; a wildcard overlap would echo it here.
	default:
		b.logger.Warn("dropping message with unknown device event", "topic", topic)
	}
}

// routeGateway dispatches gateways/{id}/{event} messages.
func (b *Bridge) routeGateway(gatewayID, event string, payload fleet.Payload, topic string) {
	switch event {
	case "status":
		if err := b.reconciler.ApplyGatewayStatus(b.ctx, gatewayID, payload); err != nil {
			b.logger.Warn("gateway status apply failed", "gateway_id", gatewayID, "error", err)
		}
	case "discover":
		// Our own outbound discovery requests.
	default:
		b.logger.Warn("dropping message with unknown gateway event", "topic", topic)
	}
}

// fanOut delivers a committed telemetry event to the hub and the mirror.
// Both targets are best-effort: the reading is already persisted, and
// neither a slow WebSocket client nor a down mirror can undo that.
func (b *Bridge) fanOut(ev *fleet.Event) {
	if b.hub != nil {
		b.hub.Broadcast(TelemetryChannel, ev)
	}

	if b.mirror != nil {
		for field, value := range ev.Payload {
			switch v := value.(type) {
			case float64:
				b.mirror.WriteTelemetryField(ev.GatewayID, ev.DeviceID, field, v, ev.Timestamp)
			case bool:
				numeric := 0.0
				if v {
					numeric = 1.0
				}
				b.mirror.WriteTelemetryField(ev.GatewayID, ev.DeviceID, field, numeric, ev.Timestamp)
			}
		}
	}
}

// decodePayload parses a message body as JSON. Bodies that are not JSON
// objects are preserved under a "raw" key rather than rejected, so
// misbehaving firmware still leaves a trace in the telemetry record.
func decodePayload(raw []byte) fleet.Payload {
	var payload fleet.Payload
	if err := json.Unmarshal(raw, &payload); err != nil || payload == nil {
		return fleet.Payload{"raw": string(raw)}
	}
	return payload
}
