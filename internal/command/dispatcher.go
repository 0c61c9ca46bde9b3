package command

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fleetbridge/fleetbridge/internal/fleet"
	"github.com/fleetbridge/fleetbridge/internal/infrastructure/mqtt"
)

// Transport is the slice of the MQTT client the dispatcher needs.
// Satisfied by *mqtt.Client; tests substitute a fake.
type Transport interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
	Reconnect() error
}

// Dispatcher validates, stamps, and publishes device commands.
//
// Commands are fire-and-forget at the platform level: a successful Send
// means the broker accepted the message at the configured QoS, not that
// the device acted on it. Nothing is queued for offline devices.
type Dispatcher struct {
	transport Transport
	qos       byte
}

// NewDispatcher creates a dispatcher publishing at the given command QoS.
func NewDispatcher(transport Transport, qos byte) *Dispatcher {
	return &Dispatcher{transport: transport, qos: qos}
}

// Receipt records what Send published and under which command id.
type Receipt struct {
	CommandID string        `json:"command_id"`
	DeviceID  string        `json:"device_id"`
	GatewayID string        `json:"gateway_id"`
	Action    string        `json:"action"`
	Payload   fleet.Payload `json:"payload"`
	SentAt    time.Time     `json:"sent_at"`
}

// Send validates and publishes a command to a device.
//
// The flow:
//  1. Reject report-only device types with ErrNotCommandable.
//  2. Apply per-type validation rules; violations return *ValidationError.
//  3. Stamp the payload with routing context (device_id, device_type,
//     gateway_id), an RFC3339 timestamp, and a unique command_id.
//  4. Publish to devices/{id}/commands at the command QoS.
//  5. If the transport is down, make exactly one reconnect attempt, then
//     give up with ErrTransportUnavailable. The command is never queued.
func (d *Dispatcher) Send(ctx context.Context, device *fleet.Device, action string, params fleet.Payload) (*Receipt, error) {
	if !device.CanReceiveCommands() {
		return nil, fmt.Errorf("%w: %s", ErrNotCommandable, device.Type)
	}

	if err := validateCommand(device.Type, action, params); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	commandID := "cmd_" + uuid.NewString()

	payload := make(fleet.Payload, len(params)+6)
	for k, v := range params {
		payload[k] = v
	}
	payload["action"] = action
	payload["device_id"] = device.DeviceID
	payload["device_type"] = string(device.Type)
	payload["gateway_id"] = device.GatewayID
	payload["timestamp"] = now.Format(time.RFC3339)
	payload["command_id"] = commandID

	topic := mqtt.Topics{}.DeviceCommands(device.DeviceID)
	if err := d.publish(ctx, topic, payload); err != nil {
		return nil, err
	}

	return &Receipt{
		CommandID: commandID,
		DeviceID:  device.DeviceID,
		GatewayID: device.GatewayID,
		Action:    action,
		Payload:   payload,
		SentAt:    now,
	}, nil
}

// Discover asks a gateway to enumerate its attached devices.
//
// The request is published to gateways/{id}/discover; responses arrive
// asynchronously as heartbeats from the enumerated devices. Returns the
// request id stamped into the message.
func (d *Dispatcher) Discover(ctx context.Context, gatewayID string) (string, error) {
	requestID := uuid.NewString()
	payload := fleet.Payload{
		"action":     "discover",
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"request_id": requestID,
	}

	topic := mqtt.Topics{}.GatewayDiscover(gatewayID)
	if err := d.publish(ctx, topic, payload); err != nil {
		return "", err
	}
	return requestID, nil
}

// publish marshals and sends one message, restoring the connection with a
// single reconnect attempt if it is down.
func (d *Dispatcher) publish(ctx context.Context, topic string, payload fleet.Payload) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("command publish: %w", err)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshalling command: %w", err)
	}

	if !d.transport.IsConnected() {
		if err := d.transport.Reconnect(); err != nil {
			return fmt.Errorf("%w: %w", ErrTransportUnavailable, err)
		}
	}

	if err := d.transport.Publish(topic, body, d.qos, false); err != nil {
		return fmt.Errorf("publishing command: %w", err)
	}
	return nil
}
