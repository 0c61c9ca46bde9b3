package command

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/fleetbridge/fleetbridge/internal/fleet"
)

// fakeTransport records publishes and simulates connection state.
type fakeTransport struct {
	connected    bool
	reconnectErr error
	publishErr   error

	reconnects int
	published  []publishedMessage
}

type publishedMessage struct {
	topic   string
	payload []byte
	qos     byte
}

func (f *fakeTransport) Publish(topic string, payload []byte, qos byte, _ bool) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, publishedMessage{topic: topic, payload: payload, qos: qos})
	return nil
}

func (f *fakeTransport) IsConnected() bool { return f.connected }

func (f *fakeTransport) Reconnect() error {
	f.reconnects++
	if f.reconnectErr != nil {
		return f.reconnectErr
	}
	f.connected = true
	return nil
}

func testDevice(devType fleet.DeviceType) *fleet.Device {
	return &fleet.Device{
		GatewayID: "gw-1",
		DeviceID:  "dev-1",
		Type:      devType,
	}
}

func TestSend_NotCommandable(t *testing.T) {
	transport := &fakeTransport{connected: true}
	d := NewDispatcher(transport, 2)

	_, err := d.Send(context.Background(), testDevice(fleet.DeviceTypeSensor), "toggle", fleet.Payload{"state": "on"})
	if !errors.Is(err, ErrNotCommandable) {
		t.Fatalf("Send() error = %v, want ErrNotCommandable", err)
	}
	if len(transport.published) != 0 {
		t.Error("Send() published despite rejection")
	}
}

func TestSend_Validation(t *testing.T) {
	tests := []struct {
		name      string
		devType   fleet.DeviceType
		action    string
		params    fleet.Payload
		wantField string // empty means the command should be accepted
	}{
		{"toggle state on", fleet.DeviceTypeRelay, "toggle", fleet.Payload{"state": "on"}, ""},
		{"toggle state off", fleet.DeviceTypeSwitch, "toggle", fleet.Payload{"state": "off"}, ""},
		{"toggle state bool", fleet.DeviceTypeRelay, "toggle", fleet.Payload{"state": true}, ""},
		{"toggle state one", fleet.DeviceTypeRelay, "toggle", fleet.Payload{"state": float64(1)}, ""},
		{"toggle state zero", fleet.DeviceTypeRelay, "toggle", fleet.Payload{"state": float64(0)}, ""},
		{"toggle state missing", fleet.DeviceTypeRelay, "toggle", fleet.Payload{}, "state"},
		{"toggle state invalid string", fleet.DeviceTypeRelay, "toggle", fleet.Payload{"state": "maybe"}, "state"},
		{"toggle state invalid number", fleet.DeviceTypeRelay, "toggle", fleet.Payload{"state": float64(2)}, "state"},
		{"relay other action unvalidated", fleet.DeviceTypeRelay, "reboot", fleet.Payload{}, ""},

		{"brightness zero", fleet.DeviceTypeDimmer, "set_brightness", fleet.Payload{"brightness": float64(0)}, ""},
		{"brightness hundred", fleet.DeviceTypeDimmer, "set_brightness", fleet.Payload{"brightness": float64(100)}, ""},
		{"brightness negative", fleet.DeviceTypeDimmer, "set_brightness", fleet.Payload{"brightness": float64(-1)}, "brightness"},
		{"brightness over", fleet.DeviceTypeDimmer, "set_brightness", fleet.Payload{"brightness": float64(101)}, "brightness"},
		{"brightness missing", fleet.DeviceTypeDimmer, "set_brightness", fleet.Payload{}, "brightness"},
		{"brightness non-numeric", fleet.DeviceTypeDimmer, "set_brightness", fleet.Payload{"brightness": "bright"}, "brightness"},
		{"dimmer other action unvalidated", fleet.DeviceTypeDimmer, "identify", fleet.Payload{}, ""},

		{"camera snapshot", fleet.DeviceTypeCamera, "take_snapshot", fleet.Payload{}, ""},
		{"camera start recording", fleet.DeviceTypeCamera, "start_recording", fleet.Payload{}, ""},
		{"camera stop recording", fleet.DeviceTypeCamera, "stop_recording", fleet.Payload{}, ""},
		{"camera unknown action", fleet.DeviceTypeCamera, "zoom", fleet.Payload{}, "action"},
		{"camera quality high", fleet.DeviceTypeCamera, "set_quality", fleet.Payload{"quality": "high"}, ""},
		{"camera quality invalid", fleet.DeviceTypeCamera, "set_quality", fleet.Payload{"quality": "ultra"}, "quality"},
		{"camera quality missing", fleet.DeviceTypeCamera, "set_quality", fleet.Payload{}, "quality"},

		{"actuator anything goes", fleet.DeviceTypeActuator, "extend", fleet.Payload{"position": 42}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := &fakeTransport{connected: true}
			d := NewDispatcher(transport, 2)

			_, err := d.Send(context.Background(), testDevice(tt.devType), tt.action, tt.params)

			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("Send() error = %v, want nil", err)
				}
				return
			}

			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("Send() error = %v, want *ValidationError", err)
			}
			if vErr.Field != tt.wantField {
				t.Errorf("ValidationError.Field = %q, want %q", vErr.Field, tt.wantField)
			}
			if len(transport.published) != 0 {
				t.Error("Send() published despite validation failure")
			}
		})
	}
}

func TestSend_StampsPayload(t *testing.T) {
	transport := &fakeTransport{connected: true}
	d := NewDispatcher(transport, 2)

	receipt, err := d.Send(context.Background(), testDevice(fleet.DeviceTypeRelay), "toggle", fleet.Payload{"state": "on"})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if len(transport.published) != 1 {
		t.Fatalf("published %d messages, want 1", len(transport.published))
	}
	msg := transport.published[0]

	if msg.topic != "devices/dev-1/commands" {
		t.Errorf("topic = %q, want %q", msg.topic, "devices/dev-1/commands")
	}
	if msg.qos != 2 {
		t.Errorf("qos = %d, want 2", msg.qos)
	}

	var payload map[string]any
	if err := json.Unmarshal(msg.payload, &payload); err != nil {
		t.Fatalf("unmarshalling payload: %v", err)
	}

	if payload["action"] != "toggle" || payload["state"] != "on" {
		t.Errorf("payload = %v", payload)
	}
	if payload["device_id"] != "dev-1" || payload["gateway_id"] != "gw-1" {
		t.Errorf("routing context = %v/%v", payload["device_id"], payload["gateway_id"])
	}
	if payload["device_type"] != "relay" {
		t.Errorf("device_type = %v, want relay", payload["device_type"])
	}

	commandID, _ := payload["command_id"].(string)
	if !strings.HasPrefix(commandID, "cmd_") {
		t.Errorf("command_id = %q, want cmd_ prefix", commandID)
	}
	if receipt.CommandID != commandID {
		t.Errorf("receipt.CommandID = %q, published %q", receipt.CommandID, commandID)
	}

	ts, _ := payload["timestamp"].(string)
	if _, err := time.Parse(time.RFC3339, ts); err != nil {
		t.Errorf("timestamp %q not RFC3339: %v", ts, err)
	}
}

func TestSend_CommandIDsUnique(t *testing.T) {
	transport := &fakeTransport{connected: true}
	d := NewDispatcher(transport, 2)

	seen := make(map[string]bool)
	for i := 0; i < 5; i++ {
		receipt, err := d.Send(context.Background(), testDevice(fleet.DeviceTypeRelay), "toggle", fleet.Payload{"state": "on"})
		if err != nil {
			t.Fatalf("Send() error = %v", err)
		}
		if seen[receipt.CommandID] {
			t.Fatalf("duplicate command id %q", receipt.CommandID)
		}
		seen[receipt.CommandID] = true
	}
}

func TestSend_TransportDown(t *testing.T) {
	t.Run("single reconnect restores delivery", func(t *testing.T) {
		transport := &fakeTransport{connected: false}
		d := NewDispatcher(transport, 2)

		_, err := d.Send(context.Background(), testDevice(fleet.DeviceTypeRelay), "toggle", fleet.Payload{"state": "on"})
		if err != nil {
			t.Fatalf("Send() error = %v", err)
		}
		if transport.reconnects != 1 {
			t.Errorf("reconnects = %d, want 1", transport.reconnects)
		}
		if len(transport.published) != 1 {
			t.Errorf("published %d messages, want 1", len(transport.published))
		}
	})

	t.Run("failed reconnect surfaces retryable error", func(t *testing.T) {
		transport := &fakeTransport{connected: false, reconnectErr: errors.New("broker down")}
		d := NewDispatcher(transport, 2)

		_, err := d.Send(context.Background(), testDevice(fleet.DeviceTypeRelay), "toggle", fleet.Payload{"state": "on"})
		if !errors.Is(err, ErrTransportUnavailable) {
			t.Fatalf("Send() error = %v, want ErrTransportUnavailable", err)
		}
		if transport.reconnects != 1 {
			t.Errorf("reconnects = %d, want exactly 1", transport.reconnects)
		}
		if len(transport.published) != 0 {
			t.Error("Send() published despite dead transport")
		}
	})
}

func TestSend_CancelledContext(t *testing.T) {
	transport := &fakeTransport{connected: true}
	d := NewDispatcher(transport, 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.Send(ctx, testDevice(fleet.DeviceTypeRelay), "toggle", fleet.Payload{"state": "on"})
	if err == nil {
		t.Fatal("Send() error = nil for cancelled context")
	}
	if len(transport.published) != 0 {
		t.Error("Send() published despite cancelled context")
	}
}

func TestDiscover(t *testing.T) {
	transport := &fakeTransport{connected: true}
	d := NewDispatcher(transport, 2)

	requestID, err := d.Discover(context.Background(), "gw-1")
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if requestID == "" {
		t.Fatal("Discover() returned empty request id")
	}

	if len(transport.published) != 1 {
		t.Fatalf("published %d messages, want 1", len(transport.published))
	}
	msg := transport.published[0]
	if msg.topic != "gateways/gw-1/discover" {
		t.Errorf("topic = %q, want %q", msg.topic, "gateways/gw-1/discover")
	}

	var payload map[string]any
	if err := json.Unmarshal(msg.payload, &payload); err != nil {
		t.Fatalf("unmarshalling payload: %v", err)
	}
	if payload["action"] != "discover" {
		t.Errorf("action = %v, want discover", payload["action"])
	}
	if payload["request_id"] != requestID {
		t.Errorf("request_id = %v, want %q", payload["request_id"], requestID)
	}
}
