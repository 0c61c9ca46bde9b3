package fleet

import (
	"fmt"
	"time"
)

// Payload holds a decoded JSON message body as a generic map.
//
// Device firmware varies widely in what it reports, so payloads are kept
// schemaless at this layer. Model definitions (see ModelDefinition) provide
// optional structure on top.
type Payload map[string]any

// Gateway represents a hub that bridges local devices onto the MQTT broker.
type Gateway struct {
	// ID is the database row id. Internal only.
	ID int64 `json:"-"`

	// GatewayID is the external identifier the hardware announces itself with.
	GatewayID string `json:"gateway_id"`

	// OwnerID identifies the principal that claimed this gateway.
	// Empty until claimed.
	OwnerID string `json:"owner_id,omitempty"`

	Name     string `json:"name,omitempty"`
	IsActive bool   `json:"is_active"`

	// LastSeen is the last time any traffic was attributed to this gateway.
	LastSeen *time.Time `json:"last_seen,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsOnline reports whether the gateway has been seen within the given
// freshness window. A gateway with no recorded traffic is offline.
func (g *Gateway) IsOnline(window time.Duration) bool {
	if g.LastSeen == nil {
		return false
	}
	return time.Since(*g.LastSeen) < window
}

// DeviceType classifies what a device is and which commands it accepts.
type DeviceType string

// Device type constants.
const (
	DeviceTypeSensor   DeviceType = "sensor"
	DeviceTypeActuator DeviceType = "actuator"
	DeviceTypeCamera   DeviceType = "camera"
	DeviceTypeRelay    DeviceType = "relay"
	DeviceTypeDimmer   DeviceType = "dimmer"
	DeviceTypeSwitch   DeviceType = "switch"
)

// AllDeviceTypes returns all valid device type values.
func AllDeviceTypes() []DeviceType {
	return []DeviceType{
		DeviceTypeSensor, DeviceTypeActuator, DeviceTypeCamera,
		DeviceTypeRelay, DeviceTypeDimmer, DeviceTypeSwitch,
	}
}

// Valid reports whether t is a recognised device type.
func (t DeviceType) Valid() bool {
	for _, known := range AllDeviceTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// Device represents a single endpoint behind a gateway.
//
// Devices are identified externally by (gateway_id, device_id). The bare
// device_id is what appears in MQTT topics; it is unique per gateway but
// not globally.
type Device struct {
	// ID is the database row id. Internal only.
	ID int64 `json:"-"`

	// GatewayRef is the owning gateway's row id. Internal only.
	GatewayRef int64 `json:"-"`

	// GatewayID is the owning gateway's external identifier.
	GatewayID string `json:"gateway_id"`

	DeviceID string     `json:"device_id"`
	Type     DeviceType `json:"type"`
	Name     string     `json:"name,omitempty"`

	// Model is the free-form model string reported by the device.
	Model string `json:"model,omitempty"`

	// ModelRef links to a registered ModelDefinition row, when one exists.
	ModelRef *int64 `json:"-"`

	IsOnline bool `json:"is_online"`

	// LastTelemetry is the timestamp of the most recent telemetry reading.
	LastTelemetry *time.Time `json:"last_telemetry,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CanReceiveCommands reports whether this device type accepts commands.
// Sensors are report-only; everything else is command-capable.
func (d *Device) CanReceiveCommands() bool {
	switch d.Type {
	case DeviceTypeActuator, DeviceTypeCamera, DeviceTypeRelay,
		DeviceTypeDimmer, DeviceTypeSwitch:
		return true
	case DeviceTypeSensor:
		return false
	default:
		return false
	}
}

// ModelDefinition describes a registered device model and the payload
// structure its telemetry is expected to carry.
type ModelDefinition struct {
	// ID is the database row id. Internal only.
	ID int64 `json:"-"`

	ModelID string `json:"model_id"`
	Name    string `json:"name,omitempty"`
	Version string `json:"version,omitempty"`

	// Schema describes the expected telemetry shape. The "required" key,
	// when present, lists field names that must appear in every payload.
	Schema Payload `json:"schema,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ValidatePayload checks a telemetry payload against the model schema.
// Only presence of required fields is enforced; value types are not.
//
// Returns ErrSchemaViolation (wrapped, naming the missing fields) when a
// required field is absent, nil otherwise. A model with no schema or no
// "required" list accepts everything.
func (m *ModelDefinition) ValidatePayload(p Payload) error {
	if m.Schema == nil {
		return nil
	}

	required, ok := m.Schema["required"].([]any)
	if !ok {
		return nil
	}

	var missing []string
	for _, field := range required {
		name, ok := field.(string)
		if !ok {
			continue
		}
		if _, present := p[name]; !present {
			missing = append(missing, name)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: missing fields %v", ErrSchemaViolation, missing)
	}
	return nil
}

// Telemetry is a single stored reading for a device.
type Telemetry struct {
	// ID is the database row id. Internal only.
	ID int64 `json:"-"`

	// DeviceRef is the owning device's row id. Internal only.
	DeviceRef int64 `json:"-"`

	Timestamp time.Time `json:"timestamp"`
	Payload   Payload   `json:"payload"`
}
