package mqtt

import "fmt"

// Topic prefixes for the FleetBridge MQTT namespace.
//
// Devices publish under devices/{device_id}/{event} and gateways under
// gateways/{gateway_id}/{event}. The bridge announces its own lifecycle
// under system/bridge/status.
const (
	// TopicPrefixDevices is the base for per-device topics.
	TopicPrefixDevices = "devices"

	// TopicPrefixGateways is the base for per-gateway topics.
	TopicPrefixGateways = "gateways"

	// TopicPrefixSystem is the base for bridge lifecycle topics.
	TopicPrefixSystem = "system"

	// TopicPrefixDebug is the base for diagnostic topics. Messages here are
	// acknowledged but never routed to state handling.
	TopicPrefixDebug = "debug"
)

// Topics provides builders for FleetBridge MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	cmdTopic := topics.DeviceCommands("lamp-01")
//	// Returns: "devices/lamp-01/commands"
type Topics struct{}

// DeviceHeartbeat returns the topic a device publishes liveness pings on.
//
// Example: devices/lamp-01/heartbeat
func (Topics) DeviceHeartbeat(deviceID string) string {
	return fmt.Sprintf("%s/%s/heartbeat", TopicPrefixDevices, deviceID)
}

// DeviceData returns the topic a device publishes telemetry readings on.
//
// Example: devices/temp-04/data
func (Topics) DeviceData(deviceID string) string {
	return fmt.Sprintf("%s/%s/data", TopicPrefixDevices, deviceID)
}

// DeviceCommands returns the topic a device listens for commands on.
//
// Example: devices/lamp-01/commands
func (Topics) DeviceCommands(deviceID string) string {
	return fmt.Sprintf("%s/%s/commands", TopicPrefixDevices, deviceID)
}

// GatewayStatus returns the topic a gateway publishes liveness updates on.
//
// Example: gateways/gw-7/status
func (Topics) GatewayStatus(gatewayID string) string {
	return fmt.Sprintf("%s/%s/status", TopicPrefixGateways, gatewayID)
}

// GatewayDiscover returns the topic used to ask a gateway to enumerate its
// attached devices.
//
// Example: gateways/gw-7/discover
func (Topics) GatewayDiscover(gatewayID string) string {
	return fmt.Sprintf("%s/%s/discover", TopicPrefixGateways, gatewayID)
}

// BridgeStatus returns the topic the bridge announces its own lifecycle on.
// Both the connect announcement and the Last Will use this topic.
//
// Example: system/bridge/status
func (Topics) BridgeStatus() string {
	return fmt.Sprintf("%s/bridge/status", TopicPrefixSystem)
}

// DebugTest returns the diagnostic topic used to verify broker round-trips.
//
// Example: debug/test
func (Topics) DebugTest() string {
	return fmt.Sprintf("%s/test", TopicPrefixDebug)
}

// AllDeviceHeartbeats returns a pattern matching heartbeats from any device.
//
// Pattern: devices/+/heartbeat
func (Topics) AllDeviceHeartbeats() string {
	return fmt.Sprintf("%s/+/heartbeat", TopicPrefixDevices)
}

// AllDeviceData returns a pattern matching telemetry from any device.
//
// Pattern: devices/+/data
func (Topics) AllDeviceData() string {
	return fmt.Sprintf("%s/+/data", TopicPrefixDevices)
}

// AllGatewayStatuses returns a pattern matching status updates from any gateway.
//
// Pattern: gateways/+/status
func (Topics) AllGatewayStatuses() string {
	return fmt.Sprintf("%s/+/status", TopicPrefixGateways)
}
