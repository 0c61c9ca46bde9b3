package bridge

import (
	"context"
	"sync"
	"time"

	"github.com/fleetbridge/fleetbridge/internal/fleet"
	"github.com/fleetbridge/fleetbridge/internal/infrastructure/config"
	"github.com/fleetbridge/fleetbridge/internal/infrastructure/logging"
	"github.com/fleetbridge/fleetbridge/internal/infrastructure/mqtt"
)

// Transport is the slice of the MQTT client the bridge needs.
// Satisfied by *mqtt.Client; tests substitute a fake.
type Transport interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	IsConnected() bool
}

// Broadcaster receives committed telemetry events for realtime fan-out.
// Satisfied by the API hub.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// Mirror receives numeric telemetry fields for time-series storage.
// Satisfied by *influxdb.Client.
type Mirror interface {
	WriteTelemetryField(gatewayID, deviceID, field string, value float64, at time.Time)
}

// TelemetryChannel is the well-known fan-out channel for device readings.
const TelemetryChannel = "telemetry"

// Bridge routes MQTT traffic into the fleet reconciler and fans committed
// events out to the hub and the time-series mirror.
//
// A Bridge is constructed once in main and started explicitly; there is no
// package-level instance and no lazy start. Start and Stop are idempotent.
type Bridge struct {
	transport  Transport
	reconciler *fleet.Reconciler
	logger     *logging.Logger
	qos        byte

	// hub and mirror are optional; nil disables the respective fan-out.
	hub    Broadcaster
	mirror Mirror

	mu      sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Options carries the optional fan-out targets for New.
type Options struct {
	Hub    Broadcaster
	Mirror Mirror
}

// New creates a bridge over a connected transport and a reconciler.
// The QoS for device and gateway subscriptions comes from cfg.
func New(transport Transport, reconciler *fleet.Reconciler, cfg config.MQTTConfig, logger *logging.Logger, opts Options) *Bridge {
	return &Bridge{
		transport:  transport,
		reconciler: reconciler,
		logger:     logger,
		qos:        byte(cfg.QoS), //nolint:gosec // QoS validated to 0-2 by config
		hub:        opts.Hub,
		mirror:     opts.Mirror,
	}
}

// subscriptionTopics returns the topic/QoS pairs the bridge listens on.
// Diagnostic traffic is always QoS 0.
func (b *Bridge) subscriptionTopics() []struct {
	topic string
	qos   byte
} {
	t := mqtt.Topics{}
	return []struct {
		topic string
		qos   byte
	}{
		{t.AllDeviceData(), b.qos},
		{t.AllDeviceHeartbeats(), b.qos},
		{t.AllGatewayStatuses(), b.qos},
		{t.DebugTest(), 0},
	}
}

// Start subscribes the bridge to its ingestion topics.
//
// Calling Start on a running bridge is a no-op. A partial subscription
// failure unwinds the successful subscriptions and leaves the bridge
// stopped.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running {
		return nil
	}

	b.ctx, b.cancel = context.WithCancel(ctx)

	subscribed := make([]string, 0, 4)
	for _, sub := range b.subscriptionTopics() {
		if err := b.transport.Subscribe(sub.topic, sub.qos, b.route); err != nil {
			for _, topic := range subscribed {
				b.transport.Unsubscribe(topic) //nolint:errcheck // best-effort unwind
			}
			b.cancel()
			return err
		}
		subscribed = append(subscribed, sub.topic)
	}

	b.running = true
	b.logger.Info("bridge started", "topics", len(subscribed), "qos", b.qos)
	return nil
}

// Stop unsubscribes the bridge from its ingestion topics.
// Calling Stop on a stopped bridge is a no-op.
func (b *Bridge) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.running {
		return
	}

	for _, sub := range b.subscriptionTopics() {
		if err := b.transport.Unsubscribe(sub.topic); err != nil {
			b.logger.Warn("unsubscribe failed during stop", "topic", sub.topic, "error", err)
		}
	}

	b.cancel()
	b.running = false
	b.logger.Info("bridge stopped")
}

// Status is a point-in-time health read of the bridge.
type Status struct {
	Running            bool `json:"running"`
	TransportConnected bool `json:"transport_connected"`
}

// Status reports whether the bridge is routing and the transport is up.
func (b *Bridge) Status() Status {
	b.mu.Lock()
	running := b.running
	b.mu.Unlock()

	return Status{
		Running:            running,
		TransportConnected: b.transport.IsConnected(),
	}
}
