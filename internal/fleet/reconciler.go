package fleet

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/fleetbridge/fleetbridge/internal/infrastructure/logging"
)

// EventKind identifies what kind of device report produced an Event.
type EventKind string

// Event kinds.
const (
	EventHeartbeat EventKind = "heartbeat"
	EventTelemetry EventKind = "telemetry"
)

// Event describes a state change the reconciler has committed, for
// downstream fan-out. Events are produced only after the transaction
// commits, so consumers never observe rolled-back state.
type Event struct {
	Kind      EventKind  `json:"kind"`
	GatewayID string     `json:"gateway_id"`
	DeviceID  string     `json:"device_id"`
	Type      DeviceType `json:"type"`
	Timestamp time.Time  `json:"timestamp"`
	Payload   Payload    `json:"payload,omitempty"`
}

// lockStripes is the size of the fixed per-device lock table. Device ids
// hash onto a stripe, so the table never grows with fleet size; two
// devices sharing a stripe serialize against each other, which is
// harmless.
const lockStripes = 64

// Reconciler applies incoming device reports to the fleet store.
//
// Each Apply method is a single atomic unit of work: resolve or create the
// device, record the report, refresh liveness, touch the owning gateway.
// Either all of it commits or none of it does.
//
// Concurrent reports for the same device are serialized through a striped
// mutex keyed by device id so they apply in arrival order. Reports for
// different devices proceed in parallel unless they collide on a stripe.
// The INSERT OR IGNORE upsert in the store guarantees convergence even
// across processes, where a mutex cannot reach.
type Reconciler struct {
	store  *Store
	logger *logging.Logger

	locks [lockStripes]sync.Mutex
}

// NewReconciler creates a reconciler over the given store.
func NewReconciler(store *Store) *Reconciler {
	return &Reconciler{
		store:  store,
		logger: logging.Default(),
	}
}

// SetLogger sets the logger for reconciler operations.
func (r *Reconciler) SetLogger(logger *logging.Logger) {
	r.logger = logger
}

// lockDevice acquires the stripe mutex for a device id and returns its
// release func.
func (r *Reconciler) lockDevice(deviceID string) func() {
	h := fnv.New32a()
	h.Write([]byte(deviceID)) //nolint:errcheck // fnv Write cannot fail

	lock := &r.locks[h.Sum32()%lockStripes]
	lock.Lock()
	return lock.Unlock
}

// ApplyHeartbeat records a liveness report from a device.
//
// A known device is marked online and its gateway's last_seen refreshed.
// An unknown device is auto-created under the gateway named by the
// payload's gateway_id field, carrying the payload's type, name, and model
// when present; without a gateway_id there is nothing to attach the record
// to and ErrNoGateway is returned. A named but unregistered gateway
// returns ErrGatewayNotFound.
func (r *Reconciler) ApplyHeartbeat(ctx context.Context, deviceID string, payload Payload) (*Event, error) {
	unlock := r.lockDevice(deviceID)
	defer unlock()

	now := time.Now().UTC()

	tx, err := r.store.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning heartbeat transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	d, err := resolveDevice(ctx, tx, deviceID, payload)
	if err != nil {
		return nil, err
	}

	if err := markDeviceOnline(ctx, tx, d.ID, now, time.Time{}); err != nil {
		return nil, err
	}
	if err := touchGateway(ctx, tx, d.GatewayRef, now, true); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing heartbeat: %w", err)
	}

	return &Event{
		Kind:      EventHeartbeat,
		GatewayID: d.GatewayID,
		DeviceID:  d.DeviceID,
		Type:      d.Type,
		Timestamp: now,
	}, nil
}

// ApplyTelemetry records a telemetry reading from a device.
//
// Device resolution follows the same rules as ApplyHeartbeat. The reading
// is stored under the persistence timestamp (a device-supplied timestamp
// field stays in the payload but never becomes the row's timestamp, so
// per-device ordering cannot be spoofed), the device is marked online with
// last_telemetry refreshed, and the gateway touched, all in one
// transaction. When the payload declares a model and the device has none,
// the model is linked opportunistically in the same transaction; a linked
// model definition validates the payload best-effort, logging violations
// without rejecting the reading.
//
// The returned Event is built after commit; broadcasting it can never roll
// back the stored reading.
func (r *Reconciler) ApplyTelemetry(ctx context.Context, deviceID string, payload Payload) (*Event, error) {
	unlock := r.lockDevice(deviceID)
	defer unlock()

	now := time.Now().UTC()

	tx, err := r.store.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning telemetry transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	d, err := resolveDevice(ctx, tx, deviceID, payload)
	if err != nil {
		return nil, err
	}

	def, err := resolveModel(ctx, tx, d, payload, now)
	if err != nil {
		return nil, err
	}
	if def != nil {
		if err := def.ValidatePayload(payload); err != nil {
			r.logger.Warn("telemetry failed model schema validation",
				"device_id", d.DeviceID,
				"model_id", def.ModelID,
				"error", err,
			)
		}
	}

	if err := insertTelemetry(ctx, tx, d.ID, now, payload); err != nil {
		return nil, err
	}
	if err := markDeviceOnline(ctx, tx, d.ID, now, now); err != nil {
		return nil, err
	}
	if err := touchGateway(ctx, tx, d.GatewayRef, now, true); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing telemetry: %w", err)
	}

	return &Event{
		Kind:      EventTelemetry,
		GatewayID: d.GatewayID,
		DeviceID:  d.DeviceID,
		Type:      d.Type,
		Timestamp: now,
		Payload:   payload,
	}, nil
}

// ApplyGatewayStatus records a status report from a gateway.
//
// A known gateway has last_seen refreshed; a payload status of "offline"
// clears the active flag, anything else sets it. Reports from unknown
// gateways are ignored without error: gateways enter the system by being
// claimed or by being named in a device report, not by broadcasting status.
func (r *Reconciler) ApplyGatewayStatus(ctx context.Context, gatewayID string, payload Payload) error {
	g, err := getGateway(ctx, r.store.db, gatewayID)
	if err != nil {
		if errors.Is(err, ErrGatewayNotFound) {
			return nil
		}
		return err
	}

	active := true
	if status, ok := payload["status"].(string); ok && status == "offline" {
		active = false
	}

	return touchGateway(ctx, r.store.db, g.ID, time.Now().UTC(), active)
}

// resolveDevice finds the device a report belongs to, auto-creating it
// under the payload's declared gateway when unknown. Auto-created devices
// carry the type, name, and model the payload reports, with the sensor
// type as the default.
func resolveDevice(ctx context.Context, q querier, deviceID string, payload Payload) (*Device, error) {
	d, err := findDevice(ctx, q, deviceID)
	if err == nil {
		return d, nil
	}
	if !errors.Is(err, ErrDeviceNotFound) {
		return nil, err
	}

	gatewayID, _ := payload["gateway_id"].(string)
	if gatewayID == "" {
		return nil, fmt.Errorf("%w: device %q", ErrNoGateway, deviceID)
	}

	g, err := getGateway(ctx, q, gatewayID)
	if err != nil {
		return nil, err
	}

	devType := DeviceTypeSensor
	if t, ok := payload["type"].(string); ok && DeviceType(t).Valid() {
		devType = DeviceType(t)
	}
	name, _ := payload["name"].(string)
	model := payloadModel(payload)

	d, _, err = getOrCreateDevice(ctx, q, g, deviceID, devType, name, model)
	return d, err
}

// resolveModel applies the opportunistic model link rules and returns the
// device's model definition when one is registered.
//
// A payload-declared model is adopted only when the device has none yet.
// A device carrying a model string without a linked definition picks the
// reference up as soon as a matching definition is registered. A model
// string with no registered definition is not an error.
func resolveModel(ctx context.Context, q querier, d *Device, payload Payload, now time.Time) (*ModelDefinition, error) {
	if model := payloadModel(payload); model != "" && d.Model == "" {
		var modelRef *int64
		m, getErr := getModel(ctx, q, model)
		if getErr == nil {
			modelRef = &m.ID
		} else {
			m = nil
		}
		if err := linkDeviceModel(ctx, q, d.ID, model, modelRef, now); err != nil {
			return nil, err
		}
		d.Model = model
		d.ModelRef = modelRef
		return m, nil
	}

	if d.Model == "" {
		return nil, nil
	}

	m, err := getModel(ctx, q, d.Model)
	if err != nil {
		return nil, nil
	}
	if d.ModelRef == nil {
		if err := linkDeviceModel(ctx, q, d.ID, d.Model, &m.ID, now); err != nil {
			return nil, err
		}
		d.ModelRef = &m.ID
	}
	return m, nil
}

// payloadModel extracts a declared model identifier from a payload.
// Both "model_id" and "model" keys are accepted, in that order.
func payloadModel(payload Payload) string {
	if m, ok := payload["model_id"].(string); ok && m != "" {
		return m
	}
	if m, ok := payload["model"].(string); ok && m != "" {
		return m
	}
	return ""
}
