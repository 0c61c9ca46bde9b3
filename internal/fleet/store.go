package fleet

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fleetbridge/fleetbridge/internal/infrastructure/database"
)

// Store provides SQLite-backed persistence for gateways, devices, model
// definitions, and telemetry.
//
// Composite operations (claim, create-or-update, model link) run inside a
// single transaction. The reconciler composes the unexported helpers into
// its own transactional units of work.
type Store struct {
	db *database.DB
}

// NewStore creates a store over an open database connection.
// The schema must already be migrated.
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

// querier is satisfied by both *sql.DB and *sql.Tx, allowing helpers to run
// standalone or inside a transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

// ---------------------------------------------------------------------------
// Gateways

const gatewayColumns = `id, gateway_id, owner_id, name, is_active, last_seen, created_at, updated_at`

// GetGateway retrieves a gateway by its external identifier.
// Returns ErrGatewayNotFound if it does not exist.
func (s *Store) GetGateway(ctx context.Context, gatewayID string) (*Gateway, error) {
	return getGateway(ctx, s.db, gatewayID)
}

func getGateway(ctx context.Context, q querier, gatewayID string) (*Gateway, error) {
	query := `SELECT ` + gatewayColumns + ` FROM gateways WHERE gateway_id = ?`

	g, err := scanGateway(q.QueryRowContext(ctx, query, gatewayID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrGatewayNotFound
		}
		return nil, fmt.Errorf("querying gateway: %w", err)
	}
	return g, nil
}

// ClaimGateway registers a gateway under the given owner, creating the row
// if the gateway has never been seen.
//
// An unclaimed gateway (empty owner) is taken over. A gateway already owned
// by the same principal may be renamed. A gateway owned by a different
// principal returns ErrGatewayClaimed and nothing is modified.
func (s *Store) ClaimGateway(ctx context.Context, gatewayID, ownerID, name string) (*Gateway, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning claim transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	now := time.Now().UTC()

	g, err := getGateway(ctx, tx, gatewayID)
	switch {
	case errors.Is(err, ErrGatewayNotFound):
		g, err = insertGateway(ctx, tx, gatewayID, ownerID, name, now)
		if err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	default:
		if g.OwnerID != "" && g.OwnerID != ownerID {
			return nil, ErrGatewayClaimed
		}
		if name == "" {
			name = g.Name
		}
		query := `UPDATE gateways SET owner_id = ?, name = ?, updated_at = ? WHERE id = ?`
		if _, err := tx.ExecContext(ctx, query, ownerID, name, now.Format(time.RFC3339), g.ID); err != nil {
			return nil, fmt.Errorf("updating gateway claim: %w", err)
		}
		g.OwnerID = ownerID
		g.Name = name
		g.UpdatedAt = now
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing claim: %w", err)
	}
	return g, nil
}

// TouchGateway records traffic for a known gateway, refreshing last_seen.
// Returns ErrGatewayNotFound if the gateway does not exist.
func (s *Store) TouchGateway(ctx context.Context, gatewayID string, at time.Time) error {
	g, err := getGateway(ctx, s.db, gatewayID)
	if err != nil {
		return err
	}
	return touchGateway(ctx, s.db, g.ID, at, true)
}

func insertGateway(ctx context.Context, q querier, gatewayID, ownerID, name string, now time.Time) (*Gateway, error) {
	query := `
		INSERT INTO gateways (gateway_id, owner_id, name, is_active, created_at, updated_at)
		VALUES (?, ?, ?, 1, ?, ?)`

	result, err := q.ExecContext(ctx, query,
		gatewayID, ownerID, name,
		now.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting gateway: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading gateway id: %w", err)
	}

	return &Gateway{
		ID:        id,
		GatewayID: gatewayID,
		OwnerID:   ownerID,
		Name:      name,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// touchGateway refreshes last_seen and the active flag for a gateway row.
func touchGateway(ctx context.Context, q querier, id int64, at time.Time, active bool) error {
	query := `UPDATE gateways SET last_seen = ?, is_active = ?, updated_at = ? WHERE id = ?`

	_, err := q.ExecContext(ctx, query,
		at.UTC().Format(time.RFC3339),
		boolToInt(active),
		at.UTC().Format(time.RFC3339),
		id,
	)
	if err != nil {
		return fmt.Errorf("touching gateway: %w", err)
	}
	return nil
}

func scanGateway(scanner rowScanner) (*Gateway, error) {
	var g Gateway
	var isActive int
	var lastSeen sql.NullString
	var createdAt, updatedAt string

	err := scanner.Scan(
		&g.ID, &g.GatewayID, &g.OwnerID, &g.Name,
		&isActive, &lastSeen, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	g.IsActive = isActive != 0
	g.LastSeen = parseNullableTime(lastSeen)

	if g.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if g.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &g, nil
}

// ---------------------------------------------------------------------------
// Devices

const deviceColumns = `
	d.id, d.gateway_id, g.gateway_id, d.device_id, d.type, d.model,
	d.model_ref, d.name, d.is_online, d.last_telemetry, d.created_at, d.updated_at`

// GetDevice retrieves a device by its (gateway, device) identity.
// Returns ErrDeviceNotFound if it does not exist.
func (s *Store) GetDevice(ctx context.Context, gatewayID, deviceID string) (*Device, error) {
	return getDevice(ctx, s.db, gatewayID, deviceID)
}

// FindDevice retrieves a device by its bare device identifier as it appears
// on MQTT topics. When multiple gateways carry the same device_id the oldest
// registration wins. Returns ErrDeviceNotFound if no match exists.
func (s *Store) FindDevice(ctx context.Context, deviceID string) (*Device, error) {
	return findDevice(ctx, s.db, deviceID)
}

func getDevice(ctx context.Context, q querier, gatewayID, deviceID string) (*Device, error) {
	query := `
		SELECT ` + deviceColumns + `
		FROM devices d
		JOIN gateways g ON g.id = d.gateway_id
		WHERE g.gateway_id = ? AND d.device_id = ?`

	d, err := scanDevice(q.QueryRowContext(ctx, query, gatewayID, deviceID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device: %w", err)
	}
	return d, nil
}

func findDevice(ctx context.Context, q querier, deviceID string) (*Device, error) {
	query := `
		SELECT ` + deviceColumns + `
		FROM devices d
		JOIN gateways g ON g.id = d.gateway_id
		WHERE d.device_id = ?
		ORDER BY d.id
		LIMIT 1`

	d, err := scanDevice(q.QueryRowContext(ctx, query, deviceID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by device_id: %w", err)
	}
	return d, nil
}

// CreateOrUpdateDevice registers a device under a known gateway, or updates
// the registration if it already exists. Only non-empty fields overwrite
// existing values. Returns the device and whether a new row was created.
//
// Returns ErrGatewayNotFound if the gateway is unknown and
// ErrInvalidDeviceType if devType is set but not recognised.
func (s *Store) CreateOrUpdateDevice(ctx context.Context, gatewayID, deviceID string, devType DeviceType, name, model string) (*Device, bool, error) {
	if devType != "" && !devType.Valid() {
		return nil, false, fmt.Errorf("%w: %q", ErrInvalidDeviceType, devType)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("beginning device transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	g, err := getGateway(ctx, tx, gatewayID)
	if err != nil {
		return nil, false, err
	}

	createType := devType
	if createType == "" {
		createType = DeviceTypeSensor
	}

	d, created, err := getOrCreateDevice(ctx, tx, g, deviceID, createType, name, model)
	if err != nil {
		return nil, false, err
	}

	if !created {
		// Merge non-empty fields into the existing registration.
		if devType == "" {
			devType = d.Type
		}
		if name == "" {
			name = d.Name
		}
		if model == "" {
			model = d.Model
		}
		now := time.Now().UTC()
		query := `UPDATE devices SET type = ?, name = ?, model = ?, updated_at = ? WHERE id = ?`
		if _, err := tx.ExecContext(ctx, query, string(devType), name, model, now.Format(time.RFC3339), d.ID); err != nil {
			return nil, false, fmt.Errorf("updating device: %w", err)
		}
		d.Type = devType
		d.Name = name
		d.Model = model
		d.UpdatedAt = now
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("committing device: %w", err)
	}
	return d, created, nil
}

// getOrCreateDevice registers a device under a gateway if it does not exist.
// Name and model are set on insert only; a concurrent loser's values are
// discarded along with its insert.
//
// INSERT OR IGNORE on the (gateway_id, device_id) unique constraint followed
// by a read-back makes this race-free: two concurrent callers converge on
// the same row, whichever insert wins.
func getOrCreateDevice(ctx context.Context, q querier, g *Gateway, deviceID string, devType DeviceType, name, model string) (*Device, bool, error) {
	now := time.Now().UTC()
	query := `
		INSERT OR IGNORE INTO devices (gateway_id, device_id, type, name, model, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	result, err := q.ExecContext(ctx, query,
		g.ID, deviceID, string(devType), name, model,
		now.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		return nil, false, fmt.Errorf("inserting device: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("checking rows affected: %w", err)
	}

	d, err := getDevice(ctx, q, g.GatewayID, deviceID)
	if err != nil {
		return nil, false, err
	}
	return d, affected > 0, nil
}

// markDeviceOnline flags a device online. When telemetryAt is non-zero the
// last_telemetry timestamp is refreshed as well.
func markDeviceOnline(ctx context.Context, q querier, id int64, at, telemetryAt time.Time) error {
	var err error
	if telemetryAt.IsZero() {
		query := `UPDATE devices SET is_online = 1, updated_at = ? WHERE id = ?`
		_, err = q.ExecContext(ctx, query, at.UTC().Format(time.RFC3339), id)
	} else {
		query := `UPDATE devices SET is_online = 1, last_telemetry = ?, updated_at = ? WHERE id = ?`
		_, err = q.ExecContext(ctx, query,
			telemetryAt.UTC().Format(time.RFC3339),
			at.UTC().Format(time.RFC3339),
			id,
		)
	}
	if err != nil {
		return fmt.Errorf("marking device online: %w", err)
	}
	return nil
}

// linkDeviceModel sets the model string and optional model_ref on a device.
func linkDeviceModel(ctx context.Context, q querier, id int64, model string, modelRef *int64, at time.Time) error {
	query := `UPDATE devices SET model = ?, model_ref = ?, updated_at = ? WHERE id = ?`

	_, err := q.ExecContext(ctx, query,
		model, nullableInt64(modelRef), at.UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return fmt.Errorf("linking device model: %w", err)
	}
	return nil
}

func scanDevice(scanner rowScanner) (*Device, error) {
	var d Device
	var devType string
	var modelRef sql.NullInt64
	var isOnline int
	var lastTelemetry sql.NullString
	var createdAt, updatedAt string

	err := scanner.Scan(
		&d.ID, &d.GatewayRef, &d.GatewayID, &d.DeviceID, &devType, &d.Model,
		&modelRef, &d.Name, &isOnline, &lastTelemetry, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	d.Type = DeviceType(devType)
	d.IsOnline = isOnline != 0
	d.LastTelemetry = parseNullableTime(lastTelemetry)
	if modelRef.Valid {
		d.ModelRef = &modelRef.Int64
	}

	if d.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if d.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &d, nil
}

// ---------------------------------------------------------------------------
// Model definitions

const modelColumns = `id, model_id, name, version, schema, created_at, updated_at`

// GetModel retrieves a model definition by its external identifier.
// Returns ErrModelNotFound if it does not exist.
func (s *Store) GetModel(ctx context.Context, modelID string) (*ModelDefinition, error) {
	return getModel(ctx, s.db, modelID)
}

func getModel(ctx context.Context, q querier, modelID string) (*ModelDefinition, error) {
	query := `SELECT ` + modelColumns + ` FROM device_models WHERE model_id = ?`

	m, err := scanModel(q.QueryRowContext(ctx, query, modelID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrModelNotFound
		}
		return nil, fmt.Errorf("querying model: %w", err)
	}
	return m, nil
}

// UpsertModel registers a model definition, replacing name, version, and
// schema if the model_id already exists.
func (s *Store) UpsertModel(ctx context.Context, modelID, name, version string, schema Payload) (*ModelDefinition, error) {
	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("marshalling schema: %w", err)
	}
	if schema == nil {
		schemaJSON = []byte("{}")
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO device_models (model_id, name, version, schema, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(model_id) DO UPDATE SET
			name = excluded.name,
			version = excluded.version,
			schema = excluded.schema,
			updated_at = excluded.updated_at`

	_, err = s.db.ExecContext(ctx, query,
		modelID, name, version, string(schemaJSON),
		now.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("upserting model: %w", err)
	}

	return getModel(ctx, s.db, modelID)
}

// LinkModel attaches a registered model definition to a device.
// Returns ErrModelNotFound or ErrDeviceNotFound when either side is missing.
func (s *Store) LinkModel(ctx context.Context, gatewayID, deviceID, modelID string) (*Device, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning link transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	m, err := getModel(ctx, tx, modelID)
	if err != nil {
		return nil, err
	}

	d, err := getDevice(ctx, tx, gatewayID, deviceID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if err := linkDeviceModel(ctx, tx, d.ID, m.ModelID, &m.ID, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing link: %w", err)
	}

	d.Model = m.ModelID
	d.ModelRef = &m.ID
	d.UpdatedAt = now
	return d, nil
}

func scanModel(scanner rowScanner) (*ModelDefinition, error) {
	var m ModelDefinition
	var schemaJSON string
	var createdAt, updatedAt string

	err := scanner.Scan(
		&m.ID, &m.ModelID, &m.Name, &m.Version, &schemaJSON,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(schemaJSON), &m.Schema); err != nil {
		return nil, fmt.Errorf("unmarshalling schema: %w", err)
	}

	if m.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if m.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &m, nil
}

// ---------------------------------------------------------------------------
// Telemetry

// insertTelemetry appends a reading for a device row.
func insertTelemetry(ctx context.Context, q querier, deviceRef int64, ts time.Time, payload Payload) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshalling payload: %w", err)
	}

	query := `INSERT INTO telemetry (device_ref, timestamp, payload) VALUES (?, ?, ?)`
	if _, err := q.ExecContext(ctx, query, deviceRef, ts.UTC().Format(time.RFC3339), string(payloadJSON)); err != nil {
		return fmt.Errorf("inserting telemetry: %w", err)
	}
	return nil
}

// QueryTelemetry returns stored readings for a device, newest first.
//
// The range is half-open: readings at or after since and strictly before
// until. Either bound may be nil. A since bound at or after until returns
// ErrInvalidRange. The limit caps results after ordering, so it always
// keeps the newest readings; limit <= 0 means no cap.
//
// When gatewayID is empty the device is resolved by bare device_id, first
// match. Returns ErrDeviceNotFound if the device is unknown.
func (s *Store) QueryTelemetry(ctx context.Context, gatewayID, deviceID string, since, until *time.Time, limit int) ([]Telemetry, error) {
	if since != nil && until != nil && !since.Before(*until) {
		return nil, ErrInvalidRange
	}

	var d *Device
	var err error
	if gatewayID != "" {
		d, err = getDevice(ctx, s.db, gatewayID, deviceID)
	} else {
		d, err = findDevice(ctx, s.db, deviceID)
	}
	if err != nil {
		return nil, err
	}

	query := `SELECT id, device_ref, timestamp, payload FROM telemetry WHERE device_ref = ?`
	args := []any{d.ID}

	if since != nil {
		query += ` AND timestamp >= ?`
		args = append(args, since.UTC().Format(time.RFC3339))
	}
	if until != nil {
		query += ` AND timestamp < ?`
		args = append(args, until.UTC().Format(time.RFC3339))
	}

	query += ` ORDER BY timestamp DESC, id DESC LIMIT ?`
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying telemetry: %w", err)
	}
	defer rows.Close()

	var readings []Telemetry
	for rows.Next() {
		var t Telemetry
		var ts, payloadJSON string
		if err := rows.Scan(&t.ID, &t.DeviceRef, &ts, &payloadJSON); err != nil {
			return nil, fmt.Errorf("scanning telemetry: %w", err)
		}
		if t.Timestamp, err = time.Parse(time.RFC3339, ts); err != nil {
			return nil, fmt.Errorf("parsing timestamp: %w", err)
		}
		if err := json.Unmarshal([]byte(payloadJSON), &t.Payload); err != nil {
			return nil, fmt.Errorf("unmarshalling payload: %w", err)
		}
		readings = append(readings, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating telemetry: %w", err)
	}
	return readings, nil
}

// PurgeTelemetry deletes readings recorded strictly before the cutoff,
// across all devices. Used by the retention maintenance endpoint.
//
// Returns:
//   - int64: Number of rows deleted
//   - error: Database errors
func (s *Store) PurgeTelemetry(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM telemetry WHERE timestamp < ?`, before.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("purging telemetry: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purging telemetry: %w", err)
	}
	return n, nil
}

// ---------------------------------------------------------------------------
// Scan helpers

// parseNullableTime converts a nullable RFC3339 column to a *time.Time.
// Unparsable values are treated as absent.
func parseNullableTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil
	}
	return &t
}

// nullableInt64 returns a sql.NullInt64 for optional row references.
func nullableInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

// boolToInt converts a boolean to 0/1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
