package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/fleetbridge/fleetbridge/internal/fleet"
)

// handleQueryTelemetry returns stored readings for a device, newest first.
//
// Query parameters:
//   - device: device id (required)
//   - gateway: gateway id; when omitted the device is resolved by bare
//     device id, first match
//   - since: RFC3339 lower bound, inclusive
//   - until: RFC3339 upper bound, exclusive
//   - limit: maximum readings to return; defaults and caps come from config
func (s *Server) handleQueryTelemetry(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	deviceID := q.Get("device")
	if deviceID == "" {
		writeBadRequest(w, "device query parameter is required")
		return
	}
	gatewayID := q.Get("gateway")

	var since, until *time.Time
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeBadRequest(w, "since must be an RFC3339 timestamp")
			return
		}
		since = &t
	}
	if v := q.Get("until"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeBadRequest(w, "until must be an RFC3339 timestamp")
			return
		}
		until = &t
	}

	limit := s.fleetCfg.TelemetryDefaultLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}
	if s.fleetCfg.TelemetryMaxLimit > 0 && limit > s.fleetCfg.TelemetryMaxLimit {
		limit = s.fleetCfg.TelemetryMaxLimit
	}

	readings, err := s.store.QueryTelemetry(r.Context(), gatewayID, deviceID, since, until, limit)
	if err != nil {
		switch {
		case errors.Is(err, fleet.ErrInvalidRange):
			writeBadRequest(w, "since must be before until")
		case errors.Is(err, fleet.ErrDeviceNotFound):
			writeNotFound(w, "device not found")
		default:
			s.logger.Error("telemetry query failed", "device_id", deviceID, "error", err)
			writeInternalError(w, "failed to query telemetry")
		}
		return
	}

	if readings == nil {
		readings = []fleet.Telemetry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"telemetry": readings,
		"count":     len(readings),
	})
}
