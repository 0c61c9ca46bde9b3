package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/fleetbridge/fleetbridge/internal/auth"
)

// purgeConfirmPhrase must be echoed exactly in a purge request.
const purgeConfirmPhrase = "PURGE TELEMETRY"

// PurgeTelemetryRequest defines the options for a telemetry purge.
type PurgeTelemetryRequest struct {
	Before  string `json:"before"` // RFC3339; readings strictly before are deleted
	Confirm string `json:"confirm"`
}

// PurgeTelemetryResponse reports what was deleted.
type PurgeTelemetryResponse struct {
	Status  string `json:"status"`
	Deleted int64  `json:"deleted"`
}

// handlePurgeTelemetry deletes telemetry readings older than the given
// cutoff, across all devices.
//
// This is a destructive retention operation: it requires the admin role and
// an exact confirmation string as a safety guard.
func (s *Server) handlePurgeTelemetry(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(r.Context())
	if !ok {
		writeUnauthorized(w, "authentication required")
		return
	}
	if p.Role != auth.RoleAdmin {
		writeForbidden(w, "admin role required")
		return
	}

	var req PurgeTelemetryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	// Safety guard: require exact confirmation string.
	if req.Confirm != purgeConfirmPhrase {
		writeBadRequest(w, `confirm field must be exactly "PURGE TELEMETRY"`)
		return
	}

	before, err := time.Parse(time.RFC3339, req.Before)
	if err != nil {
		writeBadRequest(w, "before must be an RFC3339 timestamp")
		return
	}

	deleted, err := s.store.PurgeTelemetry(r.Context(), before)
	if err != nil {
		s.logger.Error("telemetry purge failed", "error", err)
		writeInternalError(w, "failed to purge telemetry")
		return
	}

	s.logger.Info("telemetry purged",
		"before", before.UTC().Format(time.RFC3339),
		"deleted", deleted,
		"user_id", p.UserID,
	)

	writeJSON(w, http.StatusOK, PurgeTelemetryResponse{
		Status:  "ok",
		Deleted: deleted,
	})
}
