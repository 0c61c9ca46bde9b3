package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fleetbridge/fleetbridge/internal/command"
	"github.com/fleetbridge/fleetbridge/internal/fleet"
)

// claimGatewayRequest is the request body for POST /gateways/claim.
type claimGatewayRequest struct {
	GatewayID string `json:"gateway_id"`
	Name      string `json:"name"`
}

// handleClaimGateway registers a gateway under the calling principal.
//
// An unseen gateway is created on the spot; an unclaimed one is taken over.
// A gateway owned by a different principal returns 409 and is not modified.
func (s *Server) handleClaimGateway(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(r.Context())
	if !ok {
		writeUnauthorized(w, "authentication required")
		return
	}

	var req claimGatewayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.GatewayID == "" {
		writeBadRequest(w, "gateway_id field is required")
		return
	}

	gw, err := s.store.ClaimGateway(r.Context(), req.GatewayID, p.UserID, req.Name)
	if err != nil {
		if errors.Is(err, fleet.ErrGatewayClaimed) {
			writeConflict(w, "gateway is claimed by another owner")
			return
		}
		s.logger.Error("gateway claim failed", "gateway_id", req.GatewayID, "error", err)
		writeInternalError(w, "failed to claim gateway")
		return
	}

	s.logger.Info("gateway claimed",
		"gateway_id", gw.GatewayID,
		"owner_id", p.UserID,
	)

	writeJSON(w, http.StatusOK, map[string]any{
		"gateway": gw,
		"online":  gw.IsOnline(s.onlineWindow()),
	})
}

// handleDiscoverGateway publishes a discovery request to a claimed gateway.
//
// Discovery is asynchronous: the gateway reports devices back over MQTT and
// the reconciler registers them as they arrive. The response carries the
// request id echoed by the gateway in its discovery results.
func (s *Server) handleDiscoverGateway(w http.ResponseWriter, r *http.Request) {
	gatewayID := chi.URLParam(r, "id")

	if _, err := s.store.GetGateway(r.Context(), gatewayID); err != nil {
		if errors.Is(err, fleet.ErrGatewayNotFound) {
			writeNotFound(w, "gateway not found")
			return
		}
		writeInternalError(w, "failed to get gateway")
		return
	}

	if s.dispatcher == nil {
		writeUnavailable(w, "command transport not configured")
		return
	}

	requestID, err := s.dispatcher.Discover(r.Context(), gatewayID)
	if err != nil {
		if errors.Is(err, command.ErrTransportUnavailable) {
			writeUnavailable(w, "message transport unavailable")
			return
		}
		s.logger.Error("discovery request failed", "gateway_id", gatewayID, "error", err)
		writeInternalError(w, "failed to request discovery")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"request_id": requestID,
		"status":     "requested",
	})
}
