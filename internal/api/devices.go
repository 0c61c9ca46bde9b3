package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fleetbridge/fleetbridge/internal/command"
	"github.com/fleetbridge/fleetbridge/internal/fleet"
)

// createDeviceRequest is the request body for POST /devices.
type createDeviceRequest struct {
	GatewayID string `json:"gateway_id"`
	DeviceID  string `json:"device_id"`
	Type      string `json:"type"`
	Name      string `json:"name"`
	Model     string `json:"model"`
}

// handleCreateDevice creates a device under a claimed gateway, or updates it
// in place when the (gateway, device) pair already exists. Repeating the same
// request is a no-op: 201 on first creation, 200 thereafter.
func (s *Server) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	var req createDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.GatewayID == "" || req.DeviceID == "" {
		writeBadRequest(w, "gateway_id and device_id fields are required")
		return
	}

	devType := fleet.DeviceType(req.Type)
	if req.Type == "" {
		devType = fleet.DeviceTypeSensor
	}

	dev, created, err := s.store.CreateOrUpdateDevice(r.Context(), req.GatewayID, req.DeviceID, devType, req.Name, req.Model)
	if err != nil {
		switch {
		case errors.Is(err, fleet.ErrInvalidDeviceType):
			writeValidationError(w, "unknown device type: "+req.Type)
		case errors.Is(err, fleet.ErrGatewayNotFound):
			writeNotFound(w, "gateway not found")
		default:
			s.logger.Error("device registration failed",
				"gateway_id", req.GatewayID,
				"device_id", req.DeviceID,
				"error", err,
			)
			writeInternalError(w, "failed to register device")
		}
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, dev)
}

// deviceCommandRequest is the request body for POST /devices/{id}/command.
type deviceCommandRequest struct {
	GatewayID  string        `json:"gateway_id,omitempty"`
	Action     string        `json:"action"`
	Parameters fleet.Payload `json:"parameters,omitempty"`
}

// handleDeviceCommand validates and dispatches a command to a device.
//
// This is an asynchronous operation: the command is published to the
// gateway's command topic and the response is 202 Accepted. The resulting
// state change arrives later as telemetry via WebSocket.
//
// When gateway_id is omitted the device is resolved by bare device id,
// first match, mirroring the MQTT ingest path.
func (s *Server) handleDeviceCommand(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req deviceCommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Action == "" {
		writeBadRequest(w, "action field is required")
		return
	}

	var dev *fleet.Device
	var err error
	if req.GatewayID != "" {
		dev, err = s.store.GetDevice(r.Context(), req.GatewayID, id)
	} else {
		dev, err = s.store.FindDevice(r.Context(), id)
	}
	if err != nil {
		if errors.Is(err, fleet.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to get device")
		return
	}

	if s.dispatcher == nil {
		writeUnavailable(w, "command transport not configured")
		return
	}

	receipt, err := s.dispatcher.Send(r.Context(), dev, req.Action, req.Parameters)
	if err != nil {
		var vErr *command.ValidationError
		switch {
		case errors.Is(err, command.ErrNotCommandable):
			writeBadRequest(w, "device type "+string(dev.Type)+" cannot receive commands")
		case errors.As(err, &vErr):
			writeValidationError(w, vErr.Error())
		case errors.Is(err, command.ErrTransportUnavailable):
			writeUnavailable(w, "message transport unavailable")
		default:
			s.logger.Error("command dispatch failed",
				"device_id", dev.DeviceID,
				"action", req.Action,
				"error", err,
			)
			writeInternalError(w, "failed to dispatch command")
		}
		return
	}

	s.logger.Info("device command sent",
		"device_id", dev.DeviceID,
		"gateway_id", dev.GatewayID,
		"action", req.Action,
		"command_id", receipt.CommandID,
	)

	writeJSON(w, http.StatusAccepted, map[string]any{
		"command_id": receipt.CommandID,
		"status":     "accepted",
		"message":    "command published, state update will follow via WebSocket",
	})
}

// linkModelRequest is the request body for POST /devices/link-model.
type linkModelRequest struct {
	GatewayID string `json:"gateway_id"`
	DeviceID  string `json:"device_id"`
	ModelID   string `json:"model_id"`
}

// handleLinkModel attaches a registered model definition to a device.
func (s *Server) handleLinkModel(w http.ResponseWriter, r *http.Request) {
	var req linkModelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.GatewayID == "" || req.DeviceID == "" || req.ModelID == "" {
		writeBadRequest(w, "gateway_id, device_id, and model_id fields are required")
		return
	}

	dev, err := s.store.LinkModel(r.Context(), req.GatewayID, req.DeviceID, req.ModelID)
	if err != nil {
		switch {
		case errors.Is(err, fleet.ErrDeviceNotFound):
			writeNotFound(w, "device not found")
		case errors.Is(err, fleet.ErrModelNotFound):
			writeNotFound(w, "model not found")
		default:
			writeInternalError(w, "failed to link model")
		}
		return
	}

	writeJSON(w, http.StatusOK, dev)
}

// upsertModelRequest is the request body for POST /models.
type upsertModelRequest struct {
	ModelID string        `json:"model_id"`
	Name    string        `json:"name"`
	Version string        `json:"version"`
	Schema  fleet.Payload `json:"schema,omitempty"`
}

// handleUpsertModel registers a model definition, updating it in place when
// the model id already exists.
func (s *Server) handleUpsertModel(w http.ResponseWriter, r *http.Request) {
	var req upsertModelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.ModelID == "" {
		writeBadRequest(w, "model_id field is required")
		return
	}

	model, err := s.store.UpsertModel(r.Context(), req.ModelID, req.Name, req.Version, req.Schema)
	if err != nil {
		s.logger.Error("model registration failed", "model_id", req.ModelID, "error", err)
		writeInternalError(w, "failed to register model")
		return
	}

	writeJSON(w, http.StatusOK, model)
}
