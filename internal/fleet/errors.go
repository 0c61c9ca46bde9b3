package fleet

import "errors"

// Domain errors for the fleet package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, fleet.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrGatewayNotFound is returned when a gateway identifier does not exist.
	ErrGatewayNotFound = errors.New("fleet: gateway not found")

	// ErrGatewayClaimed is returned when a claim targets a gateway already
	// owned by a different principal. The existing registration is untouched.
	ErrGatewayClaimed = errors.New("fleet: gateway already claimed")

	// ErrNoGateway is returned when an unknown device reports without naming
	// a gateway, so there is nothing to attach an auto-created record to.
	ErrNoGateway = errors.New("fleet: no gateway for unknown device")

	// ErrDeviceNotFound is returned when a device identifier does not exist.
	ErrDeviceNotFound = errors.New("fleet: device not found")

	// ErrModelNotFound is returned when a model identifier does not exist.
	ErrModelNotFound = errors.New("fleet: model not found")

	// ErrInvalidDeviceType is returned when a device type is not recognised.
	ErrInvalidDeviceType = errors.New("fleet: invalid device type")

	// ErrInvalidRange is returned when a telemetry query's since bound is
	// not before its until bound.
	ErrInvalidRange = errors.New("fleet: invalid time range")

	// ErrSchemaViolation is returned when a payload fails model validation.
	ErrSchemaViolation = errors.New("fleet: payload violates model schema")
)
