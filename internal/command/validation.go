package command

import (
	"fmt"

	"github.com/fleetbridge/fleetbridge/internal/fleet"
)

// validateFunc checks a (action, params) pair for one device type.
type validateFunc func(action string, params fleet.Payload) error

// validators dispatches validation by device type. Adding rules for a new
// type means adding an entry here, not editing a branch ladder.
//
// Types without an entry (actuator) accept any action unvalidated; their
// firmware defines the contract.
var validators = map[fleet.DeviceType]validateFunc{
	fleet.DeviceTypeRelay:  validateToggle,
	fleet.DeviceTypeSwitch: validateToggle,
	fleet.DeviceTypeDimmer: validateBrightness,
	fleet.DeviceTypeCamera: validateCamera,
}

// validateCommand applies the per-type rules for a device.
func validateCommand(devType fleet.DeviceType, action string, params fleet.Payload) error {
	validate, ok := validators[devType]
	if !ok {
		return nil
	}
	return validate(action, params)
}

// validateToggle enforces the rules for relays and switches. The "toggle"
// action requires a state parameter that is a boolean, the strings
// "on"/"off", or the numbers 1/0. Other actions pass through.
func validateToggle(action string, params fleet.Payload) error {
	if action != "toggle" {
		return nil
	}

	state, ok := params["state"]
	if !ok {
		return &ValidationError{Field: "state", Reason: "required for toggle"}
	}
	if !validToggleState(state) {
		return &ValidationError{
			Field:  "state",
			Reason: fmt.Sprintf("must be a boolean, \"on\"/\"off\", or 1/0, got %v", state),
		}
	}
	return nil
}

func validToggleState(v any) bool {
	switch state := v.(type) {
	case bool:
		return true
	case string:
		return state == "on" || state == "off"
	case float64:
		// JSON numbers decode as float64.
		return state == 0 || state == 1
	case int:
		return state == 0 || state == 1
	default:
		return false
	}
}

// validateBrightness enforces the rules for dimmers. The "set_brightness"
// action requires a numeric brightness in [0, 100]. Other actions pass
// through.
func validateBrightness(action string, params fleet.Payload) error {
	if action != "set_brightness" {
		return nil
	}

	raw, ok := params["brightness"]
	if !ok {
		return &ValidationError{Field: "brightness", Reason: "required for set_brightness"}
	}

	level, ok := numericValue(raw)
	if !ok {
		return &ValidationError{
			Field:  "brightness",
			Reason: fmt.Sprintf("must be numeric, got %T", raw),
		}
	}
	if level < 0 || level > 100 {
		return &ValidationError{
			Field:  "brightness",
			Reason: fmt.Sprintf("must be between 0 and 100, got %v", level),
		}
	}
	return nil
}

func numericValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

// cameraActions lists the actions a camera accepts.
var cameraActions = map[string]struct{}{
	"start_recording": {},
	"stop_recording":  {},
	"take_snapshot":   {},
	"set_quality":     {},
}

// cameraQualities lists the accepted values for set_quality.
var cameraQualities = map[string]struct{}{
	"low":    {},
	"medium": {},
	"high":   {},
}

// validateCamera enforces the camera action whitelist and the quality
// parameter of set_quality.
func validateCamera(action string, params fleet.Payload) error {
	if _, ok := cameraActions[action]; !ok {
		return &ValidationError{
			Field:  "action",
			Reason: fmt.Sprintf("unknown camera action %q", action),
		}
	}

	if action != "set_quality" {
		return nil
	}

	quality, ok := params["quality"].(string)
	if !ok {
		return &ValidationError{Field: "quality", Reason: "required for set_quality"}
	}
	if _, ok := cameraQualities[quality]; !ok {
		return &ValidationError{
			Field:  "quality",
			Reason: fmt.Sprintf("must be low, medium, or high, got %q", quality),
		}
	}
	return nil
}
