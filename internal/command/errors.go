package command

import (
	"errors"
	"fmt"
)

// Domain errors for the command package.
var (
	// ErrNotCommandable is returned when a command targets a device type
	// that cannot receive commands (sensors are report-only).
	ErrNotCommandable = errors.New("command: device type cannot receive commands")

	// ErrTransportUnavailable is returned when the broker connection is
	// down and a single reconnect attempt did not restore it. The command
	// was not sent and was not queued; callers may retry.
	ErrTransportUnavailable = errors.New("command: transport unavailable")
)

// ValidationError describes a command payload that failed per-type
// validation. Field names the offending parameter, Reason says why.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("command: invalid %s: %s", e.Field, e.Reason)
}
