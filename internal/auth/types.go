package auth

import "errors"

// Role represents an authorisation tier in the system.
type Role string

const (
	// RoleUser is a standard account: may claim gateways, register
	// devices, send commands, and read telemetry it owns.
	RoleUser Role = "user"

	// RoleAdmin bypasses ownership scoping. Operational use only.
	RoleAdmin Role = "admin"
)

// Valid reports whether r is a recognised role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// Principal identifies an authenticated caller for claim and command
// attribution. User accounts live in the external accounts service; all
// FleetBridge needs is a stable subject and a role.
type Principal struct {
	UserID string `json:"user_id"`
	Role   Role   `json:"role"`
}

// Domain errors for the auth package.
var (
	// ErrTokenInvalid is returned when a JWT fails signature, expiry, or
	// required-claim checks.
	ErrTokenInvalid = errors.New("auth: invalid token")

	// ErrTicketInvalid is returned when a WebSocket ticket is unknown,
	// expired, or already used.
	ErrTicketInvalid = errors.New("auth: invalid ticket")
)
