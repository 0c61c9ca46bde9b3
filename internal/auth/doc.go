// Package auth provides request authentication for FleetBridge.
//
// FleetBridge does not manage user accounts; an external accounts service
// mints JWT access tokens with the shared HS256 secret, and this package
// validates them and extracts the calling Principal for claim and command
// attribution. Tokens are verified by signature and expiry only, so no
// storage lookup happens per request.
//
// For WebSocket upgrades, where browsers cannot set an Authorization
// header, TicketStore exchanges a validated JWT for a short-lived
// single-use ticket passed as a query parameter.
package auth
