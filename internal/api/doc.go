// Package api implements the HTTP REST API and WebSocket server for FleetBridge.
//
// This package provides:
//   - REST endpoints for gateway claiming, device registration, commands,
//     model linking, and telemetry queries
//   - WebSocket hub for real-time telemetry broadcasts
//   - JWT authentication with ticket-based WebSocket auth
//   - Middleware stack (request ID, logging, recovery, CORS)
//   - TLS support for production deployments
//
// # Architecture
//
// The API server sits between operator tooling (dashboards, fleet CLIs) and
// the fleet store + MQTT transport. Commands flow from the API to gateways
// via MQTT, and telemetry flows back through the bridge, which broadcasts to
// WebSocket clients subscribed to the telemetry channel.
//
// # Security
//
// Authentication uses JWT access tokens minted by the external accounts
// service and validated with the shared secret. WebSocket connections use
// single-use tickets to prevent token leakage in URLs.
package api
