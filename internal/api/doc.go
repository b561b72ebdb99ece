// Package api implements the HTTP REST API and WebSocket server for Motion Core.
//
// This package provides:
//   - REST endpoints for device control (connect, move, home, stop) and state reads
//   - WebSocket hub for real-time axis state broadcasts
//   - JWT authentication with ticket-based WebSocket auth
//   - Middleware stack (request ID, logging, recovery, CORS)
//   - TLS support for production deployments
//
// # Architecture
//
// The API server sits between operator consoles and the device managers.
// Control commands go straight to the managers; axis state flows from
// controller poll loops onto the MQTT telemetry bus, and the server
// re-broadcasts those documents to subscribed WebSocket clients.
//
// # Security
//
// Authentication uses JWT tokens signed with the configured secret.
// WebSocket connections use single-use tickets to prevent token leakage in URLs.
//
// # Graceful Degradation
//
// The server operates without MQTT or the journal: device control and
// state reads keep working, only the WebSocket relay and history queries
// are affected.
package api
