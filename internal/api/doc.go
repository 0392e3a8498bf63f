// Package api implements the HTTP REST API and WebSocket server for Lab Rig.
//
// This package provides:
//   - REST endpoints for instrument introspection, attribute access, and
//     measurement operations
//   - WebSocket hub for real-time measurement and state broadcasts
//   - JWT authentication with refresh-token rotation and ticket-based
//     WebSocket auth
//   - Middleware stack (request ID, logging, recovery, CORS)
//   - TLS support for production deployments
//
// # Architecture
//
// The API server sits between bench clients (station displays, operator
// dashboards, scripts) and the rig. Operations flow through the rig, which
// serializes driver access per instrument; completed operations fan out to
// the archive, MQTT, and the time-series database, and are broadcast to
// WebSocket clients through the hub.
//
// # Security
//
// Human callers authenticate with JWT access tokens obtained from
// /auth/login and renewed via /auth/refresh (rotating refresh tokens with
// reuse detection). Station displays authenticate with a long-lived station
// token in the X-Station-Token header. Operators and stations are scoped to
// assigned instruments; admins and owners are not. WebSocket connections use
// single-use tickets to keep tokens out of URLs.
//
// # Graceful Degradation
//
// The server operates without MQTT and without the time-series database —
// instrument operations, the archive, and WebSocket broadcasts still work.
package api
