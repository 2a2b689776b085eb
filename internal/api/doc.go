// Package api implements the optional read-only status API for the
// fireplace bridge.
//
// This package provides:
//   - GET /api/v1/health: broker session and device availability
//   - GET /api/v1/state: last-known device state
//   - GET /api/v1/metrics: bridge counters and Go runtime statistics
//   - Middleware stack (request ID, logging, recovery)
//
// There is no command surface. Commands reach the device only through MQTT.
//
// The server follows the same lifecycle pattern as other components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
