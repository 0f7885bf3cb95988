// Package api implements the admin HTTP surface of the threat intelligence
// service.
//
// This package provides:
//   - GET /api/v1/health: pool liveness probe plus MQTT/InfluxDB status
//     (503 when the pool cannot serve the validation query)
//   - GET /api/v1/metrics: Go runtime figures and pool statistics
//   - GET /api/v1/system/dbpool: the raw pool statistics snapshot
//   - Middleware stack (request ID, logging, recovery)
//
// Callers never get a database handle through this package; it only reads
// the pool's administrative view.
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
