// Package influxdb exports connection pool telemetry to InfluxDB v2.
//
// It wraps the official influxdb-client-go library: one Connect that pings
// the server, a batched non-blocking write API, and helpers that turn
// dbpool.Stats snapshots into points of the "dbpool" measurement.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // export turned off
//	}
//	defer client.Close()
//
//	client.WritePoolStats("intel-01", pool.Stats(), time.Now())
//
// # Error Handling
//
// Writes never return errors; batch failures are delivered to the
// callback set with SetOnError. Connect and HealthCheck return errors
// directly.
package influxdb
