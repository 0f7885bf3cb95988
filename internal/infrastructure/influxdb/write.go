package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/threatintel-core/internal/dbpool"
)

// MeasurementDBPool is the measurement holding connection pool samples.
const MeasurementDBPool = "dbpool"

// WritePoolStats queues one pool statistics sample. Gauges (idle, in use,
// waiters) and the cumulative counters share a point so dashboards can
// derive rates with difference(). The write is non-blocking.
func (c *Client) WritePoolStats(instance string, s dbpool.Stats, ts time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(poolStatsPoint(instance, s, ts))
}

func poolStatsPoint(instance string, s dbpool.Stats, ts time.Time) *write.Point {
	return write.NewPoint(
		MeasurementDBPool,
		map[string]string{
			"instance": instance,
		},
		map[string]interface{}{
			"pool_size":           s.PoolSize,
			"max_pool_size":       s.MaxPoolSize,
			"total":               s.TotalCreated,
			"idle":                s.Idle,
			"in_use":              s.InUse,
			"waiters":             s.Waiters,
			"created":             s.Created,
			"discarded":           s.Discarded,
			"validation_failures": s.ValidationFailures,
			"recycled":            s.Recycled,
			"acquire_timeouts":    s.AcquireTimeouts,
			"query_timeouts":      s.QueryTimeouts,
			"wait_count":          s.WaitCount,
			"wait_seconds":        s.WaitDuration.Seconds(),
			"workers_running":     s.WorkersRunning,
		},
		ts,
	)
}

// WritePoint writes a custom point stamped with the current time.
//
//	client.WritePoint("feed_sync",
//	    map[string]string{"feed": "abuse-ch"},
//	    map[string]interface{}{"indicators": 1204, "duration_s": 3.2})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime writes a custom point with an explicit timestamp.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, timestamp))
}
