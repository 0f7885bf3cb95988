// Package monitor samples connection pool statistics on an interval and
// reports them to InfluxDB and the MQTT bus.
//
// The reporter also answers requests on threatintel/system/dbpool/request
// with an immediate retained snapshot on threatintel/system/dbpool, and logs
// a warning when acquire timeouts grow between samples.
package monitor
