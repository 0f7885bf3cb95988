// Package logging provides structured logging for the threat intelligence core.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the entire application.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//   - Per-component child loggers via Component
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	pool, err := dbpool.New(ctx, poolCfg, connector,
//	    dbpool.WithLogger(logger.Component("dbpool")))
//
// # Security
//
// Never log database passwords or full DSNs. The database connector exposes
// a redacted DSN for logging.
package logging
