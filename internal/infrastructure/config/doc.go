// Package config handles loading and validating the threat intelligence core
// configuration.
//
// This package manages:
//   - Default values matching the historic service defaults
//   - Optional YAML configuration file (path from THREATINTEL_CONFIG)
//   - Environment overrides (DB_* for the database, THREATINTEL_* otherwise)
//   - Validation that reports every problem at once
//
// Security Considerations:
//   - Database and broker passwords should come from the environment
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load(os.Getenv(config.EnvConfigPath))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Database.MaxPoolSize)
package config
