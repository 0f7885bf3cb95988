package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the variable holding the config file path.
const EnvConfigPath = "THREATINTEL_CONFIG"

// Supported database drivers.
var knownDrivers = map[string]bool{
	"sqlite3": true,
	"mysql":   true,
	"pgx":     true,
}

// Config is the root configuration structure for the threat intelligence core.
// Defaults are overridden by an optional YAML file, then by environment variables.
type Config struct {
	Service  ServiceConfig  `yaml:"service"`
	Database DatabaseConfig `yaml:"database"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	API      APIConfig      `yaml:"api"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
	Monitor  MonitorConfig  `yaml:"monitor"`

	// envErrs collects malformed environment values for Validate.
	envErrs []string
}

// ServiceConfig identifies this instance.
type ServiceConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains driver and connection pool settings.
type DatabaseConfig struct {
	Driver      string            `yaml:"driver"`
	Server      string            `yaml:"server"`
	Name        string            `yaml:"name"`
	Username    string            `yaml:"username"`
	Password    string            `yaml:"password"`
	Autocommit  bool              `yaml:"autocommit"`
	WALMode     bool              `yaml:"wal_mode"`
	BusyTimeout time.Duration     `yaml:"busy_timeout"`
	Params      map[string]string `yaml:"params"`

	PoolSize        int           `yaml:"pool_size"`
	MaxPoolSize     int           `yaml:"max_pool_size"`
	AcquireTimeout  time.Duration `yaml:"acquire_timeout"`
	QueryTimeout    time.Duration `yaml:"query_timeout"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`
	ValidateTimeout time.Duration `yaml:"validate_timeout"`
	CloseTimeout    time.Duration `yaml:"close_timeout"`
	RecycleAge      time.Duration `yaml:"recycle_age"`
	ValidationQuery string        `yaml:"validation_query"`
	WorkerPoolSize  int           `yaml:"worker_pool_size"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// APIConfig contains admin HTTP server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// MonitorConfig controls the periodic pool statistics reporter.
type MonitorConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

// Load builds the configuration and validates it.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values, when path is not empty
//  3. Environment variables (override file values)
//
// Database settings use the DB_* variables (DB_DRIVER, DB_SERVER, DB_NAME,
// DB_USERNAME, DB_PASSWORD, DB_POOL_SIZE, DB_MAX_POOL_SIZE,
// DB_ACQUIRE_TIMEOUT, DB_QUERY_TIMEOUT, DB_RECYCLE_AGE, DB_AUTOCOMMIT).
// Everything else follows THREATINTEL_SECTION_KEY.
//
// Parameters:
//   - path: Path to the YAML configuration file, or "" for defaults + env
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If the file cannot be read or parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			ID:   "threatintel-001",
			Name: "Threat Intelligence Core",
		},
		Database: DatabaseConfig{
			Driver:          "sqlite3",
			Server:          "localhost",
			Name:            "./data/threatintel.db",
			Autocommit:      true,
			WALMode:         true,
			BusyTimeout:     5 * time.Second,
			PoolSize:        10,
			MaxPoolSize:     20,
			AcquireTimeout:  30 * time.Second,
			QueryTimeout:    30 * time.Second,
			ConnectTimeout:  10 * time.Second,
			ValidateTimeout: 5 * time.Second,
			CloseTimeout:    5 * time.Second,
			RecycleAge:      time.Hour,
			ValidationQuery: "SELECT 1",
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "threatintel-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		InfluxDB: InfluxDBConfig{
			Bucket: "threatintel",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Monitor: MonitorConfig{
			Enabled:  true,
			Interval: 15 * time.Second,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Malformed values are kept aside and reported by Validate.
func applyEnvOverrides(cfg *Config) {
	e := envReader{}

	// Database
	e.str("DB_DRIVER", &cfg.Database.Driver)
	e.str("DB_SERVER", &cfg.Database.Server)
	e.str("DB_NAME", &cfg.Database.Name)
	e.str("DB_USERNAME", &cfg.Database.Username)
	e.str("DB_PASSWORD", &cfg.Database.Password)
	e.integer("DB_POOL_SIZE", &cfg.Database.PoolSize)
	e.integer("DB_MAX_POOL_SIZE", &cfg.Database.MaxPoolSize)
	e.duration("DB_ACQUIRE_TIMEOUT", &cfg.Database.AcquireTimeout)
	e.duration("DB_QUERY_TIMEOUT", &cfg.Database.QueryTimeout)
	e.duration("DB_RECYCLE_AGE", &cfg.Database.RecycleAge)
	e.boolean("DB_AUTOCOMMIT", &cfg.Database.Autocommit)
	e.duration("THREATINTEL_DB_CONNECT_TIMEOUT", &cfg.Database.ConnectTimeout)
	e.duration("THREATINTEL_DB_VALIDATE_TIMEOUT", &cfg.Database.ValidateTimeout)
	e.duration("THREATINTEL_DB_CLOSE_TIMEOUT", &cfg.Database.CloseTimeout)
	e.str("THREATINTEL_DB_VALIDATION_QUERY", &cfg.Database.ValidationQuery)
	e.integer("THREATINTEL_DB_WORKER_POOL_SIZE", &cfg.Database.WorkerPoolSize)

	// MQTT
	e.boolean("THREATINTEL_MQTT_ENABLED", &cfg.MQTT.Enabled)
	e.str("THREATINTEL_MQTT_HOST", &cfg.MQTT.Broker.Host)
	e.integer("THREATINTEL_MQTT_PORT", &cfg.MQTT.Broker.Port)
	e.str("THREATINTEL_MQTT_USERNAME", &cfg.MQTT.Auth.Username)
	e.str("THREATINTEL_MQTT_PASSWORD", &cfg.MQTT.Auth.Password)

	// API
	e.str("THREATINTEL_API_HOST", &cfg.API.Host)
	e.integer("THREATINTEL_API_PORT", &cfg.API.Port)

	// InfluxDB
	e.boolean("THREATINTEL_INFLUXDB_ENABLED", &cfg.InfluxDB.Enabled)
	e.str("THREATINTEL_INFLUXDB_URL", &cfg.InfluxDB.URL)
	e.str("THREATINTEL_INFLUXDB_TOKEN", &cfg.InfluxDB.Token)

	// Logging
	e.str("THREATINTEL_LOG_LEVEL", &cfg.Logging.Level)

	cfg.envErrs = e.errs
}

// envReader parses typed environment values, collecting failures.
type envReader struct {
	errs []string
}

func (e *envReader) str(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func (e *envReader) integer(key string, dst *int) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		e.errs = append(e.errs, fmt.Sprintf("%s=%q is not an integer", key, v))
		return
	}
	*dst = n
}

func (e *envReader) duration(key string, dst *time.Duration) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		e.errs = append(e.errs, fmt.Sprintf("%s=%q is not a duration (e.g. 30s, 1h)", key, v))
		return
	}
	*dst = d
}

func (e *envReader) boolean(key string, dst *bool) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		e.errs = append(e.errs, fmt.Sprintf("%s=%q is not a boolean", key, v))
		return
	}
	*dst = b
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	errs := append([]string(nil), c.envErrs...)

	if c.Service.ID == "" {
		errs = append(errs, "service.id is required")
	}

	errs = append(errs, c.Database.validate()...)

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled && c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required when mqtt is enabled")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.org and influxdb.bucket are required when influxdb is enabled")
		}
	}

	if c.Monitor.Enabled && c.Monitor.Interval <= 0 {
		errs = append(errs, "monitor.interval must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (d DatabaseConfig) validate() []string {
	var errs []string

	if !knownDrivers[d.Driver] {
		errs = append(errs, fmt.Sprintf("database.driver %q is not supported (sqlite3, mysql, pgx)", d.Driver))
	}
	if d.Name == "" {
		errs = append(errs, "database.name is required")
	}
	if d.Driver != "sqlite3" && d.Server == "" {
		errs = append(errs, "database.server is required for network drivers")
	}
	if !d.Autocommit && d.Driver != "mysql" {
		errs = append(errs, "database.autocommit=false is only supported by the mysql driver")
	}

	if d.MaxPoolSize < 1 {
		errs = append(errs, "database.max_pool_size must be at least 1")
	}
	if d.PoolSize < 0 {
		errs = append(errs, "database.pool_size cannot be negative")
	}
	if d.PoolSize > d.MaxPoolSize {
		errs = append(errs, "database.pool_size must not exceed database.max_pool_size")
	}
	if d.WorkerPoolSize < 0 {
		errs = append(errs, "database.worker_pool_size cannot be negative")
	}

	timeouts := []struct {
		name  string
		value time.Duration
	}{
		{"acquire_timeout", d.AcquireTimeout},
		{"query_timeout", d.QueryTimeout},
		{"connect_timeout", d.ConnectTimeout},
		{"validate_timeout", d.ValidateTimeout},
		{"close_timeout", d.CloseTimeout},
	}
	for _, t := range timeouts {
		if t.value <= 0 {
			errs = append(errs, fmt.Sprintf("database.%s must be positive", t.name))
		}
	}

	return errs
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
