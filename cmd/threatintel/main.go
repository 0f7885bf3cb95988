// Threat Intelligence Core
//
// This is the main entry point for the threat intelligence service. It owns
// the process-wide database connection pool: built once at startup, shared
// by every collaborator, and drained on SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nerrad567/threatintel-core/internal/api"
	"github.com/nerrad567/threatintel-core/internal/dbpool"
	"github.com/nerrad567/threatintel-core/internal/infrastructure/config"
	"github.com/nerrad567/threatintel-core/internal/infrastructure/database"
	"github.com/nerrad567/threatintel-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/threatintel-core/internal/infrastructure/logging"
	"github.com/nerrad567/threatintel-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/threatintel-core/internal/monitor"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// startupHealthTimeout bounds the first pool health check.
const startupHealthTimeout = 10 * time.Second

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires the service together and blocks until ctx is cancelled.
// Deferred closers run in reverse order, so the pool drains after the API
// and monitor have stopped using it.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting threat intelligence core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := os.Getenv(config.EnvConfigPath)
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version).With("service_id", cfg.Service.ID)
	log.Info("configuration loaded",
		"path", configPath,
		"level", cfg.Logging.Level,
		"driver", cfg.Database.Driver,
	)

	pool, closeDB, err := openPool(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeDB()

	mqttClient := connectMQTT(ctx, cfg, log)
	if mqttClient != nil {
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
	}

	influxClient := connectInfluxDB(ctx, cfg, log)
	if influxClient != nil {
		defer func() {
			log.Info("closing InfluxDB")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
	}

	if cfg.Monitor.Enabled {
		opts := []monitor.Option{monitor.WithLogger(log.Component("monitor"))}
		if mqttClient != nil {
			opts = append(opts, monitor.WithPublisher(mqttClient))
		}
		if influxClient != nil {
			opts = append(opts, monitor.WithMetricsWriter(influxClient))
		}
		reporter := monitor.New(pool, monitor.Config{
			Instance: cfg.Service.ID,
			Interval: cfg.Monitor.Interval,
		}, opts...)
		if startErr := reporter.Start(ctx); startErr != nil {
			return fmt.Errorf("starting pool monitor: %w", startErr)
		}
		defer reporter.Stop()
	}

	deps := api.Deps{
		Config:  cfg.API,
		Logger:  log.Component("api"),
		Pool:    pool,
		Version: version,
	}
	if mqttClient != nil {
		deps.MQTT = mqttClient
	}
	if influxClient != nil {
		deps.Influx = influxClient
	}
	server, err := api.New(deps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	log.Info("threat intelligence core started", "api", server.Addr())

	<-ctx.Done()
	log.Info("shutdown signal received")

	if mqttClient != nil && mqttClient.IsConnected() {
		//nolint:errcheck // best-effort announcement while shutting down
		mqttClient.PublishJSON(mqtt.Topics{}.SystemShutdown(), map[string]string{
			"client_id": cfg.MQTT.Broker.ClientID,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		}, false)
	}

	return nil
}

// openPool builds the connection factory and the pool, then proves the
// pool can serve a query. The returned closer drains the pool and then
// the factory.
func openPool(ctx context.Context, cfg *config.Config, log *logging.Logger) (*dbpool.Pool, func(), error) {
	connector, err := database.New(connectorConfig(cfg.Database))
	if err != nil {
		return nil, nil, fmt.Errorf("configuring database: %w", err)
	}
	log.Info("database configured", "dsn", connector.String())

	pool, err := dbpool.New(ctx, poolConfig(cfg.Database), connector,
		dbpool.WithLogger(log.Component("dbpool")))
	if err != nil {
		connector.Close() //nolint:errcheck // already failing
		return nil, nil, fmt.Errorf("creating connection pool: %w", err)
	}

	closer := func() {
		log.Info("draining connection pool")
		if closeErr := pool.CloseAll(); closeErr != nil {
			log.Error("error closing connection pool", "error", closeErr)
		}
		if closeErr := connector.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}

	checkCtx, cancel := context.WithTimeout(ctx, startupHealthTimeout)
	defer cancel()
	if hcErr := pool.HealthCheck(checkCtx); hcErr != nil {
		closer()
		return nil, nil, fmt.Errorf("database health check: %w", hcErr)
	}

	stats := pool.Stats()
	log.Info("connection pool ready",
		"idle", stats.Idle,
		"pool_size", stats.PoolSize,
		"max_pool_size", stats.MaxPoolSize,
	)
	return pool, closer, nil
}

// connectMQTT returns nil when MQTT is disabled or the broker is
// unreachable. Telemetry is optional; the pool serves without it.
func connectMQTT(ctx context.Context, cfg *config.Config, log *logging.Logger) *mqtt.Client {
	if !cfg.MQTT.Enabled {
		return nil
	}
	client, err := mqtt.Connect(ctx, cfg.MQTT)
	if err != nil {
		log.Warn("MQTT unavailable, continuing without bus telemetry", "error", err)
		return nil
	}
	client.SetLogger(log.Component("mqtt"))
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)
	return client
}

// connectInfluxDB returns nil when InfluxDB is disabled or unreachable.
func connectInfluxDB(ctx context.Context, cfg *config.Config, log *logging.Logger) *influxdb.Client {
	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
	if errors.Is(err, influxdb.ErrDisabled) {
		return nil
	}
	if err != nil {
		log.Warn("InfluxDB unavailable, continuing without metrics export", "error", err)
		return nil
	}
	influxLog := log.Component("influxdb")
	client.SetOnError(func(err error) {
		influxLog.Warn("InfluxDB write failed", "error", err)
	})
	log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	return client
}

// connectorConfig maps the database section onto the connection factory.
func connectorConfig(d config.DatabaseConfig) database.Config {
	return database.Config{
		Driver:         d.Driver,
		Server:         d.Server,
		Name:           d.Name,
		Username:       d.Username,
		Password:       d.Password,
		Autocommit:     d.Autocommit,
		ConnectTimeout: d.ConnectTimeout,
		BusyTimeout:    d.BusyTimeout,
		WALMode:        d.WALMode,
		Params:         d.Params,
	}
}

// poolConfig maps the database section onto the pool settings.
func poolConfig(d config.DatabaseConfig) dbpool.Config {
	return dbpool.Config{
		PoolSize:        d.PoolSize,
		MaxPoolSize:     d.MaxPoolSize,
		AcquireTimeout:  d.AcquireTimeout,
		QueryTimeout:    d.QueryTimeout,
		ConnectTimeout:  d.ConnectTimeout,
		ValidateTimeout: d.ValidateTimeout,
		CloseTimeout:    d.CloseTimeout,
		RecycleAge:      d.RecycleAge,
		ValidationQuery: d.ValidationQuery,
		WorkerPoolSize:  d.WorkerPoolSize,
	}
}
