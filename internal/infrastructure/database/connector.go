package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver ("pgx")
	_ "github.com/mattn/go-sqlite3"    // SQLite driver

	"github.com/nerrad567/threatintel-core/internal/dbpool"
)

// Supported driver identifiers. These are the database/sql driver names.
const (
	DriverSQLite   = "sqlite3"
	DriverMySQL    = "mysql"
	DriverPostgres = "pgx"
)

// Connector configuration constants.
const (
	// dirPermissions is the permission mode for the SQLite directory.
	dirPermissions = 0750

	// filePermissions is the permission mode for the SQLite file.
	filePermissions = 0600

	// defaultMySQLPort and defaultPostgresPort are used when Server has no port.
	defaultMySQLPort    = "3306"
	defaultPostgresPort = "5432"

	// defaultBusyTimeout is how long SQLite waits on a locked database.
	defaultBusyTimeout = 5 * time.Second

	// defaultConnectTimeout is the driver-level dial timeout.
	defaultConnectTimeout = 10 * time.Second
)

// Config contains the driver settings used to open raw connections.
// These map to the database section of config.yaml.
type Config struct {
	// Driver is one of DriverSQLite, DriverMySQL or DriverPostgres.
	Driver string

	// Server is host or host:port. Ignored for SQLite.
	Server string

	// Name is the database name, or the file path for SQLite.
	Name string

	// Username and Password are the credentials. Ignored for SQLite.
	Username string
	Password string

	// Autocommit sets the transaction mode of every connection.
	// Only MySQL supports turning it off.
	Autocommit bool

	// ConnectTimeout is passed to the driver as its dial timeout.
	ConnectTimeout time.Duration

	// BusyTimeout is how long SQLite waits for a lock.
	BusyTimeout time.Duration

	// WALMode enables Write-Ahead Logging for SQLite.
	WALMode bool

	// Params are extra driver options appended to the DSN.
	Params map[string]string
}

// Connector opens raw connections for the pool. It implements dbpool.Factory.
//
// Connections come from a database/sql DB with idle caching disabled, so each
// Open is one new driver connection and closing the returned *sql.Conn closes
// that driver connection. Sizing is left entirely to the pool.
type Connector struct {
	db       *sql.DB
	driver   string
	redacted string
	path     string
}

// New validates cfg and prepares a connector. No connection is opened.
//
// Parameters:
//   - cfg: Driver configuration
//
// Returns:
//   - *Connector: Ready connector
//   - error: wrapping dbpool.ErrConfig if the configuration is malformed
func New(cfg Config) (*Connector, error) {
	dsn, redacted, err := buildDSN(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", dbpool.ErrConfig, err)
	}

	var path string
	if cfg.Driver == DriverSQLite && !isMemory(cfg.Name) {
		path = cfg.Name
		if err := os.MkdirAll(filepath.Dir(path), dirPermissions); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s driver: %w", dbpool.ErrConfig, cfg.Driver, err)
	}
	db.SetMaxIdleConns(0)
	db.SetMaxOpenConns(0)

	return &Connector{
		db:       db,
		driver:   cfg.Driver,
		redacted: redacted,
		path:     path,
	}, nil
}

// Open opens one raw connection and verifies it with a ping.
//
// Parameters:
//   - ctx: Bounds the dial and ping
//
// Returns:
//   - *sql.Conn: Dedicated connection; Close releases the driver connection
//   - error: If the server is unreachable or rejects the credentials
func (c *Connector) Open(ctx context.Context) (*sql.Conn, error) {
	conn, err := c.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", c.redacted, err)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("verifying connection to %s: %w", c.redacted, err)
	}

	if c.path != "" {
		// The file exists once the first connection is up.
		_ = os.Chmod(c.path, filePermissions) //nolint:errcheck // Permissions are best effort
	}
	return conn, nil
}

// Close releases the driver. Connections already handed out stay open until
// their holders close them.
func (c *Connector) Close() error {
	if err := c.db.Close(); err != nil {
		return fmt.Errorf("closing %s driver: %w", c.driver, err)
	}
	return nil
}

// Driver returns the driver identifier.
func (c *Connector) Driver() string {
	return c.driver
}

// String returns the DSN with the password masked. Safe to log.
func (c *Connector) String() string {
	return c.redacted
}

// buildDSN composes the connection string for cfg.Driver.
func buildDSN(cfg Config) (dsn, redacted string, err error) {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}

	switch cfg.Driver {
	case DriverSQLite:
		return sqliteDSN(cfg)
	case DriverMySQL:
		return mysqlDSN(cfg)
	case DriverPostgres:
		return postgresDSN(cfg)
	case "":
		return "", "", errors.New("driver is required")
	default:
		return "", "", fmt.Errorf("unsupported driver %q (want %s, %s or %s)",
			cfg.Driver, DriverSQLite, DriverMySQL, DriverPostgres)
	}
}

func sqliteDSN(cfg Config) (string, string, error) {
	if cfg.Name == "" {
		return "", "", errors.New("sqlite3: database file path is required")
	}
	if !cfg.Autocommit {
		return "", "", errors.New("sqlite3: autocommit cannot be disabled")
	}

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = defaultBusyTimeout
	}

	// See: https://github.com/mattn/go-sqlite3#connection-string
	q := url.Values{}
	q.Set("_busy_timeout", strconv.FormatInt(busy.Milliseconds(), 10))
	q.Set("_foreign_keys", "on")
	if cfg.WALMode {
		q.Set("_journal_mode", "WAL")
		q.Set("_synchronous", "NORMAL")
	}
	for k, v := range cfg.Params {
		q.Set(k, v)
	}

	dsn := "file:" + cfg.Name + "?" + q.Encode()
	return dsn, dsn, nil
}

func mysqlDSN(cfg Config) (string, string, error) {
	if cfg.Name == "" {
		return "", "", errors.New("mysql: database name is required")
	}
	if cfg.Username == "" {
		return "", "", errors.New("mysql: username is required")
	}
	addr, err := hostPort(cfg.Server, defaultMySQLPort)
	if err != nil {
		return "", "", fmt.Errorf("mysql: %w", err)
	}

	mc := mysql.NewConfig()
	mc.User = cfg.Username
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = addr
	mc.DBName = cfg.Name
	mc.ParseTime = true
	mc.Timeout = cfg.ConnectTimeout
	mc.Params = map[string]string{}
	for k, v := range cfg.Params {
		mc.Params[k] = v
	}
	if cfg.Autocommit {
		mc.Params["autocommit"] = "1"
	} else {
		mc.Params["autocommit"] = "0"
	}

	dsn := mc.FormatDSN()
	if cfg.Password != "" {
		mc.Passwd = "xxxxx"
	}
	return dsn, mc.FormatDSN(), nil
}

func postgresDSN(cfg Config) (string, string, error) {
	if cfg.Name == "" {
		return "", "", errors.New("pgx: database name is required")
	}
	if !cfg.Autocommit {
		return "", "", errors.New("pgx: autocommit cannot be disabled")
	}
	addr, err := hostPort(cfg.Server, defaultPostgresPort)
	if err != nil {
		return "", "", fmt.Errorf("pgx: %w", err)
	}

	q := url.Values{}
	q.Set("connect_timeout", strconv.Itoa(int(cfg.ConnectTimeout.Seconds())))
	for k, v := range cfg.Params {
		q.Set(k, v)
	}

	u := url.URL{
		Scheme:   "postgres",
		Host:     addr,
		Path:     "/" + cfg.Name,
		RawQuery: q.Encode(),
	}
	if cfg.Username != "" {
		u.User = url.UserPassword(cfg.Username, cfg.Password)
	}

	dsn := u.String()
	if _, err := pgx.ParseConfig(dsn); err != nil {
		return "", "", fmt.Errorf("pgx: %w", err)
	}
	return dsn, u.Redacted(), nil
}

// hostPort adds defaultPort to server when it has none.
func hostPort(server, defaultPort string) (string, error) {
	if server == "" {
		return "", errors.New("server is required")
	}
	if _, _, err := net.SplitHostPort(server); err == nil {
		return server, nil
	}
	if strings.HasPrefix(server, "[") && strings.HasSuffix(server, "]") {
		return net.JoinHostPort(strings.Trim(server, "[]"), defaultPort), nil
	}
	if net.ParseIP(server) != nil {
		return net.JoinHostPort(server, defaultPort), nil
	}
	if strings.Contains(server, ":") {
		return "", fmt.Errorf("malformed server address %q", server)
	}
	return net.JoinHostPort(server, defaultPort), nil
}

func isMemory(name string) bool {
	return name == ":memory:" || strings.Contains(name, "mode=memory")
}
