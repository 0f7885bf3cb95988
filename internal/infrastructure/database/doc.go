// Package database opens raw database connections for the threat
// intelligence connection pool.
//
// This package manages:
//   - Driver selection (sqlite3, mysql, pgx)
//   - DSN composition from server, database name and credentials
//   - The autocommit mode applied to every connection
//   - One dedicated *sql.Conn per Open call, verified with a ping
//
// The Connector implements dbpool.Factory. It never pools: database/sql idle
// caching is disabled so the dbpool package alone decides how many
// connections exist.
//
// Security Considerations:
//   - Passwords never appear in logs; Connector.String returns a redacted DSN
//   - SQLite database files are set to 0600 (owner read/write only)
//
// Driver Notes:
//   - sqlite3: Name is a file path; ":memory:" gives every connection its
//     own empty database, so use a file when sharing data across the pool
//   - mysql: Server defaults to port 3306; autocommit is a session variable
//   - pgx: Server defaults to port 5432; the DSN is checked with
//     pgx.ParseConfig before any connection is made
//
// Usage:
//
//	connector, err := database.New(database.Config{
//	    Driver:     database.DriverSQLite,
//	    Name:       "./data/threatintel.db",
//	    Autocommit: true,
//	})
//	if err != nil {
//	    return err
//	}
//	defer connector.Close()
//
//	pool, err := dbpool.New(ctx, poolCfg, connector)
package database
