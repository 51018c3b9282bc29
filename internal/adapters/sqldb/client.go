package sqldb

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"  // PostgreSQL driver
	_ "modernc.org/sqlite" // SQLite driver

	"signalwatch/internal/adapters/config"
	"signalwatch/pkg/logger"
)

// Driver names registered by the imported drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

const schema = `
CREATE TABLE IF NOT EXISTS settings (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
)`

// Client wraps sqlx.DB for the settings store
type Client struct {
	db     *sqlx.DB
	driver string
}

// NewClient opens the database selected by cfg.Backend and creates the schema
func NewClient(ctx context.Context, cfg config.SettingsConfig) (*Client, error) {
	var driver, dsn string
	switch cfg.Backend {
	case "sqlite":
		driver, dsn = DriverSQLite, cfg.SQLitePath
	case "postgres":
		driver, dsn = DriverPostgres, cfg.PostgresDSN
	default:
		return nil, fmt.Errorf("settings backend %q is not a SQL backend", cfg.Backend)
	}
	return Open(ctx, driver, dsn, cfg.MaxConns)
}

// Open connects with an explicit driver and DSN
func Open(ctx context.Context, driver, dsn string, maxConns int) (*Client, error) {
	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", driver, err)
	}

	if maxConns <= 0 {
		maxConns = 4
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(max(1, maxConns/2))
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(30 * time.Minute)

	if driver == DriverSQLite {
		// SQLite serializes writers
		db.SetMaxOpenConns(1)
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
			logger.Get().Warn("Failed to set WAL mode", "error", err)
		}
		if _, err := db.ExecContext(ctx, "PRAGMA synchronous = NORMAL;"); err != nil {
			logger.Get().Warn("Failed to set synchronous mode", "error", err)
		}
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create settings table: %w", err)
	}

	return &Client{db: db, driver: driver}, nil
}

// DB returns the underlying sqlx.DB instance
func (c *Client) DB() *sqlx.DB {
	return c.db
}

// Driver returns the driver name the client was opened with
func (c *Client) Driver() string {
	return c.driver
}

// Close closes the database connection
func (c *Client) Close() error {
	return c.db.Close()
}

// Health checks database connectivity
func (c *Client) Health(ctx context.Context) error {
	return c.db.PingContext(ctx)
}
