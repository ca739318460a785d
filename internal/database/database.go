// Package database opens the SQL connection pool shared by the quota store
// and the content repository.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog"

	// SQL drivers
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Config holds database connection settings.
type Config struct {
	// Driver is "postgres", "mysql" or "sqlite" (alias "sqlite3")
	Driver string `yaml:"driver"`

	// DSN is the driver-specific data source name (file path for SQLite)
	DSN string `yaml:"dsn"`

	// MaxConns is the maximum number of open connections (ignored for SQLite)
	MaxConns int `yaml:"max_conns"`

	// MaxIdle is the maximum number of idle connections (ignored for SQLite)
	MaxIdle int `yaml:"max_idle"`
}

// DriverName returns the database/sql driver name for the configured driver.
func (c Config) DriverName() (string, error) {
	switch c.Driver {
	case "postgres", "postgresql":
		return "postgres", nil
	case "mysql":
		return "mysql", nil
	case "sqlite", "sqlite3":
		return "sqlite3", nil
	default:
		return "", fmt.Errorf("unsupported database driver: %q", c.Driver)
	}
}

// Open creates the connection pool and verifies it with a ping.
//
// SQLite only supports one writer at a time, so it gets a single connection
// with WAL mode and a busy timeout.
func Open(ctx context.Context, cfg Config, logger zerolog.Logger) (*sql.DB, error) {
	driverName, err := cfg.DriverName()
	if err != nil {
		return nil, err
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database dsn is required")
	}

	dsn := cfg.DSN
	if driverName == "mysql" {
		if dsn, err = mysqlDSN(dsn); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if driverName == "sqlite3" {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		if cfg.MaxConns > 0 {
			db.SetMaxOpenConns(cfg.MaxConns)
		}
		if cfg.MaxIdle > 0 {
			db.SetMaxIdleConns(cfg.MaxIdle)
		}
	}
	db.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if driverName == "sqlite3" {
		if _, err := db.ExecContext(pingCtx, "PRAGMA journal_mode=WAL"); err != nil {
			logger.Warn().Err(err).Msg("Failed to enable SQLite WAL mode")
		}
		if _, err := db.ExecContext(pingCtx, "PRAGMA busy_timeout=10000"); err != nil {
			logger.Warn().Err(err).Msg("Failed to set SQLite busy timeout")
		}
	}

	logger.Info().Str("driver", driverName).Msg("Connected to database")
	return db, nil
}

// mysqlDSN enables parseTime so TIMESTAMP columns scan into time.Time.
func mysqlDSN(dsn string) (string, error) {
	mc, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("parse mysql dsn: %w", err)
	}
	mc.ParseTime = true
	return mc.FormatDSN(), nil
}
