// Package database owns the single *sql.DB handle used by the
// supervisor process. Each Worker process opens its own handle by
// calling Init again after it re-execs; no handle is ever inherited
// across the fork boundary (see SPEC_FULL.md §9).
package database

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/codesprinters/twillmanager/internal/config"
	"github.com/codesprinters/twillmanager/internal/logger"
)

var db *sql.DB

// Init opens the Postgres connection pool and verifies connectivity.
func Init() error {
	conn, err := sql.Open("postgres", config.Config.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(30 * time.Minute)

	if err := conn.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	db = conn
	logger.Info().
		Str("database_url", logger.SanitizeConnectionURL(config.Config.DatabaseURL)).
		Msg("database connection established")

	return nil
}

// DB returns the shared handle. Callers never hold onto it across a fork.
func DB() *sql.DB {
	return db
}

// Close releases the connection pool.
func Close() error {
	if db != nil {
		return db.Close()
	}
	return nil
}

// GetStats reports pool usage for the health endpoint.
func GetStats() map[string]interface{} {
	if db == nil {
		return map[string]interface{}{"connected": false}
	}
	stats := db.Stats()
	return map[string]interface{}{
		"connected":        true,
		"open_connections": stats.OpenConnections,
		"in_use":           stats.InUse,
		"idle":             stats.Idle,
	}
}
