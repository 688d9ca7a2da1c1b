package database

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/fablechat/fable-backend/internal/config"
)

// DB wraps the sqlx pool so callers hold one handle for queries and shutdown.
type DB struct {
	*sqlx.DB
}

// NewConnection opens the Postgres pool sized from config. Connect pings, so
// a bad DSN fails here rather than on the first query.
func NewConnection(cfg config.DatabaseConfig) (*DB, error) {
	db, err := sqlx.Connect("postgres", DSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.ConnLifetimeMinutes) * time.Minute)

	return &DB{db}, nil
}

// Close releases the pool
func (db *DB) Close() error {
	return db.DB.Close()
}

// DSN renders the connection URL shared by the pool and the migrator.
func DSN(cfg config.DatabaseConfig) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database, cfg.SSLMode)
}
