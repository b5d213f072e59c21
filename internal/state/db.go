// ./internal/state/db.go
package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"
)

// DB is a global database connection pool.
var DB *sql.DB

// DBConfig holds database connection parameters.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string // "disable", "require", "verify-full", etc.
}

// InitDB initializes the database connection pool.
func InitDB(cfg DBConfig) error {
	psqlInfo := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	var err error
	DB, err = sql.Open("postgres", psqlInfo)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	DB.SetMaxOpenConns(25)
	DB.SetMaxIdleConns(25)
	DB.SetConnMaxLifetime(5 * time.Minute)

	err = DB.Ping()
	if err != nil {
		DB.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Msg("Successfully connected to the PostgreSQL database!")
	return nil
}

// CloseDB closes the database connection pool.
func CloseDB() {
	if DB != nil {
		log.Info().Msg("Closing database connection...")
		if err := DB.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database connection")
		}
	}
}

// EnsureSchema applies the necessary DDL to create tables if they don't exist.
func EnsureSchema() error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	schemaSQL := `
		-- One row per credit transition, emitted by every snapshot call.
		CREATE TABLE IF NOT EXISTS credit_events (
			event_id SERIAL PRIMARY KEY,
			apr_id VARCHAR(255) NOT NULL,
			address_id VARCHAR(42) NOT NULL,
			cycle_number INTEGER NOT NULL,
			event_timestamp TIMESTAMPTZ NOT NULL,
			total_apr NUMERIC(60, 0) NOT NULL,
			apr_percent DECIMAL(20, 8) NOT NULL,
			credits INTEGER NOT NULL CHECK (credits >= 0 AND credits <= 48),
			last_incentive_at TIMESTAMPTZ NOT NULL,
			decaying BOOLEAN NOT NULL,
			decay_init_at TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_credit_events_timestamp ON credit_events(event_timestamp DESC);
		CREATE INDEX IF NOT EXISTS idx_credit_events_apr_id ON credit_events(apr_id, event_timestamp DESC);

		-- Latest canonical read per calculator, one row per cycle.
		CREATE TABLE IF NOT EXISTS engine_snapshots (
			snapshot_id SERIAL PRIMARY KEY,
			apr_id VARCHAR(255) NOT NULL,
			address_id VARCHAR(42) NOT NULL,
			cycle_number INTEGER NOT NULL,
			snapshot_timestamp TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			safe_total_supply NUMERIC(60, 0) NOT NULL,
			incentive_credits INTEGER NOT NULL,
			reward_tokens TEXT[],
			stats JSONB
		);
		CREATE INDEX IF NOT EXISTS idx_engine_snapshots_timestamp ON engine_snapshots(snapshot_timestamp DESC);
		CREATE INDEX IF NOT EXISTS idx_engine_snapshots_apr_id ON engine_snapshots(apr_id, snapshot_timestamp DESC);

		-- Cycle counter table for persistent global cycle tracking
		CREATE TABLE IF NOT EXISTS cycle_counter (
			id INTEGER PRIMARY KEY DEFAULT 1,
			current_cycle INTEGER NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			CONSTRAINT single_row_check CHECK (id = 1)
		);

		-- Insert initial row if it doesn't exist
		INSERT INTO cycle_counter (id, current_cycle)
		VALUES (1, 0)
		ON CONFLICT (id) DO NOTHING;
	`
	_, err := DB.Exec(schemaSQL)
	if err != nil {
		return fmt.Errorf("failed to execute schema DDL: %w", err)
	}
	log.Info().Msg("Database schema ensured.")
	return nil
}

// TestDBConnection tests if the database connection is healthy
func TestDBConnection() error {
	if DB == nil {
		return fmt.Errorf("database connection is nil")
	}

	// Use a short timeout context for health checks
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := DB.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	return nil
}
