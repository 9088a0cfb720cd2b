package postgres

import (
	"database/sql"
	"fmt"
	"log"

	"github.com/ds124wfegd/dealslot/config"

	_ "github.com/lib/pq"
)

func NewPostgresDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Println("Successfully connected to PostgreSQL")
	return db, nil
}

func RunMigrations(db *sql.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS venues (
			id SERIAL PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			address TEXT
		)`,

		`CREATE TABLE IF NOT EXISTS offers (
			id SERIAL PRIMARY KEY,
			venue_id INTEGER REFERENCES venues(id),
			title VARCHAR(255) NOT NULL,
			status VARCHAR(20) DEFAULT 'active',
			per_user_limit INTEGER NOT NULL DEFAULT 1,
			cooldown_minutes INTEGER NOT NULL DEFAULT 0,
			claim_limit_global INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS users (
			id SERIAL PRIMARY KEY,
			email VARCHAR(255) UNIQUE NOT NULL,
			name VARCHAR(255) NOT NULL,
			role VARCHAR(20) NOT NULL DEFAULT 'customer',
			telegram_id VARCHAR(100),
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS offer_slots (
			id SERIAL PRIMARY KEY,
			offer_id INTEGER REFERENCES offers(id),
			starts_at TIMESTAMP NOT NULL,
			ends_at TIMESTAMP NOT NULL,
			qty_total INTEGER NOT NULL CHECK (qty_total >= 0),
			qty_remaining INTEGER NOT NULL CHECK (qty_remaining >= 0 AND qty_remaining <= qty_total),
			mode VARCHAR(10) NOT NULL DEFAULT 'flash',
			drip_every_minutes INTEGER NOT NULL DEFAULT 0,
			drip_qty INTEGER NOT NULL DEFAULT 0,
			drip_released INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS claims (
			id SERIAL PRIMARY KEY,
			offer_id INTEGER REFERENCES offers(id),
			slot_id INTEGER REFERENCES offer_slots(id),
			user_id INTEGER REFERENCES users(id),
			status VARCHAR(10) NOT NULL DEFAULT 'reserved',
			six_code VARCHAR(6) NOT NULL,
			qr_token VARCHAR(64) NOT NULL,
			reserved_at TIMESTAMP NOT NULL,
			expires_at TIMESTAMP NOT NULL,
			redeemed_at TIMESTAMP,
			staff_id INTEGER,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS waitlist_entries (
			id SERIAL PRIMARY KEY,
			offer_id INTEGER REFERENCES offers(id),
			user_id INTEGER REFERENCES users(id),
			position INTEGER NOT NULL,
			auto_claim BOOLEAN NOT NULL DEFAULT FALSE,
			status VARCHAR(10) NOT NULL DEFAULT 'waiting',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,

		// Credential uniqueness holds among currently reserved claims only;
		// terminal claims are audit records and may repeat codes.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_claims_six_code_reserved
			ON claims(six_code) WHERE status = 'reserved'`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_claims_qr_token_reserved
			ON claims(qr_token) WHERE status = 'reserved'`,

		`CREATE INDEX IF NOT EXISTS idx_claims_offer_user ON claims(offer_id, user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_claims_status_expires ON claims(status, expires_at)`,
		`CREATE INDEX IF NOT EXISTS idx_claims_slot_id ON claims(slot_id)`,
		`CREATE INDEX IF NOT EXISTS idx_slots_offer_window ON offer_slots(offer_id, starts_at, ends_at)`,
		`CREATE INDEX IF NOT EXISTS idx_slots_drip ON offer_slots(mode, ends_at) WHERE mode = 'drip'`,
		`CREATE INDEX IF NOT EXISTS idx_waitlist_offer_position ON waitlist_entries(offer_id, position)`,
		`CREATE INDEX IF NOT EXISTS idx_waitlist_offer_status ON waitlist_entries(offer_id, status)`,
	}

	for _, migration := range migrations {
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("failed to execute migration: %v", err)
		}
	}

	log.Println("Database migrations completed successfully")
	return nil
}
