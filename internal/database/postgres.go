package database

import (
	"database/sql"
	"fmt"

	"altguard/internal/config"
	_ "github.com/lib/pq"
)

type DB struct {
	conn *sql.DB
	cfg  *config.Config
}

func NewDB(cfg *config.Config) (*DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBSSLMode)

	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{
		conn: conn,
		cfg:  cfg,
	}

	if err := db.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return db, nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS browser_fingerprints (
			account_id VARCHAR(64) PRIMARY KEY,
			user_agent TEXT NOT NULL DEFAULT '',
			language VARCHAR(32) NOT NULL DEFAULT '',
			platform VARCHAR(128) NOT NULL DEFAULT '',
			cookie_enabled BOOLEAN NOT NULL DEFAULT FALSE,
			hardware_concurrency INTEGER NOT NULL DEFAULT 0,
			device_memory DOUBLE PRECISION NOT NULL DEFAULT 0,
			max_touch_points INTEGER NOT NULL DEFAULT 0,
			screen_width INTEGER NOT NULL DEFAULT 0,
			screen_height INTEGER NOT NULL DEFAULT 0,
			screen_color_depth INTEGER NOT NULL DEFAULT 0,
			timezone_name VARCHAR(128) NOT NULL DEFAULT '',
			timezone_offset INTEGER NOT NULL DEFAULT 0,
			webgl_vendor TEXT NOT NULL DEFAULT '',
			webgl_renderer TEXT NOT NULL DEFAULT '',
			webgl_unmasked_vendor TEXT NOT NULL DEFAULT '',
			webgl_unmasked_renderer TEXT NOT NULL DEFAULT '',
			audio_fingerprint TEXT NOT NULL DEFAULT '',
			network_downlink DOUBLE PRECISION NOT NULL DEFAULT 0,
			network_effective_type VARCHAR(32) NOT NULL DEFAULT '',
			payload_hash VARCHAR(64) NOT NULL DEFAULT '',
			captured_at BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS fingerprint_languages (
			account_id VARCHAR(64) NOT NULL,
			language VARCHAR(32) NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS fingerprint_fonts (
			account_id VARCHAR(64) NOT NULL,
			font_name VARCHAR(255) NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS fingerprint_plugins (
			account_id VARCHAR(64) NOT NULL,
			plugin_name VARCHAR(255) NOT NULL,
			plugin_filename VARCHAR(255) NOT NULL DEFAULT '',
			plugin_description TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS fingerprint_webgl_extensions (
			account_id VARCHAR(64) NOT NULL,
			extension_name VARCHAR(255) NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS fingerprint_storage (
			account_id VARCHAR(64) NOT NULL,
			storage_type VARCHAR(64) NOT NULL,
			supported BOOLEAN NOT NULL DEFAULT FALSE
		)`,
		`CREATE TABLE IF NOT EXISTS fingerprint_protocols (
			account_id VARCHAR(64) NOT NULL,
			protocol VARCHAR(64) NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS verification_actions (
			action_id BIGSERIAL PRIMARY KEY,
			account_id VARCHAR(64) NOT NULL,
			kind VARCHAR(16) NOT NULL,
			details TEXT NOT NULL DEFAULT '',
			resolved BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS challenges (
			id VARCHAR(255) PRIMARY KEY,
			action_id BIGINT NOT NULL REFERENCES verification_actions(action_id),
			account_id VARCHAR(64) NOT NULL,
			salt VARCHAR(255) NOT NULL,
			difficulty INTEGER NOT NULL,
			memory INTEGER NOT NULL,
			threads INTEGER NOT NULL,
			key_len INTEGER NOT NULL,
			target VARCHAR(255) NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			expires_at TIMESTAMP WITH TIME ZONE NOT NULL,
			solved BOOLEAN NOT NULL DEFAULT FALSE,
			solved_at TIMESTAMP WITH TIME ZONE
		)`,
		`CREATE TABLE IF NOT EXISTS solutions (
			id VARCHAR(255) PRIMARY KEY,
			challenge_id VARCHAR(255) NOT NULL REFERENCES challenges(id) ON DELETE CASCADE,
			nonce VARCHAR(255) NOT NULL,
			hash VARCHAR(255) NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			valid BOOLEAN NOT NULL DEFAULT FALSE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_fingerprint_languages_account ON fingerprint_languages(account_id)`,
		`CREATE INDEX IF NOT EXISTS idx_fingerprint_fonts_account ON fingerprint_fonts(account_id)`,
		`CREATE INDEX IF NOT EXISTS idx_fingerprint_plugins_account ON fingerprint_plugins(account_id)`,
		`CREATE INDEX IF NOT EXISTS idx_fingerprint_webgl_extensions_account ON fingerprint_webgl_extensions(account_id)`,
		`CREATE INDEX IF NOT EXISTS idx_fingerprint_storage_account ON fingerprint_storage(account_id)`,
		`CREATE INDEX IF NOT EXISTS idx_fingerprint_protocols_account ON fingerprint_protocols(account_id)`,
		`CREATE INDEX IF NOT EXISTS idx_fingerprints_bucket ON browser_fingerprints(platform, screen_width, screen_height, hardware_concurrency)`,
		`CREATE INDEX IF NOT EXISTS idx_verification_actions_account ON verification_actions(account_id)`,
		`CREATE INDEX IF NOT EXISTS idx_challenges_expires_at ON challenges(expires_at)`,
		`CREATE INDEX IF NOT EXISTS idx_solutions_challenge_id ON solutions(challenge_id)`,
	}

	for _, query := range queries {
		if _, err := db.conn.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query: %s, error: %w", query, err)
		}
	}

	return nil
}
