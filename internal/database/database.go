// Package database implements the durable availability store on SQLite.
package database

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"database/sql"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
)

// Sentinel errors surfaced to the coordinator and dispatcher.
var (
	ErrNotAvailable  = errors.New("terrain not available for requested interval")
	ErrNotFound      = errors.New("record not found")
	ErrDuplicateUser = errors.New("username or email already taken")
)

// DB wraps the SQLite connection.
type DB struct {
	*sql.DB
	logger *zerolog.Logger
}

// NewDB opens the database at path and creates tables if they don't exist.
func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// WAL mode and busy timeout so concurrent sessions don't trip over writes.
	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	instance := &DB{DB: db, logger: logger}
	if err := instance.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("database initialized")
	return instance, nil
}

func (db *DB) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT UNIQUE NOT NULL,
			email TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			first_name TEXT NOT NULL,
			last_name TEXT,
			phone TEXT,
			role TEXT NOT NULL DEFAULT 'user',
			is_active BOOLEAN NOT NULL DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS sports (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT UNIQUE NOT NULL,
			description TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS cities (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			address TEXT,
			phone TEXT,
			email TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS centres (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			city_id INTEGER NOT NULL,
			address TEXT,
			phone TEXT,
			open_time TEXT NOT NULL DEFAULT '08:00',
			close_time TEXT NOT NULL DEFAULT '22:00',
			is_active BOOLEAN NOT NULL DEFAULT 1,
			FOREIGN KEY (city_id) REFERENCES cities(id)
		)`,
		`CREATE TABLE IF NOT EXISTS terrains (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			centre_id INTEGER NOT NULL,
			sport_id INTEGER NOT NULL,
			surface TEXT,
			capacity INTEGER NOT NULL DEFAULT 0,
			hourly_price REAL NOT NULL DEFAULT 0,
			is_active BOOLEAN NOT NULL DEFAULT 1,
			FOREIGN KEY (centre_id) REFERENCES centres(id),
			FOREIGN KEY (sport_id) REFERENCES sports(id)
		)`,
		`CREATE TABLE IF NOT EXISTS reservations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			terrain_id INTEGER NOT NULL,
			date DATETIME NOT NULL,
			start_time DATETIME NOT NULL,
			end_time DATETIME NOT NULL,
			total REAL NOT NULL DEFAULT 0,
			discount REAL NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'confirmed',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (user_id) REFERENCES users(id),
			FOREIGN KEY (terrain_id) REFERENCES terrains(id)
		)`,
		`CREATE TABLE IF NOT EXISTS payments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			reservation_id INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
			amount REAL NOT NULL,
			method TEXT NOT NULL DEFAULT 'card',
			status TEXT NOT NULL DEFAULT 'paid',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (reservation_id) REFERENCES reservations(id)
		)`,
		`CREATE TABLE IF NOT EXISTS subscriptions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			description TEXT,
			duration_months INTEGER NOT NULL DEFAULT 1,
			price REAL NOT NULL DEFAULT 0,
			discount_percent REAL NOT NULL DEFAULT 0,
			reservation_quota INTEGER NOT NULL DEFAULT 0,
			is_active BOOLEAN NOT NULL DEFAULT 1
		)`,
		`CREATE TABLE IF NOT EXISTS user_subscriptions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			subscription_id INTEGER NOT NULL,
			start_date DATETIME NOT NULL,
			end_date DATETIME NOT NULL,
			reservations_remaining INTEGER NOT NULL DEFAULT 0,
			discount_percent REAL NOT NULL DEFAULT 0,
			is_active BOOLEAN NOT NULL DEFAULT 1,
			FOREIGN KEY (user_id) REFERENCES users(id),
			FOREIGN KEY (subscription_id) REFERENCES subscriptions(id)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_reservations_terrain_date_status ON reservations(terrain_id, date, status)`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_user_id ON reservations(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_terrains_sport_centre ON terrains(sport_id, centre_id)`,
		`CREATE INDEX IF NOT EXISTS idx_terrains_active ON terrains(is_active)`,
		`CREATE INDEX IF NOT EXISTS idx_centres_city ON centres(city_id)`,
		`CREATE INDEX IF NOT EXISTS idx_user_subscriptions_user ON user_subscriptions(user_id, is_active)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

func (db *DB) Close() error {
	return db.DB.Close()
}
