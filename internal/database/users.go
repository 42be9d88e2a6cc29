package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"courtbook/internal/models"
)

// CreateUser inserts a new account. The password hash is computed by the
// caller; the store never sees plaintext credentials.
func (db *DB) CreateUser(ctx context.Context, u *models.User, passwordHash string) (int64, error) {
	result, err := db.ExecContext(ctx, `
		INSERT INTO users (username, email, password_hash, first_name, last_name, phone, role, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?)`,
		u.Username, u.Email, passwordHash, u.FirstName, u.LastName, u.Phone, u.Role, time.Now(),
	)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "unique") {
			return 0, ErrDuplicateUser
		}
		return 0, fmt.Errorf("insert user: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get last id: %w", err)
	}
	u.ID = id
	return id, nil
}

// UserByUsername returns an active user and their stored password hash.
func (db *DB) UserByUsername(ctx context.Context, username string) (*models.User, string, error) {
	var u models.User
	var hash string
	err := db.QueryRowContext(ctx, `
		SELECT id, username, email, password_hash, first_name, COALESCE(last_name, ''),
		       COALESCE(phone, ''), role, is_active, created_at
		FROM users WHERE username = ? AND is_active = 1`,
		username,
	).Scan(
		&u.ID, &u.Username, &u.Email, &hash, &u.FirstName, &u.LastName,
		&u.Phone, &u.Role, &u.IsActive, &u.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("get user: %w", err)
	}
	return &u, hash, nil
}

// Stats returns the admin aggregate counters.
func (db *DB) Stats(ctx context.Context) (*models.Stats, error) {
	var s models.Stats
	queries := []struct {
		query string
		dest  any
	}{
		{"SELECT COUNT(*) FROM users WHERE is_active = 1", &s.TotalUsers},
		{"SELECT COUNT(*) FROM reservations", &s.TotalReservations},
		{"SELECT COUNT(*) FROM reservations WHERE status = 'confirmed'", &s.ConfirmedReservations},
		{"SELECT COALESCE(SUM(total), 0) FROM reservations WHERE status = 'confirmed'", &s.TotalRevenue},
		{"SELECT COUNT(*) FROM terrains WHERE is_active = 1", &s.ActiveTerrains},
	}
	for _, q := range queries {
		if err := db.QueryRowContext(ctx, q.query).Scan(q.dest); err != nil {
			return nil, fmt.Errorf("stats query: %w", err)
		}
	}
	return &s, nil
}
