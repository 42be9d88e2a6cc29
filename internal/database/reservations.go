package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"courtbook/internal/models"
)

// IsAvailable reports whether the terrain is free for [start, end) on the
// given date. Only confirmed reservations count; half-open semantics, so a
// reservation ending exactly at start does not conflict.
func (db *DB) IsAvailable(ctx context.Context, terrainID int64, date, start, end time.Time) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM reservations
		WHERE terrain_id = ?
		AND date(date) = date(?)
		AND start_time < ? AND end_time > ?
		AND status = ?`,
		terrainID, date, end, start, models.StatusConfirmed,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check availability: %w", err)
	}
	return count == 0, nil
}

// CreateReservation inserts the reservation if the slot is still free,
// computing the total from the terrain's hourly price and any active
// subscription discount, and writing the payment row in the same
// transaction. Returns ErrNotAvailable on conflict.
func (db *DB) CreateReservation(ctx context.Context, r *models.Reservation) (int64, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var hourlyPrice float64
	var isActive bool
	err = tx.QueryRowContext(ctx,
		"SELECT hourly_price, is_active FROM terrains WHERE id = ?",
		r.TerrainID,
	).Scan(&hourlyPrice, &isActive)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("get terrain: %w", err)
	}
	if !isActive {
		return 0, ErrNotAvailable
	}

	// Re-check inside the transaction: the insert and the check form one
	// atomic unit from the store's perspective.
	var conflicts int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM reservations
		WHERE terrain_id = ?
		AND date(date) = date(?)
		AND start_time < ? AND end_time > ?
		AND status = ?`,
		r.TerrainID, r.Date, r.End, r.Start, models.StatusConfirmed,
	).Scan(&conflicts)
	if err != nil {
		return 0, fmt.Errorf("check availability: %w", err)
	}
	if conflicts > 0 {
		return 0, ErrNotAvailable
	}

	hours := r.End.Sub(r.Start).Hours()
	total := hourlyPrice * hours

	sub, err := db.activeSubscriptionTx(ctx, tx, r.UserID)
	if err != nil {
		return 0, err
	}
	discount := 0.0
	if sub != nil && sub.ReservationsRemaining > 0 {
		discount = total * sub.DiscountPercent / 100
		total -= discount
	}

	now := time.Now()
	result, err := tx.ExecContext(ctx, `
		INSERT INTO reservations (user_id, terrain_id, date, start_time, end_time,
			total, discount, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.UserID, r.TerrainID, r.Date, r.Start, r.End,
		total, discount, models.StatusConfirmed, now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("insert reservation: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get last id: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO payments (reservation_id, user_id, amount, method, status, created_at)
		VALUES (?, ?, ?, 'card', 'paid', ?)`,
		id, r.UserID, total, now,
	)
	if err != nil {
		return 0, fmt.Errorf("insert payment: %w", err)
	}

	if sub != nil && sub.ReservationsRemaining > 0 {
		_, err = tx.ExecContext(ctx, `
			UPDATE user_subscriptions SET reservations_remaining = reservations_remaining - 1
			WHERE id = ?`,
			sub.ID,
		)
		if err != nil {
			return 0, fmt.Errorf("update subscription quota: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}

	r.ID = id
	r.Total = total
	r.Discount = discount
	r.Status = models.StatusConfirmed
	return id, nil
}

// CancelReservation marks a reservation cancelled. Cancelling twice is a
// no-op success; an unknown id is ErrNotFound.
func (db *DB) CancelReservation(ctx context.Context, id int64) error {
	result, err := db.ExecContext(ctx, `
		UPDATE reservations SET status = ?, updated_at = ?
		WHERE id = ? AND status != ?`,
		models.StatusCancelled, time.Now(), id, models.StatusCancelled,
	)
	if err != nil {
		return fmt.Errorf("cancel reservation: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}

	var exists int
	err = db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM reservations WHERE id = ?", id,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check reservation: %w", err)
	}
	if exists == 0 {
		return ErrNotFound
	}
	return nil // already cancelled
}

// ReservationByID returns a single reservation.
func (db *DB) ReservationByID(ctx context.Context, id int64) (*models.Reservation, error) {
	var r models.Reservation
	err := db.QueryRowContext(ctx, `
		SELECT id, user_id, terrain_id, date, start_time, end_time,
		       total, discount, status, created_at, updated_at
		FROM reservations WHERE id = ?`,
		id,
	).Scan(
		&r.ID, &r.UserID, &r.TerrainID, &r.Date, &r.Start, &r.End,
		&r.Total, &r.Discount, &r.Status, &r.CreatedAt, &r.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get reservation: %w", err)
	}
	return &r, nil
}

// ReservationsByUser returns all reservations for a user, newest first.
func (db *DB) ReservationsByUser(ctx context.Context, userID int64) ([]models.Reservation, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT r.id, r.user_id, r.terrain_id, r.date, r.start_time, r.end_time,
		       r.total, r.discount, r.status, r.created_at, r.updated_at,
		       t.name, s.name, c.name
		FROM reservations r
		JOIN terrains t ON r.terrain_id = t.id
		JOIN sports s ON t.sport_id = s.id
		JOIN centres c ON t.centre_id = c.id
		WHERE r.user_id = ?
		ORDER BY r.date DESC, r.start_time DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	defer rows.Close()
	return scanReservations(rows)
}

// AllReservations returns every reservation, newest first. Admin surface.
func (db *DB) AllReservations(ctx context.Context) ([]models.Reservation, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT r.id, r.user_id, r.terrain_id, r.date, r.start_time, r.end_time,
		       r.total, r.discount, r.status, r.created_at, r.updated_at,
		       t.name, s.name, c.name
		FROM reservations r
		JOIN terrains t ON r.terrain_id = t.id
		JOIN sports s ON t.sport_id = s.id
		JOIN centres c ON t.centre_id = c.id
		ORDER BY r.date DESC, r.start_time DESC`)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	defer rows.Close()
	return scanReservations(rows)
}

func scanReservations(rows *sql.Rows) ([]models.Reservation, error) {
	var reservations []models.Reservation
	for rows.Next() {
		var r models.Reservation
		if err := rows.Scan(
			&r.ID, &r.UserID, &r.TerrainID, &r.Date, &r.Start, &r.End,
			&r.Total, &r.Discount, &r.Status, &r.CreatedAt, &r.UpdatedAt,
			&r.TerrainName, &r.SportName, &r.CentreName,
		); err != nil {
			return nil, err
		}
		reservations = append(reservations, r)
	}
	return reservations, rows.Err()
}
