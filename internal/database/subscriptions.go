package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"courtbook/internal/models"
)

// AllSubscriptions returns active subscription plans, cheapest first.
func (db *DB) AllSubscriptions(ctx context.Context) ([]models.Subscription, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, name, COALESCE(description, ''), duration_months, price,
		       discount_percent, reservation_quota, is_active
		FROM subscriptions WHERE is_active = 1 ORDER BY price`)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []models.Subscription
	for rows.Next() {
		var s models.Subscription
		if err := rows.Scan(
			&s.ID, &s.Name, &s.Description, &s.DurationMonths, &s.Price,
			&s.DiscountPercent, &s.ReservationQuota, &s.IsActive,
		); err != nil {
			return nil, err
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

// Subscribe activates a plan for a user, copying the plan's quota and
// discount into the user's subscription row.
func (db *DB) Subscribe(ctx context.Context, userID, subscriptionID int64) error {
	var plan models.Subscription
	err := db.QueryRowContext(ctx, `
		SELECT id, duration_months, discount_percent, reservation_quota
		FROM subscriptions WHERE id = ? AND is_active = 1`,
		subscriptionID,
	).Scan(&plan.ID, &plan.DurationMonths, &plan.DiscountPercent, &plan.ReservationQuota)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get subscription: %w", err)
	}

	now := time.Now()
	_, err = db.ExecContext(ctx, `
		INSERT INTO user_subscriptions (user_id, subscription_id, start_date, end_date,
			reservations_remaining, discount_percent, is_active)
		VALUES (?, ?, ?, ?, ?, ?, 1)`,
		userID, subscriptionID, now, now.AddDate(0, plan.DurationMonths, 0),
		plan.ReservationQuota, plan.DiscountPercent,
	)
	if err != nil {
		return fmt.Errorf("insert user subscription: %w", err)
	}
	return nil
}

// ActiveSubscription returns the user's current subscription, or nil.
func (db *DB) ActiveSubscription(ctx context.Context, userID int64) (*models.UserSubscription, error) {
	return scanActiveSubscription(db.QueryRowContext(ctx, activeSubscriptionQuery, userID, time.Now()))
}

const activeSubscriptionQuery = `
	SELECT id, user_id, subscription_id, start_date, end_date,
	       reservations_remaining, discount_percent, is_active
	FROM user_subscriptions
	WHERE user_id = ? AND is_active = 1 AND end_date > ?
	ORDER BY end_date DESC LIMIT 1`

func (db *DB) activeSubscriptionTx(ctx context.Context, tx *sql.Tx, userID int64) (*models.UserSubscription, error) {
	return scanActiveSubscription(tx.QueryRowContext(ctx, activeSubscriptionQuery, userID, time.Now()))
}

func scanActiveSubscription(row *sql.Row) (*models.UserSubscription, error) {
	var s models.UserSubscription
	err := row.Scan(
		&s.ID, &s.UserID, &s.SubscriptionID, &s.StartDate, &s.EndDate,
		&s.ReservationsRemaining, &s.DiscountPercent, &s.IsActive,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get active subscription: %w", err)
	}
	return &s, nil
}
