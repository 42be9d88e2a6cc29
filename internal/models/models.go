package models

import "time"

// Reservation statuses.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
	StatusCompleted = "completed"
)

// User roles.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User represents a registered account.
type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Phone     string    `json:"phone"`
	Role      string    `json:"role"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// IsAdmin reports whether the user has the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Sport represents a sport discipline offered by the club.
type Sport struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// City represents a city hosting one or more centres.
type City struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address"`
	Phone   string `json:"phone"`
	Email   string `json:"email"`
}

// Centre represents a sports centre.
type Centre struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	CityID    int64  `json:"city_id"`
	Address   string `json:"address"`
	Phone     string `json:"phone"`
	OpenTime  string `json:"open_time"`  // HH:MM
	CloseTime string `json:"close_time"` // HH:MM
	IsActive  bool   `json:"is_active"`
}

// Terrain represents a bookable facility unit (court, field, ...).
type Terrain struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	CentreID    int64   `json:"centre_id"`
	SportID     int64   `json:"sport_id"`
	Surface     string  `json:"surface"`
	Capacity    int     `json:"capacity"`
	HourlyPrice float64 `json:"hourly_price"`
	IsActive    bool    `json:"is_active"`

	// Display-only join fields.
	SportName  string `json:"sport_name,omitempty"`
	CentreName string `json:"centre_name,omitempty"`
}

// Reservation represents a committed booking of one terrain for a time slot.
type Reservation struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	TerrainID int64     `json:"terrain_id"`
	Date      time.Time `json:"date"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Total     float64   `json:"total"`
	Discount  float64   `json:"discount"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Display-only join fields.
	TerrainName string `json:"terrain_name,omitempty"`
	SportName   string `json:"sport_name,omitempty"`
	CentreName  string `json:"centre_name,omitempty"`
}

// ValidInterval reports whether the reservation slot is well-formed:
// the start must be strictly before the end.
func (r *Reservation) ValidInterval() bool {
	return r.Start.Before(r.End)
}

// OverlapsWith reports whether two reservations conflict on the same terrain.
// Uses half-open interval [start, end) semantics: back-to-back slots that
// share a boundary do not overlap.
func (r *Reservation) OverlapsWith(other *Reservation) bool {
	if r.TerrainID != other.TerrainID {
		return false
	}
	if !sameDate(r.Date, other.Date) {
		return false
	}
	return other.Start.Before(r.End) && r.Start.Before(other.End)
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// Subscription represents a subscription plan.
type Subscription struct {
	ID               int64   `json:"id"`
	Name             string  `json:"name"`
	Description      string  `json:"description"`
	DurationMonths   int     `json:"duration_months"`
	Price            float64 `json:"price"`
	DiscountPercent  float64 `json:"discount_percent"`
	ReservationQuota int     `json:"reservation_quota"`
	IsActive         bool    `json:"is_active"`
}

// UserSubscription represents an active plan held by a user.
type UserSubscription struct {
	ID                    int64     `json:"id"`
	UserID                int64     `json:"user_id"`
	SubscriptionID        int64     `json:"subscription_id"`
	StartDate             time.Time `json:"start_date"`
	EndDate               time.Time `json:"end_date"`
	ReservationsRemaining int       `json:"reservations_remaining"`
	DiscountPercent       float64   `json:"discount_percent"`
	IsActive              bool      `json:"is_active"`
}

// Payment represents a payment recorded for a reservation.
type Payment struct {
	ID            int64     `json:"id"`
	ReservationID int64     `json:"reservation_id"`
	UserID        int64     `json:"user_id"`
	Amount        float64   `json:"amount"`
	Method        string    `json:"method"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}

// Stats holds admin-facing aggregate counters.
type Stats struct {
	TotalUsers            int64   `json:"total_users"`
	TotalReservations     int64   `json:"total_reservations"`
	ConfirmedReservations int64   `json:"confirmed_reservations"`
	TotalRevenue          float64 `json:"total_revenue"`
	ActiveTerrains        int64   `json:"active_terrains"`
}
