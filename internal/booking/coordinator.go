// Package booking serializes conflicting reservation attempts per terrain.
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"courtbook/internal/events"
	"courtbook/internal/locks"
	"courtbook/internal/metrics"
	"courtbook/internal/models"
)

// Business outcomes, distinct from store failures.
var (
	ErrInvalidInterval = errors.New("start time must be before end time")
	ErrTerrainInactive = errors.New("terrain is blocked")
	ErrNotAvailable    = errors.New("terrain not available for requested interval")
	ErrNotFound        = errors.New("reservation not found")
	ErrNotAllowed      = errors.New("not allowed to cancel this reservation")
	ErrLockTimeout     = errors.New("timed out waiting for terrain lock")
)

// Store is the durable system of record the coordinator commits against.
// IsAvailable and CreateReservation must each be atomic from the store's
// perspective; the coordinator's lock closes the gap between them.
type Store interface {
	TerrainByID(ctx context.Context, id int64) (*models.Terrain, error)
	IsAvailable(ctx context.Context, terrainID int64, date, start, end time.Time) (bool, error)
	CreateReservation(ctx context.Context, r *models.Reservation) (int64, error)
	CancelReservation(ctx context.Context, id int64) error
	ReservationByID(ctx context.Context, id int64) (*models.Reservation, error)
}

// Coordinator guarantees at most one in-flight commit decision per terrain.
type Coordinator struct {
	store       Store
	registry    *locks.Registry
	bus         *events.Bus
	acquireWait time.Duration // 0 disables the liveness timeout
	logger      zerolog.Logger
}

// NewCoordinator constructs a coordinator around the store and lock registry.
func NewCoordinator(store Store, registry *locks.Registry, bus *events.Bus, acquireWait time.Duration, logger *zerolog.Logger) *Coordinator {
	return &Coordinator{
		store:       store,
		registry:    registry,
		bus:         bus,
		acquireWait: acquireWait,
		logger:      logger.With().Str("component", "booking").Logger(),
	}
}

// CheckAvailability reports whether the slot is free right now. The result
// is advisory: by the time the caller acts on it another session may have
// committed. CreateReservation never trusts it.
func (c *Coordinator) CheckAvailability(ctx context.Context, terrainID int64, date, start, end time.Time) (bool, error) {
	if !start.Before(end) {
		return false, ErrInvalidInterval
	}

	lock := c.registry.Get(terrainID)
	if err := c.acquire(ctx, lock); err != nil {
		return false, err
	}
	defer lock.Release()

	return c.store.IsAvailable(ctx, terrainID, date, start, end)
}

// CreateReservation commits the reservation if the slot is still free.
// The availability re-check and the durable insert happen under the
// terrain's lock, so no other commit for this terrain can interleave.
// The lock is released on every exit path, store failures included.
func (c *Coordinator) CreateReservation(ctx context.Context, r *models.Reservation) (*models.Reservation, error) {
	if r == nil || !r.ValidInterval() {
		return nil, ErrInvalidInterval
	}

	terrain, err := c.store.TerrainByID(ctx, r.TerrainID)
	if err != nil {
		return nil, fmt.Errorf("get terrain: %w", err)
	}
	if !terrain.IsActive {
		return nil, ErrTerrainInactive
	}

	lock := c.registry.Get(r.TerrainID)
	if err := c.acquire(ctx, lock); err != nil {
		return nil, err
	}
	defer lock.Release()

	free, err := c.store.IsAvailable(ctx, r.TerrainID, r.Date, r.Start, r.End)
	if err != nil {
		return nil, fmt.Errorf("availability check: %w", err)
	}
	if !free {
		metrics.IncReservationRejected()
		return nil, ErrNotAvailable
	}

	id, err := c.store.CreateReservation(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("commit reservation: %w", err)
	}

	metrics.IncReservationCreated()
	c.bus.Publish(events.Event{
		Type:          events.TypeReservationCreated,
		ReservationID: id,
		TerrainID:     r.TerrainID,
		UserID:        r.UserID,
		Total:         r.Total,
	})
	c.logger.Info().
		Int64("reservation_id", id).
		Int64("terrain_id", r.TerrainID).
		Int64("user_id", r.UserID).
		Time("start", r.Start).
		Time("end", r.End).
		Msg("reservation created")

	return r, nil
}

// CancelReservation marks a reservation cancelled. Users may cancel only
// their own reservations; admins may cancel any. Cancelling twice is a
// no-op success. No terrain lock is needed: cancellation only shrinks the
// confirmed-interval set, so it cannot race-create an overlap.
func (c *Coordinator) CancelReservation(ctx context.Context, id int64, requester *models.User) error {
	existing, err := c.store.ReservationByID(ctx, id)
	if err != nil {
		return err
	}
	if requester != nil && !requester.IsAdmin() && existing.UserID != requester.ID {
		return ErrNotAllowed
	}

	if err := c.store.CancelReservation(ctx, id); err != nil {
		return err
	}

	metrics.IncReservationCancelled()
	c.bus.Publish(events.Event{
		Type:          events.TypeReservationCancelled,
		ReservationID: id,
		TerrainID:     existing.TerrainID,
		UserID:        existing.UserID,
	})
	c.logger.Info().Int64("reservation_id", id).Msg("reservation cancelled")
	return nil
}

// acquire takes the terrain lock, bounded by the liveness timeout when one
// is configured. A timeout is reported as ErrLockTimeout, never as a
// successful rejection.
func (c *Coordinator) acquire(ctx context.Context, lock *locks.TerrainLock) error {
	if c.acquireWait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.acquireWait)
		defer cancel()
	}

	waitStart := time.Now()
	err := lock.Acquire(ctx)
	metrics.ObserveLockWait(time.Since(waitStart).Seconds())

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrLockTimeout
	}
	return err
}
