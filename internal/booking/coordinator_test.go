package booking

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courtbook/internal/events"
	"courtbook/internal/locks"
	"courtbook/internal/models"
)

// fakeStore is an in-memory store whose check and insert are deliberately
// separate, non-atomic steps: exactly the gap the coordinator's lock must
// close. CreateReservation trusts the caller and does not re-check.
type fakeStore struct {
	mu           sync.Mutex
	terrains     map[int64]*models.Terrain
	reservations map[int64]*models.Reservation
	nextID       int64
	checkDelay   time.Duration
	failInsert   error
	inCheck      int
	maxInCheck   int

	// When set, every availability check announces itself on checkEntered
	// and then parks until checkRelease is closed. Lets a test hold several
	// checks open at the same instant instead of relying on timing.
	checkEntered chan struct{}
	checkRelease chan struct{}
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		terrains:     make(map[int64]*models.Terrain),
		reservations: make(map[int64]*models.Reservation),
	}
}

func (f *fakeStore) addTerrain(id int64, active bool) {
	f.terrains[id] = &models.Terrain{ID: id, IsActive: active, HourlyPrice: 100}
}

func (f *fakeStore) TerrainByID(_ context.Context, id int64) (*models.Terrain, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.terrains[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *t
	return &copied, nil
}

func (f *fakeStore) IsAvailable(_ context.Context, terrainID int64, date, start, end time.Time) (bool, error) {
	f.mu.Lock()
	f.inCheck++
	if f.inCheck > f.maxInCheck {
		f.maxInCheck = f.inCheck
	}
	f.mu.Unlock()

	if f.checkDelay > 0 {
		time.Sleep(f.checkDelay)
	}
	if f.checkEntered != nil {
		f.checkEntered <- struct{}{}
		<-f.checkRelease
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inCheck--

	probe := &models.Reservation{TerrainID: terrainID, Date: date, Start: start, End: end}
	for _, r := range f.reservations {
		if r.Status == models.StatusConfirmed && r.OverlapsWith(probe) {
			return false, nil
		}
	}
	return true, nil
}

func (f *fakeStore) CreateReservation(_ context.Context, r *models.Reservation) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failInsert != nil {
		return 0, f.failInsert
	}
	f.nextID++
	copied := *r
	copied.ID = f.nextID
	copied.Status = models.StatusConfirmed
	f.reservations[f.nextID] = &copied
	r.ID = f.nextID
	r.Status = models.StatusConfirmed
	return f.nextID, nil
}

func (f *fakeStore) CancelReservation(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reservations[id]
	if !ok {
		return ErrNotFound
	}
	r.Status = models.StatusCancelled
	return nil
}

func (f *fakeStore) ReservationByID(_ context.Context, id int64) (*models.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reservations[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *r
	return &copied, nil
}

func (f *fakeStore) confirmed() []*models.Reservation {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Reservation
	for _, r := range f.reservations {
		if r.Status == models.StatusConfirmed {
			copied := *r
			out = append(out, &copied)
		}
	}
	return out
}

func newTestCoordinator(store Store, acquireWait time.Duration) *Coordinator {
	logger := zerolog.New(io.Discard)
	return NewCoordinator(store, locks.NewRegistry(), events.NewBus(), acquireWait, &logger)
}

func reservation(t *testing.T, terrainID, userID int64, day, start, end string) *models.Reservation {
	t.Helper()
	date, err := time.Parse("2006-01-02", day)
	require.NoError(t, err)
	s, err := time.Parse("2006-01-02 15:04", day+" "+start)
	require.NoError(t, err)
	e, err := time.Parse("2006-01-02 15:04", day+" "+end)
	require.NoError(t, err)
	return &models.Reservation{TerrainID: terrainID, UserID: userID, Date: date, Start: s, End: e}
}

func TestCreateReservationValidation(t *testing.T) {
	store := newFakeStore()
	store.addTerrain(7, true)
	store.addTerrain(8, false)
	coord := newTestCoordinator(store, 0)
	ctx := context.Background()

	t.Run("InvertedInterval", func(t *testing.T) {
		_, err := coord.CreateReservation(ctx, reservation(t, 7, 1, "2024-06-01", "12:00", "11:00"))
		assert.ErrorIs(t, err, ErrInvalidInterval)
	})

	t.Run("ZeroLengthInterval", func(t *testing.T) {
		_, err := coord.CreateReservation(ctx, reservation(t, 7, 1, "2024-06-01", "11:00", "11:00"))
		assert.ErrorIs(t, err, ErrInvalidInterval)
	})

	t.Run("BlockedTerrain", func(t *testing.T) {
		_, err := coord.CreateReservation(ctx, reservation(t, 8, 1, "2024-06-01", "10:00", "11:00"))
		assert.ErrorIs(t, err, ErrTerrainInactive)
	})

	t.Run("UnknownTerrain", func(t *testing.T) {
		_, err := coord.CreateReservation(ctx, reservation(t, 99, 1, "2024-06-01", "10:00", "11:00"))
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("CheckAvailabilityInvalidInterval", func(t *testing.T) {
		at := time.Date(2024, 6, 1, 11, 0, 0, 0, time.UTC)

		_, err := coord.CheckAvailability(ctx, 7, at, at, at)
		assert.ErrorIs(t, err, ErrInvalidInterval, "zero-length interval")

		_, err = coord.CheckAvailability(ctx, 7, at, at, at.Add(-time.Hour))
		assert.ErrorIs(t, err, ErrInvalidInterval, "inverted interval")
	})
}

func TestCreateReservationConflict(t *testing.T) {
	store := newFakeStore()
	store.addTerrain(7, true)
	coord := newTestCoordinator(store, 0)
	ctx := context.Background()

	_, err := coord.CreateReservation(ctx, reservation(t, 7, 1, "2024-06-01", "10:00", "11:00"))
	require.NoError(t, err)

	_, err = coord.CreateReservation(ctx, reservation(t, 7, 2, "2024-06-01", "10:30", "11:30"))
	assert.ErrorIs(t, err, ErrNotAvailable)

	// Adjacent slot succeeds under half-open semantics.
	_, err = coord.CreateReservation(ctx, reservation(t, 7, 2, "2024-06-01", "11:00", "12:00"))
	assert.NoError(t, err)
}

// No double-booking: after N concurrent overlapping requests settle, the
// confirmed set has pairwise-disjoint intervals.
func TestConcurrentOverlappingRequests(t *testing.T) {
	store := newFakeStore()
	store.addTerrain(7, true)
	store.checkDelay = 2 * time.Millisecond // widen the check-then-insert window
	coord := newTestCoordinator(store, 0)
	ctx := context.Background()

	// Every request overlaps 10:00-12:00 somewhere; many overlap each other.
	slots := [][2]string{
		{"10:00", "11:00"}, {"10:30", "11:30"}, {"11:00", "12:00"},
		{"10:00", "12:00"}, {"10:15", "10:45"}, {"11:30", "12:30"},
		{"10:00", "11:00"}, {"11:00", "12:00"},
	}

	var wg sync.WaitGroup
	errs := make([]error, len(slots))
	for i, s := range slots {
		wg.Add(1)
		go func(i int, start, end string) {
			defer wg.Done()
			_, errs[i] = coord.CreateReservation(ctx, reservation(t, 7, int64(i+1), "2024-06-01", start, end))
		}(i, s[0], s[1])
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, ErrNotAvailable)
		}
	}

	confirmed := store.confirmed()
	require.NotEmpty(t, confirmed)
	for i := 0; i < len(confirmed); i++ {
		for j := i + 1; j < len(confirmed); j++ {
			assert.False(t, confirmed[i].OverlapsWith(confirmed[j]),
				"confirmed reservations %d and %d overlap", confirmed[i].ID, confirmed[j].ID)
		}
	}
}

// An advisory check result must never let two competing commits through.
func TestRevalidationUnderLock(t *testing.T) {
	store := newFakeStore()
	store.addTerrain(7, true)
	coord := newTestCoordinator(store, 0)
	ctx := context.Background()

	r1 := reservation(t, 7, 1, "2024-06-01", "10:00", "11:00")
	r2 := reservation(t, 7, 2, "2024-06-01", "10:30", "11:30")

	// Both sessions see the slot free before committing.
	free, err := coord.CheckAvailability(ctx, 7, r1.Date, r1.Start, r1.End)
	require.NoError(t, err)
	require.True(t, free)
	free, err = coord.CheckAvailability(ctx, 7, r2.Date, r2.Start, r2.End)
	require.NoError(t, err)
	require.True(t, free)

	var wg sync.WaitGroup
	results := make([]error, 2)
	wg.Add(2)
	go func() { defer wg.Done(); _, results[0] = coord.CreateReservation(ctx, r1) }()
	go func() { defer wg.Done(); _, results[1] = coord.CreateReservation(ctx, r2) }()
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, ErrNotAvailable)
		}
	}
	assert.Equal(t, 1, succeeded)
}

// Requests for different terrains must proceed in parallel: both
// availability checks are observed inside the store at the same time.
// The first check parks on a barrier while still holding its terrain lock;
// if locking were global instead of per terrain, the second check could
// never arrive.
func TestDifferentTerrainsRunConcurrently(t *testing.T) {
	store := newFakeStore()
	store.addTerrain(1, true)
	store.addTerrain(2, true)
	store.checkEntered = make(chan struct{})
	store.checkRelease = make(chan struct{})
	coord := newTestCoordinator(store, 0)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i, terrainID := range []int64{1, 2} {
		wg.Add(1)
		go func(i int, terrainID int64) {
			defer wg.Done()
			_, err := coord.CreateReservation(ctx, reservation(t, terrainID, int64(i+1), "2024-06-01", "10:00", "11:00"))
			assert.NoError(t, err)
		}(i, terrainID)
	}

	for i := 0; i < 2; i++ {
		select {
		case <-store.checkEntered:
		case <-time.After(2 * time.Second):
			close(store.checkRelease)
			t.Fatalf("only %d check(s) entered the store; terrain 1's lock blocked terrain 2", i)
		}
	}

	store.mu.Lock()
	maxParallel := store.maxInCheck
	store.mu.Unlock()
	assert.Equal(t, 2, maxParallel, "checks for distinct terrains should overlap in time")

	close(store.checkRelease)
	wg.Wait()
}

// A store failure during commit must not leave the terrain lock held.
func TestLockReleasedOnStoreFailure(t *testing.T) {
	store := newFakeStore()
	store.addTerrain(7, true)
	store.failInsert = errors.New("disk full")
	coord := newTestCoordinator(store, 0)
	ctx := context.Background()

	_, err := coord.CreateReservation(ctx, reservation(t, 7, 1, "2024-06-01", "10:00", "11:00"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotAvailable, "store failure must not be reported as unavailable")

	// The same terrain must remain bookable afterwards.
	store.mu.Lock()
	store.failInsert = nil
	store.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		_, err := coord.CreateReservation(ctx, reservation(t, 7, 2, "2024-06-01", "10:00", "11:00"))
		done <- err
	}()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("terrain lock was not released after store failure")
	}
}

func TestLockAcquireTimeout(t *testing.T) {
	store := newFakeStore()
	store.addTerrain(7, true)
	logger := zerolog.New(io.Discard)
	registry := locks.NewRegistry()
	coord := NewCoordinator(store, registry, events.NewBus(), 50*time.Millisecond, &logger)

	// Hold the terrain lock so the coordinator has to queue.
	require.NoError(t, registry.Get(7).Acquire(context.Background()))
	defer registry.Get(7).Release()

	_, err := coord.CreateReservation(context.Background(), reservation(t, 7, 1, "2024-06-01", "10:00", "11:00"))
	assert.ErrorIs(t, err, ErrLockTimeout)
}

func TestCancelReservation(t *testing.T) {
	store := newFakeStore()
	store.addTerrain(7, true)
	coord := newTestCoordinator(store, 0)
	ctx := context.Background()

	created, err := coord.CreateReservation(ctx, reservation(t, 7, 1, "2024-06-01", "10:00", "11:00"))
	require.NoError(t, err)

	owner := &models.User{ID: 1, Role: models.RoleUser}
	stranger := &models.User{ID: 2, Role: models.RoleUser}
	admin := &models.User{ID: 3, Role: models.RoleAdmin}

	t.Run("StrangerForbidden", func(t *testing.T) {
		assert.ErrorIs(t, coord.CancelReservation(ctx, created.ID, stranger), ErrNotAllowed)
	})

	t.Run("OwnerAllowed", func(t *testing.T) {
		assert.NoError(t, coord.CancelReservation(ctx, created.ID, owner))
	})

	t.Run("IdempotentSecondCancel", func(t *testing.T) {
		assert.NoError(t, coord.CancelReservation(ctx, created.ID, owner))
	})

	t.Run("SlotFreedAfterCancel", func(t *testing.T) {
		_, err := coord.CreateReservation(ctx, reservation(t, 7, 2, "2024-06-01", "10:00", "11:00"))
		assert.NoError(t, err)
	})

	t.Run("AdminAllowed", func(t *testing.T) {
		second, err := coord.CreateReservation(ctx, reservation(t, 7, 1, "2024-06-01", "14:00", "15:00"))
		require.NoError(t, err)
		assert.NoError(t, coord.CancelReservation(ctx, second.ID, admin))
	})

	t.Run("UnknownID", func(t *testing.T) {
		assert.ErrorIs(t, coord.CancelReservation(ctx, 999, owner), ErrNotFound)
	})
}

func TestReservationCreatedEventPublished(t *testing.T) {
	store := newFakeStore()
	store.addTerrain(7, true)
	logger := zerolog.New(io.Discard)
	bus := events.NewBus()
	coord := NewCoordinator(store, locks.NewRegistry(), bus, 0, &logger)

	var received []events.Event
	var mu sync.Mutex
	bus.Subscribe(events.TypeReservationCreated, func(e events.Event) error {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, e)
		return nil
	})

	created, err := coord.CreateReservation(context.Background(), reservation(t, 7, 1, "2024-06-01", "10:00", "11:00"))
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
	assert.Equal(t, created.ID, received[0].ReservationID)
	assert.Equal(t, int64(7), received[0].TerrainID)
}
