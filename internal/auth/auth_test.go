package auth

import (
	"context"
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"courtbook/internal/database"
	"courtbook/internal/models"
)

type fakeStore struct {
	users  map[string]*models.User
	hashes map[string]string
	nextID int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{users: make(map[string]*models.User), hashes: make(map[string]string), nextID: 1}
}

func (f *fakeStore) CreateUser(_ context.Context, u *models.User, passwordHash string) (int64, error) {
	if _, ok := f.users[u.Username]; ok {
		return 0, database.ErrDuplicateUser
	}
	u.ID = f.nextID
	f.nextID++
	f.users[u.Username] = u
	f.hashes[u.Username] = passwordHash
	return u.ID, nil
}

func (f *fakeStore) UserByUsername(_ context.Context, username string) (*models.User, string, error) {
	u, ok := f.users[username]
	if !ok {
		return nil, "", database.ErrNotFound
	}
	return u, f.hashes[username], nil
}

func newTestService(store Store) *Service {
	logger := zerolog.New(io.Discard)
	return NewService(store, &logger)
}

func TestRegisterAndAuthenticate(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	ctx := context.Background()

	id, err := svc.Register(ctx, &models.User{Username: "alice", Email: "alice@example.com", FirstName: "Alice"}, "s3cret42")
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	// Plaintext must never reach the store.
	assert.NotEqual(t, "s3cret42", store.hashes["alice"])
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(store.hashes["alice"]), []byte("s3cret42")))

	u, err := svc.Authenticate(ctx, "alice", "s3cret42")
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)
	assert.Equal(t, models.RoleUser, u.Role)
}

func TestAuthenticateRejections(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	ctx := context.Background()

	_, err := svc.Register(ctx, &models.User{Username: "alice", Email: "alice@example.com", FirstName: "Alice"}, "s3cret42")
	require.NoError(t, err)

	_, err = svc.Authenticate(ctx, "alice", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	// Unknown user yields the same error as a wrong password.
	_, err = svc.Authenticate(ctx, "nobody", "s3cret42")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRegisterDuplicate(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	ctx := context.Background()

	_, err := svc.Register(ctx, &models.User{Username: "alice", Email: "alice@example.com", FirstName: "Alice"}, "s3cret42")
	require.NoError(t, err)

	_, err = svc.Register(ctx, &models.User{Username: "alice", Email: "other@example.com", FirstName: "Alice"}, "s3cret42")
	assert.ErrorIs(t, err, database.ErrDuplicateUser)
}

func TestRegisterForcesUserRole(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	u := &models.User{Username: "mallory", Email: "m@example.com", FirstName: "Mallory", Role: models.RoleAdmin}
	_, err := svc.Register(context.Background(), u, "s3cret42")
	require.NoError(t, err)
	assert.Equal(t, models.RoleUser, u.Role)
}
