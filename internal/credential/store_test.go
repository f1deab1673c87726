package credential

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/fjod/go_shop/internal/domain"
	"github.com/fjod/go_shop/internal/repository"
	"github.com/fjod/go_shop/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// sequenceIssuer returns tok-1, tok-2, ... valid for ttl.
type sequenceIssuer struct {
	m   sync.Mutex
	n   int
	ttl time.Duration
	err error
}

func (s *sequenceIssuer) Issue(_ string, now time.Time) (string, time.Time, error) {
	s.m.Lock()
	defer s.m.Unlock()
	if s.err != nil {
		return "", time.Time{}, s.err
	}
	s.n++
	return fmt.Sprintf("tok-%d", s.n), now.Add(s.ttl), nil
}

type failingTokenUsers struct {
	repository.UserRepository
	err error
}

func (f failingTokenUsers) SetToken(context.Context, string, string, time.Time) error {
	return f.err
}

func (f failingTokenUsers) FindByToken(context.Context, string) (*domain.User, error) {
	return nil, f.err
}

func newTestStore(t *testing.T) (*Store, repository.UserRepository, *time.Time) {
	t.Helper()
	users := memory.NewStore().Users()
	store := NewStore(users, &sequenceIssuer{ttl: time.Hour}, bcrypt.MinCost)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	return store, users, &now
}

func registerUser(t *testing.T, store *Store, users repository.UserRepository, email, password string) *domain.User {
	t.Helper()
	hash, err := store.HashPassword(password)
	require.NoError(t, err)
	user := &domain.User{Email: email, Password: hash}
	require.NoError(t, users.Create(context.Background(), user))
	return user
}

func TestStore_IssueAndAuthenticate(t *testing.T) {
	store, users, _ := newTestStore(t)
	ctx := context.Background()
	user := registerUser(t, store, users, "a@shop.test", "pw")

	token, err := store.IssueToken(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)

	found, err := store.Authenticate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, found.ID)
}

func TestStore_ReissueInvalidatesPreviousToken(t *testing.T) {
	store, users, _ := newTestStore(t)
	ctx := context.Background()
	user := registerUser(t, store, users, "a@shop.test", "pw")

	first, err := store.IssueToken(ctx, user)
	require.NoError(t, err)
	second, err := store.IssueToken(ctx, user)
	require.NoError(t, err)

	_, err = store.Authenticate(ctx, first)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	_, err = store.Authenticate(ctx, second)
	assert.NoError(t, err)
}

func TestStore_Authenticate_Rejects(t *testing.T) {
	store, users, now := newTestStore(t)
	ctx := context.Background()
	user := registerUser(t, store, users, "a@shop.test", "pw")
	token, err := store.IssueToken(ctx, user)
	require.NoError(t, err)

	t.Run("empty token", func(t *testing.T) {
		_, err := store.Authenticate(ctx, "")
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("unknown token", func(t *testing.T) {
		_, err := store.Authenticate(ctx, "tok-999")
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("expired token", func(t *testing.T) {
		*now = now.Add(2 * time.Hour)
		_, err := store.Authenticate(ctx, token)
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})
}

func TestStore_InvalidateToken(t *testing.T) {
	store, users, _ := newTestStore(t)
	ctx := context.Background()
	user := registerUser(t, store, users, "a@shop.test", "pw")
	token, err := store.IssueToken(ctx, user)
	require.NoError(t, err)

	require.NoError(t, store.InvalidateToken(ctx, user.ID))
	require.NoError(t, store.InvalidateToken(ctx, user.ID))

	_, err = store.Authenticate(ctx, token)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestStore_PersistenceErrorsPassThrough(t *testing.T) {
	storeErr := domain.Persistence("set token", errors.New("connection reset"))
	users := failingTokenUsers{UserRepository: memory.NewStore().Users(), err: storeErr}
	store := NewStore(users, &sequenceIssuer{ttl: time.Hour}, bcrypt.MinCost)

	_, err := store.IssueToken(context.Background(), &domain.User{ID: "u1"})
	assert.ErrorIs(t, err, domain.ErrPersistence)

	_, err = store.Authenticate(context.Background(), "tok-1")
	assert.ErrorIs(t, err, domain.ErrPersistence)
	assert.NotErrorIs(t, err, domain.ErrUnauthorized)
}

func TestStore_VerifyPassword(t *testing.T) {
	store, users, _ := newTestStore(t)
	user := registerUser(t, store, users, "a@shop.test", "pw")

	assert.True(t, store.VerifyPassword(user, "pw"))
	assert.False(t, store.VerifyPassword(user, "wrong"))
	assert.False(t, store.VerifyPassword(nil, "pw"))
}

func TestStore_SocialLogin(t *testing.T) {
	store, users, _ := newTestStore(t)
	ctx := context.Background()

	user, token, err := store.SocialLogin(ctx, domain.Profile{ID: "g@shop.test", Name: "gale"})
	require.NoError(t, err)
	assert.Equal(t, "g@shop.test", user.Email)
	assert.Equal(t, "gale", user.Name)
	assert.Empty(t, user.Password)
	assert.NotEmpty(t, token)

	again, _, err := store.SocialLogin(ctx, domain.Profile{ID: "g@shop.test"})
	require.NoError(t, err)
	assert.Equal(t, user.ID, again.ID)

	// social-only accounts never match a password
	stored, err := users.FindByEmail(ctx, "g@shop.test")
	require.NoError(t, err)
	assert.False(t, store.VerifyPassword(stored, ""))

	_, _, err = store.SocialLogin(ctx, domain.Profile{})
	assert.ErrorIs(t, err, domain.ErrValidation)
}
