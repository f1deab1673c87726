package credential

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_shop/internal/domain"
	"github.com/fjod/go_shop/internal/repository"
)

// Store wraps the user record for everything credential related: password
// checks, token issuance and token lookup.
type Store struct {
	users  repository.UserRepository
	issuer TokenIssuer
	cost   int
	now    func() time.Time
}

func NewStore(users repository.UserRepository, issuer TokenIssuer, bcryptCost int) *Store {
	return &Store{
		users:  users,
		issuer: issuer,
		cost:   bcryptCost,
		now:    time.Now,
	}
}

func (s *Store) HashPassword(plain string) (string, error) {
	return HashPassword(plain, s.cost)
}

// VerifyPassword never fails; a mismatch is just false.
func (s *Store) VerifyPassword(user *domain.User, candidate string) bool {
	if user == nil {
		return false
	}
	return ComparePassword(user.Password, candidate)
}

// IssueToken replaces the user's session token with a fresh one.
func (s *Store) IssueToken(ctx context.Context, user *domain.User) (string, error) {
	token, expiresAt, err := s.issuer.Issue(user.ID, s.now())
	if err != nil {
		return "", err
	}
	if err := s.users.SetToken(ctx, user.ID, token, expiresAt); err != nil {
		return "", err
	}
	user.Token = token
	user.TokenExp = expiresAt
	return token, nil
}

// InvalidateToken clears the stored token. Clearing an empty token succeeds.
func (s *Store) InvalidateToken(ctx context.Context, userID string) error {
	return s.users.SetToken(ctx, userID, "", time.Time{})
}

// Authenticate resolves a token to its user. The token must match the stored
// one exactly and must not be expired.
func (s *Store) Authenticate(ctx context.Context, token string) (*domain.User, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: missing token", domain.ErrUnauthorized)
	}
	user, err := s.users.FindByToken(ctx, token)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown token", domain.ErrUnauthorized)
		}
		return nil, err
	}
	if user.Token != token {
		return nil, fmt.Errorf("%w: unknown token", domain.ErrUnauthorized)
	}
	if !user.TokenExp.After(s.now()) {
		return nil, fmt.Errorf("%w: token expired", domain.ErrUnauthorized)
	}
	return user, nil
}

// SocialLogin trusts the external profile: the profile id is used as the
// email and a minimal user is created on first sight. No password is checked.
func (s *Store) SocialLogin(ctx context.Context, profile domain.Profile) (*domain.User, string, error) {
	if profile.ID == "" {
		return nil, "", domain.Validationf("profile id is required")
	}

	user, err := s.users.FindByEmail(ctx, profile.ID)
	if errors.Is(err, domain.ErrNotFound) {
		user = &domain.User{Email: profile.ID, Name: profile.Name, Image: profile.Image}
		err = s.users.Create(ctx, user)
		if errors.Is(err, repository.ErrDuplicateEmail) {
			// lost a race with a concurrent first login
			user, err = s.users.FindByEmail(ctx, profile.ID)
		}
	}
	if err != nil {
		return nil, "", err
	}

	token, err := s.IssueToken(ctx, user)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}
