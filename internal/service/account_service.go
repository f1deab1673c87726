package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/fjod/go_shop/internal/credential"
	"github.com/fjod/go_shop/internal/domain"
	"github.com/fjod/go_shop/internal/logging"
	"github.com/fjod/go_shop/internal/repository"
	"go.uber.org/zap"
)

const (
	minPasswordLength = 5
	maxNameLength     = 50
)

type RegisterInput struct {
	Email    string
	Password string
	Name     string
	Lastname string
	Image    string
}

// LoginInput selects the login flow: IDToken, then Profile, then password.
type LoginInput struct {
	Email    string
	Password string
	Profile  *domain.Profile
	IDToken  string
}

type ProfileUpdate struct {
	Email string
	Name  string
	Image string
}

type AccountService struct {
	users    repository.UserRepository
	creds    *credential.Store
	verifier credential.ProfileVerifier
}

// NewAccountService wires account operations. verifier may be nil, which
// disables ID token login.
func NewAccountService(users repository.UserRepository, creds *credential.Store, verifier credential.ProfileVerifier) *AccountService {
	return &AccountService{users: users, creds: creds, verifier: verifier}
}

func validateEmail(email string) error {
	if _, err := mail.ParseAddress(email); err != nil || strings.ContainsAny(email, " <>") {
		return domain.Validationf("invalid email %q", email)
	}
	return nil
}

func validateName(name string) error {
	if utf8.RuneCountInString(name) > maxNameLength {
		return domain.Validationf("name longer than %d characters", maxNameLength)
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < minPasswordLength {
		return domain.Validationf("password shorter than %d characters", minPasswordLength)
	}
	return nil
}

func (s *AccountService) Register(ctx context.Context, in RegisterInput) (*domain.User, error) {
	in.Email = strings.TrimSpace(in.Email)
	if err := validateEmail(in.Email); err != nil {
		return nil, err
	}
	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}
	if err := validateName(in.Name); err != nil {
		return nil, err
	}

	hash, err := s.creds.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	user := &domain.User{
		Email:    in.Email,
		Name:     in.Name,
		Lastname: in.Lastname,
		Image:    in.Image,
		Role:     domain.RoleUser,
		Password: hash,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	logging.FromContext(ctx).Info("user registered", zap.String("user_id", user.ID))
	return user, nil
}

// Login authenticates the caller and returns a fresh token. Password failures
// are ErrUnauthorized whether the email is unknown or the password is wrong.
func (s *AccountService) Login(ctx context.Context, in LoginInput) (*domain.User, string, error) {
	switch {
	case in.IDToken != "":
		if s.verifier == nil {
			return nil, "", domain.Validationf("id token login is not configured")
		}
		profile, err := s.verifier.VerifyIDToken(ctx, in.IDToken)
		if err != nil {
			return nil, "", err
		}
		return s.creds.SocialLogin(ctx, profile)

	case in.Profile != nil:
		return s.creds.SocialLogin(ctx, *in.Profile)
	}

	user, err := s.users.FindByEmail(ctx, strings.TrimSpace(in.Email))
	if errors.Is(err, domain.ErrNotFound) {
		return nil, "", fmt.Errorf("%w: no user for the given email", domain.ErrUnauthorized)
	}
	if err != nil {
		return nil, "", err
	}
	if !s.creds.VerifyPassword(user, in.Password) {
		return nil, "", fmt.Errorf("%w: wrong password", domain.ErrUnauthorized)
	}

	token, err := s.creds.IssueToken(ctx, user)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

func (s *AccountService) Logout(ctx context.Context, userID string) error {
	return s.creds.InvalidateToken(ctx, userID)
}

func (s *AccountService) WhoAmI(_ context.Context, user *domain.User) domain.Identity {
	return user.Identity()
}

// GetHistory returns the purchase history in the order it was recorded.
func (s *AccountService) GetHistory(ctx context.Context, userID string) ([]domain.PurchaseRecord, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.History == nil {
		return []domain.PurchaseRecord{}, nil
	}
	return user.History, nil
}

// UpdateProfile changes the user's email, name and image. Carts of other users
// that hold this user's products keep the old writer details in their cached
// cart detail until it expires or their cart changes.
func (s *AccountService) UpdateProfile(ctx context.Context, userID string, in ProfileUpdate) (*domain.User, error) {
	in.Email = strings.TrimSpace(in.Email)
	if err := validateEmail(in.Email); err != nil {
		return nil, err
	}
	if err := validateName(in.Name); err != nil {
		return nil, err
	}
	return s.users.UpdateProfile(ctx, userID, in.Email, in.Name, in.Image)
}

// UpdatePassword requires the current password, so it is not available to
// accounts created through social login.
func (s *AccountService) UpdatePassword(ctx context.Context, user *domain.User, current, next string) error {
	if !s.creds.VerifyPassword(user, current) {
		return fmt.Errorf("%w: wrong password", domain.ErrUnauthorized)
	}
	if err := validatePassword(next); err != nil {
		return err
	}
	hash, err := s.creds.HashPassword(next)
	if err != nil {
		return err
	}
	return s.users.SetPassword(ctx, user.ID, hash)
}
