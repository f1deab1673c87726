package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/go_shop/internal/domain"
	"github.com/fjod/go_shop/internal/service"
)

type AccountAPI interface {
	Register(ctx context.Context, in service.RegisterInput) (*domain.User, error)
	Login(ctx context.Context, in service.LoginInput) (*domain.User, string, error)
	Logout(ctx context.Context, userID string) error
	WhoAmI(ctx context.Context, user *domain.User) domain.Identity
	GetHistory(ctx context.Context, userID string) ([]domain.PurchaseRecord, error)
	UpdateProfile(ctx context.Context, userID string, in service.ProfileUpdate) (*domain.User, error)
	UpdatePassword(ctx context.Context, user *domain.User, current, next string) error
}

type AccountHandler struct {
	accounts  AccountAPI
	timeout   time.Duration
	maxBody   int64
	cookieTTL time.Duration
}

func NewAccountHandler(accounts AccountAPI, timeout time.Duration, maxBody int64, cookieTTL time.Duration) *AccountHandler {
	return &AccountHandler{
		accounts:  accounts,
		timeout:   timeout,
		maxBody:   maxBody,
		cookieTTL: cookieTTL,
	}
}

type RegisterRequestDTO struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Lastname string `json:"lastname"`
	Image    string `json:"image"`
}

type LoginRequestDTO struct {
	Email    string          `json:"email"`
	Password string          `json:"password"`
	Profile  *domain.Profile `json:"profile"`
	IDToken  string          `json:"idToken"`
}

type LoginResponseDTO struct {
	LoginSuccess bool   `json:"loginSuccess"`
	UserID       string `json:"userId"`
	Token        string `json:"token"`
}

type UpdateProfileRequestDTO struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Image string `json:"image"`
}

type UpdatePasswordRequestDTO struct {
	Password    string `json:"password"`
	NewPassword string `json:"newPassword"`
}

func (h *AccountHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req RegisterRequestDTO
	if !decodeJSON(w, r, h.maxBody, &req) {
		return
	}

	_, err := h.accounts.Register(ctx, service.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
		Lastname: req.Lastname,
		Image:    req.Image,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *AccountHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req LoginRequestDTO
	if !decodeJSON(w, r, h.maxBody, &req) {
		return
	}

	user, token, err := h.accounts.Login(ctx, service.LoginInput{
		Email:    req.Email,
		Password: req.Password,
		Profile:  req.Profile,
		IDToken:  req.IDToken,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     AuthCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(h.cookieTTL.Seconds()),
	})
	respondJSON(w, http.StatusOK, LoginResponseDTO{LoginSuccess: true, UserID: user.ID, Token: token})
}

func (h *AccountHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	user := UserFromContext(r.Context())
	if err := h.accounts.Logout(ctx, user.ID); err != nil {
		handleServiceError(w, r, err)
		return
	}

	http.SetCookie(w, &http.Cookie{Name: AuthCookie, Value: "", Path: "/", MaxAge: -1})
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *AccountHandler) WhoAmI(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	respondJSON(w, http.StatusOK, h.accounts.WhoAmI(r.Context(), user))
}

func (h *AccountHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	history, err := h.accounts.GetHistory(ctx, UserFromContext(r.Context()).ID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"success": true, "history": history})
}

func (h *AccountHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req UpdateProfileRequestDTO
	if !decodeJSON(w, r, h.maxBody, &req) {
		return
	}

	user, err := h.accounts.UpdateProfile(ctx, UserFromContext(r.Context()).ID, service.ProfileUpdate{
		Email: req.Email,
		Name:  req.Name,
		Image: req.Image,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"success": true, "user": user})
}

func (h *AccountHandler) UpdatePassword(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req UpdatePasswordRequestDTO
	if !decodeJSON(w, r, h.maxBody, &req) {
		return
	}

	if err := h.accounts.UpdatePassword(ctx, UserFromContext(r.Context()), req.Password, req.NewPassword); err != nil {
		handleServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}
