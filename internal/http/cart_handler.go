package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/go_shop/internal/domain"
	"github.com/go-chi/chi/v5"
)

type CartAPI interface {
	AddToCart(ctx context.Context, userID, productID string) ([]domain.CartLine, error)
	RemoveFromCart(ctx context.Context, userID, productID string) (*domain.CartDetail, error)
	GetCartDetail(ctx context.Context, userID string) (*domain.CartDetail, error)
}

type CartHandler struct {
	carts   CartAPI
	timeout time.Duration
	maxBody int64
}

func NewCartHandler(carts CartAPI, timeout time.Duration, maxBody int64) *CartHandler {
	return &CartHandler{
		carts:   carts,
		timeout: timeout,
		maxBody: maxBody,
	}
}

type AddItemRequestDTO struct {
	ProductID string `json:"productId"`
}

type CartDetailResponseDTO struct {
	Success    bool                   `json:"success"`
	Cart       []domain.CartLine      `json:"cart"`
	CartDetail []domain.ProductDetail `json:"cartDetail"`
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req AddItemRequestDTO
	if !decodeJSON(w, r, h.maxBody, &req) {
		return
	}

	cart, err := h.carts.AddToCart(ctx, UserFromContext(r.Context()).ID, req.ProductID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, cart)
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	productID := chi.URLParam(r, "productId")
	detail, err := h.carts.RemoveFromCart(ctx, UserFromContext(r.Context()).ID, productID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, CartDetailResponseDTO{Success: true, Cart: detail.Cart, CartDetail: detail.CartDetail})
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	detail, err := h.carts.GetCartDetail(ctx, UserFromContext(r.Context()).ID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, CartDetailResponseDTO{Success: true, Cart: detail.Cart, CartDetail: detail.CartDetail})
}
