package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/fjod/go_shop/internal/domain"
	"github.com/fjod/go_shop/internal/service"
)

type CheckoutAPI interface {
	Checkout(ctx context.Context, user *domain.User, req service.CheckoutRequest) (*domain.CheckoutResult, error)
}

type CheckoutHandler struct {
	checkouts CheckoutAPI
	timeout   time.Duration
	maxBody   int64
}

func NewCheckoutHandler(checkouts CheckoutAPI, timeout time.Duration, maxBody int64) *CheckoutHandler {
	return &CheckoutHandler{
		checkouts: checkouts,
		timeout:   timeout,
		maxBody:   maxBody,
	}
}

type CheckoutRequestDTO struct {
	CartDetail  []domain.CheckoutItem `json:"cartDetail"`
	PaymentData json.RawMessage       `json:"paymentData"`
}

type CheckoutResponseDTO struct {
	Success    bool                   `json:"success"`
	CheckoutID string                 `json:"checkoutId"`
	Status     domain.CheckoutStatus  `json:"status"`
	Cart       []domain.CartLine      `json:"cart"`
	CartDetail []domain.ProductDetail `json:"cartDetail"`
	Inventory  []domain.ItemOutcome   `json:"inventory"`
}

func (h *CheckoutHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req CheckoutRequestDTO
	if !decodeJSON(w, r, h.maxBody, &req) {
		return
	}

	var payment domain.PaymentData
	if len(req.PaymentData) == 0 || json.Unmarshal(req.PaymentData, &payment) != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "paymentData must be a JSON object", "")
		return
	}
	payment.Raw = req.PaymentData

	result, err := h.checkouts.Checkout(ctx, UserFromContext(r.Context()), service.CheckoutRequest{
		Items:   req.CartDetail,
		Payment: payment,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, CheckoutResponseDTO{
		Success:    true,
		CheckoutID: result.CheckoutID,
		Status:     result.Status,
		Cart:       []domain.CartLine{},
		CartDetail: []domain.ProductDetail{},
		Inventory:  result.Inventory,
	})
}
