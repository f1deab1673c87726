package domain

import (
	"encoding/json"
	"time"
)

type CheckoutStatus string

const (
	CheckoutStatusStarted          CheckoutStatus = "STARTED"
	CheckoutStatusHistoryRecorded  CheckoutStatus = "HISTORY_RECORDED"
	CheckoutStatusPaymentRecorded  CheckoutStatus = "PAYMENT_RECORDED"
	CheckoutStatusInventoryPartial CheckoutStatus = "INVENTORY_PARTIAL"
	CheckoutStatusCompleted        CheckoutStatus = "COMPLETED"
	CheckoutStatusFailed           CheckoutStatus = "FAILED"
)

var transitions = map[CheckoutStatus][]CheckoutStatus{
	CheckoutStatusStarted:          {CheckoutStatusHistoryRecorded, CheckoutStatusFailed},
	CheckoutStatusHistoryRecorded:  {CheckoutStatusPaymentRecorded},
	CheckoutStatusPaymentRecorded:  {CheckoutStatusInventoryPartial, CheckoutStatusCompleted},
	CheckoutStatusInventoryPartial: {CheckoutStatusInventoryPartial, CheckoutStatusCompleted},
}

// CanTransitionTo reports whether a saga in status from may move to status to.
// Once history is recorded a saga can only move forward.
func CanTransitionTo(from, to CheckoutStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func (s CheckoutStatus) IsTerminal() bool {
	return s == CheckoutStatusCompleted || s == CheckoutStatusFailed
}

func (s CheckoutStatus) String() string {
	return string(s)
}

// CheckoutItem is one line of the cart detail handed to checkout.
type CheckoutItem struct {
	ProductID string  `json:"_id"`
	Title     string  `json:"title"`
	Price     float64 `json:"price"`
	Quantity  int     `json:"quantity"`
}

// PaymentData is the gateway confirmation. It is validated by the caller;
// Raw is stored verbatim on the payment record.
type PaymentData struct {
	PaymentID string          `json:"paymentID"`
	Raw       json.RawMessage `json:"-"`
}

type Buyer struct {
	ID       string `bson:"id" json:"id"`
	Name     string `bson:"name" json:"name"`
	Lastname string `bson:"lastname" json:"lastname"`
	Email    string `bson:"email" json:"email"`
}

func BuyerOf(u *User) Buyer {
	return Buyer{ID: u.ID, Name: u.Name, Lastname: u.Lastname, Email: u.Email}
}

// PaymentRecord is written once per checkout and never updated.
type PaymentRecord struct {
	ID        string           `bson:"_id" json:"_id"`
	User      Buyer            `bson:"user" json:"user"`
	Data      string           `bson:"data" json:"data"`
	Product   []PurchaseRecord `bson:"product" json:"product"`
	CreatedAt time.Time        `bson:"created_at" json:"createdAt"`
}

type StepLog struct {
	Status CheckoutStatus `bson:"status" json:"status"`
	Error  string         `bson:"error,omitempty" json:"error,omitempty"`
	At     time.Time      `bson:"at" json:"at"`
}

// CheckoutSaga is the persisted step log of one checkout.
type CheckoutSaga struct {
	ID               string           `bson:"_id"`
	UserID           string           `bson:"user_id"`
	PaymentID        string           `bson:"payment_id"`
	Status           CheckoutStatus   `bson:"status"`
	Buyer            Buyer            `bson:"buyer"`
	PaymentData      string           `bson:"payment_data"`
	Purchases        []PurchaseRecord `bson:"purchases"`
	Steps            []StepLog        `bson:"steps"`
	InventoryApplied int              `bson:"inventory_applied"`
	Published        bool             `bson:"published"`
	CreatedAt        time.Time        `bson:"created_at"`
	UpdatedAt        time.Time        `bson:"updated_at"`
}

// PaymentRecord rebuilds the payment record the saga is expected to write.
func (s *CheckoutSaga) PaymentRecord() *PaymentRecord {
	return &PaymentRecord{
		ID:        s.ID,
		User:      s.Buyer,
		Data:      s.PaymentData,
		Product:   s.Purchases,
		CreatedAt: s.CreatedAt,
	}
}

// SoldItems aggregates the purchases per distinct product, keeping the
// order in which products first appear.
func (s *CheckoutSaga) SoldItems() []SoldItem {
	return AggregateSold(s.Purchases)
}

type SoldItem struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

func AggregateSold(purchases []PurchaseRecord) []SoldItem {
	index := make(map[string]int, len(purchases))
	items := make([]SoldItem, 0, len(purchases))
	for _, p := range purchases {
		if i, ok := index[p.ProductID]; ok {
			items[i].Quantity += p.Quantity
			continue
		}
		index[p.ProductID] = len(items)
		items = append(items, SoldItem{ProductID: p.ProductID, Quantity: p.Quantity})
	}
	return items
}

type ItemStatus string

const (
	ItemApplied ItemStatus = "applied"
	ItemFailed  ItemStatus = "failed"
	ItemSkipped ItemStatus = "skipped"
)

type ItemOutcome struct {
	ProductID string     `json:"productId"`
	Quantity  int        `json:"quantity"`
	Status    ItemStatus `json:"status"`
	Error     string     `json:"error,omitempty"`
}

type CheckoutResult struct {
	CheckoutID string           `json:"checkoutId"`
	Status     CheckoutStatus   `json:"status"`
	Purchases  []PurchaseRecord `json:"history"`
	Inventory  []ItemOutcome    `json:"inventory"`
}

// CheckoutEvent is published once a checkout has completed.
type CheckoutEvent struct {
	CheckoutID  string           `json:"checkoutId"`
	UserID      string           `json:"userId"`
	PaymentID   string           `json:"paymentId"`
	Items       []SoldItem       `json:"items"`
	Purchases   []PurchaseRecord `json:"purchases"`
	CompletedAt time.Time        `json:"completedAt"`
}
