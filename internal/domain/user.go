package domain

import "time"

// RoleUser is the default role. Any other role value is treated as admin.
const RoleUser = 0

type User struct {
	ID       string           `bson:"_id" json:"_id"`
	Email    string           `bson:"email" json:"email"`
	Name     string           `bson:"name" json:"name"`
	Lastname string           `bson:"lastname" json:"lastname"`
	Image    string           `bson:"image" json:"image"`
	Role     int              `bson:"role" json:"role"`
	Password string           `bson:"password" json:"-"`
	Token    string           `bson:"token" json:"-"`
	TokenExp time.Time        `bson:"token_exp" json:"-"`
	Cart     []CartLine       `bson:"cart" json:"cart"`
	History  []PurchaseRecord `bson:"history" json:"history"`
}

func (u *User) IsAdmin() bool {
	return u.Role != RoleUser
}

// CartLine is one product entry in a user's cart. A cart never holds two
// lines with the same ProductID.
type CartLine struct {
	ProductID string    `bson:"product_id" json:"id"`
	Quantity  int       `bson:"quantity" json:"quantity"`
	AddedAt   time.Time `bson:"added_at" json:"date"`
}

// PurchaseRecord is a copy of what was bought, taken at checkout time.
// Title and UnitPrice are copied so later catalog edits do not change it.
type PurchaseRecord struct {
	ProductID    string    `bson:"product_id" json:"id"`
	Title        string    `bson:"title" json:"name"`
	UnitPrice    float64   `bson:"unit_price" json:"price"`
	Quantity     int       `bson:"quantity" json:"quantity"`
	PurchaseDate time.Time `bson:"purchase_date" json:"dateOfPurchase"`
	PaymentID    string    `bson:"payment_id" json:"paymentId"`
}

// Profile is an identity asserted by an external provider (social login).
type Profile struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Image string `json:"image"`
}

// Identity is what an authenticated caller learns about itself.
type Identity struct {
	ID       string           `json:"_id"`
	IsAdmin  bool             `json:"isAdmin"`
	IsAuth   bool             `json:"isAuth"`
	Email    string           `json:"email"`
	Name     string           `json:"name"`
	Lastname string           `json:"lastname"`
	Role     int              `json:"role"`
	Image    string           `json:"image"`
	Cart     []CartLine       `json:"cart"`
	History  []PurchaseRecord `json:"history"`
}

func (u *User) Identity() Identity {
	return Identity{
		ID:       u.ID,
		IsAdmin:  u.IsAdmin(),
		IsAuth:   true,
		Email:    u.Email,
		Name:     u.Name,
		Lastname: u.Lastname,
		Role:     u.Role,
		Image:    u.Image,
		Cart:     u.Cart,
		History:  u.History,
	}
}
