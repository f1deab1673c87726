package domain

type Product struct {
	ID          string   `bson:"_id" json:"_id"`
	Title       string   `bson:"title" json:"title"`
	Description string   `bson:"description" json:"description"`
	Price       float64  `bson:"price" json:"price"`
	Images      []string `bson:"images" json:"images"`
	Writer      string   `bson:"writer" json:"writer"`
	Sold        int      `bson:"sold" json:"sold"`
}

// Writer is the owning user of a product, resolved for display.
type Writer struct {
	ID       string `bson:"_id" json:"_id"`
	Name     string `bson:"name" json:"name"`
	Lastname string `bson:"lastname" json:"lastname"`
	Email    string `bson:"email" json:"email"`
}

// ProductDetail is a product joined with its writer.
type ProductDetail struct {
	ID          string   `bson:"_id" json:"_id"`
	Title       string   `bson:"title" json:"title"`
	Description string   `bson:"description" json:"description"`
	Price       float64  `bson:"price" json:"price"`
	Images      []string `bson:"images" json:"images"`
	Sold        int      `bson:"sold" json:"sold"`
	Writer      *Writer  `bson:"writer" json:"writer"`
	// Quantity is filled from the cart line, it is not stored on the product.
	Quantity int `bson:"-" json:"quantity"`
}

// CartDetail is the cart together with the product details of its lines.
type CartDetail struct {
	Cart       []CartLine      `json:"cart"`
	CartDetail []ProductDetail `json:"cartDetail"`
}
