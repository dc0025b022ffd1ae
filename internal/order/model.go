package order

import (
	"time"

	"github.com/gofrs/uuid"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusConfirmed  Status = "confirmed"
	StatusAssigned   Status = "assigned"
	StatusPickedUp   Status = "picked_up"
	StatusInTransit  Status = "in_transit"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

func (s Status) String() string {
	return string(s)
}

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentTimeout   PaymentStatus = "timeout"
)

func (s PaymentStatus) String() string {
	return string(s)
}

type PaymentMethod string

const (
	MethodMpesa          PaymentMethod = "mpesa"
	MethodCashOnDelivery PaymentMethod = "cod"
)

// BuyerInfo is a snapshot of the buyer's contact details at order time.
type BuyerInfo struct {
	Name  string `json:"name" db:"buyer_name"`
	Email string `json:"email" db:"buyer_email"`
	Phone string `json:"phone" db:"buyer_phone"`
}

// ShippingAddress is a snapshot of the delivery address at order time.
type ShippingAddress struct {
	Street string `json:"street" db:"shipping_street"`
	City   string `json:"city,omitempty" db:"shipping_city"`
	County string `json:"county" db:"shipping_county"`
	Notes  string `json:"notes,omitempty" db:"shipping_notes"`
}

// Item is a snapshot of a product at order time, not a live catalog reference.
type Item struct {
	ID        uuid.UUID `json:"id" db:"id"`
	OrderID   uuid.UUID `json:"order_id" db:"order_id"`
	ProductID uuid.UUID `json:"product_id" db:"product_id"`
	Name      string    `json:"name" db:"name"`
	Price     float64   `json:"price" db:"price"`
	Quantity  int       `json:"quantity" db:"quantity"`
	ImageURL  string    `json:"image_url,omitempty" db:"image_url"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type Order struct {
	ID            uuid.UUID       `json:"orderId" db:"id"`
	UserID        uuid.UUID       `json:"userId" db:"user_id"`
	Buyer         BuyerInfo       `json:"buyerInfo"`
	Shipping      ShippingAddress `json:"shippingAddress"`
	Items         []Item          `json:"items" db:"-"`
	Subtotal      float64         `json:"subtotal" db:"subtotal"`
	ShippingFee   float64         `json:"shipping" db:"shipping_fee"`
	Total         float64         `json:"total" db:"total"`
	Status        Status          `json:"status" db:"status"`
	PaymentStatus PaymentStatus   `json:"paymentStatus" db:"payment_status"`
	PaymentMethod PaymentMethod   `json:"paymentMethod" db:"payment_method"`
	CreatedAt     time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time       `json:"updatedAt" db:"updated_at"`
}
