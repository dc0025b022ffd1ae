package payment

import (
	"time"

	"github.com/gofrs/uuid"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
	StatusTimeout   Status = "timeout"
)

func (s Status) String() string {
	return string(s)
}

// IsTerminal reports whether no further transition is expected from s. The
// one sanctioned exception is timeout -> completed via the gateway callback,
// handled explicitly in the service.
func (s Status) IsTerminal() bool {
	return s != StatusPending
}

// Transaction tracks a single STK push attempt. A retried checkout creates a
// new transaction with a new checkout request id, never reuses one.
type Transaction struct {
	ID                uuid.UUID `json:"id" db:"id"`
	CheckoutRequestID string    `json:"checkoutRequestId" db:"checkout_request_id"`
	OrderID           uuid.UUID `json:"orderId" db:"order_id"`
	PhoneNumber       string    `json:"phoneNumber" db:"phone_number"`
	Amount            float64   `json:"amount" db:"amount"`
	Status            Status    `json:"status" db:"status"`
	ReceiptNumber     string    `json:"mpesaReceiptNumber,omitempty" db:"receipt_number"`
	CreatedAt         time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt         time.Time `json:"updatedAt" db:"updated_at"`
}
