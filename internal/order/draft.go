package order

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/gofrs/uuid"
)

// Shipping pricing rule: orders above the threshold ship free, everything
// else pays the flat fee. The same rule runs on the storefront client; the
// values persisted here are the authoritative ones.
const (
	FreeShippingThreshold = 10000.0
	FlatShippingFee       = 500.0
)

var ErrValidation = errors.New("order validation failed")

// Kenyan mobile numbers: optional +254/254/0 prefix followed by a 7xx or 1xx
// subscriber number of nine digits.
var kenyanMobile = regexp.MustCompile(`^(?:\+254|254|0)((?:7|1)\d{8})$`)

// NormalizePhone validates s against the Kenyan mobile numbering format and
// returns it in canonical 254XXXXXXXXX form.
func NormalizePhone(s string) (string, error) {
	cleaned := strings.NewReplacer(" ", "", "-", "").Replace(strings.TrimSpace(s))

	m := kenyanMobile.FindStringSubmatch(cleaned)
	if m == nil {
		return "", fmt.Errorf("%w: phone number %q does not match the Kenyan mobile format", ErrValidation, s)
	}

	return "254" + m[1], nil
}

// DraftInput carries the raw checkout form fields before validation.
type DraftInput struct {
	UserID        uuid.UUID       `json:"userId"`
	Buyer         BuyerInfo       `json:"buyerInfo"`
	Shipping      ShippingAddress `json:"shippingAddress"`
	Items         []Item          `json:"items"`
	PaymentMethod PaymentMethod   `json:"paymentMethod"`
}

// ComputeShipping applies the flat-fee / free-above-threshold rule.
func ComputeShipping(subtotal float64) float64 {
	if subtotal > FreeShippingThreshold {
		return 0
	}
	return FlatShippingFee
}

// BuildDraft validates the checkout input and assembles an order ready for
// persistence. Totals are recomputed here regardless of what the client sent.
func BuildDraft(in DraftInput) (*Order, error) {
	if in.Buyer.Name == "" || in.Buyer.Email == "" || in.Buyer.Phone == "" {
		return nil, fmt.Errorf("%w: buyer name, email and phone are required", ErrValidation)
	}

	phone, err := NormalizePhone(in.Buyer.Phone)
	if err != nil {
		return nil, err
	}

	if in.Shipping.Street == "" || in.Shipping.County == "" {
		return nil, fmt.Errorf("%w: shipping street and county are required", ErrValidation)
	}

	if len(in.Items) == 0 {
		return nil, fmt.Errorf("%w: order must contain at least one item", ErrValidation)
	}

	switch in.PaymentMethod {
	case MethodMpesa, MethodCashOnDelivery:
	default:
		return nil, fmt.Errorf("%w: unsupported payment method %q", ErrValidation, in.PaymentMethod)
	}

	// Normalization works on a copy so the caller's slice is left untouched.
	items := make([]Item, len(in.Items))
	copy(items, in.Items)

	subtotal := 0.0
	for i := range items {
		item := &items[i]

		if item.ProductID == uuid.Nil {
			return nil, fmt.Errorf("%w: item product id cannot be empty", ErrValidation)
		}
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity for product %s must be greater than zero", ErrValidation, item.ProductID)
		}
		if item.Price < 0 {
			return nil, fmt.Errorf("%w: price for product %s cannot be negative", ErrValidation, item.ProductID)
		}

		item.ID = uuid.Nil
		item.OrderID = uuid.Nil

		subtotal += float64(item.Quantity) * item.Price
	}

	shipping := ComputeShipping(subtotal)

	o := &Order{
		UserID:        in.UserID,
		Buyer:         in.Buyer,
		Shipping:      in.Shipping,
		Items:         items,
		Subtotal:      subtotal,
		ShippingFee:   shipping,
		Total:         subtotal + shipping,
		Status:        StatusPending,
		PaymentStatus: PaymentPending,
		PaymentMethod: in.PaymentMethod,
	}
	o.Buyer.Phone = phone

	return o, nil
}
