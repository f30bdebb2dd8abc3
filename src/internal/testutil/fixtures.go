package testutil

import (
	"time"
)

// IntentFixture is a builder for test intent data without dragging the
// full ap2 module into every store test.
type IntentFixture struct {
	ID          string
	UserID      string
	Description string
	Merchants   []string
	MaxAmount   float64
	Currency    string
	Expiry      time.Time
}

// NewIntentFixture creates the default basketball-shoes intent.
func NewIntentFixture() IntentFixture {
	return IntentFixture{
		ID:          "intent_test_001",
		UserID:      "user-123",
		Description: "red high-top basketball shoes",
		Merchants:   []string{"did:ap2:merchant:aex-merchant"},
		MaxAmount:   200.0,
		Currency:    "USD",
		Expiry:      time.Now().UTC().Add(24 * time.Hour),
	}
}

// WithID sets the intent ID.
func (i IntentFixture) WithID(id string) IntentFixture {
	i.ID = id
	return i
}

// WithUserID sets the user.
func (i IntentFixture) WithUserID(userID string) IntentFixture {
	i.UserID = userID
	return i
}

// WithMaxAmount sets the budget cap.
func (i IntentFixture) WithMaxAmount(amount float64) IntentFixture {
	i.MaxAmount = amount
	return i
}

// WithExpiry sets the intent expiry.
func (i IntentFixture) WithExpiry(expiry time.Time) IntentFixture {
	i.Expiry = expiry
	return i
}

// CartFixture is a builder for test cart data.
type CartFixture struct {
	ID          string
	OrderID     string
	MerchantDID string
	ItemLabel   string
	ItemPrice   float64
	Tax         float64
	Shipping    float64
	Currency    string
	Expiry      time.Time
}

// NewCartFixture creates the default signed-cart shape: one product line
// plus tax and shipping.
func NewCartFixture() CartFixture {
	return CartFixture{
		ID:          "cart_test_001",
		OrderID:     "order_test_001",
		MerchantDID: "did:ap2:merchant:aex-merchant",
		ItemLabel:   "Red high-top basketball shoes",
		ItemPrice:   68.80,
		Tax:         6.88,
		Shipping:    5.00,
		Currency:    "USD",
		Expiry:      time.Now().UTC().Add(15 * time.Minute),
	}
}

// Total returns the cart total across all lines.
func (c CartFixture) Total() float64 {
	return c.ItemPrice + c.Tax + c.Shipping
}

// WithID sets the cart ID.
func (c CartFixture) WithID(id string) CartFixture {
	c.ID = id
	return c
}

// WithItemPrice reprices the product line.
func (c CartFixture) WithItemPrice(price float64) CartFixture {
	c.ItemPrice = price
	return c
}

// WithExpiry sets the cart expiry.
func (c CartFixture) WithExpiry(expiry time.Time) CartFixture {
	c.Expiry = expiry
	return c
}

// TransactionFixture is a builder for settled-transaction rows.
type TransactionFixture struct {
	TransactionID    string
	PaymentMandateID string
	CartMandateID    string
	Amount           float64
	Currency         string
	Status           string
	CreatedAt        time.Time
}

// NewTransactionFixture creates a captured transaction for the default
// cart.
func NewTransactionFixture() TransactionFixture {
	return TransactionFixture{
		TransactionID:    "txn_test00000001",
		PaymentMandateID: "pm_test_001",
		CartMandateID:    "cart_test_001",
		Amount:           80.68,
		Currency:         "USD",
		Status:           "captured",
		CreatedAt:        time.Now().UTC(),
	}
}

// WithStatus sets the transaction status.
func (f TransactionFixture) WithStatus(status string) TransactionFixture {
	f.Status = status
	return f
}

// WithAmount sets the captured amount.
func (f TransactionFixture) WithAmount(amount float64) TransactionFixture {
	f.Amount = amount
	return f
}
