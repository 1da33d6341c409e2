package model

import (
	"time"

	"github.com/shopspring/decimal"

	"backlify-payments/internal/domain"
)

type PlanCode string

const (
	PlanBasic      PlanCode = "basic"
	PlanPro        PlanCode = "pro"
	PlanEnterprise PlanCode = "enterprise"
)

// ParsePlan validates a plan code coming from an API caller.
func ParsePlan(s string) (PlanCode, error) {
	switch PlanCode(s) {
	case PlanBasic, PlanPro, PlanEnterprise:
		return PlanCode(s), nil
	}
	return "", domain.ErrInvalidArgument
}

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"   // created, awaiting gateway callback
	OrderStatusPaid      OrderStatus = "paid"      // success callback verified
	OrderStatusFailed    OrderStatus = "failed"    // gateway reported failure
	OrderStatusReversed  OrderStatus = "reversed"  // paid order reversed at the gateway
	OrderStatusCancelled OrderStatus = "cancelled" // cancelled before payment
)

// CanTransition reports whether the status machine allows from -> to.
// pending -> {paid, failed, cancelled}; paid -> reversed. Nothing else.
func (from OrderStatus) CanTransition(to OrderStatus) bool {
	switch from {
	case OrderStatusPending:
		return to == OrderStatusPaid || to == OrderStatusFailed || to == OrderStatusCancelled
	case OrderStatusPaid:
		return to == OrderStatusReversed
	}
	return false
}

// Order is the intent to pay. It is identified externally by OrderID, which is
// the only key gateway callbacks carry; the serial ID never leaves the service.
type Order struct {
	ID             int64
	OrderID        string
	UserLogin      string
	Plan           PlanCode
	APIScope       *string
	Amount         decimal.Decimal
	Currency       string
	Description    string
	Status         OrderStatus
	TransactionID  *string // gateway transaction ref; set once on paid, immutable after
	PaymentDetails []byte  // raw decoded callback body (JSONB)
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewOrder validates and constructs a pending order. Amount must be positive;
// it is normalized to two fractional digits. Currency defaults to AZN.
func NewOrder(orderID, userLogin string, plan PlanCode, amount decimal.Decimal, currency, description string, apiScope *string) (*Order, error) {
	if orderID == "" || userLogin == "" {
		return nil, domain.ErrInvalidArgument
	}
	if _, err := ParsePlan(string(plan)); err != nil {
		return nil, err
	}
	if !amount.IsPositive() {
		return nil, domain.ErrInvalidArgument
	}
	if currency == "" {
		currency = "AZN"
	}
	if len(currency) != 3 {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now()
	return &Order{
		OrderID:     orderID,
		UserLogin:   userLogin,
		Plan:        plan,
		APIScope:    apiScope,
		Amount:      amount.Round(2),
		Currency:    currency,
		Description: description,
		Status:      OrderStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}
