package adapter

import (
	"context"
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Envelope is the {data, signature} wire shape the gateway defines. Data is
// base64(JSON payload), Signature is base64(SHA1(private∥data∥private)).
type Envelope struct {
	Data      string
	Signature string
	TargetURL string // empty for request shapes that are posted, not redirected
}

// CallbackBody is the decoded body of a gateway callback envelope.
type CallbackBody struct {
	OrderID         string          `json:"order_id"`
	Status          string          `json:"status"`
	Code            string          `json:"code,omitempty"`
	Transaction     string          `json:"transaction,omitempty"`
	BankTransaction string          `json:"bank_transaction,omitempty"`
	Amount          decimal.Decimal `json:"amount,omitempty"`
	Message         string          `json:"message,omitempty"`
}

// Callback statuses the gateway is known to send.
const (
	CallbackStatusSuccess   = "success"
	CallbackStatusFailed    = "failed"
	CallbackStatusCancelled = "cancelled"
	CallbackStatusReversed  = "reversed"
)

type StandardPaymentRequest struct {
	Amount      decimal.Decimal
	OrderID     string
	Currency    string // defaults to AZN
	Language    string // defaults to az
	Description string
	SuccessURL  string
	ErrorURL    string
}

type SavedCardRequest struct {
	CardID  string
	OrderID string
	Amount  decimal.Decimal
}

type CardRegistrationRequest struct {
	Language   string
	SuccessURL string
	ErrorURL   string
}

type PreAuthRequest struct {
	Amount     decimal.Decimal
	OrderID    string
	Currency   string
	Language   string
	SuccessURL string
	ErrorURL   string
}

// GatewayResult is the decoded response of a synchronous gateway operation
// (status check, reversal, pre-auth completion).
type GatewayResult struct {
	Status      string          `json:"status"`
	Code        string          `json:"code,omitempty"`
	Message     string          `json:"message,omitempty"`
	Transaction string          `json:"transaction,omitempty"`
	Raw         json.RawMessage `json:"-"`
}

// PaymentGateway prepares signed request envelopes for the card-processing
// service and validates inbound callback envelopes. Preparation operations are
// pure; only CompletePreAuth, Reverse and CheckStatus perform I/O.
type PaymentGateway interface {
	Name() string

	PrepareStandardPayment(req StandardPaymentRequest) (*Envelope, error)
	PrepareSavedCardPayment(req SavedCardRequest) (*Envelope, error)
	PrepareCardRegistration(req CardRegistrationRequest) (*Envelope, error)
	PreparePreAuth(req PreAuthRequest) (*Envelope, error)

	CompletePreAuth(ctx context.Context, amount decimal.Decimal, transaction string) (*GatewayResult, error)
	Reverse(ctx context.Context, transaction string, amount *decimal.Decimal) (*GatewayResult, error)
	CheckStatus(ctx context.Context, transaction string) (*GatewayResult, error)

	// VerifyCallback checks the signature over the raw data field. The body
	// must not be decoded for business use before this passes.
	VerifyCallback(data, signature string) error
	DecodeCallback(data string) (*CallbackBody, error)
}
