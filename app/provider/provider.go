package provider

import (
	"context"
	"errors"
)

var (
	ErrMalformedSignature = errors.New("malformed signature header")
	ErrStaleTimestamp     = errors.New("signature timestamp outside tolerance window")
	ErrInvalidSignature   = errors.New("invalid signature")
	ErrMalformedPayload   = errors.New("malformed event payload")
)

// CheckoutMetadata carries the business fields the checkout flow attaches to a
// Stripe session. Amounts are decimal strings ("5.00").
type CheckoutMetadata struct {
	SessionID             string `json:"sessionId"`
	Kind                  string `json:"type"`
	PaymentID             string `json:"paymentId"`
	PhotographerAccountID string `json:"photographerAccountId"`
	BaseAmount            string `json:"baseAmount"`
	TipAmount             string `json:"tipAmount"`
	TotalAmount           string `json:"totalAmount"`
	Quantity              string `json:"quantity"`
}

type CheckoutSession struct {
	PaymentIntent   string
	AmountTotal     int64
	PaymentStatus   string
	SessionStatus   string
	CustomerEmail   string
	Metadata        CheckoutMetadata
}

type Event struct {
	ID      string
	Type    string
	Account string
	Object  CheckoutSession
}

// Verifier authenticates a raw webhook body against its signature header and
// returns the parsed event envelope.
type Verifier interface {
	VerifyAndParse(ctx context.Context, payload []byte, signature string) (*Event, error)
}
