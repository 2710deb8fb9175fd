package entity

import "time"

const (
	PaymentKindInvoice          = "invoice"
	PaymentKindDownloadPurchase = "download-purchase"
)

type Payment struct {
	ID uint64

	PaymentID string
	SessionID string
	Kind      string

	AmountTotalCents int64
	BaseCents        int64
	TipCents         int64

	Status int32

	PhotographerAccountID string
	CustomerEmail         *string

	CreatedAt   time.Time
	CompletedAt *time.Time
	UpdatedAt   time.Time
}
