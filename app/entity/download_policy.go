package entity

import "time"

type DownloadPolicy struct {
	SessionID string

	PricingModel          string
	PricePerDownloadCents int64

	FreeDownloadsAllowed  int32
	FreeDownloadsConsumed int32

	PurchasedDownloads         int32
	PurchasedDownloadsConsumed int32

	WatermarkEnabled bool
	WatermarkText    string

	DownloadEnabled bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// DownloadGrant records purchased-download credit applied for one payment.
// The payment id is the primary key, so a redelivered event cannot apply the
// same credit twice.
type DownloadGrant struct {
	PaymentID string
	SessionID string
	Quantity  int32
	CreatedAt time.Time
}

func (p *DownloadPolicy) FreeDownloadsRemaining() int32 {
	if p.FreeDownloadsConsumed >= p.FreeDownloadsAllowed {
		return 0
	}
	return p.FreeDownloadsAllowed - p.FreeDownloadsConsumed
}

func (p *DownloadPolicy) PurchasedDownloadsRemaining() int32 {
	if p.PurchasedDownloadsConsumed >= p.PurchasedDownloads {
		return 0
	}
	return p.PurchasedDownloads - p.PurchasedDownloadsConsumed
}
