package types

type PaymentStatus int32

const (
	PaymentStatusUnspecified PaymentStatus = 0
	PaymentStatusPending     PaymentStatus = 1
	PaymentStatusPaid        PaymentStatus = 2
	PaymentStatusFailed      PaymentStatus = 3
)

func (s PaymentStatus) Label() string {
	switch s {
	case PaymentStatusPending:
		return "pending"
	case PaymentStatusPaid:
		return "paid"
	case PaymentStatusFailed:
		return "failed"
	default:
		return "unspecified"
	}
}

const (
	PricingModelFree     = "free"
	PricingModelPaid     = "paid"
	PricingModelFreemium = "freemium"
)

func IsValidPricingModel(model string) bool {
	switch model {
	case PricingModelFree, PricingModelPaid, PricingModelFreemium:
		return true
	default:
		return false
	}
}

type Entitlement string

const (
	EntitlementEntitled        Entitlement = "entitled"
	EntitlementRequiresPayment Entitlement = "requires_payment"
	EntitlementDisabled        Entitlement = "disabled"
)

type HealthResponse struct {
	Status string `json:"status"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type DownloadPolicy struct {
	SessionID                  string `json:"session_id"`
	PricingModel               string `json:"pricing_model"`
	PricePerDownloadCents      int64  `json:"price_per_download_cents"`
	FreeDownloadsAllowed       int32  `json:"free_downloads_allowed"`
	FreeDownloadsConsumed      int32  `json:"free_downloads_consumed"`
	PurchasedDownloads         int32  `json:"purchased_downloads"`
	PurchasedDownloadsConsumed int32  `json:"purchased_downloads_consumed"`
	WatermarkEnabled           bool   `json:"watermark_enabled"`
	WatermarkText              string `json:"watermark_text"`
	DownloadEnabled            bool   `json:"download_enabled"`
	UpdatedAt                  string `json:"updated_at"`
}

type Payment struct {
	ID                    uint64 `json:"id"`
	PaymentID             string `json:"payment_id"`
	SessionID             string `json:"session_id"`
	Kind                  string `json:"kind"`
	AmountTotalCents      int64  `json:"amount_total_cents"`
	BaseCents             int64  `json:"base_cents"`
	TipCents              int64  `json:"tip_cents"`
	Status                string `json:"status"`
	PhotographerAccountID string `json:"photographer_account_id"`
	CustomerEmail         string `json:"customer_email,omitempty"`
	CreatedAt             string `json:"created_at"`
	CompletedAt           string `json:"completed_at,omitempty"`
}

type PolicyEnvelopeResponse struct {
	Policy *DownloadPolicy `json:"policy"`
}

type GalleryResponse struct {
	Policy         *DownloadPolicy `json:"policy"`
	Entitlement    Entitlement     `json:"entitlement"`
	TotalPaidCents int64           `json:"total_paid_cents"`
}

type SessionPaymentsResponse struct {
	Payments       []*Payment `json:"payments"`
	TotalPaidCents int64      `json:"total_paid_cents"`
}
