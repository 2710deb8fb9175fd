package entity

import "time"

const (
	WebhookEventStatusProcessing int32 = 1
	WebhookEventStatusProcessed  int32 = 10
)

// WebhookEvent is the dedup record for a provider event id. The row itself is
// the admission: inserting it succeeds for exactly one delivery.
type WebhookEvent struct {
	EventID       string
	EventType     string
	Account       string
	PayloadDigest string
	Status        int32

	ReceivedAt  time.Time
	ProcessedAt *time.Time
}
