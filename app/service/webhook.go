package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/framefolio/ms-go-downloads/app/entity"
	"github.com/framefolio/ms-go-downloads/app/provider"
	"github.com/framefolio/ms-go-downloads/app/repository"
	"github.com/framefolio/ms-go-downloads/app/types"
)

const (
	eventTypeCheckoutCompleted  = "checkout.session.completed"
	eventTypeAsyncPaymentFailed = "checkout.session.async_payment_failed"
)

// errUnusableMetadata marks an authentic, admitted event whose business
// payload cannot be applied. Redelivery would carry the same payload, so the
// event is acknowledged instead of failed.
var errUnusableMetadata = errors.New("event metadata is unusable")

// HandleStripeWebhook drives a single delivery through verify, admit,
// classify, apply, and notify. The dedup admission is held for the whole of
// processing: it is marked processed on success and released on failure so
// the provider's redelivery can be admitted again.
func (s *GalleryService) HandleStripeWebhook(ctx context.Context, req *types.StripeWebhookRequest) error {
	payload := req.Payload

	event, err := s.verifier.VerifyAndParse(ctx, payload, req.Signature)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWebhookRejected, err)
	}

	now := time.Now().UTC()
	digest := sha256.Sum256(payload)
	record := &entity.WebhookEvent{
		EventID:       event.ID,
		EventType:     event.Type,
		Account:       event.Account,
		PayloadDigest: hex.EncodeToString(digest[:]),
		Status:        entity.WebhookEventStatusProcessing,
		ReceivedAt:    now,
	}

	if err := s.webhookRepo.Admit(ctx, record); err != nil {
		if errors.Is(err, repository.ErrEventAlreadyExists) {
			return ErrDuplicateEvent
		}
		return err
	}

	switch event.Type {
	case eventTypeCheckoutCompleted:
		err = s.applyCheckoutCompleted(ctx, event, payload, now)
	case eventTypeAsyncPaymentFailed:
		err = s.applyCheckoutFailed(ctx, event, now)
	default:
		// Unrecognized types are acknowledged without mutation so new
		// provider event types never cause redelivery storms.
		_ = s.webhookRepo.MarkProcessed(ctx, event.ID, now)
		return nil
	}

	if err != nil {
		if errors.Is(err, errUnusableMetadata) {
			s.logger.WithField("event_id", event.ID).WithError(err).Warn("Acknowledging event with unusable metadata")
			_ = s.webhookRepo.MarkProcessed(ctx, event.ID, now)
			return nil
		}
		_ = s.webhookRepo.Release(ctx, event.ID)
		return err
	}

	_ = s.webhookRepo.MarkProcessed(ctx, event.ID, now)
	return nil
}

func (s *GalleryService) applyCheckoutCompleted(ctx context.Context, event *provider.Event, payload []byte, now time.Time) error {
	meta := event.Object.Metadata

	sessionID := strings.TrimSpace(meta.SessionID)
	if sessionID == "" {
		return fmt.Errorf("%w: missing sessionId", errUnusableMetadata)
	}

	paymentID := strings.TrimSpace(meta.PaymentID)
	if paymentID == "" {
		paymentID = event.Object.PaymentIntent
	}
	if paymentID == "" {
		return fmt.Errorf("%w: missing paymentId", errUnusableMetadata)
	}

	kind := strings.TrimSpace(meta.Kind)
	if kind == "" {
		kind = entity.PaymentKindInvoice
	}

	amountTotal := event.Object.AmountTotal
	if amountTotal == 0 {
		if cents, ok := provider.ParseAmountCents(meta.TotalAmount); ok {
			amountTotal = cents
		}
	}
	baseCents, _ := provider.ParseAmountCents(meta.BaseAmount)
	tipCents, _ := provider.ParseAmountCents(meta.TipAmount)

	payment := &entity.Payment{
		PaymentID:             paymentID,
		SessionID:             sessionID,
		Kind:                  kind,
		AmountTotalCents:      amountTotal,
		BaseCents:             baseCents,
		TipCents:              tipCents,
		Status:                int32(types.PaymentStatusPaid),
		PhotographerAccountID: strings.TrimSpace(meta.PhotographerAccountID),
		CustomerEmail:         optionalString(event.Object.CustomerEmail),
		CreatedAt:             now,
		CompletedAt:           &now,
		UpdatedAt:             now,
	}

	applied, err := s.upsertPaid(ctx, payment, event.ID, payload, now)
	if err != nil {
		return err
	}

	// The grant runs even when the ledger upsert was a no-op: a redelivery
	// after a partial failure finds the payment already paid, and the credit
	// it carries must still land. The per-payment claim keeps a second event
	// for the same payment from granting twice.
	granted := false
	if kind == entity.PaymentKindDownloadPurchase {
		granted, err = s.grantPurchasedDownloads(ctx, sessionID, paymentID, parseQuantity(meta.Quantity), now)
		if err != nil {
			return err
		}
	}

	if !applied && !granted {
		// Already paid with nothing left to grant: the ledger upsert is the
		// second line of defense behind the deduplicator.
		return nil
	}

	s.enqueuePaymentNotification(event, payment)
	return nil
}

// grantPurchasedDownloads applies purchased credit at most once per payment.
// The claim is taken before the policy update and released when the update
// fails, mirroring the webhook admission, so the provider's redelivery gets
// another attempt.
func (s *GalleryService) grantPurchasedDownloads(ctx context.Context, sessionID, paymentID string, quantity int32, now time.Time) (bool, error) {
	claim := &entity.DownloadGrant{
		PaymentID: paymentID,
		SessionID: sessionID,
		Quantity:  quantity,
		CreatedAt: now,
	}
	if err := s.policyRepo.AdmitGrant(ctx, claim); err != nil {
		if errors.Is(err, repository.ErrGrantAlreadyExists) {
			return false, nil
		}
		return false, err
	}

	if err := s.policyRepo.GrantPurchased(ctx, defaultPolicy(sessionID, now), quantity); err != nil {
		if releaseErr := s.policyRepo.ReleaseGrant(ctx, paymentID); releaseErr != nil {
			s.logger.WithError(releaseErr).WithField("payment_id", paymentID).Warn("Failed to release download grant claim")
		}
		return false, err
	}
	return true, nil
}

// upsertPaid records the payment as paid exactly once. It reports false when
// the record already reached a terminal status.
func (s *GalleryService) upsertPaid(ctx context.Context, payment *entity.Payment, providerEventID string, payload []byte, now time.Time) (bool, error) {
	existing, err := s.paymentRepo.FindByPaymentID(ctx, payment.PaymentID)
	if err != nil {
		return false, err
	}

	if existing == nil {
		if err := s.paymentRepo.Create(ctx, payment); err != nil {
			if errors.Is(err, repository.ErrPaymentAlreadyExists) {
				// Lost a creation race; fall through to the transition path.
				existing, err = s.paymentRepo.FindByPaymentID(ctx, payment.PaymentID)
				if err != nil {
					return false, err
				}
			} else {
				return false, err
			}
		} else {
			s.audit(ctx, payment.ID, "payment_recorded", nil, payment.Status, providerEventID, payload, now)
			return true, nil
		}
	}

	if existing == nil || existing.Status != int32(types.PaymentStatusPending) {
		return false, nil
	}

	transitioned, err := s.paymentRepo.MarkCompleted(ctx, payment, int32(types.PaymentStatusPaid), now)
	if err != nil {
		return false, err
	}
	if !transitioned {
		return false, nil
	}

	oldStatus := existing.Status
	payment.ID = existing.ID
	s.audit(ctx, existing.ID, "payment_completed", &oldStatus, int32(types.PaymentStatusPaid), providerEventID, payload, now)
	return true, nil
}

func (s *GalleryService) applyCheckoutFailed(ctx context.Context, event *provider.Event, now time.Time) error {
	paymentID := strings.TrimSpace(event.Object.Metadata.PaymentID)
	if paymentID == "" {
		paymentID = event.Object.PaymentIntent
	}
	if paymentID == "" {
		return fmt.Errorf("%w: missing paymentId", errUnusableMetadata)
	}

	existing, err := s.paymentRepo.FindByPaymentID(ctx, paymentID)
	if err != nil {
		return err
	}
	if existing == nil || existing.Status != int32(types.PaymentStatusPending) {
		return nil
	}

	transitioned, err := s.paymentRepo.MarkCompleted(ctx, existing, int32(types.PaymentStatusFailed), now)
	if err != nil {
		return err
	}
	if transitioned {
		oldStatus := existing.Status
		s.audit(ctx, existing.ID, "payment_failed", &oldStatus, int32(types.PaymentStatusFailed), event.ID, nil, now)
	}
	return nil
}

func (s *GalleryService) audit(ctx context.Context, paymentID uint64, eventType string, oldStatus *int32, newStatus int32, providerEventID string, payload []byte, now time.Time) {
	record := &entity.PaymentEvent{
		PaymentID: paymentID,
		EventType: eventType,
		OldStatus: oldStatus,
		NewStatus: newStatus,
		CreatedAt: now,
	}
	if providerEventID != "" {
		record.ProviderEventID = &providerEventID
	}
	if len(payload) > 0 {
		payloadJSON := string(payload)
		record.PayloadJSON = &payloadJSON
	}
	if err := s.auditRepo.Create(ctx, record); err != nil {
		s.logger.WithError(err).WithField("payment_id", paymentID).Warn("Failed to write payment audit event")
	}
}

func (s *GalleryService) enqueuePaymentNotification(event *provider.Event, payment *entity.Payment) {
	item := Notification{
		Subject:       "payment received",
		SessionID:     payment.SessionID,
		PaymentID:     payment.PaymentID,
		Kind:          payment.Kind,
		AmountCents:   payment.AmountTotalCents,
		CustomerEmail: event.Object.CustomerEmail,
		EventID:       event.ID,
	}
	if !s.notifier.Enqueue(item) {
		s.logger.WithField("event_id", event.ID).Warn("Notification queue full, dropping notification")
	}
}

func optionalString(v string) *string {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func parseQuantity(raw string) int32 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 1
	}
	n, err := strconv.ParseInt(raw, 10, 32)
	if err != nil || n <= 0 {
		return 1
	}
	return int32(n)
}
