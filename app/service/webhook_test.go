package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/framefolio/ms-go-downloads/app/entity"
	"github.com/framefolio/ms-go-downloads/app/provider"
	"github.com/framefolio/ms-go-downloads/app/types"
)

func checkoutEvent(id, sessionID, paymentID string) *provider.Event {
	return &provider.Event{
		ID:   id,
		Type: "checkout.session.completed",
		Object: provider.CheckoutSession{
			PaymentIntent: "pi_fallback",
			AmountTotal:   10000,
			CustomerEmail: "client@example.com",
			Metadata: provider.CheckoutMetadata{
				SessionID:             sessionID,
				Kind:                  entity.PaymentKindInvoice,
				PaymentID:             paymentID,
				PhotographerAccountID: "acct-1",
				BaseAmount:            "90.00",
				TipAmount:             "10.00",
				TotalAmount:           "100.00",
			},
		},
	}
}

func webhookReq() *types.StripeWebhookRequest {
	return &types.StripeWebhookRequest{
		Signature: "t=1,v1=deadbeef",
		Payload:   []byte(`{"id":"evt_1"}`),
	}
}

func TestHandleStripeWebhookRejectsInvalidSignature(t *testing.T) {
	f := newServiceFixture()
	f.verifier.err = provider.ErrInvalidSignature

	err := f.svc.HandleStripeWebhook(context.Background(), webhookReq())
	if !errors.Is(err, ErrWebhookRejected) {
		t.Fatalf("expected ErrWebhookRejected, got %v", err)
	}
	if len(f.webhookRepo.events) != 0 {
		t.Fatal("expected no admission for rejected delivery")
	}
}

func TestHandleStripeWebhookRecordsPayment(t *testing.T) {
	f := newServiceFixture()
	f.verifier.event = checkoutEvent("evt_1", "sess-1", "pay-1")

	if err := f.svc.HandleStripeWebhook(context.Background(), webhookReq()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	payment, err := f.paymentRepo.FindByPaymentID(context.Background(), "pay-1")
	if err != nil || payment == nil {
		t.Fatalf("expected recorded payment, got %v, %v", payment, err)
	}
	if payment.Status != int32(types.PaymentStatusPaid) {
		t.Fatalf("expected paid status, got %d", payment.Status)
	}
	if payment.AmountTotalCents != 10000 || payment.BaseCents != 9000 || payment.TipCents != 1000 {
		t.Fatalf("unexpected amounts: %+v", payment)
	}
	if payment.CustomerEmail == nil || *payment.CustomerEmail != "client@example.com" {
		t.Fatalf("unexpected customer email: %v", payment.CustomerEmail)
	}

	record, ok := f.webhookRepo.events["evt_1"]
	if !ok || record.Status != entity.WebhookEventStatusProcessed {
		t.Fatalf("expected processed dedup record, got %+v", record)
	}
	if len(f.notifier.items) != 1 || f.notifier.items[0].PaymentID != "pay-1" {
		t.Fatalf("expected one notification, got %+v", f.notifier.items)
	}
	if len(f.auditRepo.events) != 1 || f.auditRepo.events[0].EventType != "payment_recorded" {
		t.Fatalf("expected payment_recorded audit event, got %+v", f.auditRepo.events)
	}
}

func TestHandleStripeWebhookRedeliveryIsIdempotent(t *testing.T) {
	f := newServiceFixture()
	f.verifier.event = checkoutEvent("evt_1", "sess-1", "pay-1")

	if err := f.svc.HandleStripeWebhook(context.Background(), webhookReq()); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	err := f.svc.HandleStripeWebhook(context.Background(), webhookReq())
	if !errors.Is(err, ErrDuplicateEvent) {
		t.Fatalf("expected ErrDuplicateEvent, got %v", err)
	}
	if len(f.notifier.items) != 1 {
		t.Fatalf("expected a single notification, got %d", len(f.notifier.items))
	}
}

func TestHandleStripeWebhookDifferentEventSamePaymentIsNoOp(t *testing.T) {
	f := newServiceFixture()
	f.verifier.event = checkoutEvent("evt_1", "sess-1", "pay-1")
	if err := f.svc.HandleStripeWebhook(context.Background(), webhookReq()); err != nil {
		t.Fatalf("first delivery: %v", err)
	}

	f.verifier.event = checkoutEvent("evt_2", "sess-1", "pay-1")
	if err := f.svc.HandleStripeWebhook(context.Background(), webhookReq()); err != nil {
		t.Fatalf("second delivery: %v", err)
	}

	payments, _ := f.paymentRepo.ListBySession(context.Background(), "sess-1")
	if len(payments) != 1 {
		t.Fatalf("expected one payment, got %d", len(payments))
	}
	if len(f.notifier.items) != 1 {
		t.Fatalf("expected notification only for the applying delivery, got %d", len(f.notifier.items))
	}
}

func TestHandleStripeWebhookAcksUnknownEventType(t *testing.T) {
	f := newServiceFixture()
	f.verifier.event = &provider.Event{ID: "evt_1", Type: "invoice.finalized"}

	if err := f.svc.HandleStripeWebhook(context.Background(), webhookReq()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	record := f.webhookRepo.events["evt_1"]
	if record == nil || record.Status != entity.WebhookEventStatusProcessed {
		t.Fatalf("expected processed record, got %+v", record)
	}
	if len(f.notifier.items) != 0 {
		t.Fatal("expected no notification for unknown event type")
	}
}

func TestHandleStripeWebhookAcksUnusableMetadata(t *testing.T) {
	f := newServiceFixture()
	event := checkoutEvent("evt_1", "", "pay-1")
	f.verifier.event = event

	if err := f.svc.HandleStripeWebhook(context.Background(), webhookReq()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	payment, _ := f.paymentRepo.FindByPaymentID(context.Background(), "pay-1")
	if payment != nil {
		t.Fatal("expected no payment for unusable metadata")
	}
	record := f.webhookRepo.events["evt_1"]
	if record == nil || record.Status != entity.WebhookEventStatusProcessed {
		t.Fatalf("expected acknowledged record, got %+v", record)
	}
}

func TestHandleStripeWebhookFallsBackToPaymentIntent(t *testing.T) {
	f := newServiceFixture()
	event := checkoutEvent("evt_1", "sess-1", "")
	f.verifier.event = event

	if err := f.svc.HandleStripeWebhook(context.Background(), webhookReq()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	payment, _ := f.paymentRepo.FindByPaymentID(context.Background(), "pi_fallback")
	if payment == nil {
		t.Fatal("expected payment keyed by payment intent")
	}
}

func TestHandleStripeWebhookReleasesAdmissionOnStorageFailure(t *testing.T) {
	f := newServiceFixture()
	f.verifier.event = checkoutEvent("evt_1", "sess-1", "pay-1")
	f.paymentRepo.createErr = errors.New("db down")

	if err := f.svc.HandleStripeWebhook(context.Background(), webhookReq()); err == nil {
		t.Fatal("expected storage error to surface")
	}
	if _, ok := f.webhookRepo.events["evt_1"]; ok {
		t.Fatal("expected admission release on failure")
	}

	// Redelivery succeeds once storage recovers.
	f.paymentRepo.createErr = nil
	if err := f.svc.HandleStripeWebhook(context.Background(), webhookReq()); err != nil {
		t.Fatalf("expected redelivery to succeed, got %v", err)
	}
	payment, _ := f.paymentRepo.FindByPaymentID(context.Background(), "pay-1")
	if payment == nil {
		t.Fatal("expected payment after redelivery")
	}
}

func TestHandleStripeWebhookCompletesPendingPayment(t *testing.T) {
	f := newServiceFixture()
	ctx := context.Background()

	seed := &entity.Payment{
		PaymentID: "pay-1",
		SessionID: "sess-1",
		Kind:      entity.PaymentKindInvoice,
		Status:    int32(types.PaymentStatusPending),
		CreatedAt: time.Now().UTC(),
	}
	if err := f.paymentRepo.Create(ctx, seed); err != nil {
		t.Fatalf("seed payment: %v", err)
	}

	f.verifier.event = checkoutEvent("evt_1", "sess-1", "pay-1")
	if err := f.svc.HandleStripeWebhook(ctx, webhookReq()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	payment, _ := f.paymentRepo.FindByPaymentID(ctx, "pay-1")
	if payment.Status != int32(types.PaymentStatusPaid) {
		t.Fatalf("expected pending payment to complete, got status %d", payment.Status)
	}
	if payment.CompletedAt == nil {
		t.Fatal("expected completed timestamp")
	}
	if len(f.auditRepo.events) != 1 || f.auditRepo.events[0].EventType != "payment_completed" {
		t.Fatalf("expected payment_completed audit event, got %+v", f.auditRepo.events)
	}
	if f.auditRepo.events[0].OldStatus == nil || *f.auditRepo.events[0].OldStatus != int32(types.PaymentStatusPending) {
		t.Fatalf("unexpected audit old status: %+v", f.auditRepo.events[0])
	}
}

func TestHandleStripeWebhookGrantsPurchasedDownloads(t *testing.T) {
	f := newServiceFixture()
	event := checkoutEvent("evt_1", "sess-1", "pay-1")
	event.Object.Metadata.Kind = entity.PaymentKindDownloadPurchase
	event.Object.Metadata.Quantity = "3"
	f.verifier.event = event

	if err := f.svc.HandleStripeWebhook(context.Background(), webhookReq()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	policy, _ := f.policyRepo.FindBySession(context.Background(), "sess-1")
	if policy == nil || policy.PurchasedDownloads != 3 {
		t.Fatalf("expected 3 purchased downloads, got %+v", policy)
	}
}

func TestHandleStripeWebhookRegrantsAfterPartialFailure(t *testing.T) {
	f := newServiceFixture()
	event := checkoutEvent("evt_1", "sess-1", "pay-1")
	event.Object.Metadata.Kind = entity.PaymentKindDownloadPurchase
	event.Object.Metadata.Quantity = "2"
	f.verifier.event = event
	f.policyRepo.grantErr = errors.New("db down")

	if err := f.svc.HandleStripeWebhook(context.Background(), webhookReq()); err == nil {
		t.Fatal("expected grant failure to surface")
	}
	if _, ok := f.webhookRepo.events["evt_1"]; ok {
		t.Fatal("expected admission release on failure")
	}
	if len(f.policyRepo.grants) != 0 {
		t.Fatal("expected grant claim release on failure")
	}

	// Redelivery finds the payment already paid but the credit must still land.
	if err := f.svc.HandleStripeWebhook(context.Background(), webhookReq()); err != nil {
		t.Fatalf("expected redelivery to succeed, got %v", err)
	}
	policy, _ := f.policyRepo.FindBySession(context.Background(), "sess-1")
	if policy == nil || policy.PurchasedDownloads != 2 {
		t.Fatalf("expected 2 purchased downloads after redelivery, got %+v", policy)
	}
	if len(f.notifier.items) != 1 {
		t.Fatalf("expected one notification, got %d", len(f.notifier.items))
	}
	record := f.webhookRepo.events["evt_1"]
	if record == nil || record.Status != entity.WebhookEventStatusProcessed {
		t.Fatalf("expected processed record, got %+v", record)
	}
}

func TestHandleStripeWebhookGrantsOncePerPayment(t *testing.T) {
	f := newServiceFixture()
	first := checkoutEvent("evt_1", "sess-1", "pay-1")
	first.Object.Metadata.Kind = entity.PaymentKindDownloadPurchase
	first.Object.Metadata.Quantity = "2"
	f.verifier.event = first
	if err := f.svc.HandleStripeWebhook(context.Background(), webhookReq()); err != nil {
		t.Fatalf("first delivery: %v", err)
	}

	second := checkoutEvent("evt_2", "sess-1", "pay-1")
	second.Object.Metadata.Kind = entity.PaymentKindDownloadPurchase
	second.Object.Metadata.Quantity = "2"
	f.verifier.event = second
	if err := f.svc.HandleStripeWebhook(context.Background(), webhookReq()); err != nil {
		t.Fatalf("second delivery: %v", err)
	}

	policy, _ := f.policyRepo.FindBySession(context.Background(), "sess-1")
	if policy == nil || policy.PurchasedDownloads != 2 {
		t.Fatalf("expected a single grant of 2, got %+v", policy)
	}
	if len(f.notifier.items) != 1 {
		t.Fatalf("expected notification only for the granting delivery, got %d", len(f.notifier.items))
	}
}

func TestHandleStripeWebhookAsyncPaymentFailed(t *testing.T) {
	f := newServiceFixture()
	ctx := context.Background()

	seed := &entity.Payment{
		PaymentID: "pay-1",
		SessionID: "sess-1",
		Status:    int32(types.PaymentStatusPending),
		CreatedAt: time.Now().UTC(),
	}
	if err := f.paymentRepo.Create(ctx, seed); err != nil {
		t.Fatalf("seed payment: %v", err)
	}

	f.verifier.event = &provider.Event{
		ID:   "evt_1",
		Type: "checkout.session.async_payment_failed",
		Object: provider.CheckoutSession{
			Metadata: provider.CheckoutMetadata{PaymentID: "pay-1"},
		},
	}
	if err := f.svc.HandleStripeWebhook(ctx, webhookReq()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	payment, _ := f.paymentRepo.FindByPaymentID(ctx, "pay-1")
	if payment.Status != int32(types.PaymentStatusFailed) {
		t.Fatalf("expected failed status, got %d", payment.Status)
	}
	if len(f.notifier.items) != 0 {
		t.Fatal("expected no notification for failed payment")
	}
}
