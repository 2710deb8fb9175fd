package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"
	"time"
)

func signPayload(secret string, ts int64, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(fmt.Sprintf("%d.%s", ts, string(payload))))
	return hex.EncodeToString(mac.Sum(nil))
}

func newTestVerifier(secrets ...string) *StripeVerifier {
	return NewStripeVerifier(StripeConfig{Secrets: secrets, SignatureToleranceSeconds: 300})
}

func TestVerifyAndParseValidSignature(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed","data":{"object":{"payment_intent":"pi_1","amount_total":2500,"metadata":{"sessionId":"sess-1"}}}}`)
	secret := "whsec_test"
	ts := time.Now().Unix()
	header := fmt.Sprintf("t=%d,v1=%s", ts, signPayload(secret, ts, payload))

	event, err := newTestVerifier(secret).VerifyAndParse(context.Background(), payload, header)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if event.ID != "evt_1" || event.Type != "checkout.session.completed" {
		t.Fatalf("unexpected event envelope: %+v", event)
	}
	if event.Object.PaymentIntent != "pi_1" || event.Object.AmountTotal != 2500 {
		t.Fatalf("unexpected event object: %+v", event.Object)
	}
	if event.Object.Metadata.SessionID != "sess-1" {
		t.Fatalf("unexpected metadata: %+v", event.Object.Metadata)
	}
}

func TestVerifyAndParseRejectsTamperedPayload(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed"}`)
	secret := "whsec_test"
	ts := time.Now().Unix()
	header := fmt.Sprintf("t=%d,v1=%s", ts, signPayload(secret, ts, payload))

	tampered := []byte(`{"id":"evt_2","type":"checkout.session.completed"}`)
	_, err := newTestVerifier(secret).VerifyAndParse(context.Background(), tampered, header)
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestVerifyAndParseRejectsStaleTimestamp(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed"}`)
	secret := "whsec_test"
	ts := time.Now().Add(-11 * time.Minute).Unix()
	header := fmt.Sprintf("t=%d,v1=%s", ts, signPayload(secret, ts, payload))

	_, err := newTestVerifier(secret).VerifyAndParse(context.Background(), payload, header)
	if !errors.Is(err, ErrStaleTimestamp) {
		t.Fatalf("expected ErrStaleTimestamp, got %v", err)
	}
}

func TestVerifyAndParseTriesEverySecret(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed"}`)
	ts := time.Now().Unix()
	header := fmt.Sprintf("t=%d,v1=%s", ts, signPayload("whsec_connect", ts, payload))

	verifier := newTestVerifier("whsec_primary", "whsec_connect")
	if _, err := verifier.VerifyAndParse(context.Background(), payload, header); err != nil {
		t.Fatalf("expected connect secret to validate, got %v", err)
	}
}

func TestVerifyAndParseRejectsMalformedHeader(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed"}`)
	verifier := newTestVerifier("whsec_test")

	for _, header := range []string{"", "v1=deadbeef", "t=123", "t=abc,v1=zz"} {
		_, err := verifier.VerifyAndParse(context.Background(), payload, header)
		if !errors.Is(err, ErrMalformedSignature) {
			t.Fatalf("header %q: expected ErrMalformedSignature, got %v", header, err)
		}
	}
}

func TestVerifyAndParseRejectsMalformedPayload(t *testing.T) {
	secret := "whsec_test"
	ts := time.Now().Unix()

	for _, payload := range [][]byte{[]byte("not json"), []byte(`{"type":"checkout.session.completed"}`), []byte(`{"id":"evt_1"}`)} {
		header := fmt.Sprintf("t=%d,v1=%s", ts, signPayload(secret, ts, payload))
		_, err := newTestVerifier(secret).VerifyAndParse(context.Background(), payload, header)
		if !errors.Is(err, ErrMalformedPayload) {
			t.Fatalf("payload %q: expected ErrMalformedPayload, got %v", payload, err)
		}
	}
}

func TestParseEventExpandedPaymentIntent(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed","data":{"object":{"payment_intent":{"id":"pi_9"},"customer_details":{"email":"client@example.com"}}}}`)
	event, err := parseEvent(payload)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if event.Object.PaymentIntent != "pi_9" {
		t.Fatalf("unexpected payment intent: %s", event.Object.PaymentIntent)
	}
	if event.Object.CustomerEmail != "client@example.com" {
		t.Fatalf("unexpected customer email: %s", event.Object.CustomerEmail)
	}
}

func TestParseAmountCents(t *testing.T) {
	cases := []struct {
		raw   string
		cents int64
		ok    bool
	}{
		{"", 0, true},
		{"5.00", 500, true},
		{"12.5", 1250, true},
		{"7", 700, true},
		{"0.99", 99, true},
		{"-3.25", -325, true},
		{"abc", 0, false},
		{"1.x", 0, false},
	}

	for _, tc := range cases {
		cents, ok := ParseAmountCents(tc.raw)
		if ok != tc.ok || cents != tc.cents {
			t.Fatalf("ParseAmountCents(%q) = (%d, %v), expected (%d, %v)", tc.raw, cents, ok, tc.cents, tc.ok)
		}
	}
}
