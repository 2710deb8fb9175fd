package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

type StripeConfig struct {
	// Secrets is the ordered list of candidate signing secrets; a Connect
	// sub-account may sign with a different secret than the platform account,
	// so every candidate is tried before rejecting.
	Secrets                   []string
	SignatureToleranceSeconds int64
}

type StripeVerifier struct {
	secrets   []string
	tolerance int64
	now       func() time.Time
}

func NewStripeVerifier(cfg StripeConfig) *StripeVerifier {
	tolerance := cfg.SignatureToleranceSeconds
	if tolerance <= 0 {
		tolerance = 300
	}

	secrets := make([]string, 0, len(cfg.Secrets))
	for _, secret := range cfg.Secrets {
		if trimmed := strings.TrimSpace(secret); trimmed != "" {
			secrets = append(secrets, trimmed)
		}
	}

	return &StripeVerifier{
		secrets:   secrets,
		tolerance: tolerance,
		now:       time.Now,
	}
}

func (v *StripeVerifier) VerifyAndParse(_ context.Context, payload []byte, signature string) (*Event, error) {
	if err := v.verifySignature(payload, signature); err != nil {
		return nil, err
	}
	return parseEvent(payload)
}

func (v *StripeVerifier) verifySignature(payload []byte, signatureHeader string) error {
	ts, candidates, err := parseSignatureHeader(signatureHeader)
	if err != nil {
		return err
	}

	now := v.now().Unix()
	if now-ts > v.tolerance || ts-now > v.tolerance {
		return ErrStaleTimestamp
	}

	signedPayload := []byte(strconv.FormatInt(ts, 10) + "." + string(payload))
	for _, secret := range v.secrets {
		mac := hmac.New(sha256.New, []byte(secret))
		_, _ = mac.Write(signedPayload)
		expected := mac.Sum(nil)

		for _, candidate := range candidates {
			if hmac.Equal(candidate, expected) {
				return nil
			}
		}
	}

	return ErrInvalidSignature
}

func parseSignatureHeader(header string) (int64, [][]byte, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0, nil, ErrMalformedSignature
	}

	var tsRaw string
	candidates := make([][]byte, 0, 1)
	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		if strings.HasPrefix(part, "t=") {
			tsRaw = strings.TrimSpace(strings.TrimPrefix(part, "t="))
		}
		if strings.HasPrefix(part, "v1=") {
			sig, err := hex.DecodeString(strings.TrimSpace(strings.TrimPrefix(part, "v1=")))
			if err != nil {
				continue
			}
			candidates = append(candidates, sig)
		}
	}
	if tsRaw == "" || len(candidates) == 0 {
		return 0, nil, ErrMalformedSignature
	}

	ts, err := strconv.ParseInt(tsRaw, 10, 64)
	if err != nil {
		return 0, nil, ErrMalformedSignature
	}

	return ts, candidates, nil
}

func parseEvent(payload []byte) (*Event, error) {
	var envelope struct {
		ID      string `json:"id"`
		Type    string `json:"type"`
		Account string `json:"account"`
		Data    struct {
			Object struct {
				PaymentIntent   interface{} `json:"payment_intent"`
				AmountTotal     int64       `json:"amount_total"`
				PaymentStatus   string      `json:"payment_status"`
				Status          string      `json:"status"`
				CustomerDetails struct {
					Email string `json:"email"`
				} `json:"customer_details"`
				Metadata CheckoutMetadata `json:"metadata"`
			} `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, ErrMalformedPayload
	}
	if strings.TrimSpace(envelope.ID) == "" || strings.TrimSpace(envelope.Type) == "" {
		return nil, ErrMalformedPayload
	}

	object := envelope.Data.Object
	return &Event{
		ID:      strings.TrimSpace(envelope.ID),
		Type:    strings.TrimSpace(envelope.Type),
		Account: strings.TrimSpace(envelope.Account),
		Object: CheckoutSession{
			PaymentIntent: parseStringish(object.PaymentIntent),
			AmountTotal:   object.AmountTotal,
			PaymentStatus: strings.TrimSpace(object.PaymentStatus),
			SessionStatus: strings.TrimSpace(object.Status),
			CustomerEmail: strings.TrimSpace(object.CustomerDetails.Email),
			Metadata:      object.Metadata,
		},
	}, nil
}

// parseStringish accepts either a bare id string or an expanded object with an
// "id" field, which is how Stripe serializes expandable references.
func parseStringish(v interface{}) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case map[string]interface{}:
		if raw, ok := t["id"]; ok {
			if s, ok := raw.(string); ok {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

// ParseAmountCents converts a decimal amount string such as "5.00" or "12.5"
// to cents. An empty string is zero.
func ParseAmountCents(raw string) (int64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, true
	}

	negative := strings.HasPrefix(raw, "-")
	if negative {
		raw = raw[1:]
	}

	whole := raw
	frac := ""
	if idx := strings.IndexByte(raw, '.'); idx >= 0 {
		whole = raw[:idx]
		frac = raw[idx+1:]
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > 2 {
		frac = frac[:2]
	}
	for len(frac) < 2 {
		frac += "0"
	}

	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, false
	}
	cents, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, false
	}

	total := units*100 + cents
	if negative {
		total = -total
	}
	return total, true
}
