package types

import (
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

type StripeWebhookRequest struct {
	Signature string
	Payload   []byte
}

func NewStripeWebhookRequestFromContext(ctx echo.Context) (*StripeWebhookRequest, error) {
	payload, err := io.ReadAll(ctx.Request().Body)
	if err != nil {
		return nil, err
	}

	return &StripeWebhookRequest{
		Signature: strings.TrimSpace(ctx.Request().Header.Get("Stripe-Signature")),
		Payload:   payload,
	}, nil
}

func (r *StripeWebhookRequest) Validate() error {
	if strings.TrimSpace(r.Signature) == "" {
		return errors.New("stripe signature header is required")
	}
	if len(r.Payload) == 0 {
		return errors.New("payload is required")
	}
	return nil
}

type SessionRequest struct {
	SessionID string
}

func NewSessionRequestFromContext(ctx echo.Context) *SessionRequest {
	return &SessionRequest{SessionID: strings.TrimSpace(ctx.Param("id"))}
}

func (r *SessionRequest) Validate() error {
	if r.SessionID == "" {
		return errors.New("session id is required")
	}
	return nil
}

// UpdatePolicyRequest is a partial update: nil fields were not submitted and
// leave the stored value untouched.
type UpdatePolicyRequest struct {
	SessionID             string
	PricingModel          *string
	PricePerDownloadCents *int64
	FreeDownloadsAllowed  *int32
	FreeDownloadsConsumed *int32
	WatermarkEnabled      *bool
	WatermarkText         *string
	DownloadEnabled       *bool
}

func NewUpdatePolicyRequestFromContext(ctx echo.Context) (*UpdatePolicyRequest, error) {
	form, err := ctx.FormParams()
	if err != nil {
		return nil, err
	}

	req := &UpdatePolicyRequest{SessionID: strings.TrimSpace(ctx.Param("id"))}

	if values, ok := form["pricing_model"]; ok && len(values) > 0 {
		model := strings.ToLower(strings.TrimSpace(values[0]))
		req.PricingModel = &model
	}
	if values, ok := form["watermark_text"]; ok && len(values) > 0 {
		text := strings.TrimSpace(values[0])
		req.WatermarkText = &text
	}

	price, err := formInt64(form, "price_per_download_cents")
	if err != nil {
		return nil, err
	}
	req.PricePerDownloadCents = price

	allowed, err := formInt32(form, "free_downloads_allowed")
	if err != nil {
		return nil, err
	}
	req.FreeDownloadsAllowed = allowed

	consumed, err := formInt32(form, "free_downloads_consumed")
	if err != nil {
		return nil, err
	}
	req.FreeDownloadsConsumed = consumed

	watermark, err := formBool(form, "watermark_enabled")
	if err != nil {
		return nil, err
	}
	req.WatermarkEnabled = watermark

	enabled, err := formBool(form, "download_enabled")
	if err != nil {
		return nil, err
	}
	req.DownloadEnabled = enabled

	return req, nil
}

func (r *UpdatePolicyRequest) Validate() error {
	if strings.TrimSpace(r.SessionID) == "" {
		return errors.New("session id is required")
	}
	if r.PricingModel != nil && !IsValidPricingModel(*r.PricingModel) {
		return errors.New("pricing_model must be free, paid, or freemium")
	}
	if r.PricePerDownloadCents != nil && *r.PricePerDownloadCents < 0 {
		return errors.New("price_per_download_cents must be >= 0")
	}
	if r.FreeDownloadsAllowed != nil && *r.FreeDownloadsAllowed < 0 {
		return errors.New("free_downloads_allowed must be >= 0")
	}
	if r.FreeDownloadsConsumed != nil && *r.FreeDownloadsConsumed < 0 {
		return errors.New("free_downloads_consumed must be >= 0")
	}
	return nil
}

func formInt64(form map[string][]string, key string) (*int64, error) {
	values, ok := form[key]
	if !ok || len(values) == 0 {
		return nil, nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(values[0]), 10, 64)
	if err != nil {
		return nil, errors.New(key + " must be an integer")
	}
	return &n, nil
}

func formInt32(form map[string][]string, key string) (*int32, error) {
	values, ok := form[key]
	if !ok || len(values) == 0 {
		return nil, nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(values[0]), 10, 32)
	if err != nil {
		return nil, errors.New(key + " must be an integer")
	}
	value := int32(n)
	return &value, nil
}

func formBool(form map[string][]string, key string) (*bool, error) {
	values, ok := form[key]
	if !ok || len(values) == 0 {
		return nil, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(values[0]))
	if err != nil {
		return nil, errors.New(key + " must be a boolean")
	}
	return &b, nil
}
