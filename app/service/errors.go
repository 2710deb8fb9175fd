package service

import "errors"

var (
	ErrWebhookRejected    = errors.New("webhook rejected")
	ErrDuplicateEvent     = errors.New("duplicate webhook event")
	ErrPolicyNotFound     = errors.New("download policy not found")
	ErrInvalidPolicy      = errors.New("invalid download policy")
	ErrAllowanceExhausted = errors.New("download allowance exhausted")
	ErrDownloadsDisabled  = errors.New("downloads are disabled")
)
