package service

import (
	"context"
	"time"

	"github.com/framefolio/ms-go-downloads/app/entity"
	"github.com/framefolio/ms-go-downloads/app/types"
)

func (s *GalleryService) GetPolicy(ctx context.Context, sessionID string) (*entity.DownloadPolicy, error) {
	policy, err := s.policyRepo.FindBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if policy == nil {
		return nil, ErrPolicyNotFound
	}
	return policy, nil
}

// SetPolicy applies a partial update from the administrative endpoint. Fields
// the request left unset keep their stored value; a session without a policy
// row yet starts from the defaults.
func (s *GalleryService) SetPolicy(ctx context.Context, req *types.UpdatePolicyRequest) (*entity.DownloadPolicy, error) {
	existing, err := s.policyRepo.FindBySession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	policy := existing
	if policy == nil {
		policy = defaultPolicy(req.SessionID, now)
	}

	if req.PricingModel != nil {
		policy.PricingModel = *req.PricingModel
	}
	if req.PricePerDownloadCents != nil {
		policy.PricePerDownloadCents = *req.PricePerDownloadCents
	}
	if req.FreeDownloadsAllowed != nil {
		policy.FreeDownloadsAllowed = *req.FreeDownloadsAllowed
	}
	if req.FreeDownloadsConsumed != nil {
		policy.FreeDownloadsConsumed = *req.FreeDownloadsConsumed
	}
	if req.WatermarkEnabled != nil {
		policy.WatermarkEnabled = *req.WatermarkEnabled
	}
	if req.WatermarkText != nil {
		policy.WatermarkText = *req.WatermarkText
	}
	if req.DownloadEnabled != nil {
		policy.DownloadEnabled = *req.DownloadEnabled
	}
	policy.UpdatedAt = now

	if err := validatePolicy(policy); err != nil {
		return nil, err
	}

	if err := s.policyRepo.Save(ctx, policy); err != nil {
		return nil, err
	}

	// Save leaves the consumption counters alone on an existing row so a
	// concurrent consume cannot be rolled back by a stale snapshot. An
	// explicit counter value in the request is written on its own.
	if req.FreeDownloadsConsumed != nil && existing != nil {
		if err := s.policyRepo.SetFreeConsumed(ctx, req.SessionID, *req.FreeDownloadsConsumed); err != nil {
			return nil, err
		}
	}

	return policy, nil
}

// CheckEntitlement reports whether the session's client may download without
// further payment.
func (s *GalleryService) CheckEntitlement(ctx context.Context, sessionID string) (types.Entitlement, error) {
	policy, err := s.GetPolicy(ctx, sessionID)
	if err != nil {
		return "", err
	}
	return Entitlement(policy), nil
}

// Entitlement is the pure decision function over a policy snapshot.
func Entitlement(policy *entity.DownloadPolicy) types.Entitlement {
	if !policy.DownloadEnabled {
		return types.EntitlementDisabled
	}
	if policy.PricingModel == types.PricingModelFree {
		return types.EntitlementEntitled
	}
	if policy.PricingModel == types.PricingModelFreemium && policy.FreeDownloadsRemaining() > 0 {
		return types.EntitlementEntitled
	}
	if policy.PurchasedDownloadsRemaining() > 0 {
		return types.EntitlementEntitled
	}
	return types.EntitlementRequiresPayment
}

// ConsumeFreeDownload takes one slot of the free allowance. The repository
// performs a conditional increment, so concurrent calls cannot overshoot the
// allowance boundary.
func (s *GalleryService) ConsumeFreeDownload(ctx context.Context, sessionID string) error {
	policy, err := s.GetPolicy(ctx, sessionID)
	if err != nil {
		return err
	}
	if !policy.DownloadEnabled {
		return ErrDownloadsDisabled
	}

	consumed, err := s.policyRepo.ConsumeFree(ctx, sessionID)
	if err != nil {
		return err
	}
	if !consumed {
		return ErrAllowanceExhausted
	}
	return nil
}

// RegisterDownload is the client download path: it consumes whichever credit
// the pricing model calls for and returns the refreshed policy.
func (s *GalleryService) RegisterDownload(ctx context.Context, sessionID string) (*entity.DownloadPolicy, error) {
	policy, err := s.GetPolicy(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !policy.DownloadEnabled {
		return nil, ErrDownloadsDisabled
	}

	switch policy.PricingModel {
	case types.PricingModelFree:
		// Unlimited; nothing to consume.
	case types.PricingModelFreemium:
		consumed, err := s.policyRepo.ConsumeFree(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if !consumed {
			consumed, err = s.policyRepo.ConsumePurchased(ctx, sessionID)
			if err != nil {
				return nil, err
			}
			if !consumed {
				return nil, ErrAllowanceExhausted
			}
		}
	default:
		consumed, err := s.policyRepo.ConsumePurchased(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if !consumed {
			return nil, ErrAllowanceExhausted
		}
	}

	return s.GetPolicy(ctx, sessionID)
}

func validatePolicy(policy *entity.DownloadPolicy) error {
	if !types.IsValidPricingModel(policy.PricingModel) {
		return ErrInvalidPolicy
	}
	if policy.PricePerDownloadCents < 0 {
		return ErrInvalidPolicy
	}
	if policy.FreeDownloadsAllowed < 0 || policy.FreeDownloadsConsumed < 0 {
		return ErrInvalidPolicy
	}
	if policy.FreeDownloadsConsumed > policy.FreeDownloadsAllowed {
		return ErrInvalidPolicy
	}
	return nil
}

func defaultPolicy(sessionID string, now time.Time) *entity.DownloadPolicy {
	return &entity.DownloadPolicy{
		SessionID:       sessionID,
		PricingModel:    types.PricingModelPaid,
		DownloadEnabled: true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}
