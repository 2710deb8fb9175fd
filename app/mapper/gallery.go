package mapper

import (
	"time"

	"github.com/framefolio/ms-go-downloads/app/entity"
	"github.com/framefolio/ms-go-downloads/app/types"
)

func PolicyToResponse(item *entity.DownloadPolicy) *types.DownloadPolicy {
	if item == nil {
		return nil
	}

	return &types.DownloadPolicy{
		SessionID:                  item.SessionID,
		PricingModel:               item.PricingModel,
		PricePerDownloadCents:      item.PricePerDownloadCents,
		FreeDownloadsAllowed:       item.FreeDownloadsAllowed,
		FreeDownloadsConsumed:      item.FreeDownloadsConsumed,
		PurchasedDownloads:         item.PurchasedDownloads,
		PurchasedDownloadsConsumed: item.PurchasedDownloadsConsumed,
		WatermarkEnabled:           item.WatermarkEnabled,
		WatermarkText:              item.WatermarkText,
		DownloadEnabled:            item.DownloadEnabled,
		UpdatedAt:                  item.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func PaymentToResponse(item *entity.Payment) *types.Payment {
	if item == nil {
		return nil
	}

	completedAt := ""
	if item.CompletedAt != nil {
		completedAt = item.CompletedAt.UTC().Format(time.RFC3339)
	}

	return &types.Payment{
		ID:                    item.ID,
		PaymentID:             item.PaymentID,
		SessionID:             item.SessionID,
		Kind:                  item.Kind,
		AmountTotalCents:      item.AmountTotalCents,
		BaseCents:             item.BaseCents,
		TipCents:              item.TipCents,
		Status:                types.PaymentStatus(item.Status).Label(),
		PhotographerAccountID: item.PhotographerAccountID,
		CustomerEmail:         derefString(item.CustomerEmail),
		CreatedAt:             item.CreatedAt.UTC().Format(time.RFC3339),
		CompletedAt:           completedAt,
	}
}

func PaymentsToResponse(items []*entity.Payment) []*types.Payment {
	result := make([]*types.Payment, 0, len(items))
	for _, item := range items {
		result = append(result, PaymentToResponse(item))
	}
	return result
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
