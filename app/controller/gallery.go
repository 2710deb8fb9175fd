package controller

import (
	"errors"
	"net/http"

	"github.com/framefolio/ms-go-downloads/app/factory"
	"github.com/framefolio/ms-go-downloads/app/mapper"
	"github.com/framefolio/ms-go-downloads/app/service"
	"github.com/framefolio/ms-go-downloads/app/types"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

type GalleryController struct {
	galleryService *service.GalleryService
	logger         logrus.FieldLogger
}

func NewGalleryController(galleryService *service.GalleryService) *GalleryController {
	return &GalleryController{
		galleryService: galleryService,
		logger:         factory.NewModuleLogger("gallery-controller"),
	}
}

func (c *GalleryController) Health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, &types.HealthResponse{Status: "ok"})
}

func (c *GalleryController) GetPolicy(ctx echo.Context) error {
	req := types.NewSessionRequestFromContext(ctx)
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	item, err := c.galleryService.GetPolicy(ctx.Request().Context(), req.SessionID)
	if err != nil {
		if errors.Is(err, service.ErrPolicyNotFound) {
			return c.writeError(ctx, http.StatusNotFound, "download policy not found")
		}
		factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Get policy failed")
		return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
	}

	return ctx.JSON(http.StatusOK, &types.PolicyEnvelopeResponse{Policy: mapper.PolicyToResponse(item)})
}

func (c *GalleryController) UpdatePolicy(ctx echo.Context) error {
	req, err := types.NewUpdatePolicyRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	item, err := c.galleryService.SetPolicy(ctx.Request().Context(), req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidPolicy) {
			return c.writeError(ctx, http.StatusBadRequest, err.Error())
		}
		factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Update policy failed")
		return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
	}

	return ctx.JSON(http.StatusOK, &types.PolicyEnvelopeResponse{Policy: mapper.PolicyToResponse(item)})
}

// GetGallery is the client-facing view: the policy, the entitlement decision,
// and how much has been paid for the session.
func (c *GalleryController) GetGallery(ctx echo.Context) error {
	req := types.NewSessionRequestFromContext(ctx)
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	item, err := c.galleryService.GetPolicy(ctx.Request().Context(), req.SessionID)
	if err != nil {
		if errors.Is(err, service.ErrPolicyNotFound) {
			return c.writeError(ctx, http.StatusNotFound, "download policy not found")
		}
		factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Get gallery failed")
		return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
	}

	totalPaid, err := c.galleryService.TotalPaid(ctx.Request().Context(), req.SessionID)
	if err != nil {
		factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Get gallery total failed")
		return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
	}

	return ctx.JSON(http.StatusOK, &types.GalleryResponse{
		Policy:         mapper.PolicyToResponse(item),
		Entitlement:    service.Entitlement(item),
		TotalPaidCents: totalPaid,
	})
}

func (c *GalleryController) RegisterDownload(ctx echo.Context) error {
	req := types.NewSessionRequestFromContext(ctx)
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	item, err := c.galleryService.RegisterDownload(ctx.Request().Context(), req.SessionID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrPolicyNotFound):
			return c.writeError(ctx, http.StatusNotFound, "download policy not found")
		case errors.Is(err, service.ErrDownloadsDisabled):
			return c.writeError(ctx, http.StatusForbidden, err.Error())
		case errors.Is(err, service.ErrAllowanceExhausted):
			return c.writeError(ctx, http.StatusPaymentRequired, err.Error())
		default:
			factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Register download failed")
			return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
		}
	}

	return ctx.JSON(http.StatusOK, &types.PolicyEnvelopeResponse{Policy: mapper.PolicyToResponse(item)})
}

func (c *GalleryController) ListSessionPayments(ctx echo.Context) error {
	req := types.NewSessionRequestFromContext(ctx)
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	items, total, err := c.galleryService.GetSessionPayments(ctx.Request().Context(), req.SessionID)
	if err != nil {
		factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("List session payments failed")
		return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
	}

	return ctx.JSON(http.StatusOK, &types.SessionPaymentsResponse{
		Payments:       mapper.PaymentsToResponse(items),
		TotalPaidCents: total,
	})
}

func (c *GalleryController) writeError(ctx echo.Context, statusCode int, message string) error {
	return ctx.JSON(statusCode, &types.ErrorResponse{Error: message})
}
