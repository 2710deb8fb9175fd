package controller

import (
	"errors"
	"net/http"

	"github.com/framefolio/ms-go-downloads/app/factory"
	"github.com/framefolio/ms-go-downloads/app/service"
	"github.com/framefolio/ms-go-downloads/app/types"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

type WebhookController struct {
	galleryService *service.GalleryService
	logger         logrus.FieldLogger
}

func NewWebhookController(galleryService *service.GalleryService) *WebhookController {
	return &WebhookController{
		galleryService: galleryService,
		logger:         factory.NewModuleLogger("webhook-controller"),
	}
}

// HandleStripeWebhook terminates Stripe deliveries. Duplicates are
// acknowledged with 200 so the provider stops redelivering; only storage
// failures surface as 5xx, which makes Stripe retry the delivery.
func (c *WebhookController) HandleStripeWebhook(ctx echo.Context) error {
	req, err := types.NewStripeWebhookRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	err = c.galleryService.HandleStripeWebhook(ctx.Request().Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrWebhookRejected):
			return c.writeError(ctx, http.StatusBadRequest, "webhook signature verification failed")
		case errors.Is(err, service.ErrDuplicateEvent):
			return ctx.JSON(http.StatusOK, &types.MessageResponse{Message: "duplicate event ignored"})
		default:
			factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Handle stripe webhook failed")
			return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
		}
	}

	return ctx.JSON(http.StatusOK, &types.MessageResponse{Message: "event processed"})
}

func (c *WebhookController) writeError(ctx echo.Context, statusCode int, message string) error {
	return ctx.JSON(statusCode, &types.ErrorResponse{Error: message})
}
