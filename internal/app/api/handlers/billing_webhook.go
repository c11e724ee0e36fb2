package handlers

import (
	"errors"
	"net/http"

	wh "github.com/epigram-app/entitlement-service/internal/app/service/webhookhandler"
	"github.com/epigram-app/entitlement-service/pkg/logctx"
	"github.com/epigram-app/entitlement-service/pkg/response"
	"github.com/gin-gonic/gin"
)

// @Summary      Billing Webhook
// @Description  Handles Stripe webhook event deliveries. The request must carry a valid Stripe-Signature header.
// @Tags         Webhook
// @Accept       json
// @Produce      json
// @Param        payload body string true "Stripe event payload"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/billing/webhook [post]
func ApiBillingWebhook(h *wh.WebhookHandler) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := h.HandleWebhook(c)
		if err == nil {
			c.JSON(http.StatusOK, response.OKT[any](nil))
			return
		}

		logctx.FromCtx(c.Request.Context(), h.Logger).Errorw("webhook_handle_error", "error", err.Error())

		// status codes drive the provider's redelivery: 4xx rejects the
		// delivery for good, 5xx asks for a retry
		if errors.Is(err, wh.ErrInvalidSignature) || errors.Is(err, wh.ErrInvalidPayload) {
			c.JSON(http.StatusBadRequest, response.ErrorT[any](response.APIResponseCodeBadRequest, nil))
			return
		}
		c.JSON(http.StatusInternalServerError, response.ErrorT[any](response.APIResponseCodeError, nil))
	}
}

func RegisterBillingWebhookRoutes(r gin.IRouter, h *wh.WebhookHandler) {
	r.POST("/webhook", ApiBillingWebhook(h))
}
