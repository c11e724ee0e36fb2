package handlers

import (
	"net/http"

	subsvc "github.com/epigram-app/entitlement-service/internal/app/service/subscription"
	"github.com/epigram-app/entitlement-service/internal/identity"
	"github.com/epigram-app/entitlement-service/pkg/config"
	"github.com/epigram-app/entitlement-service/pkg/response"
	"github.com/epigram-app/entitlement-service/pkg/types"
	"github.com/gin-gonic/gin"
)

type startCheckoutRequest struct {
	PlanID types.PlanID `json:"plan_id"`
}

type requestCancellationRequest struct {
	// DeclineOffer confirms the cancellation after the retention offer was
	// shown (or skips the offer outright).
	DeclineOffer bool `json:"decline_offer"`
}

type cancellationResponse struct {
	ShowRetentionOffer bool                    `json:"show_retention_offer"`
	PercentOff         int64                   `json:"percent_off,omitempty"`
	DurationMonths     int64                   `json:"duration_months,omitempty"`
	Canceled           bool                    `json:"canceled"`
	Subscription       *types.SubscriptionInfo `json:"subscription,omitempty"`
}

type discountResponse struct {
	Subscription   *types.SubscriptionInfo `json:"subscription"`
	PercentOff     int64                   `json:"percent_off"`
	DurationMonths int64                   `json:"duration_months"`
}

// @Summary      Get Subscription Status
// @Description  Returns the user's subscription record (absence means the free plan) and the resolved catalog plan.
// @Tags         Subscription
// @Produce      json
// @Success      200  {object}  handlers.RespSubscriptionStatus
// @Security     BearerAuth
// @Router       /api/v1/subscription/status [get]
func ApiGetSubscriptionStatus(sub subsvc.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := sub.GetStatus(c.Request.Context(), c.GetString("user_id"))
		if err != nil {
			respondServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      Start Checkout
// @Description  Opens a billing-provider checkout session for a paid plan. A trial is attached only when the user has never used one.
// @Tags         Subscription
// @Accept       json
// @Produce      json
// @Param        request body handlers.startCheckoutRequest true "Plan to check out"
// @Success      200  {object}  handlers.RespStartCheckout
// @Security     BearerAuth
// @Router       /api/v1/subscription/checkout [post]
func ApiStartCheckout(sub subsvc.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req startCheckoutRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}

		email := ""
		if id, ok := identity.FromContext(c.Request.Context()); ok {
			email = id.Email
		}

		res, err := sub.StartCheckout(c.Request.Context(), &subsvc.StartCheckoutRequest{
			UserID: c.GetString("user_id"),
			Email:  email,
			PlanID: req.PlanID,
		})
		if err != nil {
			respondServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      Request Cancellation
// @Description  Two-step cancellation. Without decline_offer the retention offer is evaluated and nothing changes; with decline_offer (or after the one-time discount was already used) the subscription is set to lapse at period end.
// @Tags         Subscription
// @Accept       json
// @Produce      json
// @Param        request body handlers.requestCancellationRequest true "Cancellation request"
// @Success      200  {object}  handlers.RespCancellation
// @Security     BearerAuth
// @Router       /api/v1/subscription/cancel [post]
func ApiRequestCancellation(sub subsvc.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req requestCancellationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}

		ctx := c.Request.Context()
		userID := c.GetString("user_id")

		offer, err := sub.EvaluateCancellation(ctx, userID)
		if err != nil {
			respondServiceError(c, err)
			return
		}

		if offer.ShowRetentionOffer && !req.DeclineOffer {
			c.JSON(http.StatusOK, response.OKT(&cancellationResponse{
				ShowRetentionOffer: true,
				PercentOff:         offer.PercentOff,
				DurationMonths:     offer.DurationMonths,
			}))
			return
		}

		info, err := sub.ConfirmCancellation(ctx, userID)
		if err != nil {
			respondServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(&cancellationResponse{
			Canceled:     true,
			Subscription: info,
		}))
	}
}

// @Summary      Restore Subscription
// @Description  Undoes a scheduled cancellation while the billing provider still has the subscription live. A subscription the provider fully canceled cannot be restored; the local record is corrected instead.
// @Tags         Subscription
// @Produce      json
// @Success      200  {object}  handlers.RespSubscriptionInfo
// @Security     BearerAuth
// @Router       /api/v1/subscription/restore [post]
func ApiRestoreSubscription(sub subsvc.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		info, err := sub.RestoreSubscription(c.Request.Context(), c.GetString("user_id"))
		if err != nil {
			respondServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(info))
	}
}

// @Summary      Accept Retention Discount
// @Description  Applies the one-time percentage-off retention coupon to the live subscription. A second accept fails.
// @Tags         Subscription
// @Produce      json
// @Success      200  {object}  handlers.RespDiscount
// @Security     BearerAuth
// @Router       /api/v1/subscription/discount [post]
func ApiAcceptRetentionDiscount(sub subsvc.Coordinator, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		info, err := sub.AcceptRetentionDiscount(c.Request.Context(), c.GetString("user_id"))
		if err != nil {
			respondServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(&discountResponse{
			Subscription:   info,
			PercentOff:     cfg.Stripe.RetentionPercentOff,
			DurationMonths: cfg.Stripe.RetentionDurationMonths,
		}))
	}
}

func RegisterSubscriptionRoutes(r gin.IRouter, sub subsvc.Coordinator, cfg *config.Config) {
	r.GET("/subscription/status", ApiGetSubscriptionStatus(sub))
	r.POST("/subscription/checkout", ApiStartCheckout(sub))
	r.POST("/subscription/cancel", ApiRequestCancellation(sub))
	r.POST("/subscription/restore", ApiRestoreSubscription(sub))
	r.POST("/subscription/discount", ApiAcceptRetentionDiscount(sub, cfg))
}
