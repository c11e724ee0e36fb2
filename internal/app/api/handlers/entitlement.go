package handlers

import (
	"errors"
	"net/http"

	"github.com/epigram-app/entitlement-service/internal/app/service/entitlement"
	"github.com/epigram-app/entitlement-service/pkg/response"
	"github.com/epigram-app/entitlement-service/pkg/types"
	"github.com/gin-gonic/gin"
)

type trackUsageRequest struct {
	Feature types.Feature `json:"feature"`
}

// @Summary      Check Feature Access
// @Description  Reports whether the authenticated user may use a metered feature. Read-only: repeated calls never change the remaining quota.
// @Tags         Entitlement
// @Produce      json
// @Param        feature query string true "Feature kind" Enums(personalized_practice, mock_exam, ai_tutor)
// @Success      200  {object}  handlers.RespDecision
// @Security     BearerAuth
// @Router       /api/v1/entitlement/check [get]
func ApiCheckAccess(mgr entitlement.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		feature := types.Feature(c.Query("feature"))
		decision, err := mgr.CheckAccess(c.Request.Context(), c.GetString("user_id"), feature)
		if err != nil {
			respondServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(decision))
	}
}

// @Summary      Track Feature Usage
// @Description  Consumes one use of a metered feature. Free-tier users are denied once the per-feature limit is reached; the denial carries the current count and limit.
// @Tags         Entitlement
// @Accept       json
// @Produce      json
// @Param        request body handlers.trackUsageRequest true "Feature to consume"
// @Success      200  {object}  handlers.RespDecision
// @Security     BearerAuth
// @Router       /api/v1/entitlement/track [post]
func ApiTrackUsage(mgr entitlement.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req trackUsageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}

		decision, err := mgr.TrackUsage(c.Request.Context(), c.GetString("user_id"), req.Feature)
		if errors.Is(err, entitlement.ErrLimitExceeded) {
			// denial still carries the counts so the client can render the
			// upgrade prompt
			c.JSON(http.StatusOK, response.ErrorT(response.APIResponseCodeLimitExceeded, decision))
			return
		}
		if err != nil {
			respondServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(decision))
	}
}

func RegisterEntitlementRoutes(r gin.IRouter, mgr entitlement.Manager) {
	r.GET("/entitlement/check", ApiCheckAccess(mgr))
	r.POST("/entitlement/track", ApiTrackUsage(mgr))
}
