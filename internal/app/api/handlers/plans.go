package handlers

import (
	"net/http"

	"github.com/epigram-app/entitlement-service/pkg/config"
	"github.com/epigram-app/entitlement-service/pkg/response"
	"github.com/gin-gonic/gin"
)

// @Summary      List Plans
// @Description  Returns the plan catalog: plan ids, display metadata and billing intervals.
// @Tags         Plans
// @Produce      json
// @Success      200  {object}  handlers.RespPlans
// @Router       /api/v1/plans [get]
func ApiListPlans(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, response.OKT(cfg.Plans))
	}
}

func RegisterPlanRoutes(r gin.IRouter, cfg *config.Config) {
	r.GET("/plans", ApiListPlans(cfg))
}
