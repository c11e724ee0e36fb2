package handlers

import (
	"net/http"

	"github.com/epigram-app/entitlement-service/internal/app/service/eventlog"
	"github.com/epigram-app/entitlement-service/internal/app/service/stats"
	"github.com/epigram-app/entitlement-service/pkg/response"
	"github.com/epigram-app/entitlement-service/pkg/types"
	"github.com/gin-gonic/gin"
)

type listBillingEventsRequest struct {
	Filters   []*types.CommonFilter `json:"filters"`
	From      int                   `json:"from"`
	Size      int                   `json:"size"`
	SortBy    string                `json:"sort_by"`
	SortOrder string                `json:"sort_order"`
}

// @Summary      List Billing Events (Admin)
// @Description  Retrieves a paginated and filterable list of recorded billing webhook deliveries.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body handlers.listBillingEventsRequest true "List request with filters, pagination, and sorting"
// @Success      200  {object}  handlers.RespListBillingEvents
// @Security     BearerAuth
// @Router       /api/v1/admin/list_billing_events [post]
func ApiListBillingEvents(events *eventlog.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req listBillingEventsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		res, err := events.ScanEvents(c.Request.Context(), &eventlog.ScanEventsRequest{
			Filters:   req.Filters,
			From:      req.From,
			Size:      req.Size,
			SortBy:    req.SortBy,
			SortOrder: req.SortOrder,
		})
		if err != nil {
			respondServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      Get Overview Statistics (Admin)
// @Description  Computes subscription and usage aggregates on demand. An empty data-item list means all of them.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body stats.OverviewRequest true "Requested data items"
// @Success      200  {object}  handlers.RespOverview
// @Security     BearerAuth
// @Router       /api/v1/admin/get_overview [post]
func ApiGetOverview(svc *stats.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req stats.OverviewRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		res, err := svc.GetOverview(c.Request.Context(), &req)
		if err != nil {
			respondServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

func RegisterAdminRoutes(r gin.IRouter, events *eventlog.Service, statsSvc *stats.Service) {
	r.POST("/list_billing_events", ApiListBillingEvents(events))
	r.POST("/get_overview", ApiGetOverview(statsSvc))
}
