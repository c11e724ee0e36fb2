package handlers

import (
	"github.com/epigram-app/entitlement-service/internal/app/service/entitlement"
	"github.com/epigram-app/entitlement-service/internal/app/service/eventlog"
	"github.com/epigram-app/entitlement-service/internal/app/service/stats"
	subsvc "github.com/epigram-app/entitlement-service/internal/app/service/subscription"
	"github.com/epigram-app/entitlement-service/pkg/response"
	"github.com/epigram-app/entitlement-service/pkg/types"
)

// RespOK is a generic OK envelope for endpoints returning no specific data.
type RespOK struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    interface{}              `json:"data"`
}

// RespDecision wraps an entitlement decision in the standard envelope.
type RespDecision struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    entitlement.Decision     `json:"data"`
}

// RespSubscriptionStatus wraps the subscription status response.
type RespSubscriptionStatus struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    subsvc.StatusResponse    `json:"data"`
}

// RespStartCheckout wraps the checkout session response.
type RespStartCheckout struct {
	Code    response.APIResponseCode     `json:"code"`
	Message string                       `json:"message"`
	Data    subsvc.StartCheckoutResponse `json:"data"`
}

// RespCancellation wraps the two-step cancellation response.
type RespCancellation struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    cancellationResponse     `json:"data"`
}

// RespSubscriptionInfo wraps a bare subscription info payload.
type RespSubscriptionInfo struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    types.SubscriptionInfo   `json:"data"`
}

// RespDiscount wraps the retention discount response.
type RespDiscount struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    discountResponse         `json:"data"`
}

// RespPlans wraps the plan catalog.
type RespPlans struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    []types.Plan             `json:"data"`
}

// RespListBillingEvents wraps the admin billing event listing.
type RespListBillingEvents struct {
	Code    response.APIResponseCode    `json:"code"`
	Message string                      `json:"message"`
	Data    eventlog.ScanEventsResponse `json:"data"`
}

// RespOverview wraps the admin overview statistics.
type RespOverview struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    stats.OverviewResponse   `json:"data"`
}
