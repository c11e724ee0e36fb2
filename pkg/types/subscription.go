package types

import "time"

type SubscriptionStatus string

const (
	SubscriptionStatusNone     SubscriptionStatus = "none"
	SubscriptionStatusTrialing SubscriptionStatus = "trialing"
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
)

// Pro reports whether the status grants paid entitlements.
func (s SubscriptionStatus) Pro() bool {
	return s == SubscriptionStatusActive || s == SubscriptionStatusTrialing
}

type SubscriptionChangeReason string

const (
	SubscriptionChangeReasonCheckout    SubscriptionChangeReason = "checkout"
	SubscriptionChangeReasonWebhookSync SubscriptionChangeReason = "webhookSync"
	SubscriptionChangeReasonCancel      SubscriptionChangeReason = "cancel"
	SubscriptionChangeReasonRestore     SubscriptionChangeReason = "restore"
	SubscriptionChangeReasonDiscount    SubscriptionChangeReason = "discount"
	SubscriptionChangeReasonTrialUsed   SubscriptionChangeReason = "trialUsed"
	SubscriptionChangeReasonDrift       SubscriptionChangeReason = "driftCorrection"
)

type SubscriptionInfo struct {
	Status            SubscriptionStatus `json:"status"`
	PlanID            PlanID             `json:"plan_id"`
	CancelAtPeriodEnd bool               `json:"cancel_at_period_end"`
	CurrentPeriodEnd  *time.Time         `json:"current_period_end"`
	HasUsedTrial      bool               `json:"has_used_trial"`
}
