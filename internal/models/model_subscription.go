package models

import (
	"time"

	"github.com/epigram-app/entitlement-service/pkg/types"
	"gorm.io/datatypes"
)

// Subscription stores the billing state of one user. A user without a row
// (or with status "none") is on the free plan.
// Use Pro() to determine whether the subscription grants paid entitlements.
type Subscription struct {
	ID     string                   `gorm:"column:id;type:uuid;primary_key" json:"id"`
	UserID string                   `gorm:"column:user_id;type:varchar(64);not null;uniqueIndex" json:"user_id"`
	Status types.SubscriptionStatus `gorm:"column:status;type:varchar(64);not null" json:"status"`
	PlanID types.PlanID             `gorm:"column:plan_id;type:varchar(64);not null" json:"plan_id"`
	// StripeCustomerID is set the first time the user reaches checkout and
	// reused for every later billing call.
	StripeCustomerID *string `gorm:"column:stripe_customer_id;type:varchar(128);index" json:"stripe_customer_id"`
	// StripeSubscriptionID is nil until the provider reports a subscription.
	StripeSubscriptionID *string `gorm:"column:stripe_subscription_id;type:varchar(128);uniqueIndex" json:"stripe_subscription_id"`
	// CancelAtPeriodEnd mirrors the provider flag: access continues until
	// CurrentPeriodEnd, then the subscription ends.
	CancelAtPeriodEnd bool `gorm:"column:cancel_at_period_end;not null;default:false" json:"cancel_at_period_end"`
	// CurrentPeriodEnd is the end of the paid (or trial) period.
	CurrentPeriodEnd *time.Time `gorm:"column:current_period_end;default:null" json:"current_period_end"`
	// HasUsedTrial is set once and never cleared. A user gets one trial ever.
	HasUsedTrial bool `gorm:"column:has_used_trial;not null;default:false" json:"has_used_trial"`
	// RetentionDiscountUsed is set once the retention offer is accepted.
	// It is claimed before the coupon is created; the only path that clears
	// it back to false is the revert after a failed provider call, when no
	// coupon was ever minted. Do not add other writers that unset it.
	RetentionDiscountUsed bool `gorm:"column:retention_discount_used;not null;default:false" json:"retention_discount_used"`
	// Extra stores additional JSON data (for example: price snapshot and coupon details).
	Extra datatypes.JSON `gorm:"column:extra;type:jsonb;default:'{}'" json:"extra"`
	// CreatedAt is managed by GORM and records the creation time.
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is managed by GORM and records the update time.
	UpdatedAt time.Time `json:"updated_at"`
}

func (Subscription) TableName() string {
	return "subscription"
}

func (subscription *Subscription) Pro() bool {
	return subscription != nil && subscription.Status.Pro()
}

func (subscription *Subscription) EffectivePlanID() types.PlanID {
	if !subscription.Pro() {
		return types.PlanIDFree
	}

	return subscription.PlanID
}

func (subscription *Subscription) Info() *types.SubscriptionInfo {
	if subscription == nil {
		return &types.SubscriptionInfo{
			Status: types.SubscriptionStatusNone,
			PlanID: types.PlanIDFree,
		}
	}

	return &types.SubscriptionInfo{
		Status:            subscription.Status,
		PlanID:            subscription.EffectivePlanID(),
		CancelAtPeriodEnd: subscription.CancelAtPeriodEnd,
		CurrentPeriodEnd:  subscription.CurrentPeriodEnd,
		HasUsedTrial:      subscription.HasUsedTrial,
	}
}
