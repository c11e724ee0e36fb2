package entitlement

import (
	"github.com/epigram-app/entitlement-service/internal/models"
	"github.com/epigram-app/entitlement-service/pkg/types"
)

// Decision is the outcome of one entitlement evaluation. For pro users and
// uncapped features Limit and Remaining carry types.UsageUnlimited.
type Decision struct {
	Feature   types.Feature `json:"feature"`
	Allowed   bool          `json:"allowed"`
	Pro       bool          `json:"pro"`
	PlanID    types.PlanID  `json:"plan_id"`
	Limit     int64         `json:"limit"`
	UsedCount int64         `json:"used_count"`
	Remaining int64         `json:"remaining"`
}

// Evaluate applies the access policy for one feature. It is a pure function
// of its inputs: callers load the subscription and counter rows (either may
// be nil) and Evaluate only decides. Counts below zero are read as zero.
func Evaluate(sub *models.Subscription, counter *models.UsageCounter, feature types.Feature, limit int64) *Decision {
	used := int64(0)
	if counter != nil {
		used = counter.UsedCount
	}
	if used < 0 {
		used = 0
	}

	d := &Decision{
		Feature:   feature,
		Pro:       sub.Pro(),
		PlanID:    sub.EffectivePlanID(),
		UsedCount: used,
	}

	if d.Pro || limit < 0 {
		d.Allowed = true
		d.Limit = types.UsageUnlimited
		d.Remaining = types.UsageUnlimited
		return d
	}

	d.Limit = limit
	d.Remaining = limit - used
	if d.Remaining < 0 {
		d.Remaining = 0
	}
	d.Allowed = used < limit
	return d
}
