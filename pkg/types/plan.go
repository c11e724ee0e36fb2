package types

type PlanID string

const (
	PlanIDFree    PlanID = "free"
	PlanIDWeekly  PlanID = "weekly"
	PlanIDMonthly PlanID = "monthly"
	PlanIDYearly  PlanID = "yearly"
)

type PlanInterval string

const (
	PlanIntervalNone  PlanInterval = ""
	PlanIntervalWeek  PlanInterval = "week"
	PlanIntervalMonth PlanInterval = "month"
	PlanIntervalYear  PlanInterval = "year"
)

type Plan struct {
	ID       PlanID       `json:"id" mapstructure:"id"`
	Name     string       `json:"name" mapstructure:"name"`
	Interval PlanInterval `json:"interval" mapstructure:"interval"`
	// PriceCents is the display price; billing is driven by the Stripe price.
	PriceCents int64 `json:"price_cents" mapstructure:"price_cents"`
	// StripePriceID is empty for the free plan, which is never checked out.
	StripePriceID string `json:"stripe_price_id" mapstructure:"stripe_price_id"`
	TrialDays     int64  `json:"trial_days" mapstructure:"trial_days"`
}

func (p *Plan) Paid() bool {
	return p.ID != PlanIDFree
}

func (p *Plan) Trialable() bool {
	return p.Paid() && p.TrialDays > 0
}
