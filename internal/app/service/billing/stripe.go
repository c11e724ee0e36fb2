package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/epigram-app/entitlement-service/pkg/config"
	"github.com/epigram-app/entitlement-service/pkg/metrics"
	"github.com/epigram-app/entitlement-service/pkg/tool"
	"github.com/epigram-app/entitlement-service/pkg/types"
	"github.com/samber/lo"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"go.uber.org/zap"
)

// StripeProvider implements Provider on the Stripe API.
type StripeProvider struct {
	sc  *client.API
	cfg *config.Config
	log *zap.SugaredLogger
}

func NewStripeProvider(sc *client.API, cfg *config.Config, log *zap.SugaredLogger) Provider {
	return &StripeProvider{sc: sc, cfg: cfg, log: log}
}

func (p *StripeProvider) CreateCustomer(ctx context.Context, userID, email string) (id string, err error) {
	defer func() { observeCall("create_customer", err) }()

	params := &stripe.CustomerParams{
		Email: stripe.String(email),
		Metadata: map[string]string{
			"user_id": userID,
		},
	}
	params.Context = ctx
	cust, err := p.sc.Customers.New(params)
	if err != nil {
		return "", mapProviderError(err)
	}
	return cust.ID, nil
}

func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, in *CheckoutParams) (res *CheckoutSession, err error) {
	defer func() { observeCall("create_checkout_session", err) }()

	params := &stripe.CheckoutSessionParams{
		Mode:     stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer: stripe.String(in.CustomerID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(in.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL:        stripe.String(p.cfg.Stripe.SuccessURL),
		CancelURL:         stripe.String(p.cfg.Stripe.CancelURL),
		ClientReferenceID: stripe.String(in.UserID),
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{
				"user_id": in.UserID,
				"plan_id": string(in.PlanID),
			},
		},
	}
	params.Context = ctx
	if in.TrialDays > 0 {
		params.SubscriptionData.TrialPeriodDays = stripe.Int64(in.TrialDays)
	}

	sess, err := p.sc.CheckoutSessions.New(params)
	if err != nil {
		return nil, mapProviderError(err)
	}
	return &CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

func (p *StripeProvider) GetSubscription(ctx context.Context, subscriptionID string) (res *ProviderSubscription, err error) {
	defer func() { observeCall("get_subscription", err) }()

	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	sub, err := p.sc.Subscriptions.Get(subscriptionID, params)
	if err != nil {
		return nil, mapProviderError(err)
	}
	return FromStripeSubscription(sub), nil
}

func (p *StripeProvider) SetCancelAtPeriodEnd(ctx context.Context, subscriptionID string, cancel bool) (res *ProviderSubscription, err error) {
	defer func() { observeCall("set_cancel_at_period_end", err) }()

	params := &stripe.SubscriptionParams{
		CancelAtPeriodEnd: stripe.Bool(cancel),
	}
	params.Context = ctx
	sub, err := p.sc.Subscriptions.Update(subscriptionID, params)
	if err != nil {
		return nil, mapProviderError(err)
	}
	return FromStripeSubscription(sub), nil
}

func (p *StripeProvider) ApplyRetentionDiscount(ctx context.Context, subscriptionID string) (res *ProviderSubscription, err error) {
	defer func() { observeCall("apply_retention_discount", err) }()

	couponParams := &stripe.CouponParams{
		PercentOff:       stripe.Float64(float64(p.cfg.Stripe.RetentionPercentOff)),
		Duration:         stripe.String(string(stripe.CouponDurationRepeating)),
		DurationInMonths: stripe.Int64(p.cfg.Stripe.RetentionDurationMonths),
		Name:             stripe.String("Retention offer " + tool.ShortRef()),
	}
	couponParams.Context = ctx
	coupon, err := p.sc.Coupons.New(couponParams)
	if err != nil {
		return nil, mapProviderError(err)
	}
	p.log.Infow("retention_coupon_created", "coupon_id", coupon.ID, "subscription_id", subscriptionID)

	subParams := &stripe.SubscriptionParams{
		Coupon: stripe.String(coupon.ID),
	}
	subParams.Context = ctx
	sub, err := p.sc.Subscriptions.Update(subscriptionID, subParams)
	if err != nil {
		return nil, mapProviderError(err)
	}
	return FromStripeSubscription(sub), nil
}

// FromStripeSubscription reduces a Stripe subscription to the fields the
// coordinator syncs. Webhook payloads and API reads go through the same
// translation.
func FromStripeSubscription(sub *stripe.Subscription) *ProviderSubscription {
	res := &ProviderSubscription{
		ID:                sub.ID,
		Status:            mapStatus(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		Metadata:          sub.Metadata,
	}
	if sub.Customer != nil {
		res.CustomerID = sub.Customer.ID
	}
	if sub.CurrentPeriodEnd > 0 {
		res.CurrentPeriodEnd = lo.ToPtr(time.Unix(sub.CurrentPeriodEnd, 0))
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
		res.PriceID = sub.Items.Data[0].Price.ID
	}
	return res
}

// mapStatus reduces Stripe's lifecycle statuses to the local three. Anything
// that does not grant paid access maps to canceled.
func mapStatus(s stripe.SubscriptionStatus) types.SubscriptionStatus {
	switch s {
	case stripe.SubscriptionStatusActive:
		return types.SubscriptionStatusActive
	case stripe.SubscriptionStatusTrialing:
		return types.SubscriptionStatusTrialing
	default:
		return types.SubscriptionStatusCanceled
	}
}

func mapProviderError(err error) error {
	var sErr *stripe.Error
	if errors.As(err, &sErr) {
		if sErr.Code == stripe.ErrorCodeResourceMissing {
			return fmt.Errorf("%w: %s", ErrSubscriptionMissing, sErr.Code)
		}
		return fmt.Errorf("%w: %s", ErrProvider, sErr.Code)
	}
	return fmt.Errorf("%w: %v", ErrProvider, err)
}

func observeCall(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.ObserveBillingProviderCall(op, result)
}
