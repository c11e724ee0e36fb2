package subscription

import (
	"context"
	"fmt"

	"github.com/epigram-app/entitlement-service/internal/app/service/billing"
	"github.com/epigram-app/entitlement-service/internal/models"
	"github.com/epigram-app/entitlement-service/pkg/logctx"
	"github.com/epigram-app/entitlement-service/pkg/types"
	"github.com/samber/lo"
	"gorm.io/gorm"
)

// DefaultTrialDays is the trial attached to a user's first checkout unless
// the plan overrides it.
const DefaultTrialDays int64 = 7

func (s *Service) StartCheckout(ctx context.Context, req *StartCheckoutRequest) (*StartCheckoutResponse, error) {
	plan := s.cfg.GetPlanByID(req.PlanID)
	if plan == nil || !plan.Paid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPlan, req.PlanID)
	}
	if plan.StripePriceID == "" {
		return nil, fmt.Errorf("%w: %s has no billing price configured", ErrInvalidPlan, req.PlanID)
	}

	sub, err := s.getByUserID(ctx, s.db, req.UserID)
	if err != nil {
		return nil, err
	}
	if sub.Pro() {
		return nil, fmt.Errorf("%w: status %s", ErrAlreadySubscribed, sub.Status)
	}

	customerID, err := s.ensureCustomer(ctx, sub, req.UserID, req.Email)
	if err != nil {
		return nil, err
	}

	// has_used_trial is flipped by the checkout-completion event via
	// MarkTrialUsed, never here.
	trialDays := int64(0)
	if sub == nil || !sub.HasUsedTrial {
		trialDays = plan.TrialDays
		if trialDays <= 0 {
			trialDays = DefaultTrialDays
		}
	}

	session, err := s.provider.CreateCheckoutSession(ctx, &billing.CheckoutParams{
		CustomerID: customerID,
		PriceID:    plan.StripePriceID,
		PlanID:     plan.ID,
		UserID:     req.UserID,
		TrialDays:  trialDays,
	})
	if err != nil {
		return nil, err
	}

	logctx.FromCtx(ctx, s.log).Infof("checkout started, user_id=%s, plan_id=%s, trial_days=%d", req.UserID, plan.ID, trialDays)
	return &StartCheckoutResponse{SessionID: session.ID, CheckoutURL: session.URL}, nil
}

// ensureCustomer reuses the pinned billing customer or creates one. A newly
// created customer is pinned immediately on a status "none" row so the next
// checkout attempt reuses it even if this one is abandoned.
func (s *Service) ensureCustomer(ctx context.Context, sub *models.Subscription, userID, email string) (string, error) {
	if sub != nil && sub.StripeCustomerID != nil && *sub.StripeCustomerID != "" {
		return *sub.StripeCustomerID, nil
	}

	customerID, err := s.provider.CreateCustomer(ctx, userID, email)
	if err != nil {
		return "", err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m := sub
		if m == nil {
			m = &models.Subscription{
				UserID: userID,
				Status: types.SubscriptionStatusNone,
				PlanID: types.PlanIDFree,
			}
		}
		m.StripeCustomerID = lo.ToPtr(customerID)
		return s.saveWithAudit(ctx, tx, m, types.SubscriptionChangeReasonCheckout)
	})
	if err != nil {
		return "", err
	}
	return customerID, nil
}

func (s *Service) MarkTrialUsed(ctx context.Context, userID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sub, err := s.getByUserID(ctx, tx, userID)
		if err != nil {
			return err
		}
		if sub == nil {
			return fmt.Errorf("%w: user %s", ErrNoSubscriptionFound, userID)
		}
		if sub.HasUsedTrial {
			return nil
		}
		sub.HasUsedTrial = true
		return s.saveWithAudit(ctx, tx, sub, types.SubscriptionChangeReasonTrialUsed)
	})
}
