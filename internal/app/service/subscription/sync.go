package subscription

import (
	"context"
	"errors"
	"fmt"

	"github.com/epigram-app/entitlement-service/internal/app/service/billing"
	"github.com/epigram-app/entitlement-service/internal/models"
	"github.com/epigram-app/entitlement-service/pkg/logctx"
	"github.com/epigram-app/entitlement-service/pkg/types"
	"github.com/samber/lo"
	"gorm.io/gorm"
)

// SyncFromProvider pulls the subscription from the provider and reconciles
// the local record with it. A subscription the provider no longer knows is
// treated as deleted.
func (s *Service) SyncFromProvider(ctx context.Context, providerSubID string) error {
	provSub, err := s.provider.GetSubscription(ctx, providerSubID)
	if errors.Is(err, billing.ErrSubscriptionMissing) {
		return s.ApplyProviderDeletion(ctx, providerSubID)
	}
	if err != nil {
		return err
	}
	return s.ApplyProviderSubscription(ctx, provSub)
}

// ApplyProviderSubscription writes the provider's view of a subscription over
// the local record. The provider is the source of truth for status, period
// and cancellation fields.
func (s *Service) ApplyProviderSubscription(ctx context.Context, provSub *billing.ProviderSubscription) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sub, err := s.locateForProvider(ctx, tx, provSub)
		if err != nil {
			return err
		}
		s.applyProviderFields(ctx, sub, provSub)
		return s.saveWithAudit(ctx, tx, sub, types.SubscriptionChangeReasonWebhookSync)
	})
}

// ApplyProviderDeletion marks the matching local record canceled. Deletion
// events for subscriptions this service never saw are logged and dropped.
func (s *Service) ApplyProviderDeletion(ctx context.Context, providerSubID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var sub models.Subscription
		err := tx.WithContext(ctx).Where("stripe_subscription_id = ?", providerSubID).First(&sub).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logctx.FromCtx(ctx, s.log).Warnf("deletion event for unknown subscription, subscription_id=%s", providerSubID)
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to load subscription: %w", err)
		}
		sub.Status = types.SubscriptionStatusCanceled
		sub.CancelAtPeriodEnd = false
		return s.saveWithAudit(ctx, tx, &sub, types.SubscriptionChangeReasonWebhookSync)
	})
}

// locateForProvider resolves the local record a provider subscription belongs
// to: by subscription id, then by customer id, then by the user id the
// checkout stamped into the provider metadata. An unknown user with metadata
// gets a fresh record so late-arriving events still land.
func (s *Service) locateForProvider(ctx context.Context, tx *gorm.DB, provSub *billing.ProviderSubscription) (*models.Subscription, error) {
	var sub models.Subscription
	err := tx.WithContext(ctx).Where("stripe_subscription_id = ?", provSub.ID).First(&sub).Error
	if err == nil {
		return &sub, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to load subscription: %w", err)
	}

	if provSub.CustomerID != "" {
		err = tx.WithContext(ctx).Where("stripe_customer_id = ?", provSub.CustomerID).First(&sub).Error
		if err == nil {
			return &sub, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("failed to load subscription: %w", err)
		}
	}

	if userID := provSub.Metadata["user_id"]; userID != "" {
		existing, err := s.getByUserID(ctx, tx, userID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
		return &models.Subscription{
			UserID: userID,
			Status: types.SubscriptionStatusNone,
			PlanID: types.PlanIDFree,
		}, nil
	}

	return nil, fmt.Errorf("%w: no local record matches provider subscription %s", ErrNoSubscriptionFound, provSub.ID)
}

// applyProviderFields copies the provider state onto the local record. Trial
// consumption is not decided here: MarkTrialUsed owns that flag so the change
// lands in the audit log under its own reason.
func (s *Service) applyProviderFields(ctx context.Context, sub *models.Subscription, provSub *billing.ProviderSubscription) {
	sub.StripeSubscriptionID = lo.ToPtr(provSub.ID)
	if provSub.CustomerID != "" {
		sub.StripeCustomerID = lo.ToPtr(provSub.CustomerID)
	}
	sub.Status = provSub.Status
	sub.CancelAtPeriodEnd = provSub.CancelAtPeriodEnd
	sub.CurrentPeriodEnd = provSub.CurrentPeriodEnd

	if provSub.PriceID == "" {
		return
	}
	plan, err := s.cfg.GetPlanByStripePriceID(ctx, provSub.PriceID)
	if err != nil {
		logctx.FromCtx(ctx, s.log).Warnf("no catalog plan matches provider price, price_id=%s", provSub.PriceID)
		return
	}
	sub.PlanID = plan.ID
}
