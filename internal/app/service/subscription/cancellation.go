package subscription

import (
	"context"
	"errors"
	"fmt"

	"github.com/epigram-app/entitlement-service/internal/app/service/billing"
	"github.com/epigram-app/entitlement-service/internal/models"
	"github.com/epigram-app/entitlement-service/pkg/logctx"
	"github.com/epigram-app/entitlement-service/pkg/types"
	"gorm.io/gorm"
)

func (s *Service) EvaluateCancellation(ctx context.Context, userID string) (*CancellationOffer, error) {
	sub, err := s.getByUserID(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	if sub == nil || sub.Status == types.SubscriptionStatusNone {
		return nil, fmt.Errorf("%w: user %s", ErrNoSubscriptionFound, userID)
	}
	if sub.Status == types.SubscriptionStatusCanceled {
		return nil, fmt.Errorf("%w: user %s", ErrAlreadyCanceled, userID)
	}

	offer := &CancellationOffer{
		ShowRetentionOffer: !sub.RetentionDiscountUsed,
	}
	if offer.ShowRetentionOffer {
		offer.PercentOff = s.cfg.Stripe.RetentionPercentOff
		offer.DurationMonths = s.cfg.Stripe.RetentionDurationMonths
	}
	return offer, nil
}

func (s *Service) ConfirmCancellation(ctx context.Context, userID string) (*types.SubscriptionInfo, error) {
	sub, err := s.liveSubscription(ctx, userID)
	if err != nil {
		return nil, err
	}

	provSub, err := s.provider.SetCancelAtPeriodEnd(ctx, *sub.StripeSubscriptionID, true)
	if errors.Is(err, billing.ErrSubscriptionMissing) {
		if healErr := s.healCanceled(ctx, sub); healErr != nil {
			return nil, healErr
		}
		return nil, fmt.Errorf("%w: user %s", ErrAlreadyCanceled, userID)
	}
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		s.applyProviderFields(ctx, sub, provSub)
		return s.saveWithAudit(ctx, tx, sub, types.SubscriptionChangeReasonCancel)
	})
	if err != nil {
		return nil, err
	}

	logctx.FromCtx(ctx, s.log).Infof("cancellation scheduled, user_id=%s, period_end=%v", userID, sub.CurrentPeriodEnd)
	return sub.Info(), nil
}

func (s *Service) RestoreSubscription(ctx context.Context, userID string) (*types.SubscriptionInfo, error) {
	sub, err := s.liveSubscription(ctx, userID)
	if err != nil {
		return nil, err
	}

	// Check the provider first: a record the provider no longer has (or has
	// already fully canceled) cannot be restored, only corrected locally.
	provSub, err := s.provider.GetSubscription(ctx, *sub.StripeSubscriptionID)
	if errors.Is(err, billing.ErrSubscriptionMissing) {
		if healErr := s.healCanceled(ctx, sub); healErr != nil {
			return nil, healErr
		}
		return nil, fmt.Errorf("%w: user %s", ErrAlreadyCanceled, userID)
	}
	if err != nil {
		return nil, err
	}
	if provSub.Status == types.SubscriptionStatusCanceled {
		if healErr := s.healCanceled(ctx, sub); healErr != nil {
			return nil, healErr
		}
		return nil, fmt.Errorf("%w: provider reports subscription %s ended", ErrAlreadyCanceled, provSub.ID)
	}

	provSub, err = s.provider.SetCancelAtPeriodEnd(ctx, *sub.StripeSubscriptionID, false)
	if errors.Is(err, billing.ErrSubscriptionMissing) {
		if healErr := s.healCanceled(ctx, sub); healErr != nil {
			return nil, healErr
		}
		return nil, fmt.Errorf("%w: user %s", ErrAlreadyCanceled, userID)
	}
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		s.applyProviderFields(ctx, sub, provSub)
		return s.saveWithAudit(ctx, tx, sub, types.SubscriptionChangeReasonRestore)
	})
	if err != nil {
		return nil, err
	}

	logctx.FromCtx(ctx, s.log).Infof("subscription restored, user_id=%s", userID)
	return sub.Info(), nil
}

func (s *Service) AcceptRetentionDiscount(ctx context.Context, userID string) (*types.SubscriptionInfo, error) {
	sub, err := s.liveSubscription(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sub.RetentionDiscountUsed {
		return nil, fmt.Errorf("%w: user %s", ErrDiscountAlreadyUsed, userID)
	}

	// Claim the one-time flag before calling the provider. The conditional
	// update makes concurrent accepts race for a single row change; losers
	// observe zero affected rows. A failed provider call reverts the claim.
	claim := s.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("user_id = ? AND retention_discount_used = ?", userID, false).
		Update("retention_discount_used", true)
	if claim.Error != nil {
		return nil, fmt.Errorf("failed to claim retention discount: %w", claim.Error)
	}
	if claim.RowsAffected == 0 {
		return nil, fmt.Errorf("%w: user %s", ErrDiscountAlreadyUsed, userID)
	}

	provSub, err := s.provider.ApplyRetentionDiscount(ctx, *sub.StripeSubscriptionID)
	if err != nil {
		s.revertDiscountClaim(ctx, userID)
		if errors.Is(err, billing.ErrSubscriptionMissing) {
			if healErr := s.healCanceled(ctx, sub); healErr != nil {
				return nil, healErr
			}
			return nil, fmt.Errorf("%w: user %s", ErrAlreadyCanceled, userID)
		}
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fresh, err := s.getByUserID(ctx, tx, userID)
		if err != nil {
			return err
		}
		if fresh == nil {
			return fmt.Errorf("%w: user %s", ErrNoSubscriptionFound, userID)
		}
		sub = fresh
		s.applyProviderFields(ctx, sub, provSub)
		sub.RetentionDiscountUsed = true
		return s.saveWithAudit(ctx, tx, sub, types.SubscriptionChangeReasonDiscount)
	})
	if err != nil {
		return nil, err
	}

	logctx.FromCtx(ctx, s.log).Infof("retention discount applied, user_id=%s, percent_off=%d", userID, s.cfg.Stripe.RetentionPercentOff)
	return sub.Info(), nil
}

// liveSubscription loads the user's subscription and checks it is live enough
// to act on at the provider.
func (s *Service) liveSubscription(ctx context.Context, userID string) (*models.Subscription, error) {
	sub, err := s.getByUserID(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	if sub == nil || sub.Status == types.SubscriptionStatusNone {
		return nil, fmt.Errorf("%w: user %s", ErrNoSubscriptionFound, userID)
	}
	if sub.Status == types.SubscriptionStatusCanceled {
		return nil, fmt.Errorf("%w: user %s", ErrAlreadyCanceled, userID)
	}
	if sub.StripeSubscriptionID == nil || *sub.StripeSubscriptionID == "" {
		return nil, fmt.Errorf("%w: user %s has no provider subscription", ErrNoSubscriptionFound, userID)
	}
	return sub, nil
}

func (s *Service) revertDiscountClaim(ctx context.Context, userID string) {
	err := s.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("user_id = ?", userID).
		Update("retention_discount_used", false).Error
	if err != nil {
		logctx.FromCtx(ctx, s.log).Errorf("failed to revert retention discount claim, user_id=%s: %v", userID, err)
	}
}
