package subscription

import (
	"context"
	"errors"
	"fmt"

	"github.com/epigram-app/entitlement-service/internal/app/service/billing"
	"github.com/epigram-app/entitlement-service/internal/models"
	"github.com/epigram-app/entitlement-service/pkg/config"
	"github.com/epigram-app/entitlement-service/pkg/logctx"
	"github.com/epigram-app/entitlement-service/pkg/tool"
	"github.com/epigram-app/entitlement-service/pkg/types"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type StartCheckoutRequest struct {
	UserID string       `json:"-"`
	Email  string       `json:"-"`
	PlanID types.PlanID `json:"plan_id"`
}

type StartCheckoutResponse struct {
	SessionID   string `json:"session_id"`
	CheckoutURL string `json:"checkout_url"`
}

type CancellationOffer struct {
	ShowRetentionOffer bool  `json:"show_retention_offer"`
	PercentOff         int64 `json:"percent_off,omitempty"`
	DurationMonths     int64 `json:"duration_months,omitempty"`
}

type StatusResponse struct {
	Subscription *types.SubscriptionInfo `json:"subscription"`
	Plan         *types.Plan             `json:"plan,omitempty"`
}

// Coordinator drives the subscription lifecycle against the billing provider
// and keeps the local record in sync with it.
type Coordinator interface {
	// Current record (absence means the free plan) plus the resolved catalog
	// entry.
	GetStatus(ctx context.Context, userID string) (*StatusResponse, error)
	// Open a checkout session for a paid plan. A trial is attached only when
	// the user has never used one.
	StartCheckout(ctx context.Context, req *StartCheckoutRequest) (*StartCheckoutResponse, error)
	// Read-only first half of the cancellation two-step: reports whether the
	// retention offer should be shown. Mutates nothing.
	EvaluateCancellation(ctx context.Context, userID string) (*CancellationOffer, error)
	// Second half: schedules the cancellation at period end.
	ConfirmCancellation(ctx context.Context, userID string) (*types.SubscriptionInfo, error)
	// Undo a scheduled cancellation while the provider still has the
	// subscription live; otherwise fails with ErrAlreadyCanceled and corrects
	// the local record.
	RestoreSubscription(ctx context.Context, userID string) (*types.SubscriptionInfo, error)
	// Apply the one-time retention discount to the live subscription.
	AcceptRetentionDiscount(ctx context.Context, userID string) (*types.SubscriptionInfo, error)
	// Permanently mark the user's one trial as consumed. Idempotent.
	MarkTrialUsed(ctx context.Context, userID string) error

	// Inbound sync from billing events.
	SyncFromProvider(ctx context.Context, providerSubID string) error
	ApplyProviderSubscription(ctx context.Context, provSub *billing.ProviderSubscription) error
	ApplyProviderDeletion(ctx context.Context, providerSubID string) error
}

type Service struct {
	cfg      *config.Config
	db       *gorm.DB
	log      *zap.SugaredLogger
	provider billing.Provider
}

func NewService(cfg *config.Config, db *gorm.DB, log *zap.SugaredLogger, provider billing.Provider) Coordinator {
	return &Service{cfg: cfg, db: db, log: log, provider: provider}
}

func (s *Service) GetStatus(ctx context.Context, userID string) (*StatusResponse, error) {
	sub, err := s.getByUserID(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}

	info := sub.Info()
	return &StatusResponse{
		Subscription: info,
		Plan:         s.cfg.GetPlanByID(info.PlanID),
	}, nil
}

func (s *Service) getByUserID(ctx context.Context, db *gorm.DB, userID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := db.WithContext(ctx).Where("user_id = ?", userID).First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load subscription: %w", err)
	}
	return &sub, nil
}

// saveWithAudit upserts the subscription row and appends a change-log entry.
// The monotonic flags survive any later write: once true they stay true here
// no matter what the caller passed in.
func (s *Service) saveWithAudit(ctx context.Context, tx *gorm.DB, m *models.Subscription, reason types.SubscriptionChangeReason) error {
	var original models.Subscription
	if err := tx.WithContext(ctx).Where("user_id = ?", m.UserID).First(&original).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to get original subscription: %w", err)
		}
	}

	if original.ID != "" {
		m.ID = original.ID
		m.CreatedAt = original.CreatedAt
	} else if m.ID == "" {
		m.ID = tool.GenerateUUIDV7()
	}

	before := func() *models.Subscription {
		if original.ID == "" {
			return nil
		}
		// make a copy value to snapshot
		cp := original
		return &cp
	}()

	if before != nil {
		m.HasUsedTrial = m.HasUsedTrial || before.HasUsedTrial
		m.RetentionDiscountUsed = m.RetentionDiscountUsed || before.RetentionDiscountUsed
	}

	if err := tx.WithContext(ctx).Save(m).Error; err != nil {
		return fmt.Errorf("failed to upsert subscription: %w", err)
	}

	// async log
	go func(b *models.Subscription, a *models.Subscription) {
		log := &models.SubscriptionLog{
			ID:     tool.GenerateUUIDV7(),
			UserID: a.UserID,
			Reason: reason,
			Before: datatypes.NewJSONType(b),
			After:  datatypes.NewJSONType(a),
			Extra:  datatypes.JSONMap{},
		}
		if err := s.db.Save(log).Error; err != nil {
			logctx.FromCtx(ctx, s.log).Errorf("failed to save subscription log: %v", err)
		}
	}(before, m)

	return nil
}

// healCanceled corrects the local record after the provider reported the
// subscription gone or fully canceled.
func (s *Service) healCanceled(ctx context.Context, sub *models.Subscription) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sub.Status = types.SubscriptionStatusCanceled
		sub.CancelAtPeriodEnd = false
		return s.saveWithAudit(ctx, tx, sub, types.SubscriptionChangeReasonDrift)
	})
	if err != nil {
		return err
	}
	logctx.FromCtx(ctx, s.log).Infof("subscription drift corrected to canceled, user_id=%s", sub.UserID)
	return nil
}
