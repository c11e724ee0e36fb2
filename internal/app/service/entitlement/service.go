package entitlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/epigram-app/entitlement-service/internal/models"
	"github.com/epigram-app/entitlement-service/pkg/config"
	"github.com/epigram-app/entitlement-service/pkg/metrics"
	"github.com/epigram-app/entitlement-service/pkg/tool"
	"github.com/epigram-app/entitlement-service/pkg/types"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Manager answers entitlement questions and meters free-tier usage.
type Manager interface {
	// CheckAccess reports whether the user may use the feature right now.
	// Read-only: calling it any number of times changes nothing.
	CheckAccess(ctx context.Context, userID string, feature types.Feature) (*Decision, error)
	// TrackUsage authorizes one use and consumes it. For free users this is a
	// conditional increment that fails with ErrLimitExceeded once the cap is
	// reached; the returned decision carries the post-increment counts even
	// on denial.
	TrackUsage(ctx context.Context, userID string, feature types.Feature) (*Decision, error)
}

type Service struct {
	cfg *config.Config
	db  *gorm.DB
	log *zap.SugaredLogger
}

func NewService(cfg *config.Config, db *gorm.DB, log *zap.SugaredLogger) Manager {
	return &Service{cfg: cfg, db: db, log: log}
}

func (s *Service) CheckAccess(ctx context.Context, userID string, feature types.Feature) (*Decision, error) {
	if !feature.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidFeature, feature)
	}

	sub, err := s.getSubscription(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	counter, err := s.getCounter(ctx, s.db, userID, feature)
	if err != nil {
		return nil, err
	}

	decision := Evaluate(sub, counter, feature, s.cfg.FreeUsageLimit(feature))
	observeDecision(decision)
	return decision, nil
}

func (s *Service) TrackUsage(ctx context.Context, userID string, feature types.Feature) (*Decision, error) {
	if !feature.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidFeature, feature)
	}

	limit := s.cfg.FreeUsageLimit(feature)

	sub, err := s.getSubscription(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}

	// Pro usage is uncounted: no row creation, no increment.
	if sub.Pro() {
		counter, err := s.getCounter(ctx, s.db, userID, feature)
		if err != nil {
			return nil, err
		}
		decision := Evaluate(sub, counter, feature, limit)
		observeDecision(decision)
		return decision, nil
	}

	var decision *Decision
	incremented := false
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.ensureCounter(ctx, tx, userID, feature); err != nil {
			return err
		}

		// The WHERE guard makes the increment conditional on remaining quota,
		// so two racing requests can never both claim the last use.
		q := tx.WithContext(ctx).Model(&models.UsageCounter{}).
			Where("user_id = ? AND feature = ?", userID, feature)
		if limit >= 0 {
			q = q.Where("used_count < ?", limit)
		}
		res := q.Updates(map[string]interface{}{
			"used_count":   gorm.Expr("used_count + 1"),
			"last_used_at": time.Now(),
		})
		if res.Error != nil {
			return fmt.Errorf("failed to increment usage counter: %w", res.Error)
		}
		incremented = res.RowsAffected == 1

		counter, err := s.getCounter(ctx, tx, userID, feature)
		if err != nil {
			return err
		}
		decision = Evaluate(sub, counter, feature, limit)
		decision.Allowed = incremented
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to track usage: %w", err)
	}

	observeDecision(decision)
	if !incremented {
		return decision, fmt.Errorf("%w: %s used %d of %d", ErrLimitExceeded, feature, decision.UsedCount, limit)
	}
	return decision, nil
}

func (s *Service) getSubscription(ctx context.Context, db *gorm.DB, userID string) (*models.Subscription, error) {
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

func (s *Service) getCounter(ctx context.Context, db *gorm.DB, userID string, feature types.Feature) (*models.UsageCounter, error) {
	var counter models.UsageCounter
	err := db.WithContext(ctx).Where("user_id = ? AND feature = ?", userID, feature).First(&counter).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load usage counter: %w", err)
	}
	return &counter, nil
}

// ensureCounter creates the lazy counter row; a concurrent create by another
// request is not an error.
func (s *Service) ensureCounter(ctx context.Context, tx *gorm.DB, userID string, feature types.Feature) error {
	counter := &models.UsageCounter{
		ID:      tool.GenerateUUIDV7(),
		UserID:  userID,
		Feature: feature,
	}
	err := tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "feature"}},
			DoNothing: true,
		}).
		Create(counter).Error
	if err != nil {
		return fmt.Errorf("failed to create usage counter: %w", err)
	}
	return nil
}

func observeDecision(d *Decision) {
	outcome := "denied"
	if d.Allowed {
		outcome = "allowed"
	}
	metrics.ObserveEntitlementDecision(string(d.Feature), outcome)
}
