package entitlement

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/epigram-app/entitlement-service/internal/models"
	"github.com/epigram-app/entitlement-service/pkg/config"
	"github.com/epigram-app/entitlement-service/pkg/tool"
	"github.com/epigram-app/entitlement-service/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// a single connection keeps the in-memory database alive and shared
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.Subscription{}, &models.UsageCounter{}))
	return db
}

func newTestManager(t *testing.T, cfg *config.Config) (Manager, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	if cfg == nil {
		cfg = &config.Config{}
	}
	return NewService(cfg, db, zap.NewNop().Sugar()), db
}

func givenSubscription(t *testing.T, db *gorm.DB, userID string, status types.SubscriptionStatus, planID types.PlanID) {
	t.Helper()
	require.NoError(t, db.Create(&models.Subscription{
		ID:     tool.GenerateUUIDV7(),
		UserID: userID,
		Status: status,
		PlanID: planID,
	}).Error)
}

func TestTrackUsage_FreeUserLimitSequence(t *testing.T) {
	svc, db := newTestManager(t, nil)
	ctx := context.Background()

	// five consumes succeed with exact arithmetic
	for i := int64(1); i <= 5; i++ {
		d, err := svc.TrackUsage(ctx, "user-free", types.FeatureMockExam)
		require.NoError(t, err)
		require.True(t, d.Allowed)
		require.Equal(t, i, d.UsedCount)
		require.Equal(t, 5-i, d.Remaining)
	}

	// the sixth is denied and does not move the counter
	d, err := svc.TrackUsage(ctx, "user-free", types.FeatureMockExam)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrLimitExceeded))
	require.NotNil(t, d)
	require.False(t, d.Allowed)
	require.EqualValues(t, 5, d.UsedCount)
	require.EqualValues(t, 0, d.Remaining)

	var counter models.UsageCounter
	require.NoError(t, db.Where("user_id = ? AND feature = ?", "user-free", types.FeatureMockExam).First(&counter).Error)
	require.EqualValues(t, 5, counter.UsedCount)
	require.NotNil(t, counter.LastUsedAt)
}

func TestTrackUsage_CountersAreIndependentPerFeature(t *testing.T) {
	svc, _ := newTestManager(t, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := svc.TrackUsage(ctx, "user-multi", types.FeatureMockExam)
		require.NoError(t, err)
	}
	_, err := svc.TrackUsage(ctx, "user-multi", types.FeatureMockExam)
	require.True(t, errors.Is(err, ErrLimitExceeded))

	// a different feature still has full quota
	d, err := svc.TrackUsage(ctx, "user-multi", types.FeaturePersonalizedPractice)
	require.NoError(t, err)
	require.EqualValues(t, 1, d.UsedCount)
	require.EqualValues(t, 4, d.Remaining)
}

func TestCheckAccess_IsIdempotent(t *testing.T) {
	svc, db := newTestManager(t, nil)
	ctx := context.Background()

	_, err := svc.TrackUsage(ctx, "user-check", types.FeatureAITutor)
	require.NoError(t, err)

	var first *Decision
	for i := 0; i < 4; i++ {
		d, err := svc.CheckAccess(ctx, "user-check", types.FeatureAITutor)
		require.NoError(t, err)
		require.True(t, d.Allowed)
		if first == nil {
			first = d
		} else {
			require.Equal(t, first, d)
		}
	}

	var counter models.UsageCounter
	require.NoError(t, db.Where("user_id = ? AND feature = ?", "user-check", types.FeatureAITutor).First(&counter).Error)
	require.EqualValues(t, 1, counter.UsedCount)
}

func TestTrackUsage_ProUserNoCounterRows(t *testing.T) {
	svc, db := newTestManager(t, nil)
	ctx := context.Background()
	givenSubscription(t, db, "user-pro", types.SubscriptionStatusActive, types.PlanIDMonthly)

	for i := 0; i < 8; i++ {
		d, err := svc.TrackUsage(ctx, "user-pro", types.FeatureMockExam)
		require.NoError(t, err)
		require.True(t, d.Allowed)
		require.True(t, d.Pro)
		require.Equal(t, types.UsageUnlimited, d.Remaining)
	}

	var count int64
	require.NoError(t, db.Model(&models.UsageCounter{}).Where("user_id = ?", "user-pro").Count(&count).Error)
	require.Zero(t, count)
}

func TestTrackUsage_TrialingCountsAsPro(t *testing.T) {
	svc, db := newTestManager(t, nil)
	ctx := context.Background()
	givenSubscription(t, db, "user-trial", types.SubscriptionStatusTrialing, types.PlanIDYearly)

	d, err := svc.TrackUsage(ctx, "user-trial", types.FeaturePersonalizedPractice)
	require.NoError(t, err)
	require.True(t, d.Pro)
	require.Equal(t, types.PlanIDYearly, d.PlanID)
}

func TestTrackUsage_CanceledSubscriberMetersAsFree(t *testing.T) {
	svc, db := newTestManager(t, nil)
	ctx := context.Background()
	givenSubscription(t, db, "user-lapsed", types.SubscriptionStatusCanceled, types.PlanIDMonthly)

	d, err := svc.TrackUsage(ctx, "user-lapsed", types.FeatureMockExam)
	require.NoError(t, err)
	require.False(t, d.Pro)
	require.Equal(t, types.PlanIDFree, d.PlanID)
	require.EqualValues(t, 1, d.UsedCount)
}

func TestTrackUsage_InvalidFeature(t *testing.T) {
	svc, _ := newTestManager(t, nil)

	_, err := svc.TrackUsage(context.Background(), "user-x", types.Feature("pdf_export"))
	require.True(t, errors.Is(err, ErrInvalidFeature))

	_, err = svc.CheckAccess(context.Background(), "user-x", types.Feature(""))
	require.True(t, errors.Is(err, ErrInvalidFeature))
}

func TestTrackUsage_ZeroLimitDenies(t *testing.T) {
	cfg := &config.Config{UsageLimits: map[string]int64{string(types.FeatureMockExam): 0}}
	svc, db := newTestManager(t, cfg)

	d, err := svc.TrackUsage(context.Background(), "user-zero", types.FeatureMockExam)
	require.True(t, errors.Is(err, ErrLimitExceeded))
	require.False(t, d.Allowed)
	require.EqualValues(t, 0, d.UsedCount)

	var counter models.UsageCounter
	require.NoError(t, db.Where("user_id = ?", "user-zero").First(&counter).Error)
	require.EqualValues(t, 0, counter.UsedCount)
}

func TestTrackUsage_UncappedFeatureStillCounts(t *testing.T) {
	cfg := &config.Config{UsageLimits: map[string]int64{string(types.FeatureAITutor): types.UsageUnlimited}}
	svc, db := newTestManager(t, cfg)

	for i := 0; i < 7; i++ {
		d, err := svc.TrackUsage(context.Background(), "user-uncapped", types.FeatureAITutor)
		require.NoError(t, err)
		require.True(t, d.Allowed)
		require.Equal(t, types.UsageUnlimited, d.Remaining)
	}

	var counter models.UsageCounter
	require.NoError(t, db.Where("user_id = ?", "user-uncapped").First(&counter).Error)
	require.EqualValues(t, 7, counter.UsedCount)
}

func TestTrackUsage_ConcurrentConsumesStopAtLimit(t *testing.T) {
	svc, db := newTestManager(t, nil)
	ctx := context.Background()

	const attempts = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0
	denials := 0
	var unexpected []error

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.TrackUsage(ctx, "user-race", types.FeatureMockExam)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrLimitExceeded):
				denials++
			default:
				unexpected = append(unexpected, err)
			}
		}()
	}
	wg.Wait()

	assert.Empty(t, unexpected)
	assert.Equal(t, 5, successes)
	assert.Equal(t, attempts-5, denials)

	var counter models.UsageCounter
	require.NoError(t, db.Where("user_id = ?", "user-race").First(&counter).Error)
	require.EqualValues(t, 5, counter.UsedCount)
}
