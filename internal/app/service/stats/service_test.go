package stats

import (
	"context"
	"testing"

	"github.com/epigram-app/entitlement-service/internal/models"
	"github.com/epigram-app/entitlement-service/pkg/tool"
	"github.com/epigram-app/entitlement-service/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// a single connection keeps the in-memory database alive and shared
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&models.Subscription{},
		&models.UsageCounter{},
		&models.BillingEventLog{},
	))
	return New(db), db
}

func seedSubscription(t *testing.T, db *gorm.DB, userID string, status types.SubscriptionStatus, planID types.PlanID, trialUsed, pendingCancel bool) {
	t.Helper()
	require.NoError(t, db.Create(&models.Subscription{
		ID:                tool.GenerateUUIDV7(),
		UserID:            userID,
		Status:            status,
		PlanID:            planID,
		HasUsedTrial:      trialUsed,
		CancelAtPeriodEnd: pendingCancel,
	}).Error)
}

func TestGetOverview_AllItems(t *testing.T) {
	svc, db := newTestService(t)

	seedSubscription(t, db, "u1", types.SubscriptionStatusActive, types.PlanIDMonthly, true, false)
	seedSubscription(t, db, "u2", types.SubscriptionStatusTrialing, types.PlanIDYearly, true, true)
	seedSubscription(t, db, "u3", types.SubscriptionStatusCanceled, types.PlanIDMonthly, true, false)

	require.NoError(t, db.Create(&models.UsageCounter{
		ID:        tool.GenerateUUIDV7(),
		UserID:    "u4",
		Feature:   types.FeatureMockExam,
		UsedCount: 3,
	}).Error)

	res, err := svc.GetOverview(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, res.DataItems, len(AllStatisticTypes))

	statuses := map[string]int64{}
	for _, item := range res.DataItems[StatisticTypeSubscriptionsByStatus] {
		statuses[item.Label] = item.Value
	}
	assert.Equal(t, int64(1), statuses["active"])
	assert.Equal(t, int64(1), statuses["trialing"])
	assert.Equal(t, int64(1), statuses["canceled"])

	// canceled subscriptions are excluded from the plan breakdown
	plans := map[string]int64{}
	for _, item := range res.DataItems[StatisticTypePlansBreakdown] {
		plans[item.Label] = item.Value
	}
	assert.Equal(t, int64(1), plans["monthly"])
	assert.Equal(t, int64(1), plans["yearly"])

	usage := res.DataItems[StatisticTypeUsageByFeature]
	require.Len(t, usage, 1)
	assert.Equal(t, "mock_exam", usage[0].Label)
	assert.Equal(t, int64(3), usage[0].Value)

	pending := res.DataItems[StatisticTypePendingCancellations]
	require.Len(t, pending, 1)
	assert.Equal(t, int64(1), pending[0].Value)
}

func TestGetOverview_SelectedItem(t *testing.T) {
	svc, db := newTestService(t)
	seedSubscription(t, db, "u1", types.SubscriptionStatusActive, types.PlanIDWeekly, true, false)

	res, err := svc.GetOverview(context.Background(), &OverviewRequest{
		DataItems: []*OverviewDataItem{{ID: StatisticTypeTrialsUsed}},
	})
	require.NoError(t, err)
	require.Len(t, res.DataItems, 1)

	trials := res.DataItems[StatisticTypeTrialsUsed]
	require.Len(t, trials, 1)
	assert.Equal(t, int64(1), trials[0].Value)
	assert.Equal(t, int64(1), trials[0].Value2)
}

func TestGetOverview_UnknownItem(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.GetOverview(context.Background(), &OverviewRequest{
		DataItems: []*OverviewDataItem{{ID: "daily_gmv"}},
	})
	require.Error(t, err)
}
