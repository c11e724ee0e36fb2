package eventlog

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/epigram-app/entitlement-service/internal/models"
	"github.com/epigram-app/entitlement-service/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
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
	require.NoError(t, db.AutoMigrate(&models.BillingEventLog{}))
	return New(db, zap.NewNop().Sugar()), db
}

func givenEvent(eventID, eventType string) *models.BillingEventLog {
	return &models.BillingEventLog{
		EventID:   eventID,
		EventType: eventType,
		EventTime: time.Now(),
		Data:      datatypes.JSON(`{"object":"event"}`),
	}
}

func TestRecord_DeduplicatesByEventID(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	created, err := svc.Record(ctx, givenEvent("evt_1", "customer.subscription.updated"))
	require.NoError(t, err)
	assert.True(t, created)

	// a redelivery of the same provider event is absorbed
	created, err = svc.Record(ctx, givenEvent("evt_1", "customer.subscription.updated"))
	require.NoError(t, err)
	assert.False(t, created)

	var n int64
	require.NoError(t, db.Model(&models.BillingEventLog{}).Count(&n).Error)
	assert.EqualValues(t, 1, n)

	var row models.BillingEventLog
	require.NoError(t, db.Where("event_id = ?", "evt_1").First(&row).Error)
	assert.Equal(t, models.BillingEventLogStatusReceived, row.Status)
}

func TestRecord_FailedEventCanBeRetried(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	created, err := svc.Record(ctx, givenEvent("evt_1", "customer.subscription.updated"))
	require.NoError(t, err)
	require.True(t, created)

	svc.SaveResult(ctx, "evt_1", nil, fmt.Errorf("provider unreachable"))
	require.Eventually(t, func() bool {
		var row models.BillingEventLog
		if err := db.Where("event_id = ?", "evt_1").First(&row).Error; err != nil {
			return false
		}
		return row.Status == models.BillingEventLogStatusHandleFailed
	}, time.Second, 10*time.Millisecond)

	// the provider's retry of a failed event gets another run
	created, err = svc.Record(ctx, givenEvent("evt_1", "customer.subscription.updated"))
	require.NoError(t, err)
	assert.True(t, created)

	svc.SaveResult(ctx, "evt_1", map[string]any{"synced": true}, nil)
	require.Eventually(t, func() bool {
		var row models.BillingEventLog
		if err := db.Where("event_id = ?", "evt_1").First(&row).Error; err != nil {
			return false
		}
		return row.Status == models.BillingEventLogStatusHandled
	}, time.Second, 10*time.Millisecond)

	// once handled, further redeliveries are absorbed for good
	created, err = svc.Record(ctx, givenEvent("evt_1", "customer.subscription.updated"))
	require.NoError(t, err)
	assert.False(t, created)

	var n int64
	require.NoError(t, db.Model(&models.BillingEventLog{}).Count(&n).Error)
	assert.EqualValues(t, 1, n)
}

func TestSaveResult(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	_, err := svc.Record(ctx, givenEvent("evt_ok", "checkout.session.completed"))
	require.NoError(t, err)
	_, err = svc.Record(ctx, givenEvent("evt_bad", "customer.subscription.deleted"))
	require.NoError(t, err)

	svc.SaveResult(ctx, "evt_ok", map[string]any{"synced": true}, nil)
	svc.SaveResult(ctx, "evt_bad", nil, fmt.Errorf("no local record"))

	require.Eventually(t, func() bool {
		var row models.BillingEventLog
		if err := db.Where("event_id = ?", "evt_ok").First(&row).Error; err != nil {
			return false
		}
		return row.Status == models.BillingEventLogStatusHandled
	}, time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		var row models.BillingEventLog
		if err := db.Where("event_id = ?", "evt_bad").First(&row).Error; err != nil {
			return false
		}
		return row.Status == models.BillingEventLogStatusHandleFailed
	}, time.Second, 10*time.Millisecond)

	var okRow models.BillingEventLog
	require.NoError(t, db.Where("event_id = ?", "evt_ok").First(&okRow).Error)
	require.NotNil(t, okRow.Result)
	var okResult map[string]any
	require.NoError(t, json.Unmarshal(*okRow.Result, &okResult))
	assert.Equal(t, true, okResult["synced"])

	var badRow models.BillingEventLog
	require.NoError(t, db.Where("event_id = ?", "evt_bad").First(&badRow).Error)
	require.NotNil(t, badRow.Result)
	var badResult map[string]any
	require.NoError(t, json.Unmarshal(*badRow.Result, &badResult))
	assert.Equal(t, "no local record", badResult["error"])
}

func TestScanEvents(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.Record(ctx, givenEvent(fmt.Sprintf("evt_sub_%d", i), "customer.subscription.updated"))
		require.NoError(t, err)
	}
	for i := 0; i < 2; i++ {
		_, err := svc.Record(ctx, givenEvent(fmt.Sprintf("evt_checkout_%d", i), "checkout.session.completed"))
		require.NoError(t, err)
	}

	t.Run("filter by event type", func(t *testing.T) {
		resp, err := svc.ScanEvents(ctx, &ScanEventsRequest{
			Size: 10,
			Filters: []*types.CommonFilter{
				{Field: "event_type", Operator: types.CommonFilterOperatorEq, Values: []any{"customer.subscription.updated"}},
			},
		})
		require.NoError(t, err)
		assert.EqualValues(t, 3, resp.Total)
		assert.Len(t, resp.Items, 3)
	})

	t.Run("pagination window", func(t *testing.T) {
		resp, err := svc.ScanEvents(ctx, &ScanEventsRequest{
			From:      1,
			Size:      2,
			SortBy:    "event_id",
			SortOrder: "asc",
		})
		require.NoError(t, err)
		assert.EqualValues(t, 5, resp.Total)
		require.Len(t, resp.Items, 2)
		assert.Equal(t, "evt_checkout_1", resp.Items[0].EventID)
		assert.Equal(t, "evt_sub_0", resp.Items[1].EventID)
	})

	t.Run("nil request", func(t *testing.T) {
		_, err := svc.ScanEvents(ctx, nil)
		require.Error(t, err)
	})
}
