package stats

import (
	"context"
	"fmt"
	"sync"

	"github.com/epigram-app/entitlement-service/internal/models"
	"github.com/epigram-app/entitlement-service/pkg/types"

	"github.com/samber/lo"
	"gorm.io/gorm"
)

type OverviewStatisticType string

const (
	StatisticTypeSubscriptionsByStatus OverviewStatisticType = "subscriptions_by_status"
	StatisticTypePlansBreakdown        OverviewStatisticType = "plans_breakdown"
	StatisticTypeUsageByFeature        OverviewStatisticType = "usage_by_feature"
	StatisticTypeTrialsUsed            OverviewStatisticType = "trials_used"
	StatisticTypeRetentionDiscounts    OverviewStatisticType = "retention_discounts"
	StatisticTypePendingCancellations  OverviewStatisticType = "pending_cancellations"
	StatisticTypeWebhookOutcomes       OverviewStatisticType = "webhook_outcomes"
)

// AllStatisticTypes is the default data-item set when a request names none.
var AllStatisticTypes = []OverviewStatisticType{
	StatisticTypeSubscriptionsByStatus,
	StatisticTypePlansBreakdown,
	StatisticTypeUsageByFeature,
	StatisticTypeTrialsUsed,
	StatisticTypeRetentionDiscounts,
	StatisticTypePendingCancellations,
	StatisticTypeWebhookOutcomes,
}

type OverviewDataItem struct {
	ID OverviewStatisticType `json:"id"`
}

type OverviewRequest struct {
	DataItems []*OverviewDataItem `json:"data_items"`
}

type OverviewResponseDataItem struct {
	Label  string `json:"label,omitempty"`
	Value  int64  `json:"value"`
	Value2 int64  `json:"value2,omitempty"`
}

type OverviewResponse struct {
	DataItems map[OverviewStatisticType][]OverviewResponseDataItem `json:"data_items"`
}

// Service computes admin aggregates on demand. There is no snapshot store:
// every call reads the live tables.
type Service struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Service { return &Service{db: db} }

func (s *Service) getSubscriptionsByStatus(ctx context.Context) ([]OverviewResponseDataItem, error) {
	var results []OverviewResponseDataItem
	q := s.db.WithContext(ctx).Table((models.Subscription{}).TableName()).
		Select("status as label, count(*) as value").
		Group("status").
		Order("label")
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getPlansBreakdown(ctx context.Context) ([]OverviewResponseDataItem, error) {
	var results []OverviewResponseDataItem
	q := s.db.WithContext(ctx).Table((models.Subscription{}).TableName()).
		Select("plan_id as label, count(*) as value").
		Where("status IN ?", []types.SubscriptionStatus{types.SubscriptionStatusActive, types.SubscriptionStatusTrialing}).
		Group("plan_id").
		Order("label")
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getUsageByFeature(ctx context.Context) ([]OverviewResponseDataItem, error) {
	var results []OverviewResponseDataItem
	q := s.db.WithContext(ctx).Table((models.UsageCounter{}).TableName()).
		Select("feature as label, sum(used_count) as value, count(*) as value2").
		Group("feature").
		Order("label")
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getTrialsUsed(ctx context.Context) ([]OverviewResponseDataItem, error) {
	var results []OverviewResponseDataItem
	err := s.db.WithContext(ctx).Raw(`
SELECT COALESCE(SUM(CASE WHEN has_used_trial THEN 1 ELSE 0 END), 0) as value, COUNT(*) as value2
FROM subscription
`).Scan(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getRetentionDiscounts(ctx context.Context) ([]OverviewResponseDataItem, error) {
	var results []OverviewResponseDataItem
	err := s.db.WithContext(ctx).Raw(`
SELECT COALESCE(SUM(CASE WHEN retention_discount_used THEN 1 ELSE 0 END), 0) as value, COUNT(*) as value2
FROM subscription
`).Scan(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getPendingCancellations(ctx context.Context) ([]OverviewResponseDataItem, error) {
	var results []OverviewResponseDataItem
	q := s.db.WithContext(ctx).Table((models.Subscription{}).TableName()).
		Select("count(*) as value").
		Where("cancel_at_period_end = ?", true).
		Where("status IN ?", []types.SubscriptionStatus{types.SubscriptionStatusActive, types.SubscriptionStatusTrialing})
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getWebhookOutcomes(ctx context.Context) ([]OverviewResponseDataItem, error) {
	var results []OverviewResponseDataItem
	q := s.db.WithContext(ctx).Table((models.BillingEventLog{}).TableName()).
		Select("status as label, count(*) as value").
		Group("status").
		Order("label")
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getOverviewStatistic(ctx context.Context, dataItem *OverviewDataItem) ([]OverviewResponseDataItem, error) {
	switch dataItem.ID {
	case StatisticTypeSubscriptionsByStatus:
		return s.getSubscriptionsByStatus(ctx)
	case StatisticTypePlansBreakdown:
		return s.getPlansBreakdown(ctx)
	case StatisticTypeUsageByFeature:
		return s.getUsageByFeature(ctx)
	case StatisticTypeTrialsUsed:
		return s.getTrialsUsed(ctx)
	case StatisticTypeRetentionDiscounts:
		return s.getRetentionDiscounts(ctx)
	case StatisticTypePendingCancellations:
		return s.getPendingCancellations(ctx)
	case StatisticTypeWebhookOutcomes:
		return s.getWebhookOutcomes(ctx)
	default:
		return nil, fmt.Errorf("invalid data item id: %s", dataItem.ID)
	}
}

// GetOverview resolves the requested data items concurrently. An empty
// request means all of them.
func (s *Service) GetOverview(ctx context.Context, request *OverviewRequest) (*OverviewResponse, error) {
	if request == nil {
		request = &OverviewRequest{}
	}
	items := request.DataItems
	if len(items) == 0 {
		items = lo.Map(AllStatisticTypes, func(t OverviewStatisticType, _ int) *OverviewDataItem {
			return &OverviewDataItem{ID: t}
		})
	}

	var wg sync.WaitGroup
	errChan := make(chan error, len(items))
	resChan := make(chan *lo.Entry[OverviewStatisticType, []OverviewResponseDataItem], len(items))

	for _, item := range items {
		wg.Add(1)
		go func(di *OverviewDataItem) {
			defer wg.Done()
			res, err := s.getOverviewStatistic(ctx, di)
			if err != nil {
				errChan <- err
				return
			}
			resChan <- &lo.Entry[OverviewStatisticType, []OverviewResponseDataItem]{Key: di.ID, Value: res}
		}(item)
	}

	go func() { wg.Wait(); close(errChan); close(resChan) }()

	results := make(map[OverviewStatisticType][]OverviewResponseDataItem)
	for i := 0; i < len(items); i++ {
		select {
		case err := <-errChan:
			if err != nil {
				return nil, err
			}
		case entry := <-resChan:
			results[entry.Key] = entry.Value
		}
	}
	return &OverviewResponse{DataItems: results}, nil
}
