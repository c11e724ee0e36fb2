package eventlog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/epigram-app/entitlement-service/internal/models"
	"github.com/epigram-app/entitlement-service/pkg/logctx"
	"github.com/epigram-app/entitlement-service/pkg/tool"
	"github.com/epigram-app/entitlement-service/pkg/types"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Service struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

func New(db *gorm.DB, log *zap.SugaredLogger) *Service { return &Service{db: db, log: log} }

// Record persists a webhook delivery exactly once. The unique event_id index
// absorbs redeliveries of events already received or handled; a redelivery of
// a failed event reclaims the row so the provider's retry gets another run.
// The returned flag reports whether the caller should process this delivery.
func (s *Service) Record(ctx context.Context, entry *models.BillingEventLog) (bool, error) {
	if entry == nil {
		return false, fmt.Errorf("nil billing event")
	}
	if entry.ID == "" {
		entry.ID = tool.GenerateUUIDV7()
	}
	if entry.Status == "" {
		entry.Status = models.BillingEventLogStatusReceived
	}

	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}},
		DoNothing: true,
	}).Create(entry)
	if res.Error != nil {
		return false, fmt.Errorf("failed to record billing event: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		return true, nil
	}

	reclaim := s.db.WithContext(ctx).Model(&models.BillingEventLog{}).
		Where("event_id = ? AND status = ?", entry.EventID, models.BillingEventLogStatusHandleFailed).
		Update("status", models.BillingEventLogStatusReceived)
	if reclaim.Error != nil {
		return false, fmt.Errorf("failed to reclaim billing event: %w", reclaim.Error)
	}
	return reclaim.RowsAffected > 0, nil
}

// SaveResult asynchronously stores the handling outcome on the event row.
func (s *Service) SaveResult(ctx context.Context, eventID string, result map[string]any, handleErr error) {
	go func() {
		if result == nil {
			result = map[string]any{}
		}
		status := models.BillingEventLogStatusHandled
		if handleErr != nil {
			status = models.BillingEventLogStatusHandleFailed
			result["error"] = handleErr.Error()
		}
		resBytes, _ := json.Marshal(result)

		err := s.db.Model(&models.BillingEventLog{}).
			Where("event_id = ?", eventID).
			Updates(map[string]any{
				"status": status,
				"result": datatypes.JSON(resBytes),
			}).Error
		if err != nil {
			logctx.FromCtx(ctx, s.log).Errorf("failed to save billing event result: %v", err)
		}
	}()
}

type ScanEventsRequest struct {
	From      int                   `json:"from"`
	Size      int                   `json:"size"`
	SortBy    string                `json:"sort_by"`
	SortOrder string                `json:"sort_order"`
	Filters   []*types.CommonFilter `json:"filters"`
}

type ScanEventsResponse struct {
	Items []*models.BillingEventLog `json:"items"`
	Total int64                     `json:"total"`
}

// filtersAnd is a helper to combine multiple CommonFilter into a single clause.Expression
type filtersAnd struct{ filters []*types.CommonFilter }

func (w filtersAnd) Build(builder clause.Builder) {
	if len(w.filters) == 0 {
		builder.WriteString("1=1")
		return
	}
	exprs := make([]clause.Expression, 0, len(w.filters))
	for _, f := range w.filters {
		exprs = append(exprs, f)
	}
	clause.And(exprs...).Build(builder)
}

// ScanEvents implements paginated/admin listing with filters
func (s *Service) ScanEvents(ctx context.Context, req *ScanEventsRequest) (*ScanEventsResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("nil request")
	}
	if req.Size <= 0 {
		req.Size = 10
	}
	if req.From < 0 {
		req.From = 0
	}

	tx := s.db.WithContext(ctx).Model(&models.BillingEventLog{})
	if len(req.Filters) > 0 {
		tx = tx.Where(clause.Where{Exprs: []clause.Expression{filtersAnd{filters: req.Filters}}})
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count billing events: %w", err)
	}

	var rows []*models.BillingEventLog

	q := tx.Limit(req.Size)

	if req.From > 0 {
		q = q.Offset(req.From)
	}

	if req.SortBy != "" {
		q = q.Order(clause.OrderBy{Columns: []clause.OrderByColumn{{Column: clause.Column{Name: req.SortBy}, Desc: req.SortOrder != "asc"}}})
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list billing events: %w", err)
	}

	return &ScanEventsResponse{Items: rows, Total: total}, nil
}
