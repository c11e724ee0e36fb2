package models

import (
	"time"

	"github.com/epigram-app/entitlement-service/pkg/types"
	"gorm.io/datatypes"
)

// SubscriptionLog records every change applied to a subscription row.
// Use case: troubleshooting and support audits.
type SubscriptionLog struct {
	ID     string `gorm:"column:id;type:uuid;primary_key" json:"id"`
	UserID string `gorm:"column:user_id;type:varchar(64);index:idx_user_id_id,priority:1;not null"`
	// Reason is the change reason.
	Reason types.SubscriptionChangeReason `gorm:"column:reason;type:varchar(64);not null"`
	// Before stores the subscription row before the change in JSON format.
	Before datatypes.JSONType[*Subscription] `gorm:"column:before;type:jsonb;default:'null'"`
	// After stores the subscription row after the change in JSON format.
	After datatypes.JSONType[*Subscription] `gorm:"column:after;type:jsonb;default:'null'"`
	// Extra stores additional context such as the triggering event or operator.
	Extra     datatypes.JSONMap `gorm:"column:extra;type:jsonb;default:'{}'"`
	CreatedAt time.Time
}

func (SubscriptionLog) TableName() string {
	return "subscription_log"
}
