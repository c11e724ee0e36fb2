package models

import (
	"time"

	"github.com/epigram-app/entitlement-service/pkg/types"
)

// UsageCounter tracks per-user consumption of one metered feature. Rows are
// created lazily on first use; a missing row means zero usage.
// Counters only grow. Increments happen through a conditional update so two
// concurrent requests can never both claim the last remaining use.
type UsageCounter struct {
	ID        string        `gorm:"column:id;type:uuid;primary_key" json:"id"`
	UserID    string        `gorm:"column:user_id;type:varchar(64);not null;uniqueIndex:unique_user_id_feature,priority:1" json:"user_id"`
	Feature   types.Feature `gorm:"column:feature;type:varchar(64);not null;uniqueIndex:unique_user_id_feature,priority:2" json:"feature"`
	UsedCount int64         `gorm:"column:used_count;type:bigint;not null;default:0" json:"used_count"`
	// LastUsedAt is the time of the most recent successful consume.
	LastUsedAt *time.Time `gorm:"column:last_used_at;default:null" json:"last_used_at"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (UsageCounter) TableName() string {
	return "usage_counter"
}
