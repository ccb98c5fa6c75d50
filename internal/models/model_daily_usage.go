package models

import (
	"time"

	"github.com/astocklabs/memberd/pkg/types"
)

// DailyUsage 每日使用量统计，一行对应 (user_id, usage_date)。
// 首次使用时惰性创建，当日内只增不减。
type DailyUsage struct {
	ID     string `gorm:"column:id;primary_key;type:uuid" json:"id"`
	UserID string `gorm:"column:user_id;type:uuid;not null;uniqueIndex:unique_user_usage_date,priority:1" json:"user_id"`
	// UsageDate 使用日期（服务所在时区的自然日）
	UsageDate time.Time `gorm:"column:usage_date;type:date;not null;uniqueIndex:unique_user_usage_date,priority:2" json:"usage_date"`

	AnalysisCount  int `gorm:"column:analysis_count;not null;default:0" json:"analysis_count"`
	WatchlistCount int `gorm:"column:watchlist_count;not null;default:0" json:"watchlist_count"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (DailyUsage) TableName() string { return "daily_usage" }

func (u *DailyUsage) Count(kind types.UsageKind) int {
	if u == nil {
		return 0
	}
	if kind == types.UsageKindWatchlist {
		return u.WatchlistCount
	}
	return u.AnalysisCount
}

func (u *DailyUsage) Increment(kind types.UsageKind) {
	if kind == types.UsageKindWatchlist {
		u.WatchlistCount++
		return
	}
	u.AnalysisCount++
}

// DayOf truncates a timestamp to its usage date.
func DayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
