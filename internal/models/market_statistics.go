package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// MarketStatistics is the rolling bet-size snapshot for one market and one
// window length. There is one current row per (market_id, window_hours);
// recalculation overwrites it.
type MarketStatistics struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement"`
	MarketID    string `gorm:"type:varchar(100);not null;uniqueIndex:idx_market_stats_window"`
	WindowHours int    `gorm:"not null;uniqueIndex:idx_market_stats_window"`

	MeanBetSize   float64 `gorm:"not null"`
	StdDevBetSize float64 `gorm:"not null"`
	MedianBetSize float64 `gorm:"not null"`
	Q1BetSize     float64 `gorm:"not null"`
	Q3BetSize     float64 `gorm:"not null"`
	IQRBetSize    float64 `gorm:"not null"`

	TotalBets       int             `gorm:"not null"`
	TotalVolume     decimal.Decimal `gorm:"type:numeric(24,6);not null"`
	UniqueAddresses int             `gorm:"not null"`

	WindowStart  time.Time `gorm:"type:timestamptz;not null"`
	WindowEnd    time.Time `gorm:"type:timestamptz;not null"`
	CalculatedAt time.Time `gorm:"type:timestamptz;not null"`
}

func (MarketStatistics) TableName() string {
	return "market_statistics"
}
