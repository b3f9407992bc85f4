package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Bet is a single observed trade. OrderID is the exchange order id and is
// unique; re-inserting the same order is a no-op.
type Bet struct {
	ID       uint64 `gorm:"primaryKey;autoIncrement"`
	OrderID  string `gorm:"type:varchar(100);not null;uniqueIndex"`
	MarketID string `gorm:"type:varchar(100);not null;index:idx_bets_market_ts"`
	Address  string `gorm:"type:varchar(100);not null;index:idx_bets_address_ts"`
	Outcome  string `gorm:"type:varchar(50)"`

	Size  decimal.Decimal `gorm:"type:numeric(24,6);not null"`
	Price decimal.Decimal `gorm:"type:numeric(12,6);not null"`
	Side  string          `gorm:"type:varchar(10)"`

	Fee     *decimal.Decimal `gorm:"type:numeric(24,6)"`
	AssetID *string          `gorm:"type:varchar(100)"`

	Timestamp  time.Time `gorm:"type:timestamptz;not null;index:idx_bets_market_ts;index:idx_bets_address_ts"`
	DetectedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (Bet) TableName() string {
	return "bets"
}
