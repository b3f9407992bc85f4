package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Market is a monitored prediction market. Rows are written by the external
// collector; the detection engine only reads them.
type Market struct {
	ID          string          `gorm:"primaryKey;type:varchar(100)"`
	Question    string          `gorm:"type:text;not null"`
	Slug        string          `gorm:"type:varchar(255);index"`
	Category    *string         `gorm:"type:varchar(100);index"`
	TotalVolume decimal.Decimal `gorm:"type:numeric(24,6);not null;default:0"`
	Active      bool            `gorm:"not null;default:true;index"`

	EndDate     *time.Time `gorm:"type:timestamptz"`
	CreatedAt   time.Time  `gorm:"type:timestamptz;autoCreateTime"`
	LastUpdated time.Time  `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Market) TableName() string {
	return "markets"
}
