package models

import (
	"time"

	"gorm.io/datatypes"
)

// Alert is a persisted detection finding awaiting (or after) delivery.
// Sent flips false -> true exactly once, when the dispatcher delivers it.
type Alert struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	AlertType string `gorm:"type:varchar(50);not null;index"`
	Severity  string `gorm:"type:varchar(20);not null;index"`
	MarketID  string `gorm:"type:varchar(100);not null;index"`
	BetID     *uint64

	Details datatypes.JSON `gorm:"type:jsonb"`

	Sent        bool    `gorm:"not null;default:false;index"`
	DeliveryRef *string `gorm:"type:varchar(100)"`

	CreatedAt time.Time  `gorm:"type:timestamptz;autoCreateTime;index"`
	SentAt    *time.Time `gorm:"type:timestamptz"`
}

func (Alert) TableName() string {
	return "alerts"
}
