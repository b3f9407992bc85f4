package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"betwatch/internal/models"
)

// Repository is the narrow persistence surface the detection engine runs
// against. The gorm implementation lives in repository/gorm; tests use
// in-memory stubs.
type Repository interface {
	// Markets (read-mostly; upsert exists for the collector path).
	GetMarket(ctx context.Context, id string) (*models.Market, error)
	UpsertMarket(ctx context.Context, item *models.Market) error
	ListActiveMarkets(ctx context.Context, limit int) ([]models.Market, error)

	// Bets. InsertBet dedupes on order id and reports whether a row was
	// actually written.
	InsertBet(ctx context.Context, item *models.Bet) (bool, error)
	ListBetsByMarket(ctx context.Context, marketID string, params ListBetsParams) ([]models.Bet, error)
	ListBetsByAddress(ctx context.Context, address string, params ListBetsParams) ([]models.Bet, error)
	CountBetsByMarket(ctx context.Context, marketID string, since *time.Time) (int64, error)
	CountUniqueAddresses(ctx context.Context, marketID string, since *time.Time) (int64, error)
	MarketBetVolume(ctx context.Context, marketID string, since *time.Time) (decimal.Decimal, error)

	// Statistics snapshots; one current row per (market, window).
	GetMarketStatistics(ctx context.Context, marketID string, windowHours int) (*models.MarketStatistics, error)
	UpsertMarketStatistics(ctx context.Context, item *models.MarketStatistics) error

	// Alerts.
	CreateAlert(ctx context.Context, item *models.Alert) error
	MarkAlertSent(ctx context.Context, id uint64, deliveryRef string, sentAt time.Time) error
	ListUnsentAlerts(ctx context.Context, limit int) ([]models.Alert, error)
	ListAlerts(ctx context.Context, params ListAlertsParams) ([]models.Alert, error)
	CountAlerts(ctx context.Context, params ListAlertsParams) (int64, error)
}

// ListBetsParams filters bet queries. Results are newest-first unless Asc
// is set.
type ListBetsParams struct {
	MarketID *string
	Since    *time.Time
	Limit    int
	Asc      *bool
}

type ListAlertsParams struct {
	Limit     int
	Offset    int
	AlertType *string
	Severity  *string
	MarketID  *string
	Since     *time.Time
	Sent      *bool
}
