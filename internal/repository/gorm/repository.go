package gormrepository

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"betwatch/internal/models"
	"betwatch/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// --- markets ----------------------------------------------------------------

func (s *Store) GetMarket(ctx context.Context, id string) (*models.Market, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, nil
	}
	var item models.Market
	err := s.db.WithContext(ctx).Model(&models.Market{}).Where("id = ?", id).First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) UpsertMarket(ctx context.Context, item *models.Market) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	if strings.TrimSpace(item.ID) == "" {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"question",
			"slug",
			"category",
			"total_volume",
			"active",
			"end_date",
			"last_updated",
		}),
	}).Create(item).Error
}

func (s *Store) ListActiveMarkets(ctx context.Context, limit int) ([]models.Market, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	limit = normalizeLimit(limit, 200)
	var items []models.Market
	if err := s.db.WithContext(ctx).
		Model(&models.Market{}).
		Where("active = ?", true).
		Order("total_volume desc").
		Limit(limit).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- bets -------------------------------------------------------------------

func (s *Store) InsertBet(ctx context.Context, item *models.Bet) (bool, error) {
	if s == nil || s.db == nil || item == nil {
		return false, nil
	}
	if strings.TrimSpace(item.OrderID) == "" {
		return false, nil
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "order_id"}},
		DoNothing: true,
	}).Create(item)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) ListBetsByMarket(ctx context.Context, marketID string, params repository.ListBetsParams) ([]models.Bet, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	marketID = strings.TrimSpace(marketID)
	if marketID == "" {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.Bet{}).Where("market_id = ?", marketID)
	query = applyBetFilters(query, params)
	var items []models.Bet
	if err := query.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListBetsByAddress(ctx context.Context, address string, params repository.ListBetsParams) ([]models.Bet, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.Bet{}).Where("address = ?", address)
	if params.MarketID != nil && strings.TrimSpace(*params.MarketID) != "" {
		query = query.Where("market_id = ?", strings.TrimSpace(*params.MarketID))
	}
	query = applyBetFilters(query, params)
	var items []models.Bet
	if err := query.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountBetsByMarket(ctx context.Context, marketID string, since *time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	query := s.db.WithContext(ctx).Model(&models.Bet{}).Where("market_id = ?", strings.TrimSpace(marketID))
	if since != nil && !since.IsZero() {
		query = query.Where("timestamp >= ?", *since)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) CountUniqueAddresses(ctx context.Context, marketID string, since *time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	query := s.db.WithContext(ctx).Model(&models.Bet{}).
		Where("market_id = ?", strings.TrimSpace(marketID)).
		Distinct("address")
	if since != nil && !since.IsZero() {
		query = query.Where("timestamp >= ?", *since)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) MarketBetVolume(ctx context.Context, marketID string, since *time.Time) (decimal.Decimal, error) {
	if s == nil || s.db == nil {
		return decimal.Zero, nil
	}
	query := s.db.WithContext(ctx).Model(&models.Bet{}).
		Select("COALESCE(SUM(size), 0)").
		Where("market_id = ?", strings.TrimSpace(marketID))
	if since != nil && !since.IsZero() {
		query = query.Where("timestamp >= ?", *since)
	}
	var total decimal.Decimal
	if err := query.Scan(&total).Error; err != nil {
		return decimal.Zero, err
	}
	return total, nil
}

// --- statistics -------------------------------------------------------------

func (s *Store) GetMarketStatistics(ctx context.Context, marketID string, windowHours int) (*models.MarketStatistics, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	marketID = strings.TrimSpace(marketID)
	if marketID == "" {
		return nil, nil
	}
	var item models.MarketStatistics
	err := s.db.WithContext(ctx).
		Model(&models.MarketStatistics{}).
		Where("market_id = ? AND window_hours = ?", marketID, windowHours).
		First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) UpsertMarketStatistics(ctx context.Context, item *models.MarketStatistics) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	if strings.TrimSpace(item.MarketID) == "" {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "market_id"}, {Name: "window_hours"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"mean_bet_size",
			"std_dev_bet_size",
			"median_bet_size",
			"q1_bet_size",
			"q3_bet_size",
			"iqr_bet_size",
			"total_bets",
			"total_volume",
			"unique_addresses",
			"window_start",
			"window_end",
			"calculated_at",
		}),
	}).Create(item).Error
}

// --- alerts -----------------------------------------------------------------

func (s *Store) CreateAlert(ctx context.Context, item *models.Alert) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) MarkAlertSent(ctx context.Context, id uint64, deliveryRef string, sentAt time.Time) error {
	if s == nil || s.db == nil || id == 0 {
		return nil
	}
	if sentAt.IsZero() {
		sentAt = time.Now().UTC()
	}
	updates := map[string]any{
		"sent":    true,
		"sent_at": sentAt,
	}
	if strings.TrimSpace(deliveryRef) != "" {
		updates["delivery_ref"] = strings.TrimSpace(deliveryRef)
	}
	return s.db.WithContext(ctx).
		Model(&models.Alert{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (s *Store) ListUnsentAlerts(ctx context.Context, limit int) ([]models.Alert, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	limit = normalizeLimit(limit, 50)
	var items []models.Alert
	if err := s.db.WithContext(ctx).
		Model(&models.Alert{}).
		Where("sent = ?", false).
		Order("created_at asc").
		Limit(limit).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListAlerts(ctx context.Context, params repository.ListAlertsParams) ([]models.Alert, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := applyAlertFilters(s.db.WithContext(ctx).Model(&models.Alert{}), params)
	limit := normalizeLimit(params.Limit, 100)
	offset := normalizeOffset(params.Offset)
	var items []models.Alert
	if err := query.Order("created_at desc").Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountAlerts(ctx context.Context, params repository.ListAlertsParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var count int64
	query := applyAlertFilters(s.db.WithContext(ctx).Model(&models.Alert{}), params)
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// --- helpers ----------------------------------------------------------------

func applyBetFilters(query *gorm.DB, params repository.ListBetsParams) *gorm.DB {
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("timestamp >= ?", *params.Since)
	}
	direction := "desc"
	if params.Asc != nil && *params.Asc {
		direction = "asc"
	}
	query = query.Order("timestamp " + direction)
	if params.Limit > 0 {
		query = query.Limit(normalizeLimit(params.Limit, 500))
	}
	return query
}

func applyAlertFilters(query *gorm.DB, params repository.ListAlertsParams) *gorm.DB {
	if params.AlertType != nil && strings.TrimSpace(*params.AlertType) != "" {
		query = query.Where("alert_type = ?", strings.TrimSpace(*params.AlertType))
	}
	if params.Severity != nil && strings.TrimSpace(*params.Severity) != "" {
		query = query.Where("severity = ?", strings.TrimSpace(*params.Severity))
	}
	if params.MarketID != nil && strings.TrimSpace(*params.MarketID) != "" {
		query = query.Where("market_id = ?", strings.TrimSpace(*params.MarketID))
	}
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("created_at >= ?", *params.Since)
	}
	if params.Sent != nil {
		query = query.Where("sent = ?", *params.Sent)
	}
	return query
}

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > 5000 {
		return 5000
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}
