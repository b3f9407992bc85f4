package detection

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"betwatch/internal/models"
	"betwatch/internal/repository"
)

// stubRepo is a test-only in-memory implementation of
// repository.Repository.
type stubRepo struct {
	markets map[string]models.Market
	bets    []models.Bet
	stats   map[string]models.MarketStatistics // key marketID
	alerts  []models.Alert

	failBets bool
}

var errBoom = errors.New("boom")

func statsKey(marketID string) string { return marketID }

func (s *stubRepo) GetMarket(ctx context.Context, id string) (*models.Market, error) {
	if m, ok := s.markets[id]; ok {
		copied := m
		return &copied, nil
	}
	return nil, nil
}

func (s *stubRepo) UpsertMarket(ctx context.Context, item *models.Market) error {
	if s.markets == nil {
		s.markets = map[string]models.Market{}
	}
	s.markets[item.ID] = *item
	return nil
}

func (s *stubRepo) ListActiveMarkets(ctx context.Context, limit int) ([]models.Market, error) {
	var out []models.Market
	for _, m := range s.markets {
		if m.Active {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *stubRepo) InsertBet(ctx context.Context, item *models.Bet) (bool, error) {
	for _, b := range s.bets {
		if b.OrderID == item.OrderID {
			return false, nil
		}
	}
	item.ID = uint64(len(s.bets) + 1)
	s.bets = append(s.bets, *item)
	return true, nil
}

func (s *stubRepo) ListBetsByMarket(ctx context.Context, marketID string, params repository.ListBetsParams) ([]models.Bet, error) {
	if s.failBets {
		return nil, errBoom
	}
	var out []models.Bet
	for _, b := range s.bets {
		if b.MarketID != marketID {
			continue
		}
		if params.Since != nil && b.Timestamp.Before(*params.Since) {
			continue
		}
		out = append(out, b)
	}
	return orderAndLimit(out, params), nil
}

func (s *stubRepo) ListBetsByAddress(ctx context.Context, address string, params repository.ListBetsParams) ([]models.Bet, error) {
	if s.failBets {
		return nil, errBoom
	}
	var out []models.Bet
	for _, b := range s.bets {
		if b.Address != address {
			continue
		}
		if params.MarketID != nil && b.MarketID != *params.MarketID {
			continue
		}
		if params.Since != nil && b.Timestamp.Before(*params.Since) {
			continue
		}
		out = append(out, b)
	}
	return orderAndLimit(out, params), nil
}

func (s *stubRepo) CountBetsByMarket(ctx context.Context, marketID string, since *time.Time) (int64, error) {
	bets, _ := s.ListBetsByMarket(ctx, marketID, repository.ListBetsParams{Since: since})
	return int64(len(bets)), nil
}

func (s *stubRepo) CountUniqueAddresses(ctx context.Context, marketID string, since *time.Time) (int64, error) {
	bets, _ := s.ListBetsByMarket(ctx, marketID, repository.ListBetsParams{Since: since})
	seen := map[string]struct{}{}
	for _, b := range bets {
		seen[b.Address] = struct{}{}
	}
	return int64(len(seen)), nil
}

func (s *stubRepo) MarketBetVolume(ctx context.Context, marketID string, since *time.Time) (decimal.Decimal, error) {
	bets, _ := s.ListBetsByMarket(ctx, marketID, repository.ListBetsParams{Since: since})
	total := decimal.Zero
	for _, b := range bets {
		total = total.Add(b.Size)
	}
	return total, nil
}

func (s *stubRepo) GetMarketStatistics(ctx context.Context, marketID string, windowHours int) (*models.MarketStatistics, error) {
	if snap, ok := s.stats[statsKey(marketID)]; ok && snap.WindowHours == windowHours {
		copied := snap
		return &copied, nil
	}
	return nil, nil
}

func (s *stubRepo) UpsertMarketStatistics(ctx context.Context, item *models.MarketStatistics) error {
	if s.stats == nil {
		s.stats = map[string]models.MarketStatistics{}
	}
	s.stats[statsKey(item.MarketID)] = *item
	return nil
}

func (s *stubRepo) CreateAlert(ctx context.Context, item *models.Alert) error {
	item.ID = uint64(len(s.alerts) + 1)
	item.CreatedAt = time.Now().UTC()
	s.alerts = append(s.alerts, *item)
	return nil
}

func (s *stubRepo) MarkAlertSent(ctx context.Context, id uint64, deliveryRef string, sentAt time.Time) error {
	for i := range s.alerts {
		if s.alerts[i].ID == id {
			s.alerts[i].Sent = true
			s.alerts[i].SentAt = &sentAt
			if deliveryRef != "" {
				ref := deliveryRef
				s.alerts[i].DeliveryRef = &ref
			}
		}
	}
	return nil
}

func (s *stubRepo) ListUnsentAlerts(ctx context.Context, limit int) ([]models.Alert, error) {
	var out []models.Alert
	for _, a := range s.alerts {
		if !a.Sent {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *stubRepo) ListAlerts(ctx context.Context, params repository.ListAlertsParams) ([]models.Alert, error) {
	var out []models.Alert
	for _, a := range s.alerts {
		if params.AlertType != nil && a.AlertType != *params.AlertType {
			continue
		}
		if params.Severity != nil && a.Severity != *params.Severity {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *stubRepo) CountAlerts(ctx context.Context, params repository.ListAlertsParams) (int64, error) {
	items, _ := s.ListAlerts(ctx, params)
	return int64(len(items)), nil
}

func orderAndLimit(bets []models.Bet, params repository.ListBetsParams) []models.Bet {
	asc := params.Asc != nil && *params.Asc
	sort.SliceStable(bets, func(i, j int) bool {
		if asc {
			return bets[i].Timestamp.Before(bets[j].Timestamp)
		}
		return bets[i].Timestamp.After(bets[j].Timestamp)
	})
	if params.Limit > 0 && len(bets) > params.Limit {
		bets = bets[:params.Limit]
	}
	return bets
}
