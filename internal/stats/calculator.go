// Package stats maintains the rolling per-market bet-size snapshots the
// detectors compare incoming bets against.
package stats

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"betwatch/internal/anomaly"
	"betwatch/internal/config"
	"betwatch/internal/models"
	"betwatch/internal/repository"
)

type Calculator struct {
	Repo   repository.Repository
	Logger *zap.Logger
	Config config.StatsConfig
}

// Compute builds a snapshot over the trailing window without persisting it.
// Fewer than 2 bets in the window yields (nil, nil): not enough data for a
// meaningful distribution, and the previous snapshot stays current.
func (c *Calculator) Compute(ctx context.Context, marketID string, windowHours int) (*models.MarketStatistics, error) {
	if c == nil || c.Repo == nil {
		return nil, nil
	}
	if windowHours <= 0 {
		windowHours = c.windowHours()
	}
	windowEnd := time.Now().UTC()
	windowStart := windowEnd.Add(-time.Duration(windowHours) * time.Hour)

	bets, err := c.Repo.ListBetsByMarket(ctx, marketID, repository.ListBetsParams{Since: &windowStart})
	if err != nil {
		return nil, fmt.Errorf("list bets for %s: %w", marketID, err)
	}
	if len(bets) < 2 {
		return nil, nil
	}

	sizes := make([]float64, 0, len(bets))
	totalVolume := decimal.Zero
	addresses := map[string]struct{}{}
	for _, bet := range bets {
		sizes = append(sizes, bet.Size.InexactFloat64())
		totalVolume = totalVolume.Add(bet.Size)
		addresses[bet.Address] = struct{}{}
	}
	summary := anomaly.Describe(sizes)

	return &models.MarketStatistics{
		MarketID:        marketID,
		WindowHours:     windowHours,
		MeanBetSize:     summary.Mean,
		StdDevBetSize:   summary.StdDev,
		MedianBetSize:   summary.Median,
		Q1BetSize:       summary.Q1,
		Q3BetSize:       summary.Q3,
		IQRBetSize:      summary.IQR,
		TotalBets:       len(bets),
		TotalVolume:     totalVolume,
		UniqueAddresses: len(addresses),
		WindowStart:     windowStart,
		WindowEnd:       windowEnd,
		CalculatedAt:    windowEnd,
	}, nil
}

// Update computes and persists the snapshot. It reports whether a snapshot
// was written.
func (c *Calculator) Update(ctx context.Context, marketID string, windowHours int) (bool, error) {
	snapshot, err := c.Compute(ctx, marketID, windowHours)
	if err != nil {
		return false, err
	}
	if snapshot == nil {
		return false, nil
	}
	if err := c.Repo.UpsertMarketStatistics(ctx, snapshot); err != nil {
		return false, fmt.Errorf("upsert statistics for %s: %w", marketID, err)
	}
	return true, nil
}

// UpdateAllActiveMarkets refreshes snapshots for every active market.
// A failing market is logged and skipped so one bad row cannot stall the
// refresh cycle. Returns the number of snapshots written.
func (c *Calculator) UpdateAllActiveMarkets(ctx context.Context, windowHours int) (int, error) {
	if c == nil || c.Repo == nil {
		return 0, nil
	}
	markets, err := c.Repo.ListActiveMarkets(ctx, c.maxMarkets())
	if err != nil {
		return 0, fmt.Errorf("list active markets: %w", err)
	}
	updated := 0
	for _, market := range markets {
		ok, err := c.Update(ctx, market.ID, windowHours)
		if err != nil {
			if c.Logger != nil {
				c.Logger.Warn("stats update failed",
					zap.String("market_id", market.ID),
					zap.Error(err),
				)
			}
			continue
		}
		if ok {
			updated++
		}
	}
	if c.Logger != nil {
		c.Logger.Info("stats refresh complete",
			zap.Int("markets", len(markets)),
			zap.Int("updated", updated),
		)
	}
	return updated, nil
}

// RecentBetSizes returns the bet sizes for a market over the trailing
// window, oldest first.
func (c *Calculator) RecentBetSizes(ctx context.Context, marketID string, lookback time.Duration) ([]float64, error) {
	if c == nil || c.Repo == nil {
		return nil, nil
	}
	since := time.Now().UTC().Add(-lookback)
	asc := true
	bets, err := c.Repo.ListBetsByMarket(ctx, marketID, repository.ListBetsParams{Since: &since, Asc: &asc})
	if err != nil {
		return nil, err
	}
	sizes := make([]float64, 0, len(bets))
	for _, bet := range bets {
		sizes = append(sizes, bet.Size.InexactFloat64())
	}
	return sizes, nil
}

// PercentileRank reports where a value sits within the market's recent bet
// sizes, as a 0-100 percentage.
func (c *Calculator) PercentileRank(ctx context.Context, marketID string, value float64, lookback time.Duration) (float64, error) {
	sizes, err := c.RecentBetSizes(ctx, marketID, lookback)
	if err != nil {
		return 0, err
	}
	if len(sizes) == 0 {
		return 0, nil
	}
	below := 0
	for _, s := range sizes {
		if s <= value {
			below++
		}
	}
	return float64(below) / float64(len(sizes)) * 100, nil
}

func (c *Calculator) windowHours() int {
	if c != nil && c.Config.WindowHours > 0 {
		return c.Config.WindowHours
	}
	return 24
}

func (c *Calculator) maxMarkets() int {
	if c != nil && c.Config.MaxMarkets > 0 {
		return c.Config.MaxMarkets
	}
	return 200
}
