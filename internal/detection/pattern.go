package detection

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"betwatch/internal/anomaly"
	"betwatch/internal/config"
	"betwatch/internal/models"
	"betwatch/internal/repository"
)

// PatternDetector covers behavioral patterns that need more than one bet:
// rapid-fire betting by a single address and statistically anomalous sizes
// against the market's recent distribution.
type PatternDetector struct {
	Repo   repository.Repository
	Logger *zap.Logger
	Config config.PatternConfig
}

type RapidSuccessionResult struct {
	MarketID    string        `json:"market_id"`
	Address     string        `json:"address"`
	Severity    Severity      `json:"severity"`
	BetCount    int           `json:"bet_count"`
	TimeSpan    time.Duration `json:"-"`
	SpanMinutes float64       `json:"time_span_minutes"`
	TotalVolume float64       `json:"total_volume"`
	AvgBetSize  float64       `json:"avg_bet_size"`
	FirstBetAt  time.Time     `json:"first_bet_at"`
	LastBetAt   time.Time     `json:"last_bet_at"`
	Outcomes    []string      `json:"outcomes"`
}

type StatAnomalyResult struct {
	BetID       uint64         `json:"bet_id"`
	MarketID    string         `json:"market_id"`
	Address     string         `json:"address"`
	PatternType string         `json:"pattern_type"`
	Severity    Severity       `json:"severity"`
	Size        float64        `json:"size"`
	Result      anomaly.Result `json:"result"`
}

// DetectRapidSuccession looks for the configured number of bets by one
// address in one market inside the sliding window. Bets are scanned
// chronologically in runs of exactly the required count; the earliest run
// whose span fits the window is reported.
func (d *PatternDetector) DetectRapidSuccession(ctx context.Context, marketID, address string) (*RapidSuccessionResult, error) {
	if d == nil || d.Repo == nil {
		return nil, nil
	}
	window := d.rapidWindow()
	required := d.rapidCount()
	since := time.Now().UTC().Add(-window)
	asc := true
	bets, err := d.Repo.ListBetsByAddress(ctx, address, repository.ListBetsParams{
		MarketID: &marketID,
		Since:    &since,
		Asc:      &asc,
	})
	if err != nil {
		return nil, fmt.Errorf("list bets for %s in %s: %w", address, marketID, err)
	}
	if len(bets) < required {
		return nil, nil
	}

	for i := 0; i+required <= len(bets); i++ {
		run := bets[i : i+required]
		span := run[required-1].Timestamp.Sub(run[0].Timestamp)
		if span > window {
			continue
		}
		return d.buildRapidResult(marketID, address, run, span), nil
	}
	return nil, nil
}

func (d *PatternDetector) buildRapidResult(marketID, address string, run []models.Bet, span time.Duration) *RapidSuccessionResult {
	total := 0.0
	seen := map[string]struct{}{}
	outcomes := []string{}
	for _, bet := range run {
		total += bet.Size.InexactFloat64()
		if bet.Outcome == "" {
			continue
		}
		if _, ok := seen[bet.Outcome]; ok {
			continue
		}
		seen[bet.Outcome] = struct{}{}
		outcomes = append(outcomes, bet.Outcome)
	}

	severity := SeverityMedium
	if len(run) >= 10 || total >= 100000 {
		severity = SeverityHigh
	}

	if d.Logger != nil {
		d.Logger.Debug("rapid succession detected",
			zap.String("market_id", marketID),
			zap.String("address", address),
			zap.Int("bets", len(run)),
			zap.Duration("span", span),
		)
	}
	return &RapidSuccessionResult{
		MarketID:    marketID,
		Address:     address,
		Severity:    severity,
		BetCount:    len(run),
		TimeSpan:    span,
		SpanMinutes: span.Minutes(),
		TotalVolume: total,
		AvgBetSize:  total / float64(len(run)),
		FirstBetAt:  run[0].Timestamp,
		LastBetAt:   run[len(run)-1].Timestamp,
		Outcomes:    outcomes,
	}
}

// DetectStatisticalAnomaly compares the bet size against the market's
// recent sizes using the named method (anomaly.MethodZScore or
// anomaly.MethodIQR). Fewer than the minimum points yields nil.
func (d *PatternDetector) DetectStatisticalAnomaly(ctx context.Context, bet models.Bet, method string) (*StatAnomalyResult, error) {
	if d == nil || d.Repo == nil {
		return nil, nil
	}
	since := time.Now().UTC().Add(-d.anomalyLookback())
	asc := true
	bets, err := d.Repo.ListBetsByMarket(ctx, bet.MarketID, repository.ListBetsParams{Since: &since, Asc: &asc})
	if err != nil {
		return nil, fmt.Errorf("list recent bets for %s: %w", bet.MarketID, err)
	}
	minPoints := d.Config.AnomalyMinPoints
	if minPoints <= 0 {
		minPoints = 10
	}
	sizes := make([]float64, 0, len(bets))
	for _, b := range bets {
		if b.OrderID == bet.OrderID {
			continue
		}
		sizes = append(sizes, b.Size.InexactFloat64())
	}
	if len(sizes) < minPoints {
		return nil, nil
	}

	size := bet.Size.InexactFloat64()
	var res anomaly.Result
	var severity Severity
	switch method {
	case anomaly.MethodIQR:
		res = anomaly.IQR{Multiplier: d.iqrMultiplier()}.Detect(size, sizes)
		severity = iqrSeverity(res.Score)
	default:
		method = anomaly.MethodZScore
		res = anomaly.ZScore{Threshold: d.zScoreThreshold()}.Detect(size, sizes)
		severity = zScoreSeverity(res.Score)
	}
	if !res.Anomalous {
		return nil, nil
	}
	return &StatAnomalyResult{
		BetID:       bet.ID,
		MarketID:    bet.MarketID,
		Address:     bet.Address,
		PatternType: "statistical_anomaly_" + method,
		Severity:    severity,
		Size:        size,
		Result:      res,
	}, nil
}

// ScanMarket runs the rapid-succession check for every address that bet in
// the market over the lookback window.
func (d *PatternDetector) ScanMarket(ctx context.Context, marketID string, lookback time.Duration) ([]RapidSuccessionResult, error) {
	if d == nil || d.Repo == nil {
		return nil, nil
	}
	since := time.Now().UTC().Add(-lookback)
	bets, err := d.Repo.ListBetsByMarket(ctx, marketID, repository.ListBetsParams{Since: &since})
	if err != nil {
		return nil, err
	}
	seen := map[string]struct{}{}
	var out []RapidSuccessionResult
	for _, bet := range bets {
		if _, ok := seen[bet.Address]; ok {
			continue
		}
		seen[bet.Address] = struct{}{}
		res, err := d.DetectRapidSuccession(ctx, marketID, bet.Address)
		if err != nil {
			if d.Logger != nil {
				d.Logger.Warn("rapid succession scan failed",
					zap.String("market_id", marketID),
					zap.String("address", bet.Address),
					zap.Error(err),
				)
			}
			continue
		}
		if res != nil {
			out = append(out, *res)
		}
	}
	return out, nil
}

// ScanAddress runs the rapid-succession check for every market the address
// bet in over the lookback window.
func (d *PatternDetector) ScanAddress(ctx context.Context, address string, lookback time.Duration) ([]RapidSuccessionResult, error) {
	if d == nil || d.Repo == nil {
		return nil, nil
	}
	since := time.Now().UTC().Add(-lookback)
	bets, err := d.Repo.ListBetsByAddress(ctx, address, repository.ListBetsParams{Since: &since})
	if err != nil {
		return nil, err
	}
	seen := map[string]struct{}{}
	var out []RapidSuccessionResult
	for _, bet := range bets {
		if _, ok := seen[bet.MarketID]; ok {
			continue
		}
		seen[bet.MarketID] = struct{}{}
		res, err := d.DetectRapidSuccession(ctx, bet.MarketID, address)
		if err != nil {
			if d.Logger != nil {
				d.Logger.Warn("rapid succession scan failed",
					zap.String("market_id", bet.MarketID),
					zap.String("address", address),
					zap.Error(err),
				)
			}
			continue
		}
		if res != nil {
			out = append(out, *res)
		}
	}
	return out, nil
}

func zScoreSeverity(score float64) Severity {
	switch {
	case score >= 6:
		return SeverityCritical
	case score >= 4.5:
		return SeverityHigh
	}
	return SeverityMedium
}

func iqrSeverity(score float64) Severity {
	if score >= 3 {
		return SeverityHigh
	}
	return SeverityMedium
}

func (d *PatternDetector) rapidWindow() time.Duration {
	if d.Config.RapidWindow > 0 {
		return d.Config.RapidWindow
	}
	return 5 * time.Minute
}

func (d *PatternDetector) rapidCount() int {
	if d.Config.RapidCount > 0 {
		return d.Config.RapidCount
	}
	return 5
}

func (d *PatternDetector) anomalyLookback() time.Duration {
	if d.Config.AnomalyLookback > 0 {
		return d.Config.AnomalyLookback
	}
	return 24 * time.Hour
}

func (d *PatternDetector) zScoreThreshold() float64 {
	if d.Config.ZScoreThreshold > 0 {
		return d.Config.ZScoreThreshold
	}
	return 3.0
}

func (d *PatternDetector) iqrMultiplier() float64 {
	if d.Config.IQRMultiplier > 0 {
		return d.Config.IQRMultiplier
	}
	return 1.5
}
