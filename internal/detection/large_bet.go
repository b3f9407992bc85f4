package detection

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"betwatch/internal/config"
	"betwatch/internal/models"
	"betwatch/internal/repository"
)

// Tier names used as keys in large-bet alert payloads.
const (
	TierAbsolute       = "absolute_threshold"
	TierMarketRelative = "market_relative"
	TierStatistical    = "statistical_anomaly"
)

// Skip markers recorded when a tier could not be evaluated.
const (
	SkipMarketUnavailable      = "market_not_found_or_zero_volume"
	SkipInsufficientStatistics = "insufficient_statistics"
)

// LargeBetDetector evaluates a bet against three independent size tiers:
// fixed dollar thresholds, share of lifetime market volume, and deviation
// from the market's rolling bet-size snapshot.
type LargeBetDetector struct {
	Repo   repository.Repository
	Logger *zap.Logger
	Config config.LargeBetConfig

	// StatsWindowHours selects which snapshot row the statistical tier
	// reads. Zero means 24.
	StatsWindowHours int
}

type TierDetail struct {
	Severity     Severity `json:"severity,omitempty"`
	Size         float64  `json:"size,omitempty"`
	Threshold    float64  `json:"threshold,omitempty"`
	MarketVolume float64  `json:"market_volume,omitempty"`
	VolumePct    float64  `json:"volume_pct,omitempty"`
	MeanBetSize  float64  `json:"mean_bet_size,omitempty"`
	StdDev       float64  `json:"std_dev,omitempty"`
	SigmasAway   float64  `json:"sigmas_away,omitempty"`
	Skipped      string   `json:"skipped,omitempty"`
}

type LargeBetResult struct {
	BetID    uint64                `json:"bet_id"`
	MarketID string                `json:"market_id"`
	Address  string                `json:"address"`
	Size     float64               `json:"size"`
	Severity Severity              `json:"severity"`
	Tiers    map[string]TierDetail `json:"tiers"`
}

// Detect returns nil when no tier fires. A tier that cannot be evaluated
// (missing market, thin statistics) records a skip marker and does not
// contribute a severity.
func (d *LargeBetDetector) Detect(ctx context.Context, bet models.Bet) (*LargeBetResult, error) {
	if d == nil {
		return nil, nil
	}
	size := bet.Size.InexactFloat64()
	tiers := map[string]TierDetail{}
	overall := Severity("")

	if detail, ok := d.absoluteTier(size); ok {
		tiers[TierAbsolute] = detail
		overall = MaxSeverity(overall, detail.Severity)
	}

	relDetail, fired, err := d.marketRelativeTier(ctx, bet.MarketID, size)
	if err != nil {
		return nil, fmt.Errorf("market relative tier: %w", err)
	}
	if fired {
		tiers[TierMarketRelative] = relDetail
		if relDetail.Severity != "" {
			overall = MaxSeverity(overall, relDetail.Severity)
		}
	}

	statDetail, fired, err := d.statisticalTier(ctx, bet.MarketID, size)
	if err != nil {
		return nil, fmt.Errorf("statistical tier: %w", err)
	}
	if fired {
		tiers[TierStatistical] = statDetail
		if statDetail.Severity != "" {
			overall = MaxSeverity(overall, statDetail.Severity)
		}
	}

	if overall == "" {
		return nil, nil
	}
	if d.Logger != nil {
		d.Logger.Debug("large bet detected",
			zap.String("market_id", bet.MarketID),
			zap.String("address", bet.Address),
			zap.Float64("size", size),
			zap.String("severity", string(overall)),
		)
	}
	return &LargeBetResult{
		BetID:    bet.ID,
		MarketID: bet.MarketID,
		Address:  bet.Address,
		Size:     size,
		Severity: overall,
		Tiers:    tiers,
	}, nil
}

func (d *LargeBetDetector) absoluteTier(size float64) (TierDetail, bool) {
	switch {
	case d.Config.CriticalThresholdUSD > 0 && size >= d.Config.CriticalThresholdUSD:
		return TierDetail{Severity: SeverityCritical, Size: size, Threshold: d.Config.CriticalThresholdUSD}, true
	case d.Config.HighThresholdUSD > 0 && size >= d.Config.HighThresholdUSD:
		return TierDetail{Severity: SeverityHigh, Size: size, Threshold: d.Config.HighThresholdUSD}, true
	case d.Config.MediumThresholdUSD > 0 && size >= d.Config.MediumThresholdUSD:
		return TierDetail{Severity: SeverityMedium, Size: size, Threshold: d.Config.MediumThresholdUSD}, true
	}
	return TierDetail{}, false
}

func (d *LargeBetDetector) marketRelativeTier(ctx context.Context, marketID string, size float64) (TierDetail, bool, error) {
	if d.Config.VolumePercentage <= 0 || d.Repo == nil {
		return TierDetail{}, false, nil
	}
	market, err := d.Repo.GetMarket(ctx, marketID)
	if err != nil {
		return TierDetail{}, false, err
	}
	if market == nil || !market.TotalVolume.IsPositive() {
		return TierDetail{Skipped: SkipMarketUnavailable}, true, nil
	}
	volume := market.TotalVolume.InexactFloat64()
	pct := size / volume
	if pct < d.Config.VolumePercentage {
		return TierDetail{}, false, nil
	}
	severity := SeverityMedium
	if pct >= 3*d.Config.VolumePercentage {
		severity = SeverityCritical
	} else if pct >= 2*d.Config.VolumePercentage {
		severity = SeverityHigh
	}
	return TierDetail{
		Severity:     severity,
		Size:         size,
		Threshold:    d.Config.VolumePercentage,
		MarketVolume: volume,
		VolumePct:    pct,
	}, true, nil
}

func (d *LargeBetDetector) statisticalTier(ctx context.Context, marketID string, size float64) (TierDetail, bool, error) {
	if d.Config.SigmaThreshold <= 0 || d.Repo == nil {
		return TierDetail{}, false, nil
	}
	window := d.StatsWindowHours
	if window <= 0 {
		window = 24
	}
	snapshot, err := d.Repo.GetMarketStatistics(ctx, marketID, window)
	if err != nil {
		return TierDetail{}, false, err
	}
	if snapshot == nil || snapshot.TotalBets < 10 || snapshot.StdDevBetSize <= 0 {
		return TierDetail{Skipped: SkipInsufficientStatistics}, true, nil
	}
	sigmas := (size - snapshot.MeanBetSize) / snapshot.StdDevBetSize
	if sigmas < d.Config.SigmaThreshold {
		return TierDetail{}, false, nil
	}
	severity := SeverityMedium
	if sigmas >= 2*d.Config.SigmaThreshold {
		severity = SeverityCritical
	} else if sigmas >= 1.5*d.Config.SigmaThreshold {
		severity = SeverityHigh
	}
	return TierDetail{
		Severity:    severity,
		Size:        size,
		Threshold:   d.Config.SigmaThreshold,
		MeanBetSize: snapshot.MeanBetSize,
		StdDev:      snapshot.StdDevBetSize,
		SigmasAway:  sigmas,
	}, true, nil
}
