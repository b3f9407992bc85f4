package detection

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"betwatch/internal/config"
	"betwatch/internal/models"
)

func largeBetConfig() config.LargeBetConfig {
	return config.LargeBetConfig{
		CriticalThresholdUSD: 100000,
		HighThresholdUSD:     50000,
		MediumThresholdUSD:   10000,
		VolumePercentage:     0.05,
		SigmaThreshold:       3.0,
	}
}

func betOfSize(size float64) models.Bet {
	return models.Bet{
		ID:        1,
		OrderID:   "order-1",
		MarketID:  "mkt-1",
		Address:   "0xabc",
		Size:      decimal.NewFromFloat(size),
		Price:     decimal.NewFromFloat(0.5),
		Timestamp: time.Now().UTC(),
	}
}

func TestLargeBetAbsoluteTiers(t *testing.T) {
	d := &LargeBetDetector{Repo: &stubRepo{}, Config: largeBetConfig()}
	ctx := context.Background()

	cases := []struct {
		size float64
		want Severity
	}{
		{150000, SeverityCritical},
		{100000, SeverityCritical},
		{60000, SeverityHigh},
		{10000, SeverityMedium},
	}
	for _, tc := range cases {
		res, err := d.Detect(ctx, betOfSize(tc.size))
		if err != nil {
			t.Fatalf("size %v: %v", tc.size, err)
		}
		if res == nil {
			t.Fatalf("size %v: expected detection", tc.size)
		}
		tier, ok := res.Tiers[TierAbsolute]
		if !ok {
			t.Fatalf("size %v: absolute tier missing", tc.size)
		}
		if tier.Severity != tc.want {
			t.Fatalf("size %v: severity = %s, want %s", tc.size, tier.Severity, tc.want)
		}
	}

	res, err := d.Detect(ctx, betOfSize(9999))
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if res != nil {
		t.Fatalf("below-threshold bet fired: %+v", res)
	}
}

func TestLargeBetMarketRelativeTier(t *testing.T) {
	repo := &stubRepo{markets: map[string]models.Market{
		"mkt-1": {ID: "mkt-1", Question: "?", Active: true, TotalVolume: decimal.NewFromInt(100000)},
	}}
	d := &LargeBetDetector{Repo: repo, Config: largeBetConfig()}
	ctx := context.Background()

	// 5% of a 100k market: medium via the relative tier. The absolute tier
	// stays quiet below 10k.
	res, err := d.Detect(ctx, betOfSize(5000))
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if res == nil {
		t.Fatalf("expected relative detection at 5%%")
	}
	if res.Tiers[TierMarketRelative].Severity != SeverityMedium {
		t.Fatalf("relative severity = %s, want medium", res.Tiers[TierMarketRelative].Severity)
	}

	// 10% = 2x the 5% threshold: high.
	res, err = d.Detect(ctx, betOfSize(10000))
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if res.Tiers[TierMarketRelative].Severity != SeverityHigh {
		t.Fatalf("2x severity = %s, want high", res.Tiers[TierMarketRelative].Severity)
	}

	// 15% = 3x: critical, and the merged severity must be critical even
	// though the absolute tier is only medium.
	res, err = d.Detect(ctx, betOfSize(15000))
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if res.Tiers[TierMarketRelative].Severity != SeverityCritical {
		t.Fatalf("3x severity = %s, want critical", res.Tiers[TierMarketRelative].Severity)
	}
	if res.Severity != SeverityCritical {
		t.Fatalf("merged severity = %s, want critical", res.Severity)
	}
}

func TestLargeBetMarketRelativeUnavailable(t *testing.T) {
	d := &LargeBetDetector{Repo: &stubRepo{}, Config: largeBetConfig()}
	res, err := d.Detect(context.Background(), betOfSize(20000))
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if res == nil {
		t.Fatalf("absolute tier should still fire")
	}
	tier := res.Tiers[TierMarketRelative]
	if tier.Skipped != SkipMarketUnavailable {
		t.Fatalf("skip marker = %q, want %q", tier.Skipped, SkipMarketUnavailable)
	}
	if tier.Severity != "" {
		t.Fatalf("skipped tier must not carry a severity")
	}
}

func TestLargeBetStatisticalTier(t *testing.T) {
	repo := &stubRepo{stats: map[string]models.MarketStatistics{
		"mkt-1": {
			MarketID:      "mkt-1",
			WindowHours:   24,
			MeanBetSize:   1000,
			StdDevBetSize: 500,
			TotalBets:     50,
		},
	}}
	d := &LargeBetDetector{Repo: repo, Config: largeBetConfig(), StatsWindowHours: 24}
	ctx := context.Background()

	// 7 sigmas above the mean: over twice the 3-sigma threshold -> critical.
	res, err := d.Detect(ctx, betOfSize(4500))
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if res == nil {
		t.Fatalf("expected statistical detection")
	}
	tier := res.Tiers[TierStatistical]
	if tier.Severity != SeverityCritical {
		t.Fatalf("severity = %s, want critical (sigmas %.1f)", tier.Severity, tier.SigmasAway)
	}

	// 3.5 sigmas: above threshold, below 1.5x -> medium.
	res, err = d.Detect(ctx, betOfSize(2750))
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if res == nil {
		t.Fatalf("expected detection at 3.5 sigmas")
	}
	if res.Tiers[TierStatistical].Severity != SeverityMedium {
		t.Fatalf("severity = %s, want medium", res.Tiers[TierStatistical].Severity)
	}
}

func TestLargeBetStatisticalTierIgnoresBelowMean(t *testing.T) {
	repo := &stubRepo{stats: map[string]models.MarketStatistics{
		"mkt-1": {
			MarketID:      "mkt-1",
			WindowHours:   24,
			MeanBetSize:   50000,
			StdDevBetSize: 5000,
			TotalBets:     50,
		},
	}}
	d := &LargeBetDetector{Repo: repo, Config: largeBetConfig(), StatsWindowHours: 24}

	// 9.6 sigmas below the mean. Unusually small, but not a large bet.
	res, err := d.Detect(context.Background(), betOfSize(2000))
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if res != nil {
		t.Fatalf("below-mean bet fired: %+v", res)
	}
}

func TestLargeBetStatisticalTierNeedsData(t *testing.T) {
	repo := &stubRepo{stats: map[string]models.MarketStatistics{
		"mkt-1": {
			MarketID:      "mkt-1",
			WindowHours:   24,
			MeanBetSize:   1000,
			StdDevBetSize: 500,
			TotalBets:     9,
		},
	}}
	d := &LargeBetDetector{Repo: repo, Config: largeBetConfig(), StatsWindowHours: 24}
	res, err := d.Detect(context.Background(), betOfSize(20000))
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if res == nil {
		t.Fatalf("absolute tier should still fire")
	}
	if res.Tiers[TierStatistical].Skipped != SkipInsufficientStatistics {
		t.Fatalf("want insufficient-statistics marker, got %+v", res.Tiers[TierStatistical])
	}
}
