package detection

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"betwatch/internal/anomaly"
	"betwatch/internal/models"
	"betwatch/internal/repository"
)

// Orchestrator fans one bet out to every detector, merges what fired into a
// single finding and persists it as an alert. A failing detector is logged
// and skipped; the remaining detectors still run.
type Orchestrator struct {
	Repo       repository.Repository
	Logger     *zap.Logger
	LargeBet   *LargeBetDetector
	Pattern    *PatternDetector
	NewAccount *NewAccountDetector

	mu          sync.Mutex
	lastSummary *RunSummary
}

type Analysis struct {
	Bet      models.Bet
	Severity Severity
	Type     string

	LargeBet        *LargeBetResult        `json:"large_bet,omitempty"`
	RapidSuccession *RapidSuccessionResult `json:"rapid_succession,omitempty"`
	StatAnomaly     *StatAnomalyResult     `json:"statistical_anomaly,omitempty"`
	NewAccount      *NewAccountResult      `json:"new_account,omitempty"`
}

type RunSummary struct {
	StartedAt     time.Time      `json:"started_at"`
	FinishedAt    time.Time      `json:"finished_at"`
	Markets       int            `json:"markets"`
	ProcessedBets int            `json:"processed_bets"`
	Detections    int            `json:"detections"`
	AlertsCreated int            `json:"alerts_created"`
	ByType        map[string]int `json:"by_type"`
	BySeverity    map[string]int `json:"by_severity"`
}

// AnalyzeBet runs all detectors against the bet. Returns nil when nothing
// fired.
func (o *Orchestrator) AnalyzeBet(ctx context.Context, bet models.Bet) (*Analysis, error) {
	if o == nil {
		return nil, nil
	}
	a := &Analysis{Bet: bet}

	if o.LargeBet != nil {
		res, err := o.LargeBet.Detect(ctx, bet)
		if err != nil {
			o.warn("large bet detector failed", bet, err)
		} else if res != nil {
			a.LargeBet = res
			a.Severity = MaxSeverity(a.Severity, res.Severity)
		}
	}

	if o.Pattern != nil {
		rapid, err := o.Pattern.DetectRapidSuccession(ctx, bet.MarketID, bet.Address)
		if err != nil {
			o.warn("rapid succession detector failed", bet, err)
		} else if rapid != nil {
			a.RapidSuccession = rapid
			a.Severity = MaxSeverity(a.Severity, rapid.Severity)
		}

		stat, err := o.Pattern.DetectStatisticalAnomaly(ctx, bet, anomaly.MethodZScore)
		if err != nil {
			o.warn("statistical anomaly detector failed", bet, err)
		} else if stat != nil {
			a.StatAnomaly = stat
			a.Severity = MaxSeverity(a.Severity, stat.Severity)
		}
	}

	if o.NewAccount != nil {
		res, err := o.NewAccount.Detect(ctx, bet)
		if err != nil {
			o.warn("new account detector failed", bet, err)
		} else if res != nil {
			a.NewAccount = res
			a.Severity = MaxSeverity(a.Severity, res.Severity)
		}
	}

	a.Type = alertType(a)
	if a.Type == "" {
		return nil, nil
	}
	return a, nil
}

// alertType picks the alert's primary type by fixed priority.
func alertType(a *Analysis) string {
	switch {
	case a.LargeBet != nil:
		return AlertTypeLargeBet
	case a.NewAccount != nil:
		return AlertTypeNewAccount
	case a.RapidSuccession != nil:
		return AlertTypeRapidSuccession
	case a.StatAnomaly != nil:
		return AlertTypeStatisticalAnomaly
	}
	return ""
}

// CreateAlert persists one alert carrying every fired signal in its details
// payload.
func (o *Orchestrator) CreateAlert(ctx context.Context, a *Analysis) (*models.Alert, error) {
	if o == nil || o.Repo == nil || a == nil {
		return nil, nil
	}
	payload := map[string]any{
		"order_id": a.Bet.OrderID,
		"address":  a.Bet.Address,
		"size":     a.Bet.Size.InexactFloat64(),
		"price":    a.Bet.Price.InexactFloat64(),
		"outcome":  a.Bet.Outcome,
	}
	if a.LargeBet != nil {
		payload["large_bet"] = a.LargeBet
	}
	if a.RapidSuccession != nil {
		payload["rapid_succession"] = a.RapidSuccession
	}
	if a.StatAnomaly != nil {
		payload["statistical_anomaly"] = a.StatAnomaly
	}
	if a.NewAccount != nil {
		payload["new_account"] = a.NewAccount
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal alert details: %w", err)
	}

	alert := &models.Alert{
		AlertType: a.Type,
		Severity:  string(a.Severity),
		MarketID:  a.Bet.MarketID,
		Details:   datatypes.JSON(raw),
	}
	if a.Bet.ID != 0 {
		id := a.Bet.ID
		alert.BetID = &id
	}
	if err := o.Repo.CreateAlert(ctx, alert); err != nil {
		return nil, fmt.Errorf("create alert: %w", err)
	}
	if o.Logger != nil {
		o.Logger.Info("alert created",
			zap.String("type", a.Type),
			zap.String("severity", string(a.Severity)),
			zap.String("market_id", a.Bet.MarketID),
			zap.String("address", a.Bet.Address),
		)
	}
	return alert, nil
}

// ProcessBet analyzes one bet and creates an alert if anything fired.
func (o *Orchestrator) ProcessBet(ctx context.Context, bet models.Bet) (*models.Alert, error) {
	analysis, err := o.AnalyzeBet(ctx, bet)
	if err != nil {
		return nil, err
	}
	if analysis == nil {
		return nil, nil
	}
	return o.CreateAlert(ctx, analysis)
}

// ProcessRecentBets sweeps the recent bets of every active market. Per-bet
// failures are logged and skipped.
func (o *Orchestrator) ProcessRecentBets(ctx context.Context, lookback time.Duration, maxMarkets int) (RunSummary, error) {
	summary := RunSummary{
		StartedAt:  time.Now().UTC(),
		ByType:     map[string]int{},
		BySeverity: map[string]int{},
	}
	if o == nil || o.Repo == nil {
		return summary, nil
	}
	markets, err := o.Repo.ListActiveMarkets(ctx, maxMarkets)
	if err != nil {
		return summary, fmt.Errorf("list active markets: %w", err)
	}
	summary.Markets = len(markets)
	since := summary.StartedAt.Add(-lookback)

	for _, market := range markets {
		if ctx.Err() != nil {
			break
		}
		bets, err := o.Repo.ListBetsByMarket(ctx, market.ID, repository.ListBetsParams{Since: &since})
		if err != nil {
			if o.Logger != nil {
				o.Logger.Warn("sweep: list bets failed",
					zap.String("market_id", market.ID),
					zap.Error(err),
				)
			}
			continue
		}
		for _, bet := range bets {
			summary.ProcessedBets++
			analysis, err := o.AnalyzeBet(ctx, bet)
			if err != nil {
				o.warn("sweep: analyze failed", bet, err)
				continue
			}
			if analysis == nil {
				continue
			}
			summary.Detections++
			summary.ByType[analysis.Type]++
			summary.BySeverity[string(analysis.Severity)]++
			if _, err := o.CreateAlert(ctx, analysis); err != nil {
				o.warn("sweep: create alert failed", bet, err)
				continue
			}
			summary.AlertsCreated++
		}
	}

	summary.FinishedAt = time.Now().UTC()
	o.mu.Lock()
	o.lastSummary = &summary
	o.mu.Unlock()

	if o.Logger != nil {
		o.Logger.Info("detection sweep complete",
			zap.Int("markets", summary.Markets),
			zap.Int("bets", summary.ProcessedBets),
			zap.Int("detections", summary.Detections),
			zap.Int("alerts", summary.AlertsCreated),
		)
	}
	return summary, nil
}

// LastSummary returns the most recent sweep summary, or nil before the
// first sweep finishes.
func (o *Orchestrator) LastSummary() *RunSummary {
	if o == nil {
		return nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.lastSummary == nil {
		return nil
	}
	copied := *o.lastSummary
	return &copied
}

func (o *Orchestrator) warn(msg string, bet models.Bet, err error) {
	if o.Logger == nil {
		return
	}
	o.Logger.Warn(msg,
		zap.String("market_id", bet.MarketID),
		zap.String("address", bet.Address),
		zap.String("order_id", bet.OrderID),
		zap.Error(err),
	)
}
