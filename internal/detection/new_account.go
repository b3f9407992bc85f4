package detection

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"betwatch/internal/config"
	"betwatch/internal/models"
	"betwatch/internal/repository"
)

// NewAccountDetector flags outsized early bets from wallets with little or
// no history. Account state is derived from bet history on demand; there is
// no separate account table.
type NewAccountDetector struct {
	Repo   repository.Repository
	Logger *zap.Logger
	Config config.NewAccountConfig
}

type AccountInfo struct {
	Address       string    `json:"address"`
	FirstSeen     time.Time `json:"first_seen"`
	TotalBets     int       `json:"total_bets"`
	TotalVolume   float64   `json:"total_volume"`
	MarketsTraded int       `json:"markets_traded"`
}

type NewAccountResult struct {
	BetID           uint64    `json:"bet_id"`
	Address         string    `json:"address"`
	MarketID        string    `json:"market_id"`
	Severity        Severity  `json:"severity"`
	Size            float64   `json:"size"`
	BetPosition     int       `json:"bet_position"`
	AccountAgeHours float64   `json:"account_age_hours"`
	FirstSeen       time.Time `json:"first_seen"`
	TotalBets       int       `json:"total_bets"`
	FirstEverBet    bool      `json:"first_ever_bet,omitempty"`
}

// AccountInfo summarizes an address from its full bet history.
func (d *NewAccountDetector) AccountInfo(ctx context.Context, address string) (*AccountInfo, error) {
	if d == nil || d.Repo == nil {
		return nil, nil
	}
	asc := true
	bets, err := d.Repo.ListBetsByAddress(ctx, address, repository.ListBetsParams{Asc: &asc})
	if err != nil {
		return nil, fmt.Errorf("list bets for %s: %w", address, err)
	}
	if len(bets) == 0 {
		return nil, nil
	}
	info := &AccountInfo{Address: address, FirstSeen: bets[0].Timestamp, TotalBets: len(bets)}
	markets := map[string]struct{}{}
	for _, bet := range bets {
		info.TotalVolume += bet.Size.InexactFloat64()
		markets[bet.MarketID] = struct{}{}
	}
	info.MarketsTraded = len(markets)
	return info, nil
}

// Detect returns nil for established accounts and for early bets below the
// large-bet floor.
func (d *NewAccountDetector) Detect(ctx context.Context, bet models.Bet) (*NewAccountResult, error) {
	if d == nil || d.Repo == nil {
		return nil, nil
	}
	asc := true
	history, err := d.Repo.ListBetsByAddress(ctx, bet.Address, repository.ListBetsParams{Asc: &asc})
	if err != nil {
		return nil, fmt.Errorf("list bets for %s: %w", bet.Address, err)
	}

	size := bet.Size.InexactFloat64()

	// A wallet with no prior rows (or whose only row is this bet) is brand
	// new; only the first-bet thresholds apply.
	if len(history) == 0 || (len(history) == 1 && history[0].OrderID == bet.OrderID) {
		var severity Severity
		switch {
		case d.suspiciousBet() > 0 && size >= d.suspiciousBet():
			severity = SeverityCritical
		case d.largeBet() > 0 && size >= d.largeBet():
			severity = SeverityHigh
		default:
			return nil, nil
		}
		return &NewAccountResult{
			BetID:        bet.ID,
			Address:      bet.Address,
			MarketID:     bet.MarketID,
			Severity:     severity,
			Size:         size,
			BetPosition:  1,
			FirstSeen:    bet.Timestamp,
			TotalBets:    len(history),
			FirstEverBet: true,
		}, nil
	}

	firstSeen := history[0].Timestamp
	age := time.Now().UTC().Sub(firstSeen)
	if age > d.accountAge() {
		return nil, nil
	}

	position := len(history) + 1
	for i, prev := range history {
		if prev.OrderID == bet.OrderID {
			position = i + 1
			break
		}
	}
	if position > d.firstBets() {
		return nil, nil
	}
	if d.largeBet() > 0 && size < d.largeBet() {
		return nil, nil
	}

	severity := d.newAccountSeverity(position, age, size)
	if d.Logger != nil {
		d.Logger.Debug("new account bet detected",
			zap.String("address", bet.Address),
			zap.Int("position", position),
			zap.Float64("size", size),
			zap.String("severity", string(severity)),
		)
	}
	return &NewAccountResult{
		BetID:           bet.ID,
		Address:         bet.Address,
		MarketID:        bet.MarketID,
		Severity:        severity,
		Size:            size,
		BetPosition:     position,
		AccountAgeHours: age.Hours(),
		FirstSeen:       firstSeen,
		TotalBets:       len(history),
	}, nil
}

func (d *NewAccountDetector) newAccountSeverity(position int, age time.Duration, size float64) Severity {
	switch {
	case position == 1:
		if size >= d.suspiciousBet() {
			return SeverityCritical
		}
		return SeverityHigh
	case age < 24*time.Hour:
		if size >= d.suspiciousBet() {
			return SeverityCritical
		}
		if size >= 2*d.largeBet() {
			return SeverityHigh
		}
		return SeverityMedium
	case position <= 5:
		if size >= d.suspiciousBet() {
			return SeverityHigh
		}
		return SeverityMedium
	}
	return SeverityMedium
}

type RiskProfile struct {
	Address  string      `json:"address"`
	Score    int         `json:"score"`
	Severity Severity    `json:"severity"`
	Factors  []string    `json:"factors"`
	Account  AccountInfo `json:"account"`
}

// RiskProfile scores an address on age, bet sizing and market focus.
// Unknown addresses yield nil.
func (d *NewAccountDetector) RiskProfile(ctx context.Context, address string) (*RiskProfile, error) {
	info, err := d.AccountInfo(ctx, address)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, nil
	}

	score := 0
	var factors []string
	age := time.Now().UTC().Sub(info.FirstSeen)
	if age < 24*time.Hour {
		score += 3
		factors = append(factors, "account_under_24h")
	} else if age < d.accountAge() {
		score += 2
		factors = append(factors, "account_under_72h")
	}

	avg := info.TotalVolume / float64(info.TotalBets)
	if avg > 50000 {
		score += 3
		factors = append(factors, "avg_bet_over_50k")
	} else if avg > 10000 {
		score += 2
		factors = append(factors, "avg_bet_over_10k")
	}

	if info.TotalBets <= 5 && info.TotalVolume > 100000 {
		score += 2
		factors = append(factors, "few_bets_high_volume")
	}
	if info.MarketsTraded == 1 && info.TotalBets >= 5 {
		score += 1
		factors = append(factors, "single_market_focus")
	}

	severity := SeverityLow
	switch {
	case score >= 6:
		severity = SeverityCritical
	case score >= 4:
		severity = SeverityHigh
	case score >= 2:
		severity = SeverityMedium
	}

	return &RiskProfile{
		Address:  address,
		Score:    score,
		Severity: severity,
		Factors:  factors,
		Account:  *info,
	}, nil
}

func (d *NewAccountDetector) accountAge() time.Duration {
	if d.Config.AccountAge > 0 {
		return d.Config.AccountAge
	}
	return 72 * time.Hour
}

func (d *NewAccountDetector) firstBets() int {
	if d.Config.FirstBets > 0 {
		return d.Config.FirstBets
	}
	return 10
}

func (d *NewAccountDetector) largeBet() float64 {
	if d.Config.LargeFirstBetUSD > 0 {
		return d.Config.LargeFirstBetUSD
	}
	return 10000
}

func (d *NewAccountDetector) suspiciousBet() float64 {
	if d.Config.SuspiciousBetUSD > 0 {
		return d.Config.SuspiciousBetUSD
	}
	return 50000
}
