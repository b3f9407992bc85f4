package detection

// Severity ranks findings. The ordering low < medium < high < critical is
// relied on by the orchestrator merge and the dispatcher send order.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityHigh:
		return 2
	case SeverityMedium:
		return 1
	case SeverityLow:
		return 0
	}
	return -1
}

func MaxSeverity(a, b Severity) Severity {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

const (
	AlertTypeLargeBet           = "large_bet"
	AlertTypeNewAccount         = "new_account"
	AlertTypeRapidSuccession    = "rapid_succession"
	AlertTypeStatisticalAnomaly = "statistical_anomaly"
	AlertTypeComposite          = "composite"
)
