package dispatch

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"betwatch/internal/config"
	"betwatch/internal/models"
	"betwatch/internal/repository"
)

// dispatchRepo stubs the repository methods the dispatcher uses.
type dispatchRepo struct {
	repository.Repository

	markets map[string]models.Market
	alerts  []models.Alert
}

func (s *dispatchRepo) GetMarket(ctx context.Context, id string) (*models.Market, error) {
	if m, ok := s.markets[id]; ok {
		copied := m
		return &copied, nil
	}
	return nil, nil
}

func (s *dispatchRepo) ListUnsentAlerts(ctx context.Context, limit int) ([]models.Alert, error) {
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

func (s *dispatchRepo) MarkAlertSent(ctx context.Context, id uint64, deliveryRef string, sentAt time.Time) error {
	for i := range s.alerts {
		if s.alerts[i].ID == id {
			s.alerts[i].Sent = true
			s.alerts[i].SentAt = &sentAt
		}
	}
	return nil
}

// recordingNotifier captures sends and can fail specific alerts.
type recordingNotifier struct {
	sent      []uint64
	questions []string
	failIDs   map[uint64]bool
}

func (n *recordingNotifier) Send(ctx context.Context, alert models.Alert, marketQuestion string) (string, error) {
	if n.failIDs[alert.ID] {
		return "", errors.New("send failed")
	}
	n.sent = append(n.sent, alert.ID)
	n.questions = append(n.questions, marketQuestion)
	return "msg-1", nil
}

func (n *recordingNotifier) Close() error { return nil }

func seedAlerts(repo *dispatchRepo, severities ...string) {
	base := time.Now().UTC().Add(-time.Hour)
	for i, sev := range severities {
		repo.alerts = append(repo.alerts, models.Alert{
			ID:        uint64(i + 1),
			AlertType: "large_bet",
			Severity:  sev,
			MarketID:  "mkt-1",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}
}

func newDispatcher(repo *dispatchRepo, n *recordingNotifier, cfg config.DispatcherConfig) *Dispatcher {
	return &Dispatcher{Repo: repo, Notifier: n, Config: cfg}
}

func TestRunCycleSendsCriticalFirst(t *testing.T) {
	repo := &dispatchRepo{}
	seedAlerts(repo, "medium", "critical", "high")
	n := &recordingNotifier{}
	d := newDispatcher(repo, n, config.DispatcherConfig{MaxPerHour: 60, MaxPerBatch: 10})

	sent, err := d.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if sent != 3 {
		t.Fatalf("sent = %d, want 3", sent)
	}
	// IDs by seeded order: 1 medium, 2 critical, 3 high.
	want := []uint64{2, 3, 1}
	for i, id := range want {
		if n.sent[i] != id {
			t.Fatalf("send order = %v, want %v", n.sent, want)
		}
	}
	for _, a := range repo.alerts {
		if !a.Sent || a.SentAt == nil {
			t.Fatalf("alert %d not marked sent", a.ID)
		}
	}
}

func TestRunCycleBatchCap(t *testing.T) {
	repo := &dispatchRepo{}
	seedAlerts(repo, "low", "low", "low", "low")
	n := &recordingNotifier{}
	d := newDispatcher(repo, n, config.DispatcherConfig{MaxPerHour: 60, MaxPerBatch: 2})

	sent, err := d.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if sent != 2 {
		t.Fatalf("sent = %d, want batch cap of 2", sent)
	}

	sent, err = d.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if sent != 2 {
		t.Fatalf("second cycle sent = %d, want 2", sent)
	}
	if len(n.sent) != 4 {
		t.Fatalf("total sent = %d", len(n.sent))
	}
}

func TestHourlyLimit(t *testing.T) {
	repo := &dispatchRepo{}
	seedAlerts(repo, "high", "high", "high")
	n := &recordingNotifier{}
	d := newDispatcher(repo, n, config.DispatcherConfig{MaxPerHour: 2, MaxPerBatch: 10})

	sent, err := d.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if sent != 2 {
		t.Fatalf("sent = %d, want hourly cap of 2", sent)
	}

	sent, err = d.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if sent != 0 {
		t.Fatalf("quota exhausted, sent = %d", sent)
	}

	// An hour later the window slides open again.
	d.now = func() time.Time { return time.Now().UTC().Add(61 * time.Minute) }
	sent, err = d.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if sent != 1 {
		t.Fatalf("after window slide sent = %d, want 1", sent)
	}
}

func TestFailedDeliveryStaysUnsent(t *testing.T) {
	repo := &dispatchRepo{}
	seedAlerts(repo, "high", "high")
	n := &recordingNotifier{failIDs: map[uint64]bool{1: true}}
	d := newDispatcher(repo, n, config.DispatcherConfig{MaxPerHour: 60, MaxPerBatch: 10})

	sent, err := d.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if sent != 1 {
		t.Fatalf("sent = %d, want 1", sent)
	}
	if repo.alerts[0].Sent {
		t.Fatalf("failed alert must stay unsent")
	}
	if !repo.alerts[1].Sent {
		t.Fatalf("second alert should have gone out")
	}

	// The failed alert is retried on the next cycle.
	n.failIDs = nil
	sent, err = d.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if sent != 1 || !repo.alerts[0].Sent {
		t.Fatalf("retry: sent = %d alert = %+v", sent, repo.alerts[0])
	}
}

func TestMarketQuestionPassedToNotifier(t *testing.T) {
	repo := &dispatchRepo{markets: map[string]models.Market{
		"mkt-1": {ID: "mkt-1", Question: "Will it rain tomorrow?", TotalVolume: decimal.NewFromInt(1000), Active: true},
	}}
	seedAlerts(repo, "high")
	n := &recordingNotifier{}
	d := newDispatcher(repo, n, config.DispatcherConfig{MaxPerHour: 60, MaxPerBatch: 10})

	if _, err := d.RunCycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if len(n.questions) != 1 || n.questions[0] != "Will it rain tomorrow?" {
		t.Fatalf("questions = %v", n.questions)
	}
}

func TestRunCycleEmptyQueue(t *testing.T) {
	repo := &dispatchRepo{}
	n := &recordingNotifier{}
	d := newDispatcher(repo, n, config.DispatcherConfig{})

	sent, err := d.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if sent != 0 {
		t.Fatalf("sent = %d", sent)
	}
}

func TestRunCycleHonorsCancellation(t *testing.T) {
	repo := &dispatchRepo{}
	seedAlerts(repo, "high", "high")
	n := &recordingNotifier{}
	d := newDispatcher(repo, n, config.DispatcherConfig{MaxPerHour: 60, MaxPerBatch: 10})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sent, err := d.RunCycle(ctx)
	if err == nil {
		t.Fatalf("expected context error")
	}
	if sent != 0 || len(n.sent) != 0 {
		t.Fatalf("cancelled cycle sent %d", sent)
	}
}
