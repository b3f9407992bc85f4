// Package dispatch drains unsent alerts through the notifier under a
// sliding-window rate limit.
package dispatch

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"betwatch/internal/config"
	"betwatch/internal/detection"
	"betwatch/internal/models"
	"betwatch/internal/notify"
	"betwatch/internal/repository"
)

// Dispatcher is the single writer of alert sent flags and of its own send
// log. Run it from exactly one goroutine.
type Dispatcher struct {
	Repo     repository.Repository
	Notifier notify.Notifier
	Logger   *zap.Logger
	Config   config.DispatcherConfig

	mu        sync.Mutex
	sentTimes []time.Time

	// now is overridable in tests.
	now func() time.Time
}

// Run loops until ctx is cancelled, attempting one delivery cycle per
// interval. Cycle errors are logged, never fatal.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.interval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := d.RunCycle(ctx); err != nil && err != context.Canceled {
				if d.Logger != nil {
					d.Logger.Warn("dispatch cycle failed", zap.Error(err))
				}
			}
		}
	}
}

// RunCycle performs one delivery pass and returns the number of alerts
// delivered. A failed delivery leaves the alert unsent for a later cycle.
func (d *Dispatcher) RunCycle(ctx context.Context) (int, error) {
	if d == nil || d.Repo == nil || d.Notifier == nil {
		return 0, nil
	}
	remaining := d.hourlyRemaining()
	if remaining <= 0 {
		if d.Logger != nil {
			d.Logger.Debug("hourly alert limit reached, skipping cycle")
		}
		return 0, nil
	}
	batch := d.maxPerBatch()
	if batch > remaining {
		batch = remaining
	}
	alerts, err := d.Repo.ListUnsentAlerts(ctx, batch)
	if err != nil {
		return 0, err
	}
	if len(alerts) == 0 {
		return 0, nil
	}

	// Critical first; equal severities keep their oldest-first order.
	sort.SliceStable(alerts, func(i, j int) bool {
		return detection.Severity(alerts[i].Severity).Rank() > detection.Severity(alerts[j].Severity).Rank()
	})

	sent := 0
	for i, alert := range alerts {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		if d.hourlyRemaining() <= 0 {
			break
		}
		if !d.deliver(ctx, alert) {
			continue
		}
		sent++
		if i < len(alerts)-1 {
			if err := d.wait(ctx, d.sendDelay()); err != nil {
				return sent, err
			}
		}
	}
	return sent, nil
}

func (d *Dispatcher) deliver(ctx context.Context, alert models.Alert) bool {
	question := ""
	if market, err := d.Repo.GetMarket(ctx, alert.MarketID); err == nil && market != nil {
		question = market.Question
	}

	ref, err := d.Notifier.Send(ctx, alert, question)
	if err != nil {
		if d.Logger != nil {
			d.Logger.Warn("alert delivery failed",
				zap.Uint64("alert_id", alert.ID),
				zap.String("severity", alert.Severity),
				zap.Error(err),
			)
		}
		return false
	}

	sentAt := d.timeNow()
	if err := d.Repo.MarkAlertSent(ctx, alert.ID, ref, sentAt); err != nil {
		if d.Logger != nil {
			d.Logger.Error("mark alert sent failed",
				zap.Uint64("alert_id", alert.ID),
				zap.Error(err),
			)
		}
	}
	d.mu.Lock()
	d.sentTimes = append(d.sentTimes, sentAt)
	d.mu.Unlock()
	return true
}

// hourlyRemaining prunes send timestamps older than an hour and returns the
// quota left in the window.
func (d *Dispatcher) hourlyRemaining() int {
	cutoff := d.timeNow().Add(-time.Hour)
	d.mu.Lock()
	defer d.mu.Unlock()
	kept := d.sentTimes[:0]
	for _, t := range d.sentTimes {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	d.sentTimes = kept
	return d.maxPerHour() - len(d.sentTimes)
}

func (d *Dispatcher) wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (d *Dispatcher) timeNow() time.Time {
	if d.now != nil {
		return d.now()
	}
	return time.Now().UTC()
}

func (d *Dispatcher) interval() time.Duration {
	if d.Config.Interval > 0 {
		return d.Config.Interval
	}
	return 60 * time.Second
}

func (d *Dispatcher) maxPerHour() int {
	if d.Config.MaxPerHour > 0 {
		return d.Config.MaxPerHour
	}
	return 60
}

func (d *Dispatcher) maxPerBatch() int {
	if d.Config.MaxPerBatch > 0 {
		return d.Config.MaxPerBatch
	}
	return 2
}

func (d *Dispatcher) sendDelay() time.Duration {
	if d.Config.SendDelay > 0 {
		return d.Config.SendDelay
	}
	return 0
}
