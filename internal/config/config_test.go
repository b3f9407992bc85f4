package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("config.yaml", true)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.HTTPAddr != ":8080" {
		t.Fatalf("http addr = %q", cfg.Server.HTTPAddr)
	}
	if cfg.Log.Level != "info" {
		t.Fatalf("log level = %q", cfg.Log.Level)
	}
	if !cfg.Cron.Enabled || cfg.Cron.DetectionSweep != "@every 1m" {
		t.Fatalf("cron = %+v", cfg.Cron)
	}

	lb := cfg.Detection.LargeBet
	if lb.CriticalThresholdUSD != 100000 || lb.HighThresholdUSD != 50000 || lb.MediumThresholdUSD != 10000 {
		t.Fatalf("large bet thresholds = %+v", lb)
	}
	if lb.VolumePercentage != 0.05 || lb.SigmaThreshold != 3.0 {
		t.Fatalf("large bet ratios = %+v", lb)
	}

	p := cfg.Detection.Pattern
	if p.RapidWindow != 5*time.Minute || p.RapidCount != 5 {
		t.Fatalf("pattern rapid = %+v", p)
	}
	if p.AnomalyLookback != 24*time.Hour || p.AnomalyMinPoints != 10 {
		t.Fatalf("pattern anomaly = %+v", p)
	}

	na := cfg.Detection.NewAccount
	if na.AccountAge != 72*time.Hour || na.FirstBets != 10 {
		t.Fatalf("new account = %+v", na)
	}
	if na.LargeFirstBetUSD != 10000 || na.SuspiciousBetUSD != 50000 {
		t.Fatalf("new account thresholds = %+v", na)
	}

	disp := cfg.Dispatcher
	if !disp.Enabled || disp.Interval != time.Minute || disp.MaxPerHour != 60 || disp.MaxPerBatch != 2 {
		t.Fatalf("dispatcher = %+v", disp)
	}
	if disp.SendDelay != 15*time.Second {
		t.Fatalf("send delay = %v", disp.SendDelay)
	}

	if cfg.Detection.SweepLookback != 10*time.Minute || cfg.Detection.SweepMaxMarkets != 200 {
		t.Fatalf("sweep = %+v", cfg.Detection)
	}
}
