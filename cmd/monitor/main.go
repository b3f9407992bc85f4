package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"betwatch/internal/config"
	cronrunner "betwatch/internal/cron"
	"betwatch/internal/db"
	"betwatch/internal/detection"
	"betwatch/internal/dispatch"
	"betwatch/internal/handler"
	"betwatch/internal/logger"
	"betwatch/internal/notify"
	gormrepository "betwatch/internal/repository/gorm"
	"betwatch/internal/stats"
)

func main() {
	cfgPath := os.Getenv("BW_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("BW_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	dbConn, err := db.Open(cfg.DB)
	if err != nil {
		logger.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close(dbConn)

	if err := db.SetTimezone(dbConn, cfg.DB.Timezone); err != nil {
		logger.Warn("failed to set timezone", zap.Error(err))
	}
	if err := db.AutoMigrate(dbConn); err != nil {
		logger.Fatal("auto-migrate failed", zap.Error(err))
	}

	store := gormrepository.New(dbConn.Gorm)

	calculator := &stats.Calculator{
		Repo:   store,
		Logger: logger,
		Config: cfg.Detection.Stats,
	}
	newAccount := &detection.NewAccountDetector{
		Repo:   store,
		Logger: logger,
		Config: cfg.Detection.NewAccount,
	}
	orchestrator := &detection.Orchestrator{
		Repo:   store,
		Logger: logger,
		LargeBet: &detection.LargeBetDetector{
			Repo:             store,
			Logger:           logger,
			Config:           cfg.Detection.LargeBet,
			StatsWindowHours: cfg.Detection.Stats.WindowHours,
		},
		Pattern: &detection.PatternDetector{
			Repo:   store,
			Logger: logger,
			Config: cfg.Detection.Pattern,
		},
		NewAccount: newAccount,
	}

	notifier := notify.NewDiscord(logger, cfg.Discord)
	defer notifier.Close()

	dispatcher := &dispatch.Dispatcher{
		Repo:     store,
		Notifier: notifier,
		Logger:   logger,
		Config:   cfg.Dispatcher,
	}

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())

	healthHandler := &handler.HealthHandler{DB: dbConn.Gorm}
	healthHandler.Register(engine)
	alertHandler := &handler.AlertHandler{Repo: store}
	alertHandler.Register(engine)
	monitorHandler := &handler.MonitorHandler{
		Repo:         store,
		Orchestrator: orchestrator,
		NewAccount:   newAccount,
	}
	monitorHandler.Register(engine)

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: engine,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cronRunner := cronrunner.New(logger, ctx)
	if cfg.Cron.Enabled {
		_, err = cronRunner.Add(cfg.Cron.StatsRefresh, func(ctx context.Context) {
			if _, err := calculator.UpdateAllActiveMarkets(ctx, cfg.Detection.Stats.WindowHours); err != nil {
				logger.Warn("cron stats refresh failed", zap.Error(err))
			}
		})
		if err != nil {
			logger.Warn("cron register stats refresh failed", zap.Error(err))
		}

		_, err = cronRunner.Add(cfg.Cron.DetectionSweep, func(ctx context.Context) {
			summary, err := orchestrator.ProcessRecentBets(ctx, cfg.Detection.SweepLookback, cfg.Detection.SweepMaxMarkets)
			if err != nil {
				logger.Warn("cron detection sweep failed", zap.Error(err))
				return
			}
			if summary.AlertsCreated > 0 {
				logger.Info("cron detection sweep ok",
					zap.Int("bets", summary.ProcessedBets),
					zap.Int("alerts", summary.AlertsCreated),
				)
			}
		})
		if err != nil {
			logger.Warn("cron register detection sweep failed", zap.Error(err))
		}

		cronRunner.Start()
		defer cronRunner.Stop()
	}

	if cfg.Dispatcher.Enabled {
		go func() {
			if err := dispatcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("dispatcher stopped", zap.Error(err))
			}
		}()
	}

	errCh := make(chan error, 2)

	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
