package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App    AppConfig    `mapstructure:"app"`
	Server ServerConfig `mapstructure:"server"`
	Log    LogConfig    `mapstructure:"log"`
	DB     DBConfig     `mapstructure:"db"`
	Cron   CronConfig   `mapstructure:"cron"`

	Detection  DetectionConfig  `mapstructure:"detection"`
	Dispatcher DispatcherConfig `mapstructure:"dispatcher"`
	Discord    DiscordConfig    `mapstructure:"discord"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

type CronConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	StatsRefresh   string `mapstructure:"stats_refresh"`
	DetectionSweep string `mapstructure:"detection_sweep"`
}

type DetectionConfig struct {
	LargeBet   LargeBetConfig   `mapstructure:"large_bet"`
	Pattern    PatternConfig    `mapstructure:"pattern"`
	NewAccount NewAccountConfig `mapstructure:"new_account"`
	Stats      StatsConfig      `mapstructure:"stats"`

	SweepLookback   time.Duration `mapstructure:"sweep_lookback"`
	SweepMaxMarkets int           `mapstructure:"sweep_max_markets"`
}

type LargeBetConfig struct {
	CriticalThresholdUSD float64 `mapstructure:"critical_threshold_usd"`
	HighThresholdUSD     float64 `mapstructure:"high_threshold_usd"`
	MediumThresholdUSD   float64 `mapstructure:"medium_threshold_usd"`
	VolumePercentage     float64 `mapstructure:"volume_percentage"`
	SigmaThreshold       float64 `mapstructure:"sigma_threshold"`
}

type PatternConfig struct {
	RapidWindow      time.Duration `mapstructure:"rapid_window"`
	RapidCount       int           `mapstructure:"rapid_count"`
	AnomalyLookback  time.Duration `mapstructure:"anomaly_lookback"`
	AnomalyMinPoints int           `mapstructure:"anomaly_min_points"`
	ZScoreThreshold  float64       `mapstructure:"z_score_threshold"`
	IQRMultiplier    float64       `mapstructure:"iqr_multiplier"`
}

type NewAccountConfig struct {
	AccountAge       time.Duration `mapstructure:"account_age"`
	FirstBets        int           `mapstructure:"first_bets"`
	LargeFirstBetUSD float64       `mapstructure:"large_first_bet_usd"`
	SuspiciousBetUSD float64       `mapstructure:"suspicious_bet_usd"`
}

type StatsConfig struct {
	WindowHours int `mapstructure:"window_hours"`
	MaxMarkets  int `mapstructure:"max_markets"`
}

type DispatcherConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Interval    time.Duration `mapstructure:"interval"`
	MaxPerHour  int           `mapstructure:"max_per_hour"`
	MaxPerBatch int           `mapstructure:"max_per_batch"`
	SendDelay   time.Duration `mapstructure:"send_delay"`
}

type DiscordConfig struct {
	BotToken  string `mapstructure:"bot_token"`
	ChannelID string `mapstructure:"channel_id"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("BW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.stats_refresh", "@every 5m")
	v.SetDefault("cron.detection_sweep", "@every 1m")

	v.SetDefault("detection.large_bet.critical_threshold_usd", 100000)
	v.SetDefault("detection.large_bet.high_threshold_usd", 50000)
	v.SetDefault("detection.large_bet.medium_threshold_usd", 10000)
	v.SetDefault("detection.large_bet.volume_percentage", 0.05)
	v.SetDefault("detection.large_bet.sigma_threshold", 3.0)

	v.SetDefault("detection.pattern.rapid_window", "5m")
	v.SetDefault("detection.pattern.rapid_count", 5)
	v.SetDefault("detection.pattern.anomaly_lookback", "24h")
	v.SetDefault("detection.pattern.anomaly_min_points", 10)
	v.SetDefault("detection.pattern.z_score_threshold", 3.0)
	v.SetDefault("detection.pattern.iqr_multiplier", 1.5)

	v.SetDefault("detection.new_account.account_age", "72h")
	v.SetDefault("detection.new_account.first_bets", 10)
	v.SetDefault("detection.new_account.large_first_bet_usd", 10000)
	v.SetDefault("detection.new_account.suspicious_bet_usd", 50000)

	v.SetDefault("detection.stats.window_hours", 24)
	v.SetDefault("detection.stats.max_markets", 200)

	v.SetDefault("detection.sweep_lookback", "10m")
	v.SetDefault("detection.sweep_max_markets", 200)

	v.SetDefault("dispatcher.enabled", true)
	v.SetDefault("dispatcher.interval", "60s")
	v.SetDefault("dispatcher.max_per_hour", 60)
	v.SetDefault("dispatcher.max_per_batch", 2)
	v.SetDefault("dispatcher.send_delay", "15s")

	v.SetDefault("discord.bot_token", "")
	v.SetDefault("discord.channel_id", "")

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
