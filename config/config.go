// Package config centralizes every tunable of the trading core: server
// ports, persistence/cache/vault connection parameters, and the domain
// knobs referenced throughout internal/signals, internal/autotrader,
// internal/trademonitor and internal/dynrisk. Loaded once at startup from
// an optional config.json overlaid by environment variables, the same
// two-stage pattern the teacher uses.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the root configuration tree.
type Config struct {
	ServerConfig   ServerConfig   `json:"server"`
	DatabaseConfig DatabaseConfig `json:"database"`
	RedisConfig    RedisConfig    `json:"redis"`
	VaultConfig    VaultConfig    `json:"vault"`
	AuthConfig     AuthConfig     `json:"auth"`
	LoggingConfig  LoggingConfig  `json:"logging"`

	BrokerTimeConfig   BrokerTimeConfig   `json:"broker_time"`
	IngestionConfig    IngestionConfig    `json:"ingestion"`
	IndicatorConfig    IndicatorConfig    `json:"indicators"`
	SignalConfig       SignalConfig       `json:"signals"`
	AutoTraderConfig   AutoTraderConfig   `json:"auto_trader"`
	CommandQueueConfig CommandQueueConfig `json:"command_queue"`
	TradeMonitorConfig TradeMonitorConfig `json:"trade_monitor"`
	DrawdownConfig     DrawdownConfig     `json:"drawdown"`
	ShadowConfig       ShadowConfig       `json:"shadow"`
	RiskConfig         RiskConfig         `json:"risk"`
	NewsConfig         NewsConfig         `json:"news"`
	SchedulerConfig    SchedulerConfig    `json:"scheduler"`
}

// ServerConfig holds the five HTTP listen addresses of spec.md §6. The EA
// ingestion surface is deliberately split across four ports so a single
// noisy stream (ticks) can be rate-limited or scaled independently of
// control traffic.
type ServerConfig struct {
	ControlPort   int    `json:"control_port"`   // connect/heartbeat/command_response
	TickPort      int    `json:"tick_port"`      // tick_batch, ohlc_batch
	TradePort     int    `json:"trade_port"`     // trade_update
	LogPort       int    `json:"log_port"`       // log
	DashboardPort int    `json:"dashboard_port"` // dashboard + websocket
	Host          string `json:"host"`
	AllowedOrigins string `json:"allowed_origins"`
	ReadTimeout   int    `json:"read_timeout"`  // seconds
	WriteTimeout  int    `json:"write_timeout"` // seconds
	ShutdownTimeout int  `json:"shutdown_timeout"`
}

// DatabaseConfig holds the PostgreSQL connection parameters consumed by
// internal/store.Config.
type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

// RedisConfig holds Redis configuration for the internal/cache layer.
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

// VaultConfig holds HashiCorp Vault configuration, used optionally to store
// broker terminal credentials at account bootstrap time (see
// internal/vault). The common path runs with Enabled=false.
type VaultConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	MountPath  string `json:"mount_path"`
	SecretPath string `json:"secret_path"`
	TLSEnabled bool   `json:"tls_enabled"`
	CACert     string `json:"ca_cert"`
}

// AuthConfig configures the dashboard operator's JWT session (internal/auth).
// There is exactly one operator account per deployment (spec.md's dashboard
// is single-tenant, unlike the teacher's multi-user subscriber system), so
// its credentials live here rather than in a users table.
type AuthConfig struct {
	Enabled              bool          `json:"enabled"`
	JWTSecret            string        `json:"jwt_secret"`
	OperatorUsername     string        `json:"operator_username"`
	OperatorPasswordHash string        `json:"operator_password_hash"` // bcrypt, set via OPERATOR_PASSWORD_HASH
	AccessTokenDuration  time.Duration `json:"access_token_duration"`
	RefreshTokenDuration time.Duration `json:"refresh_token_duration"`
	MinPasswordLength    int           `json:"min_password_length"`
	MaxLoginAttempts     int           `json:"max_login_attempts"`
	LockoutDuration      time.Duration `json:"lockout_duration"`
}

// LoggingConfig controls zerolog's global logger, set up once in main.go.
type LoggingConfig struct {
	Level       string `json:"level"`
	Output      string `json:"output"`
	JSONFormat  bool   `json:"json_format"`
	IncludeFile bool   `json:"include_file"`
}

// BrokerTimeConfig derives the display-only broker-local clock from a fixed
// UTC offset (spec.md §3: "a separate broker time, operator-configurable,
// typically EET/EEST, derived only for display").
type BrokerTimeConfig struct {
	OffsetHours int `json:"offset_hours"` // e.g. 2 for EET, 3 for EEST
}

// BrokerOffset returns the configured broker-time offset as a duration.
func (b BrokerTimeConfig) BrokerOffset() time.Duration {
	return time.Duration(b.OffsetHours) * time.Hour
}

// IngestionConfig bounds the tick batch writer of spec.md §4.2.
type IngestionConfig struct {
	TickBufferMax     int           `json:"tick_buffer_max"`     // N=1000
	TickFlushInterval time.Duration `json:"tick_flush_interval"` // T=2s
	TickOverflowRatio int           `json:"tick_overflow_ratio"` // drop oldest past 10x target
	TickRetention     time.Duration `json:"tick_retention"`      // 7 days
	HeartbeatStaleAfter time.Duration `json:"heartbeat_stale_after"` // 60s
}

// IndicatorConfig controls the indicator engine's cache TTL and regime
// thresholds (spec.md §4.3).
type IndicatorConfig struct {
	CacheTTL         time.Duration `json:"cache_ttl"`          // 15s
	ADXTrending      float64       `json:"adx_trending"`       // >25
	ADXRanging       float64       `json:"adx_ranging"`        // <=18
	ADXTooWeak       float64       `json:"adx_too_weak"`       // <12
	VolumeSpikeRatio float64       `json:"volume_spike_ratio"` // 1.5x 20-bar mean
}

// SignalConfig drives internal/signals' aggregation, confidence and
// persistence behavior (spec.md §4.5).
type SignalConfig struct {
	BaseCadence          time.Duration `json:"base_cadence"`           // 10s
	LowVolatilityCadence time.Duration `json:"low_volatility_cadence"` // 20s
	HighVolatilityCadence time.Duration `json:"high_volatility_cadence"` // 5s
	MinWeightSamples     int           `json:"min_weight_samples"`     // 20
	NeutralWeight        float64       `json:"neutral_weight"`         // 0.65
	BuySignalAdvantage   int           `json:"buy_signal_advantage"`   // default 2
	BuyConfidencePenalty float64       `json:"buy_confidence_penalty"` // default 3.0%
	PatternWeight        float64       `json:"pattern_weight"`         // 0.30
	IndicatorWeight      float64       `json:"indicator_weight"`       // 0.40
	StrengthWeight       float64       `json:"strength_weight"`        // 0.30
	ConfluenceBonusPerInd float64      `json:"confluence_bonus_per_indicator"` // 2, capped at 10
	MinRiskReward        float64       `json:"min_risk_reward"`        // 1.2
	MaxRiskReward        float64       `json:"max_risk_reward"`        // degenerate-trade cap
	ActiveRetention      time.Duration `json:"active_retention"`       // 10min
	ExpiredRetention     time.Duration `json:"expired_retention"`      // 2min
	ABTestWeights        [3]float64    `json:"ab_test_weights"`        // ml_only, rules_only, hybrid — 80/10/10
}

// AssetClassConfig holds the ATR multiplier table of spec.md §4.5, keyed by
// domain.AssetClass.
type AssetClassConfig struct {
	ATRTPMultiplier      float64 `json:"atr_tp_multiplier"`
	ATRSLMultiplier      float64 `json:"atr_sl_multiplier"`
	TrailingMultiplier   float64 `json:"trailing_multiplier"`
	MaxTPPct             float64 `json:"max_tp_pct"`
	MinSLPct             float64 `json:"min_sl_pct"`
	FallbackATRPct       float64 `json:"fallback_atr_pct"`
	MaxLossCurrency      float64 `json:"max_loss_currency"` // per-symbol ceiling, e.g. XAUUSD <= 5.50
}

// RiskProfileConfig holds the per-profile base risk and loss ceilings of
// spec.md §4.11.
type RiskProfileConfig struct {
	BaseRiskPct       float64 `json:"base_risk_pct"`
	MaxLossPerTradePct float64 `json:"max_loss_per_trade_pct"`
	MaxDailyLossPct   float64 `json:"max_daily_loss_pct"`
}

// RiskConfig drives the dynamic risk manager's daily SL-ceiling and weekly
// R:R multiplier recompute of spec.md §4.11. RiskProfileConfig holds the
// per-profile base numbers this recompute scales; RiskConfig holds the
// recompute job's own cadence and scaling factors.
type RiskConfig struct {
	DailyRecomputeHour      int           `json:"daily_recompute_hour"`      // 0 (midnight broker time)
	WeeklyRecomputeWeekday  int           `json:"weekly_recompute_weekday"`  // 0 (Sunday)
	GrowthFactor            float64       `json:"growth_factor"`             // scales SL ceiling with balance growth
	PerformanceFactorMin    float64       `json:"performance_factor_min"`    // 0.5 floor after a bad rolling window
	PerformanceFactorMax    float64       `json:"performance_factor_max"`    // 1.5 ceiling after a strong rolling window
	PerformanceWindowTrades int           `json:"performance_window_trades"` // 20, rolling win-rate sample size
	DefaultSymbolWeight     float64       `json:"default_symbol_weight"`     // 1.0 when no override exists
	MinRiskRewardMultiplier float64       `json:"min_risk_reward_multiplier"` // 1.0 floor for the weekly recompute
	MaxRiskRewardMultiplier float64       `json:"max_risk_reward_multiplier"` // 3.0 ceiling for the weekly recompute
	RecomputeTimeout        time.Duration `json:"recompute_timeout"`          // 30s
}

// AutoTraderConfig drives the gate pipeline of spec.md §4.6.
type AutoTraderConfig struct {
	Cadence                time.Duration `json:"cadence"`                  // 10s
	MaxSignalAge           time.Duration `json:"max_signal_age"`           // 300s
	SignalAgeWarnAt        time.Duration `json:"signal_age_warn_at"`       // 2min
	MaxCorrelatedPositions int           `json:"max_correlated_positions"` // 2
	MaxOpenPositions       int           `json:"max_open_positions"`       // 10
	MaxSpreadMultiplier    float64       `json:"max_spread_multiplier"`    // 3x rolling avg
	TickStaleAfter         time.Duration `json:"tick_stale_after"`         // 60s
	CommandTimeout         time.Duration `json:"command_timeout"`          // 5min
	DailyLossCircuitPct    float64       `json:"daily_loss_circuit_pct"`   // 5%
	TotalDrawdownCircuitPct float64      `json:"total_drawdown_circuit_pct"` // 20%
	ConsecutiveFailuresTrip int          `json:"consecutive_failures_trip"`  // 5
	FailureCooldown        time.Duration `json:"failure_cooldown"`         // 5min
	MinVolume              float64       `json:"min_volume"`               // 0.01
	MaxVolumeSafetyCap     float64       `json:"max_volume_safety_cap"`    // 1.0 lot
	DefaultRiskPerTrade    float64       `json:"default_risk_per_trade"`   // 0.01 (1%)

	AssetClasses map[string]AssetClassConfig `json:"asset_classes"`
	RiskProfiles map[string]RiskProfileConfig `json:"risk_profiles"`
}

// CommandQueueConfig bounds delivery/redelivery of spec.md §4.7. The store's
// expiry sweep does not read InFlightTimeout or MaxRedeliveries: it uses each
// command's timeout_at and a fixed limit of 2 redeliveries.
type CommandQueueConfig struct {
	HeartbeatBatchSize int           `json:"heartbeat_batch_size"` // 10
	InFlightTimeout    time.Duration `json:"in_flight_timeout"`    // 2min
	MaxRedeliveries    int           `json:"max_redeliveries"`     // 2
	PendingAlertThreshold int        `json:"pending_alert_threshold"` // 50
}

// TradeMonitorConfig carries the trailing-stop/partial-close/time-exit
// guardrails of spec.md §4.8.
type TradeMonitorConfig struct {
	ScanInterval           time.Duration `json:"scan_interval"`             // 5s
	Stage1Progress         float64       `json:"stage1_progress"`           // 0.30 break-even
	Stage2Progress         float64       `json:"stage2_progress"`           // 0.50 partial trail
	Stage3Progress         float64       `json:"stage3_progress"`           // 0.75 aggressive trail
	Stage4Progress         float64       `json:"stage4_progress"`           // 0.90 near-TP
	BreakEvenPoints        float64       `json:"break_even_points"`         // 5
	Stage2TrailFraction    float64       `json:"stage2_trail_fraction"`     // 0.40
	Stage3TrailFraction    float64       `json:"stage3_trail_fraction"`     // 0.25
	Stage4TrailFraction    float64       `json:"stage4_trail_fraction"`     // 0.15
	MinSLDistancePoints    float64       `json:"min_sl_distance_points"`    // 10
	MaxSLMovePerUpdatePoints float64     `json:"max_sl_move_per_update_points"` // 100
	UpdateRateLimit        time.Duration `json:"update_rate_limit"`         // 5s per trade
	ScalpingMaxHoldMinutes int           `json:"scalping_max_hold_minutes"` // 60
	SwingMaxHoldMinutes    int           `json:"swing_max_hold_minutes"`    // 1440
	ReValidationLossThreshold float64    `json:"revalidation_loss_threshold"` // -5 EUR
	StaleReconcileMisses   int           `json:"stale_reconcile_misses"`    // 2
}

// DrawdownConfig holds the account-level protection thresholds of spec.md §4.9.
type DrawdownConfig struct {
	ScanInterval      time.Duration `json:"scan_interval"` // 60s
	SoftWarningPct    float64       `json:"soft_warning_pct"`
	DailyLossLimitPct float64       `json:"daily_loss_limit_pct"`
	EmergencyLimitPct float64       `json:"emergency_limit_pct"`
}

// ShadowConfig drives the shadow-trading recovery job of spec.md §4.10.
type ShadowConfig struct {
	RecoveryWindowDays  int     `json:"recovery_window_days"`  // 30
	RecoveryMinWinRate  float64 `json:"recovery_min_win_rate"` // 65%
	RecoveryMinProfit   float64 `json:"recovery_min_profit"`
	RecoveryMinCount    int     `json:"recovery_min_count"` // 20
}

// NewsConfig configures the outbound news-calendar fetch of spec.md §4.5.
type NewsConfig struct {
	Enabled           bool          `json:"enabled"`
	FeedURL           string        `json:"feed_url"`
	PollInterval      time.Duration `json:"poll_interval"`
	PauseBeforeMinutes int          `json:"pause_before_minutes"` // 15
	PauseAfterMinutes  int          `json:"pause_after_minutes"`  // 15
	RequestTimeout    time.Duration `json:"request_timeout"`
	MaxRetries        int           `json:"max_retries"`
}

// SchedulerConfig lists the cadences of every periodic worker loop that
// don't already have a dedicated config block above (spec.md §4.13).
type SchedulerConfig struct {
	CleanupInterval      time.Duration `json:"cleanup_interval"`       // 1min
	TickCleanupInterval  time.Duration `json:"tick_cleanup_interval"`  // 1h
	DynamicRiskInterval  time.Duration `json:"dynamic_risk_interval"`  // daily
	RRRecalcInterval     time.Duration `json:"rr_recalc_interval"`     // weekly
	ShadowRecoveryInterval time.Duration `json:"shadow_recovery_interval"` // daily
	CircuitCheckInterval time.Duration `json:"circuit_check_interval"` // 30s
}

// Load reads config.json if present, then applies environment overrides,
// matching the teacher's two-stage pattern.
func Load() (*Config, error) {
	cfg, err := loadFromFile("config.json")
	if err != nil {
		cfg = Defaults()
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// Defaults returns the spec-mandated defaults for every tunable, used when
// no config.json is present and as the floor that env overrides adjust.
func Defaults() *Config {
	return &Config{
		ServerConfig: ServerConfig{
			ControlPort: 9900, TickPort: 9901, TradePort: 9902, LogPort: 9903, DashboardPort: 9905,
			Host: "0.0.0.0", AllowedOrigins: "*",
			ReadTimeout: 10, WriteTimeout: 10, ShutdownTimeout: 10,
		},
		DatabaseConfig: DatabaseConfig{Host: "localhost", Port: 5432, User: "mt5core", Database: "mt5core", SSLMode: "disable"},
		RedisConfig:    RedisConfig{Enabled: true, Address: "localhost:6379", PoolSize: 20},
		VaultConfig:    VaultConfig{Enabled: false, MountPath: "secret", SecretPath: "mt5core/broker-credentials"},
		AuthConfig: AuthConfig{
			Enabled: true, OperatorUsername: "admin",
			AccessTokenDuration: 15 * time.Minute, RefreshTokenDuration: 7 * 24 * time.Hour,
			MinPasswordLength: 12, MaxLoginAttempts: 5, LockoutDuration: 15 * time.Minute,
		},
		LoggingConfig:    LoggingConfig{Level: "INFO", Output: "stdout", JSONFormat: true},
		BrokerTimeConfig: BrokerTimeConfig{OffsetHours: 2},
		IngestionConfig: IngestionConfig{
			TickBufferMax: 1000, TickFlushInterval: 2 * time.Second, TickOverflowRatio: 10,
			TickRetention: 7 * 24 * time.Hour, HeartbeatStaleAfter: 60 * time.Second,
		},
		IndicatorConfig: IndicatorConfig{
			CacheTTL: 15 * time.Second, ADXTrending: 25, ADXRanging: 18, ADXTooWeak: 12, VolumeSpikeRatio: 1.5,
		},
		SignalConfig: SignalConfig{
			BaseCadence: 10 * time.Second, LowVolatilityCadence: 20 * time.Second, HighVolatilityCadence: 5 * time.Second,
			MinWeightSamples: 20, NeutralWeight: 0.65,
			BuySignalAdvantage: 2, BuyConfidencePenalty: 3.0,
			PatternWeight: 0.30, IndicatorWeight: 0.40, StrengthWeight: 0.30,
			ConfluenceBonusPerInd: 2, MinRiskReward: 1.2, MaxRiskReward: 10,
			ActiveRetention: 10 * time.Minute, ExpiredRetention: 2 * time.Minute,
			ABTestWeights: [3]float64{0.80, 0.10, 0.10}, // ml_only, rules_only, hybrid
		},
		AutoTraderConfig: AutoTraderConfig{
			Cadence: 10 * time.Second, MaxSignalAge: 300 * time.Second, SignalAgeWarnAt: 2 * time.Minute,
			MaxCorrelatedPositions: 2, MaxOpenPositions: 10, MaxSpreadMultiplier: 3,
			TickStaleAfter: 60 * time.Second, CommandTimeout: 5 * time.Minute,
			DailyLossCircuitPct: 5, TotalDrawdownCircuitPct: 20, ConsecutiveFailuresTrip: 5,
			FailureCooldown: 5 * time.Minute, MinVolume: 0.01, MaxVolumeSafetyCap: 1.0,
			DefaultRiskPerTrade: 0.01,
			AssetClasses: map[string]AssetClassConfig{
				"forex_major": {ATRTPMultiplier: 2.5, ATRSLMultiplier: 1.2, TrailingMultiplier: 1.0, MaxTPPct: 2.0, MinSLPct: 0.15, FallbackATRPct: 0.5, MaxLossCurrency: 25},
				"forex_minor": {ATRTPMultiplier: 2.2, ATRSLMultiplier: 1.3, TrailingMultiplier: 1.0, MaxTPPct: 2.5, MinSLPct: 0.2, FallbackATRPct: 0.6, MaxLossCurrency: 20},
				"metals":      {ATRTPMultiplier: 3.5, ATRSLMultiplier: 0.8, TrailingMultiplier: 0.8, MaxTPPct: 3.0, MinSLPct: 0.25, FallbackATRPct: 0.8, MaxLossCurrency: 5.50},
				"indices":     {ATRTPMultiplier: 2.0, ATRSLMultiplier: 1.5, TrailingMultiplier: 1.2, MaxTPPct: 2.0, MinSLPct: 0.3, FallbackATRPct: 0.7, MaxLossCurrency: 15},
				"crypto":      {ATRTPMultiplier: 3.0, ATRSLMultiplier: 1.5, TrailingMultiplier: 1.5, MaxTPPct: 5.0, MinSLPct: 0.5, FallbackATRPct: 1.5, MaxLossCurrency: 10},
			},
			RiskProfiles: map[string]RiskProfileConfig{
				"conservative": {BaseRiskPct: 0.5, MaxLossPerTradePct: 1.0, MaxDailyLossPct: 3.0},
				"moderate":     {BaseRiskPct: 1.0, MaxLossPerTradePct: 2.0, MaxDailyLossPct: 5.0},
				"aggressive":   {BaseRiskPct: 2.0, MaxLossPerTradePct: 3.0, MaxDailyLossPct: 8.0},
			},
		},
		CommandQueueConfig: CommandQueueConfig{
			HeartbeatBatchSize: 10, InFlightTimeout: 2 * time.Minute, MaxRedeliveries: 2, PendingAlertThreshold: 50,
		},
		TradeMonitorConfig: TradeMonitorConfig{
			ScanInterval: 5 * time.Second,
			Stage1Progress: 0.30, Stage2Progress: 0.50, Stage3Progress: 0.75, Stage4Progress: 0.90,
			BreakEvenPoints: 5, Stage2TrailFraction: 0.40, Stage3TrailFraction: 0.25, Stage4TrailFraction: 0.15,
			MinSLDistancePoints: 10, MaxSLMovePerUpdatePoints: 100, UpdateRateLimit: 5 * time.Second,
			ScalpingMaxHoldMinutes: 60, SwingMaxHoldMinutes: 1440,
			ReValidationLossThreshold: -5, StaleReconcileMisses: 2,
		},
		DrawdownConfig: DrawdownConfig{
			ScanInterval: 60 * time.Second, SoftWarningPct: 3, DailyLossLimitPct: 5, EmergencyLimitPct: 15,
		},
		ShadowConfig: ShadowConfig{RecoveryWindowDays: 30, RecoveryMinWinRate: 65, RecoveryMinProfit: 0, RecoveryMinCount: 20},
		RiskConfig: RiskConfig{
			DailyRecomputeHour: 0, WeeklyRecomputeWeekday: 0, GrowthFactor: 1.0,
			PerformanceFactorMin: 0.5, PerformanceFactorMax: 1.5, PerformanceWindowTrades: 20,
			DefaultSymbolWeight: 1.0, MinRiskRewardMultiplier: 1.0, MaxRiskRewardMultiplier: 3.0,
			RecomputeTimeout: 30 * time.Second,
		},
		NewsConfig: NewsConfig{
			Enabled: false, PollInterval: 15 * time.Minute, PauseBeforeMinutes: 15, PauseAfterMinutes: 15,
			RequestTimeout: 5 * time.Second, MaxRetries: 3,
		},
		SchedulerConfig: SchedulerConfig{
			CleanupInterval: time.Minute, TickCleanupInterval: time.Hour,
			DynamicRiskInterval: 24 * time.Hour, RRRecalcInterval: 7 * 24 * time.Hour,
			ShadowRecoveryInterval: 24 * time.Hour, CircuitCheckInterval: 30 * time.Second,
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	cfg.ServerConfig.ControlPort = getEnvIntOrDefault("CONTROL_PORT", cfg.ServerConfig.ControlPort)
	cfg.ServerConfig.TickPort = getEnvIntOrDefault("TICK_PORT", cfg.ServerConfig.TickPort)
	cfg.ServerConfig.TradePort = getEnvIntOrDefault("TRADE_PORT", cfg.ServerConfig.TradePort)
	cfg.ServerConfig.LogPort = getEnvIntOrDefault("LOG_PORT", cfg.ServerConfig.LogPort)
	cfg.ServerConfig.DashboardPort = getEnvIntOrDefault("DASHBOARD_PORT", cfg.ServerConfig.DashboardPort)
	cfg.ServerConfig.Host = getEnvOrDefault("SERVER_HOST", cfg.ServerConfig.Host)
	cfg.ServerConfig.AllowedOrigins = getEnvOrDefault("SERVER_ALLOWED_ORIGINS", cfg.ServerConfig.AllowedOrigins)

	cfg.DatabaseConfig.Host = getEnvOrDefault("DB_HOST", cfg.DatabaseConfig.Host)
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DB_PORT", cfg.DatabaseConfig.Port)
	cfg.DatabaseConfig.User = getEnvOrDefault("DB_USER", cfg.DatabaseConfig.User)
	cfg.DatabaseConfig.Password = getEnvOrDefault("DB_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Database = getEnvOrDefault("DB_NAME", cfg.DatabaseConfig.Database)
	cfg.DatabaseConfig.SSLMode = getEnvOrDefault("DB_SSLMODE", cfg.DatabaseConfig.SSLMode)

	cfg.RedisConfig.Enabled = getEnvBoolOrDefault("REDIS_ENABLED", cfg.RedisConfig.Enabled)
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDRESS", cfg.RedisConfig.Address)
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", cfg.RedisConfig.DB)
	cfg.RedisConfig.PoolSize = getEnvIntOrDefault("REDIS_POOL_SIZE", cfg.RedisConfig.PoolSize)

	cfg.VaultConfig.Enabled = getEnvBoolOrDefault("VAULT_ENABLED", cfg.VaultConfig.Enabled)
	cfg.VaultConfig.Address = getEnvOrDefault("VAULT_ADDR", cfg.VaultConfig.Address)
	cfg.VaultConfig.Token = getEnvOrDefault("VAULT_TOKEN", cfg.VaultConfig.Token)
	cfg.VaultConfig.MountPath = getEnvOrDefault("VAULT_MOUNT_PATH", cfg.VaultConfig.MountPath)
	cfg.VaultConfig.SecretPath = getEnvOrDefault("VAULT_SECRET_PATH", cfg.VaultConfig.SecretPath)

	cfg.AuthConfig.Enabled = getEnvBoolOrDefault("AUTH_ENABLED", cfg.AuthConfig.Enabled)
	cfg.AuthConfig.JWTSecret = getEnvOrDefault("AUTH_JWT_SECRET", cfg.AuthConfig.JWTSecret)
	cfg.AuthConfig.OperatorUsername = getEnvOrDefault("OPERATOR_USERNAME", cfg.AuthConfig.OperatorUsername)
	cfg.AuthConfig.OperatorPasswordHash = getEnvOrDefault("OPERATOR_PASSWORD_HASH", cfg.AuthConfig.OperatorPasswordHash)
	cfg.AuthConfig.AccessTokenDuration = getEnvDurationOrDefault("AUTH_ACCESS_TOKEN_DURATION", cfg.AuthConfig.AccessTokenDuration)
	cfg.AuthConfig.RefreshTokenDuration = getEnvDurationOrDefault("AUTH_REFRESH_TOKEN_DURATION", cfg.AuthConfig.RefreshTokenDuration)

	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", cfg.LoggingConfig.Level)
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", cfg.LoggingConfig.Output)
	cfg.LoggingConfig.JSONFormat = getEnvBoolOrDefault("LOG_JSON", cfg.LoggingConfig.JSONFormat)

	cfg.BrokerTimeConfig.OffsetHours = getEnvIntOrDefault("BROKER_TIME_OFFSET_HOURS", cfg.BrokerTimeConfig.OffsetHours)

	cfg.NewsConfig.Enabled = getEnvBoolOrDefault("NEWS_FILTER_ENABLED", cfg.NewsConfig.Enabled)
	cfg.NewsConfig.FeedURL = getEnvOrDefault("NEWS_FEED_URL", cfg.NewsConfig.FeedURL)
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	cfg := Defaults()
	if err := json.Unmarshal(file, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	return cfg, nil
}

// AssetClassFor looks up the ATR multiplier table for an asset class,
// falling back to forex_minor if unconfigured.
func (c AutoTraderConfig) AssetClassFor(class string) AssetClassConfig {
	if cfg, ok := c.AssetClasses[class]; ok {
		return cfg
	}
	return c.AssetClasses["forex_minor"]
}

// RiskProfileFor looks up the per-profile risk table, falling back to
// moderate for an unrecognized or empty profile.
func (c AutoTraderConfig) RiskProfileFor(profile string) RiskProfileConfig {
	if cfg, ok := c.RiskProfiles[strings.ToLower(profile)]; ok {
		return cfg
	}
	return c.RiskProfiles["moderate"]
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

var _ = getEnvFloatOrDefault // retained for future knob overrides, e.g. per-deployment risk tuning
