// Package domain holds the entities shared by every component of the trading
// core: accounts, instruments, ticks, candles, signals, trades, commands and
// the supporting configuration/decision records. All money is in deposit
// currency, all prices are in instrument units, all timestamps are naive UTC
// interpreted as UTC everywhere — broker-local time is a display-only
// derivation and never stored here.
package domain

import "time"

// RiskProfile classifies how aggressively an account is allowed to trade.
type RiskProfile string

const (
	RiskConservative RiskProfile = "conservative"
	RiskModerate     RiskProfile = "moderate"
	RiskAggressive   RiskProfile = "aggressive"
)

// Account is a broker account mediated by one or more MT5 EAs.
type Account struct {
	AccountNumber      int64       `json:"account_number"`
	BrokerLabel        string      `json:"broker_label"`
	APIKeyHash         string      `json:"-"`
	Balance            float64     `json:"balance"`
	Equity             float64     `json:"equity"`
	Margin             float64     `json:"margin"`
	FreeMargin         float64     `json:"free_margin"`
	LastHeartbeat      *time.Time  `json:"last_heartbeat,omitempty"`
	RiskProfile        RiskProfile `json:"risk_profile"`
	AutoTradingEnabled bool        `json:"auto_trading_enabled"`
	CircuitTripped     bool        `json:"circuit_tripped"`
	CircuitReason      string      `json:"circuit_reason,omitempty"`
	CircuitTrippedAt   *time.Time  `json:"circuit_tripped_at,omitempty"`
	StartOfDayBalance  float64     `json:"start_of_day_balance"`
	// PeakBalance is the high-water mark of Equity ever observed for this
	// account, used by the circuit breaker's total-drawdown trip condition
	// (spec.md §4.6) rather than the daily-loss metric drawdown.Guard tracks.
	PeakBalance        float64     `json:"peak_balance"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// Disconnected reports whether the account has not sent a heartbeat in over
// 60 seconds, per spec.md's cancellation/timeout policy. Auto-trading stays
// enabled while disconnected; only new command issuance is withheld.
func (a *Account) Disconnected(now time.Time) bool {
	if a.LastHeartbeat == nil {
		return true
	}
	return now.Sub(*a.LastHeartbeat) > 60*time.Second
}

// BrokerSymbol describes a tradeable instrument as reported by an EA. Global
// across all accounts.
type BrokerSymbol struct {
	Instrument    string    `json:"instrument"`
	Digits        int       `json:"digits"`
	Point         float64   `json:"point"`
	MinVolume     float64   `json:"min_volume"`
	MaxVolume     float64   `json:"max_volume"`
	StepVolume    float64   `json:"step_volume"`
	ContractSize  float64   `json:"contract_size"`
	TickSize      float64   `json:"tick_size"`
	TickValue     float64   `json:"tick_value"`
	StopsLevel    int       `json:"stops_level"`
	MaxSpreadPips float64   `json:"max_spread_pips"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Valid checks the invariants required of every BrokerSymbol row.
func (s *BrokerSymbol) Valid() bool {
	return s.Point > 0 && s.Digits >= 0 && s.MinVolume > 0
}

// SubscriptionState is one of the three live states of a SubscribedSymbol.
type SubscriptionState string

const (
	SubscriptionLive     SubscriptionState = "live"
	SubscriptionShadow   SubscriptionState = "shadow"
	SubscriptionDisabled SubscriptionState = "disabled"
)

// SubscribedSymbol links an account to an instrument it watches/trades.
type SubscribedSymbol struct {
	AccountNumber int64             `json:"account_number"`
	Instrument    string            `json:"instrument"`
	Active        bool              `json:"active"`
	ShadowMode    bool              `json:"shadow_mode"`
	State         SubscriptionState `json:"state"`
}

// Tick is a single bid/ask quote, global and deduplicated by
// (instrument, timestamp).
type Tick struct {
	Instrument string    `json:"instrument"`
	Timestamp  time.Time `json:"timestamp"`
	Bid        float64   `json:"bid"`
	Ask        float64   `json:"ask"`
	Volume     float64   `json:"volume"`
	Tradeable  bool      `json:"tradeable"`
}

// Spread returns ask-bid, the measure gated by the auto-trader's spread gate.
func (t Tick) Spread() float64 { return t.Ask - t.Bid }

// Timeframe enumerates the supported OHLC aggregation periods and their
// retention windows.
type Timeframe string

const (
	TimeframeM5  Timeframe = "M5"
	TimeframeM15 Timeframe = "M15"
	TimeframeH1  Timeframe = "H1"
	TimeframeH4  Timeframe = "H4"
	TimeframeD1  Timeframe = "D1"
)

// RetentionDays returns how long OHLCData rows are kept for this timeframe.
func (tf Timeframe) RetentionDays() int {
	switch tf {
	case TimeframeM5:
		return 90
	case TimeframeM15:
		return 90
	case TimeframeH1:
		return 180
	case TimeframeH4:
		return 365
	case TimeframeD1:
		return 730
	default:
		return 90
	}
}

// OHLCData is a single candle, global and unique by (instrument, timeframe,
// bar open timestamp).
type OHLCData struct {
	Instrument string    `json:"instrument"`
	Timeframe  Timeframe `json:"timeframe"`
	OpenTime   time.Time `json:"open_time"`
	Open       float64   `json:"open"`
	High       float64   `json:"high"`
	Low        float64   `json:"low"`
	Close      float64   `json:"close"`
	Volume     float64   `json:"volume"`
}

// Valid checks the OHLC ordering invariant of spec.md §3/§8.
func (c OHLCData) Valid() bool {
	if c.Low <= 0 {
		return false
	}
	hi := c.High
	maxOC := c.Open
	if c.Close > maxOC {
		maxOC = c.Close
	}
	minOC := c.Open
	if c.Close < minOC {
		minOC = c.Close
	}
	return hi >= maxOC && maxOC >= minOC && minOC >= c.Low
}

// Direction is a trade/signal bias.
type Direction string

const (
	Buy  Direction = "BUY"
	Sell Direction = "SELL"
)

// SignalStatus is the lifecycle state of a TradingSignal.
type SignalStatus string

const (
	SignalActive     SignalStatus = "active"
	SignalExpired    SignalStatus = "expired"
	SignalExecuted   SignalStatus = "executed"
	SignalSuperseded SignalStatus = "superseded"
)

// RegimeState classifies the current market regime for an instrument.
type RegimeState string

const (
	RegimeTrending RegimeState = "TRENDING"
	RegimeRanging  RegimeState = "RANGING"
	RegimeTooWeak  RegimeState = "TOO_WEAK"
)

// Regime carries the classification plus its directional bias and strength.
type Regime struct {
	State     RegimeState `json:"state"`
	Direction string      `json:"direction"` // bullish, bearish, neutral
	Strength  float64     `json:"strength"`  // 0-100
}

// IndicatorValue is a tagged-variant result from the indicator engine: either
// a bare numeric value or a compound value/signal/strength triple. Exactly
// one representation is meaningful per indicator, selected by the engine.
type IndicatorValue struct {
	Name         string  `json:"name"`
	Value        float64 `json:"value"`
	HasSignal    bool    `json:"has_signal"`
	Signal       string  `json:"signal,omitempty"`   // BUY, SELL, NEUTRAL
	Strength     string  `json:"strength,omitempty"` // weak, medium, strong, very_strong
	CalculatedAt time.Time `json:"calculated_at"`
}

// PatternDetection is a single candlestick pattern hit, already clustered and
// reliability-scored by the pattern recognizer.
type PatternDetection struct {
	Name        string  `json:"name"`
	Direction   string  `json:"direction"` // bullish, bearish, indecision
	Reliability float64 `json:"reliability"` // 0-100
}

// IndicatorSnapshot is the structured JSON payload persisted alongside every
// TradingSignal: a typed bundle rather than an untyped blob, per spec.md §9's
// dynamic-typing design note.
type IndicatorSnapshot struct {
	Indicators  []IndicatorValue   `json:"indicators"`
	Patterns    []PatternDetection `json:"patterns"`
	Regime      Regime             `json:"regime"`
	Session     string             `json:"session"`
	EntryHint   float64            `json:"entry_hint"`
	MLConfidence *float64          `json:"ml_confidence,omitempty"`
	ABTestGroup  string            `json:"ab_test_group,omitempty"`
}

// TradingSignal is a generated, typed directional intention.
type TradingSignal struct {
	ID               int64              `json:"id"`
	Instrument       string             `json:"instrument"`
	Timeframe        Timeframe          `json:"timeframe"`
	Direction        Direction          `json:"direction"`
	Confidence       float64            `json:"confidence"` // 0-100
	SuggestedEntry   float64            `json:"suggested_entry"`
	SuggestedSL      float64            `json:"suggested_sl"`
	SuggestedTP      float64            `json:"suggested_tp"`
	Status           SignalStatus       `json:"status"`
	IsValid          bool               `json:"is_valid"`
	Snapshot         IndicatorSnapshot  `json:"snapshot"`
	CreatedAt        time.Time          `json:"created_at"`
	ExpiresAt        time.Time          `json:"expires_at"`
}

// RiskReward returns |TP-entry| / |entry-SL|.
func (s TradingSignal) RiskReward() float64 {
	risk := s.SuggestedEntry - s.SuggestedSL
	if risk < 0 {
		risk = -risk
	}
	if risk == 0 {
		return 0
	}
	reward := s.SuggestedTP - s.SuggestedEntry
	if reward < 0 {
		reward = -reward
	}
	return reward / risk
}

// TradeStatus is the lifecycle state of a Trade.
type TradeStatus string

const (
	TradeOpen    TradeStatus = "open"
	TradeClosed  TradeStatus = "closed"
	TradePending TradeStatus = "pending"
)

// TradeSource identifies who originated a trade.
type TradeSource string

const (
	SourceAutotrade TradeSource = "autotrade"
	SourceEACommand TradeSource = "ea_command"
	SourceManual    TradeSource = "manual"
)

// CloseReason enumerates why a trade was closed.
type CloseReason string

const (
	CloseSLHit          CloseReason = "SL_HIT"
	CloseTPHit          CloseReason = "TP_HIT"
	CloseTrailingStop   CloseReason = "TRAILING_STOP"
	CloseTimeExit       CloseReason = "TIME_EXIT"
	CloseManual         CloseReason = "MANUAL"
	ClosePartial        CloseReason = "PARTIAL_CLOSE"
	CloseEmergency      CloseReason = "EMERGENCY"
	CloseStrategyInvalid CloseReason = "STRATEGY_INVALID"
	CloseStaleReconciled CloseReason = "STALE_RECONCILED"
)

// Session buckets a trade's open time for analytics.
type Session string

const (
	SessionAsian      Session = "ASIAN"
	SessionLondon     Session = "LONDON"
	SessionOverlap    Session = "OVERLAP"
	SessionUS         Session = "US"
	SessionAfterHours Session = "AFTER_HOURS"
)

// DeriveSession buckets an open time (UTC) into one of the five session
// labels of spec.md §4.8.
func DeriveSession(openTime time.Time) Session {
	h := openTime.UTC().Hour()
	switch {
	case h >= 13 && h < 16:
		return SessionOverlap
	case h >= 0 && h < 8:
		return SessionAsian
	case h >= 8 && h < 16:
		return SessionLondon
	case h >= 13 && h < 22:
		return SessionUS
	default:
		return SessionAfterHours
	}
}

// Trade is an account-scoped position mirrored from the EA's reports.
type Trade struct {
	ID                    int64        `json:"id"`
	AccountNumber         int64        `json:"account_number"`
	Ticket                int64        `json:"ticket"`
	Instrument            string       `json:"instrument"`
	Direction             Direction    `json:"direction"`
	Volume                float64      `json:"volume"`
	OpenPrice             float64      `json:"open_price"`
	OpenTime              time.Time    `json:"open_time"`
	ClosePrice            *float64     `json:"close_price,omitempty"`
	CloseTime             *time.Time   `json:"close_time,omitempty"`
	SL                    float64      `json:"sl"`
	TP                    float64      `json:"tp"`
	InitialSL             float64      `json:"initial_sl"`
	InitialTP             float64      `json:"initial_tp"`
	Profit                float64      `json:"profit"`
	Commission            float64      `json:"commission"` // as reported by the broker; never modeled live, see DESIGN.md OQ4
	Swap                  float64      `json:"swap"`
	Status                TradeStatus  `json:"status"`
	Source                TradeSource  `json:"source"`
	CloseReason           *CloseReason `json:"close_reason,omitempty"`
	SignalID              *int64       `json:"signal_id,omitempty"`
	CommandID             *string      `json:"command_id,omitempty"`
	Session               Session      `json:"session,omitempty"`
	TrailingStopActive    bool         `json:"trailing_stop_active"`
	TrailingStopMoves     int          `json:"trailing_stop_moves"`
	TPExtendedCount       int          `json:"tp_extended_count"`
	PartialClosedStages   int          `json:"partial_closed_stages"`
	HoldDurationMinutes   float64      `json:"hold_duration_minutes"`
	PipsCaptured          float64      `json:"pips_captured"`
	RiskRewardRealized    float64      `json:"risk_reward_realized"`
	MFE                   float64      `json:"mfe"`
	MAE                   float64      `json:"mae"`
	EntryVolatility        float64     `json:"entry_volatility"`
	EntrySpread            float64     `json:"entry_spread"`
	EntryBid               float64     `json:"entry_bid"`
	EntryAsk               float64     `json:"entry_ask"`
	LastSLUpdateAt         *time.Time  `json:"last_sl_update_at,omitempty"`
	LastReconcileMiss      int         `json:"last_reconcile_miss"`
}

// Progress returns how far price has advanced toward TP, 0 at entry, 1 at TP.
// Used by the trade monitor's 4-stage trailing stop.
func (t *Trade) Progress(currentPrice float64) float64 {
	var total, moved float64
	if t.Direction == Buy {
		total = t.TP - t.OpenPrice
		moved = currentPrice - t.OpenPrice
	} else {
		total = t.OpenPrice - t.TP
		moved = t.OpenPrice - currentPrice
	}
	if total <= 0 {
		return 0
	}
	p := moved / total
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	return p
}

// CommandType enumerates the instructions the core can issue to an EA.
type CommandType string

const (
	CmdOpenTrade     CommandType = "OPEN_TRADE"
	CmdCloseTrade    CommandType = "CLOSE_TRADE"
	CmdModifySL      CommandType = "MODIFY_SL"
	CmdModifyTP      CommandType = "MODIFY_TP"
	CmdPartialClose  CommandType = "PARTIAL_CLOSE_TRADE"
)

// CommandStatus is the lifecycle state of a Command: pending -> in_flight ->
// {completed, failed, timeout}. The one backward step is the expiry sweep
// returning an in_flight command to pending, at most twice per command.
type CommandStatus string

const (
	CommandPending   CommandStatus = "pending"
	CommandInFlight  CommandStatus = "in_flight"
	CommandCompleted CommandStatus = "completed"
	CommandFailed    CommandStatus = "failed"
	CommandTimeout   CommandStatus = "timeout"
)

// Command is a durable, account-scoped instruction for an EA.
type Command struct {
	ID            string                 `json:"id"`
	AccountNumber int64                  `json:"account_number"`
	Type          CommandType            `json:"command_type"`
	Payload       map[string]interface{} `json:"payload"`
	Status        CommandStatus          `json:"status"`
	CreatedAt     time.Time              `json:"created_at"`
	PickedAt      *time.Time             `json:"picked_at,omitempty"`
	CompletedAt   *time.Time             `json:"completed_at,omitempty"`
	TimeoutAt     time.Time              `json:"timeout_at"`
	ErrorMessage  string                 `json:"error_message,omitempty"`
	Response      map[string]interface{} `json:"response,omitempty"`
	LinkedTicket  *int64                 `json:"linked_ticket,omitempty"`
	RedeliveryCount int                  `json:"redelivery_count"`
}

// ShadowTrade mirrors Trade for symbols not cleared for live trading.
type ShadowTrade struct {
	ID                 int64      `json:"id"`
	AccountNumber       int64      `json:"account_number"`
	Instrument          string     `json:"instrument"`
	Direction           Direction  `json:"direction"`
	EntryPrice          float64    `json:"entry_price"`
	SL                  float64    `json:"sl"`
	TP                  float64    `json:"tp"`
	EntryTime           time.Time  `json:"entry_time"`
	ExitPrice           *float64   `json:"exit_price,omitempty"`
	ExitTime            *time.Time `json:"exit_time,omitempty"`
	HypotheticalProfit  float64    `json:"hypothetical_profit"`
	SignalID            int64      `json:"signal_id"`
}

// SymbolConfigStatus is the lifecycle state the auto-optimizer drives.
type SymbolConfigStatus string

const (
	ConfigActive       SymbolConfigStatus = "active"
	ConfigReducedRisk  SymbolConfigStatus = "reduced_risk"
	ConfigPaused       SymbolConfigStatus = "paused"
	ConfigDisabled     SymbolConfigStatus = "disabled"
	ConfigShadowTrade  SymbolConfigStatus = "shadow_trade"
)

// SymbolTradingConfig is the per (account, instrument, direction) knob set the
// auto-optimizer writes and the auto-trader reads.
type SymbolTradingConfig struct {
	AccountNumber          int64              `json:"account_number"`
	Instrument             string             `json:"instrument"`
	Direction              Direction          `json:"direction"`
	Status                 SymbolConfigStatus `json:"status"`
	MinConfidenceThreshold float64            `json:"min_confidence_threshold"`
	RiskMultiplier         float64            `json:"risk_multiplier"`
	ConsecutiveWins        int                `json:"consecutive_wins"`
	ConsecutiveLosses      int                `json:"consecutive_losses"`
	RollingWinrate         float64            `json:"rolling_winrate"`
	RollingTradesCount     int                `json:"rolling_trades_count"`
	PauseReason            string             `json:"pause_reason,omitempty"`
	PausedAt               *time.Time         `json:"paused_at,omitempty"`
	UpdatedBy              string             `json:"updated_by"`
	UpdatedAt              time.Time          `json:"updated_at"`
}

// IndicatorScore is a rolling per (instrument, timeframe, indicator)
// performance metric used to weight its contribution to aggregate confidence.
type IndicatorScore struct {
	Instrument    string    `json:"instrument"`
	Timeframe     Timeframe `json:"timeframe"`
	IndicatorName string    `json:"indicator_name"`
	Score         float64   `json:"score"` // 0-100
	SampleCount   int       `json:"sample_count"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Weight implements the minimum-samples-gated weighting of spec.md §4.5:
// weight stays at the neutral default of 0.65 until at least 20 samples have
// accumulated, then scales linearly with score from 0.3 (score 0) to 1.0
// (score 100).
func (s IndicatorScore) Weight() float64 {
	if s.SampleCount < 20 {
		return 0.65
	}
	return 0.3 + 0.7*(s.Score/100)
}

// ShadowRecoveryStats aggregates a trailing window of closed shadow trades
// for an (account, instrument, direction) key, feeding spec.md §4.10's
// recovery decision: a symbol returns to live trading once its shadow
// win-rate, count, and average profit all clear config.ShadowConfig's
// thresholds.
type ShadowRecoveryStats struct {
	TradeCount          int
	WinCount            int
	TotalHypotheticalPL float64
}

func (st ShadowRecoveryStats) WinRate() float64 {
	if st.TradeCount == 0 {
		return 0
	}
	return float64(st.WinCount) / float64(st.TradeCount)
}

// AccountRiskState holds the dynamic risk manager's recomputed per-account
// knobs (spec.md §4.11): a daily SL-ceiling in account currency and a
// weekly risk:reward multiplier, both scaled by a rolling performance
// factor. The signal generator's SL/TP selection and the auto-trader's
// position sizing read this instead of the static per-asset-class config
// once an account has a recomputed state.
type AccountRiskState struct {
	AccountNumber        int64      `json:"account_number"`
	SLCeilingCurrency    float64    `json:"sl_ceiling_currency"`
	RiskRewardMultiplier float64    `json:"risk_reward_multiplier"`
	PerformanceFactor    float64    `json:"performance_factor"`
	DailyRecomputedAt    *time.Time `json:"daily_recomputed_at,omitempty"`
	WeeklyRecomputedAt   *time.Time `json:"weekly_recomputed_at,omitempty"`
}

// LogLevel mirrors the ingestion surface's `log` endpoint levels.
type LogLevel string

const (
	LogDebug LogLevel = "DEBUG"
	LogInfo  LogLevel = "INFO"
	LogWarn  LogLevel = "WARN"
	LogError LogLevel = "ERROR"
)

// LogEntry is a single row of the Log table.
type LogEntry struct {
	ID            int64                  `json:"id"`
	AccountNumber *int64                 `json:"account_number,omitempty"`
	Level         LogLevel               `json:"level"`
	Message       string                 `json:"message"`
	Details       map[string]interface{} `json:"details,omitempty"`
	Timestamp     time.Time              `json:"timestamp"`
}

// DecisionType enumerates the automated-decision taxonomy of spec.md §6.
type DecisionType string

const (
	DecisionSignalGenerated    DecisionType = "SIGNAL_GENERATED"
	DecisionSignalExpired      DecisionType = "SIGNAL_EXPIRED"
	DecisionTradeOpen          DecisionType = "TRADE_OPEN"
	DecisionTradeSkip          DecisionType = "TRADE_SKIP"
	DecisionTradeRetry         DecisionType = "TRADE_RETRY"
	DecisionTradeFailed        DecisionType = "TRADE_FAILED"
	DecisionCircuitBreaker     DecisionType = "CIRCUIT_BREAKER"
	DecisionSpreadRejected     DecisionType = "SPREAD_REJECTED"
	DecisionTickStale          DecisionType = "TICK_STALE"
	DecisionShadowTrade        DecisionType = "SHADOW_TRADE"
	DecisionSymbolRecovery     DecisionType = "SYMBOL_RECOVERY"
	DecisionNewsPause          DecisionType = "NEWS_PAUSE"
	DecisionNewsResume         DecisionType = "NEWS_RESUME"
	DecisionVolatilityHigh     DecisionType = "VOLATILITY_HIGH"
	DecisionLiquidityLow       DecisionType = "LIQUIDITY_LOW"
	DecisionMTFAlignment       DecisionType = "MTF_ALIGNMENT"
	DecisionTrailingStop       DecisionType = "TRAILING_STOP"
	DecisionOptimizationRun    DecisionType = "OPTIMIZATION_RUN"
	DecisionPerformanceAlert   DecisionType = "PERFORMANCE_ALERT"
	DecisionMT5Disconnect      DecisionType = "MT5_DISCONNECT"
	DecisionMT5Reconnect       DecisionType = "MT5_RECONNECT"
	DecisionAutotradingEnabled DecisionType = "AUTOTRADING_ENABLED"
	DecisionAutotradingDisabled DecisionType = "AUTOTRADING_DISABLED"
	DecisionRetryExhausted      DecisionType = "RETRY_EXHAUSTED"
)

// DecisionLogEntry is an append-only record of an automated decision.
// Renamed from the spec's "AIDecision" — nothing here is ML-driven; the
// optional ml_confidence collaborator is folded into IndicatorSnapshot
// instead, to avoid implying a learning pipeline this core does not own.
type DecisionLogEntry struct {
	ID            int64                  `json:"id"`
	AccountNumber *int64                 `json:"account_number,omitempty"`
	Type          DecisionType           `json:"decision_type"`
	Outcome       string                 `json:"outcome"`
	Reason        string                 `json:"reason"`
	Context       map[string]interface{} `json:"context,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
}
