package ingestion

import "time"

// ConnectRequest is the EA's connect payload (spec.md §4.1): it both
// announces the account and submits the instrument specs/subscriptions the
// EA contract requires on connect.
type ConnectRequest struct {
	AccountNumber int64              `json:"account_number" binding:"required"`
	Broker        string             `json:"broker"`
	Platform      string             `json:"platform"`
	Symbols       []string           `json:"symbols"`
	SymbolSpecs   []BrokerSymbolSpec `json:"symbol_specs"`
}

// BrokerSymbolSpec is the wire shape of a submitted instrument spec.
type BrokerSymbolSpec struct {
	Instrument   string  `json:"instrument" binding:"required"`
	Digits       int     `json:"digits"`
	Point        float64 `json:"point" binding:"required"`
	MinVolume    float64 `json:"min_volume" binding:"required"`
	MaxVolume    float64 `json:"max_volume"`
	StepVolume   float64 `json:"step_volume"`
	ContractSize float64 `json:"contract_size"`
	TickSize     float64 `json:"tick_size"`
	TickValue    float64 `json:"tick_value"`
	StopsLevel   int     `json:"stops_level"`
	MaxSpreadPips float64 `json:"max_spread_pips"`
}

type ConnectResponse struct {
	APIKey            string   `json:"api_key"`
	SubscribedSymbols []string `json:"subscribed_symbols"`
}

// HeartbeatRequest carries the EA's periodic account snapshot. The
// profit_today/week/month/year fields are accepted (so a well-formed EA
// payload never fails validation) but intentionally not persisted — see
// DESIGN.md's internal/ingestion entry for why the server-computed
// TodayRealizedPnL is treated as the authoritative figure instead.
type HeartbeatRequest struct {
	AccountNumber int64     `json:"account_number" binding:"required"`
	APIKey        string    `json:"api_key"`
	Balance       float64   `json:"balance"`
	Equity        float64   `json:"equity"`
	Margin        float64   `json:"margin"`
	FreeMargin    float64   `json:"free_margin"`
	ProfitToday   float64   `json:"profit_today"`
	ProfitWeek    float64   `json:"profit_week"`
	ProfitMonth   float64   `json:"profit_month"`
	ProfitYear    float64   `json:"profit_year"`
	Timestamp     time.Time `json:"timestamp"`
}

type HeartbeatResponse struct {
	Symbols         []string        `json:"symbols"`
	PendingCommands []CommandWireDTO `json:"pending_commands"`
}

// CommandWireDTO is the EA-facing shape of a queued command.
type CommandWireDTO struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"command_type"`
	Payload   map[string]interface{} `json:"payload"`
	TimeoutAt time.Time              `json:"timeout_at"`
}

type TickWire struct {
	Instrument string    `json:"instrument" binding:"required"`
	Bid        float64   `json:"bid" binding:"required"`
	Ask        float64   `json:"ask" binding:"required"`
	Volume     float64   `json:"volume"`
	Timestamp  time.Time `json:"timestamp" binding:"required"`
	Tradeable  bool      `json:"tradeable"`
}

type TickBatchRequest struct {
	AccountNumber int64      `json:"account_number" binding:"required"`
	APIKey        string     `json:"api_key"`
	Ticks         []TickWire `json:"ticks" binding:"required"`
}

type CandleWire struct {
	OpenTime time.Time `json:"open_time" binding:"required"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
}

type OHLCBatchRequest struct {
	AccountNumber int64        `json:"account_number" binding:"required"`
	APIKey        string       `json:"api_key"`
	Instrument    string       `json:"instrument" binding:"required"`
	Timeframe     string       `json:"timeframe" binding:"required"`
	Candles       []CandleWire `json:"candles" binding:"required"`
}

// TradeUpdateRequest mirrors the subset of domain.Trade the EA reports;
// server-only fields (session, initial_sl/tp, excursion tracking, etc.) are
// derived or defaulted by the store layer on first observation.
type TradeUpdateRequest struct {
	AccountNumber int64      `json:"account_number" binding:"required"`
	APIKey        string     `json:"api_key"`
	Ticket        int64      `json:"ticket" binding:"required"`
	Instrument    string     `json:"instrument" binding:"required"`
	Direction     string     `json:"direction" binding:"required"`
	Volume        float64    `json:"volume"`
	OpenPrice     float64    `json:"open_price"`
	OpenTime      time.Time  `json:"open_time"`
	ClosePrice    *float64   `json:"close_price"`
	CloseTime     *time.Time `json:"close_time"`
	SL            float64    `json:"sl"`
	TP            float64    `json:"tp"`
	Profit        float64    `json:"profit"`
	Commission    float64    `json:"commission"`
	Swap          float64    `json:"swap"`
	Status        string     `json:"status" binding:"required"`
	Source        string     `json:"source"`
	CloseReason   string     `json:"close_reason"`
	SignalID      *int64     `json:"signal_id"`
	CommandID     *string    `json:"command_id"`
	EntryVolatility float64  `json:"entry_volatility"`
	EntrySpread     float64 `json:"entry_spread"`
	EntryBid        float64 `json:"entry_bid"`
	EntryAsk        float64 `json:"entry_ask"`
}

type CommandResponseRequest struct {
	AccountNumber int64                  `json:"account_number" binding:"required"`
	APIKey        string                 `json:"api_key"`
	CommandID     string                 `json:"command_id" binding:"required"`
	Status        string                 `json:"status" binding:"required"` // "completed" | "failed"
	Response      map[string]interface{} `json:"response"`
	LinkedTicket  *int64                 `json:"linked_ticket"`
	ErrorMessage  string                 `json:"error_message"`
}

type LogRequest struct {
	AccountNumber *int64                 `json:"account_number"`
	APIKey        string                 `json:"api_key"`
	Level         string                 `json:"level" binding:"required"`
	Message       string                 `json:"message" binding:"required"`
	Details       map[string]interface{} `json:"details"`
}
