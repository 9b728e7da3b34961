package ingestion

import (
	"context"

	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/domain"
)

// Store is the subset of internal/store the ingestion surface depends on
// directly. The tick/OHLC hot path (TickBuffer) has its own narrower
// interface in tickbuffer.go.
type Store interface {
	ConnectAccount(ctx context.Context, accountNumber int64, brokerLabel string) (acc *domain.Account, apiKey string, created bool, err error)
	AuthenticateAPIKey(ctx context.Context, accountNumber int64, apiKey string) (*domain.Account, error)
	UpdateHeartbeat(ctx context.Context, accountNumber int64, balance, equity, margin, freeMargin float64) error
	UpsertBrokerSymbol(ctx context.Context, sym domain.BrokerSymbol) error
	UpsertSubscription(ctx context.Context, sub domain.SubscribedSymbol) error
	ListSubscriptions(ctx context.Context, accountNumber int64) ([]domain.SubscribedSymbol, error)
	UpsertOHLC(ctx context.Context, c domain.OHLCData) error
	UpsertTradeFromEA(ctx context.Context, t *domain.Trade) error
	GetCommand(ctx context.Context, id string) (*domain.Command, error)
	CompleteCommand(ctx context.Context, id string, response map[string]interface{}, linkedTicket *int64) error
	FailCommand(ctx context.Context, id string, errMsg string) error
	InsertLog(ctx context.Context, l domain.LogEntry) error
}

// DecisionLogger is the subset of internal/decisionlog.Logger the ingestion
// surface depends on.
type DecisionLogger interface {
	AppendSafe(ctx context.Context, d domain.DecisionLogEntry)
}

// CommandDeliverer is internal/commands.Queue's heartbeat-facing method.
type CommandDeliverer interface {
	Deliver(ctx context.Context, accountNumber int64) ([]*domain.Command, error)
}

// TradeCloseObserver is internal/optimizer.Optimizer's entry point, invoked
// whenever trade_update reports a trade transitioning to closed so the
// per-symbol config reacts the same tick it happened on rather than waiting
// for a periodic sweep.
type TradeCloseObserver interface {
	OnTradeClosed(ctx context.Context, accountNumber int64, instrument string, direction domain.Direction, win bool) error
}

// CredentialVault is internal/vault.Client's write path, called on first
// connect to archive the issued api key alongside the broker label. Optional:
// a nil vault (the common no-Vault-configured path) simply skips archival,
// since the hashed key in accounts.api_key_hash already authenticates every
// later request.
type CredentialVault interface {
	ArchiveAPIKey(ctx context.Context, accountNumber int64, brokerLabel, apiKey string) error
}
