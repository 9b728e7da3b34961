// Package dashboard runs the operator-facing read/control surface of
// spec.md §6: a single gin engine on config.ServerConfig.DashboardPort
// serving JSON aggregation endpoints, a handful of JWT-gated control
// endpoints, and a WebSocket feed that mirrors the event bus in real time.
// Grounded on the teacher's internal/api package (server.go's
// NewServer/setupRoutes/RateLimiter and websocket.go's WSHub), replacing
// its multi-tenant subscriber surface with the single-operator model
// spec.md calls for.
package dashboard

import (
	"context"

	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/domain"
)

// Store is the narrow subset of internal/store the dashboard depends on —
// entirely read/control, no write path the EA-facing ingestion server
// already owns.
type Store interface {
	ListActiveAccounts(ctx context.Context) ([]*domain.Account, error)
	GetAccount(ctx context.Context, accountNumber int64) (*domain.Account, error)
	SetAutoTrading(ctx context.Context, accountNumber int64, enabled bool) error
	TripCircuitBreaker(ctx context.Context, accountNumber int64, reason string) error
	ResetCircuitBreaker(ctx context.Context, accountNumber int64) error

	ListOpenTrades(ctx context.Context) ([]*domain.Trade, error)
	ListOpenTradesForAccount(ctx context.Context, accountNumber int64) ([]*domain.Trade, error)
	CountOpenTrades(ctx context.Context, accountNumber int64) (int, error)

	RecentDecisions(ctx context.Context, accountNumber int64, limit int) ([]domain.DecisionLogEntry, error)

	ListSymbolConfigs(ctx context.Context, accountNumber int64) ([]*domain.SymbolTradingConfig, error)
	GetSymbolConfig(ctx context.Context, accountNumber int64, instrument string, direction domain.Direction) (*domain.SymbolTradingConfig, error)
	UpsertSymbolConfig(ctx context.Context, c *domain.SymbolTradingConfig) error
}

// CommandQueue is the subset of internal/commands.Queue the close-all
// control endpoint needs, mirroring internal/drawdown.Guard's dependency.
type CommandQueue interface {
	Emit(ctx context.Context, cmd *domain.Command) error
}
