package store

import (
	"context"
	"fmt"

	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/domain"
)

const tradeSelect = `
	SELECT id, account_number, ticket, instrument, direction, volume, open_price, open_time,
	       close_price, close_time, sl, tp, initial_sl, initial_tp, profit, commission, swap,
	       status, source, close_reason, signal_id, command_id, session,
	       trailing_stop_active, trailing_stop_moves, tp_extended_count, partial_closed_stages,
	       hold_duration_minutes, pips_captured, risk_reward_realized, mfe, mae,
	       entry_volatility, entry_spread, entry_bid, entry_ask, last_sl_update_at, last_reconcile_miss
	FROM trades`

func scanTrade(row rowScanner) (*domain.Trade, error) {
	t := &domain.Trade{}
	err := row.Scan(
		&t.ID, &t.AccountNumber, &t.Ticket, &t.Instrument, &t.Direction, &t.Volume, &t.OpenPrice, &t.OpenTime,
		&t.ClosePrice, &t.CloseTime, &t.SL, &t.TP, &t.InitialSL, &t.InitialTP, &t.Profit, &t.Commission, &t.Swap,
		&t.Status, &t.Source, &t.CloseReason, &t.SignalID, &t.CommandID, &t.Session,
		&t.TrailingStopActive, &t.TrailingStopMoves, &t.TPExtendedCount, &t.PartialClosedStages,
		&t.HoldDurationMinutes, &t.PipsCaptured, &t.RiskRewardRealized, &t.MFE, &t.MAE,
		&t.EntryVolatility, &t.EntrySpread, &t.EntryBid, &t.EntryAsk, &t.LastSLUpdateAt, &t.LastReconcileMiss,
	)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// UpsertTradeFromEA creates or updates a Trade from a trade_update report,
// per spec.md §4.1/§3's lifecycle: created on first open report, updated on
// every subsequent report, finalized on close.
func (s *Store) UpsertTradeFromEA(ctx context.Context, t *domain.Trade) error {
	if t.Session == "" {
		t.Session = domain.DeriveSession(t.OpenTime)
	}
	if t.InitialSL == 0 {
		t.InitialSL = t.SL
	}
	if t.InitialTP == 0 {
		t.InitialTP = t.TP
	}
	err := s.Pool.QueryRow(ctx, `
		INSERT INTO trades (account_number, ticket, instrument, direction, volume, open_price, open_time,
			close_price, close_time, sl, tp, initial_sl, initial_tp, profit, commission, swap,
			status, source, close_reason, signal_id, command_id, session,
			entry_volatility, entry_spread, entry_bid, entry_ask)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26)
		ON CONFLICT (account_number, ticket) DO UPDATE SET
			close_price=$8, close_time=$9, sl=$10, tp=$11, profit=$14, commission=$15, swap=$16,
			status=$17, close_reason=$19
		RETURNING id
	`, t.AccountNumber, t.Ticket, t.Instrument, t.Direction, t.Volume, t.OpenPrice, t.OpenTime,
		t.ClosePrice, t.CloseTime, t.SL, t.TP, t.InitialSL, t.InitialTP, t.Profit, t.Commission, t.Swap,
		t.Status, t.Source, t.CloseReason, t.SignalID, t.CommandID, t.Session,
		t.EntryVolatility, t.EntrySpread, t.EntryBid, t.EntryAsk,
	).Scan(&t.ID)
	if err != nil {
		return fmt.Errorf("upsert trade: %w", err)
	}
	if t.Status == domain.TradeClosed {
		if err := s.finalizeTradeMetrics(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) finalizeTradeMetrics(ctx context.Context, t *domain.Trade) error {
	if t.CloseTime != nil {
		t.HoldDurationMinutes = t.CloseTime.Sub(t.OpenTime).Minutes()
	}
	riskDenom := t.OpenPrice - t.InitialSL
	if riskDenom < 0 {
		riskDenom = -riskDenom
	}
	if riskDenom > 0 {
		t.RiskRewardRealized = t.Profit / riskDenom
	}
	_, err := s.Pool.Exec(ctx, `
		UPDATE trades SET hold_duration_minutes=$2, risk_reward_realized=$3 WHERE id=$1
	`, t.ID, t.HoldDurationMinutes, t.RiskRewardRealized)
	return err
}

// GetTrade fetches a trade by its server id.
func (s *Store) GetTrade(ctx context.Context, id int64) (*domain.Trade, error) {
	row := s.Pool.QueryRow(ctx, tradeSelect+` WHERE id=$1`, id)
	return scanTrade(row)
}

// ListOpenTrades returns every open trade across all accounts, the trade
// monitor's per-loop work list.
func (s *Store) ListOpenTrades(ctx context.Context) ([]*domain.Trade, error) {
	rows, err := s.Pool.Query(ctx, tradeSelect+` WHERE status='open' ORDER BY open_time`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListOpenTradesForAccount returns every open trade for one account, used by
// drawdown protection's emergency force-close.
func (s *Store) ListOpenTradesForAccount(ctx context.Context, accountNumber int64) ([]*domain.Trade, error) {
	rows, err := s.Pool.Query(ctx, tradeSelect+` WHERE account_number=$1 AND status='open' ORDER BY open_time`, accountNumber)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// CountOpenTradesInGroup counts open positions for an account whose
// instrument maps to the given correlation group, for the auto-trader's
// correlation gate.
func (s *Store) CountOpenTradesInGroup(ctx context.Context, accountNumber int64, instruments []string) (int, error) {
	if len(instruments) == 0 {
		return 0, nil
	}
	row := s.Pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM trades WHERE account_number=$1 AND status='open' AND instrument = ANY($2)
	`, accountNumber, instruments)
	var n int
	err := row.Scan(&n)
	return n, err
}

// CountOpenTrades counts all open positions for an account (position-count
// gate).
func (s *Store) CountOpenTrades(ctx context.Context, accountNumber int64) (int, error) {
	row := s.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM trades WHERE account_number=$1 AND status='open'`, accountNumber)
	var n int
	err := row.Scan(&n)
	return n, err
}

// UpdateTradeSL persists a trailing-stop move, incrementing the move counter
// and stamping last_sl_update_at for the 5s-per-trade rate limit.
func (s *Store) UpdateTradeSL(ctx context.Context, id int64, newSL float64) error {
	_, err := s.Pool.Exec(ctx, `
		UPDATE trades SET sl=$2, trailing_stop_active=TRUE, trailing_stop_moves=trailing_stop_moves+1, last_sl_update_at=NOW()
		WHERE id=$1
	`, id, newSL)
	return err
}

// MarkPartialClose records a partial-close stage having been emitted.
func (s *Store) MarkPartialClose(ctx context.Context, id int64, remainingVolume float64, stage int) error {
	_, err := s.Pool.Exec(ctx, `
		UPDATE trades SET volume=$2, partial_closed_stages=$3 WHERE id=$1
	`, id, remainingVolume, stage)
	return err
}

// MarkReconcileMiss increments the stale-reconciliation miss counter,
// returning the new count so the caller can escalate after
// StaleReconcileMisses consecutive misses.
func (s *Store) MarkReconcileMiss(ctx context.Context, id int64) (int, error) {
	row := s.Pool.QueryRow(ctx, `
		UPDATE trades SET last_reconcile_miss = last_reconcile_miss + 1 WHERE id=$1 RETURNING last_reconcile_miss
	`, id)
	var n int
	err := row.Scan(&n)
	return n, err
}

// ResetReconcileMiss clears the miss counter once a trade is seen again.
func (s *Store) ResetReconcileMiss(ctx context.Context, id int64) error {
	_, err := s.Pool.Exec(ctx, `UPDATE trades SET last_reconcile_miss=0 WHERE id=$1`, id)
	return err
}

// CloseTradeStale marks a trade closed via stale reconciliation, per
// spec.md §4.8, using the last-known price as the close price.
func (s *Store) CloseTradeStale(ctx context.Context, id int64, lastPrice float64) error {
	reason := domain.CloseStaleReconciled
	_, err := s.Pool.Exec(ctx, `
		UPDATE trades SET status='closed', close_price=$2, close_time=NOW(), close_reason=$3
		WHERE id=$1
	`, id, lastPrice, reason)
	return err
}

// BackfillSession persists a derived session label for a trade that was
// written before session derivation ran (spec.md §4.8 session backfill).
func (s *Store) BackfillSession(ctx context.Context, id int64, session domain.Session) error {
	_, err := s.Pool.Exec(ctx, `UPDATE trades SET session=$2 WHERE id=$1`, id, session)
	return err
}

// UpdateTradeExcursion refreshes the running MFE/MAE extremes for an open
// trade (spec.md §4.8 MFE/MAE update).
func (s *Store) UpdateTradeExcursion(ctx context.Context, id int64, mfe, mae float64) error {
	_, err := s.Pool.Exec(ctx, `UPDATE trades SET mfe=$2, mae=$3 WHERE id=$1`, id, mfe, mae)
	return err
}

// TodayRealizedPnL sums profit for trades closed since the account's
// start-of-day snapshot, for the dynamic-risk and drawdown gates.
func (s *Store) TodayRealizedPnL(ctx context.Context, accountNumber int64) (float64, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(profit), 0) FROM trades
		WHERE account_number=$1 AND status='closed' AND close_time >= date_trunc('day', NOW())
	`, accountNumber)
	var pnl float64
	err := row.Scan(&pnl)
	return pnl, err
}

// RecentClosedTrades returns up to limit most-recently-closed trades for an
// instrument+account+direction, newest first.
func (s *Store) RecentClosedTrades(ctx context.Context, accountNumber int64, instrument string, direction domain.Direction, limit int) ([]*domain.Trade, error) {
	rows, err := s.Pool.Query(ctx, tradeSelect+`
		WHERE account_number=$1 AND instrument=$2 AND direction=$3 AND status='closed'
		ORDER BY close_time DESC LIMIT $4
	`, accountNumber, instrument, direction, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
