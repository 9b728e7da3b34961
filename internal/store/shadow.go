package store

import (
	"context"

	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/domain"
)

// OpenShadowTrade records a hypothetical entry the shadow-trading engine
// simulates instead of sending an EA command (spec.md §4.10), when a symbol
// is paused to live trading but still worth observing.
func (s *Store) OpenShadowTrade(ctx context.Context, st *domain.ShadowTrade) error {
	return s.Pool.QueryRow(ctx, `
		INSERT INTO shadow_trades (account_number, instrument, direction, entry_price, sl, tp, signal_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING id, entry_time
	`, st.AccountNumber, st.Instrument, st.Direction, st.EntryPrice, st.SL, st.TP, st.SignalID).Scan(&st.ID, &st.EntryTime)
}

func scanShadowTrade(row rowScanner) (*domain.ShadowTrade, error) {
	st := &domain.ShadowTrade{}
	err := row.Scan(&st.ID, &st.AccountNumber, &st.Instrument, &st.Direction, &st.EntryPrice, &st.SL, &st.TP,
		&st.EntryTime, &st.ExitPrice, &st.ExitTime, &st.HypotheticalProfit, &st.SignalID)
	if err != nil {
		return nil, err
	}
	return st, nil
}

const shadowSelect = `
	SELECT id, account_number, instrument, direction, entry_price, sl, tp, entry_time, exit_price,
	       exit_time, hypothetical_profit, signal_id
	FROM shadow_trades`

// ListOpenShadowTrades returns every shadow trade still awaiting simulated
// exit, the per-loop work list for the shadow-trading engine's price watcher.
func (s *Store) ListOpenShadowTrades(ctx context.Context) ([]*domain.ShadowTrade, error) {
	rows, err := s.Pool.Query(ctx, shadowSelect+` WHERE exit_time IS NULL ORDER BY entry_time`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.ShadowTrade
	for rows.Next() {
		st, err := scanShadowTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// CloseShadowTrade records the simulated exit and its hypothetical profit.
func (s *Store) CloseShadowTrade(ctx context.Context, id int64, exitPrice, hypotheticalProfit float64) error {
	_, err := s.Pool.Exec(ctx, `
		UPDATE shadow_trades SET exit_price=$2, exit_time=NOW(), hypothetical_profit=$3 WHERE id=$1
	`, id, exitPrice, hypotheticalProfit)
	return err
}

// GetShadowRecoveryStats queries closed shadow trades over the trailing
// window for the recovery job.
func (s *Store) GetShadowRecoveryStats(ctx context.Context, accountNumber int64, instrument string, direction domain.Direction, days int) (domain.ShadowRecoveryStats, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE hypothetical_profit > 0), COALESCE(SUM(hypothetical_profit), 0)
		FROM shadow_trades
		WHERE account_number=$1 AND instrument=$2 AND direction=$3
		  AND exit_time IS NOT NULL AND exit_time > NOW() - ($4 || ' days')::interval
	`, accountNumber, instrument, direction, days)
	var out domain.ShadowRecoveryStats
	err := row.Scan(&out.TradeCount, &out.WinCount, &out.TotalHypotheticalPL)
	return out, err
}
