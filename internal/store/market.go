package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/domain"
)

// UpsertBrokerSymbol writes a symbol spec as reported by an EA on connect.
func (s *Store) UpsertBrokerSymbol(ctx context.Context, sym domain.BrokerSymbol) error {
	if !sym.Valid() {
		return fmt.Errorf("invalid broker symbol %s: point/digits/min_volume out of range", sym.Instrument)
	}
	if sym.MaxSpreadPips <= 0 {
		sym.MaxSpreadPips = 3.0
	}
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO broker_symbols (instrument, digits, point, min_volume, max_volume, step_volume, contract_size, tick_size, tick_value, stops_level, max_spread_pips, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,NOW())
		ON CONFLICT (instrument) DO UPDATE SET
			digits=$2, point=$3, min_volume=$4, max_volume=$5, step_volume=$6,
			contract_size=$7, tick_size=$8, tick_value=$9, stops_level=$10, max_spread_pips=$11, updated_at=NOW()
	`, sym.Instrument, sym.Digits, sym.Point, sym.MinVolume, sym.MaxVolume, sym.StepVolume,
		sym.ContractSize, sym.TickSize, sym.TickValue, sym.StopsLevel, sym.MaxSpreadPips)
	return err
}

// GetBrokerSymbol fetches a single instrument's spec.
func (s *Store) GetBrokerSymbol(ctx context.Context, instrument string) (*domain.BrokerSymbol, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT instrument, digits, point, min_volume, max_volume, step_volume, contract_size, tick_size, tick_value, stops_level, max_spread_pips, updated_at
		FROM broker_symbols WHERE instrument=$1
	`, instrument)
	sym := &domain.BrokerSymbol{}
	err := row.Scan(&sym.Instrument, &sym.Digits, &sym.Point, &sym.MinVolume, &sym.MaxVolume,
		&sym.StepVolume, &sym.ContractSize, &sym.TickSize, &sym.TickValue, &sym.StopsLevel, &sym.MaxSpreadPips, &sym.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return sym, nil
}

// UpsertSubscription sets the (account, instrument) subscription state. When
// state transitions to/from shadow, shadow_mode is kept as a read-through of
// status, per DESIGN.md's Open Question #3 resolution.
func (s *Store) UpsertSubscription(ctx context.Context, sub domain.SubscribedSymbol) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO subscribed_symbols (account_number, instrument, active, shadow_mode, state)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (account_number, instrument) DO UPDATE SET
			active=$3, shadow_mode=$4, state=$5
	`, sub.AccountNumber, sub.Instrument, sub.Active, sub.ShadowMode, sub.State)
	return err
}

// ListSubscriptions returns every instrument an account is subscribed to.
func (s *Store) ListSubscriptions(ctx context.Context, accountNumber int64) ([]domain.SubscribedSymbol, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT account_number, instrument, active, shadow_mode, state
		FROM subscribed_symbols WHERE account_number=$1
	`, accountNumber)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.SubscribedSymbol
	for rows.Next() {
		var sub domain.SubscribedSymbol
		if err := rows.Scan(&sub.AccountNumber, &sub.Instrument, &sub.Active, &sub.ShadowMode, &sub.State); err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

// InsertTick writes a single tick, dropping silently on a duplicate
// (instrument, timestamp) key as required by the dedup invariant. Returns
// (inserted=false, nil) on a benign conflict.
func (s *Store) InsertTick(ctx context.Context, t domain.Tick) (inserted bool, err error) {
	tag, err := s.Pool.Exec(ctx, `
		INSERT INTO ticks (instrument, timestamp, bid, ask, volume, tradeable)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (instrument, timestamp) DO NOTHING
	`, t.Instrument, t.Timestamp, t.Bid, t.Ask, t.Volume, t.Tradeable)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// InsertTicksBatch writes a batch of ticks in one round trip, used by the
// tick batch writer's flush. Returns the count actually inserted
// (duplicates silently excluded).
func (s *Store) InsertTicksBatch(ctx context.Context, ticks []domain.Tick) (int, error) {
	if len(ticks) == 0 {
		return 0, nil
	}
	batch := &pgxBatch{}
	for _, t := range ticks {
		batch.queue(`
			INSERT INTO ticks (instrument, timestamp, bid, ask, volume, tradeable)
			VALUES ($1,$2,$3,$4,$5,$6)
			ON CONFLICT (instrument, timestamp) DO NOTHING
		`, t.Instrument, t.Timestamp, t.Bid, t.Ask, t.Volume, t.Tradeable)
	}
	return batch.execAll(ctx, s.Pool)
}

// GetLatestTick returns the most recent tick for an instrument. Hot callers
// (trade monitor, auto-trader spread gate) should prefer the cache's
// LatestTickKey and fall back here only on a cache miss.
func (s *Store) GetLatestTick(ctx context.Context, instrument string) (*domain.Tick, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT instrument, timestamp, bid, ask, volume, tradeable FROM ticks
		WHERE instrument=$1 ORDER BY timestamp DESC LIMIT 1
	`, instrument)
	var t domain.Tick
	err := row.Scan(&t.Instrument, &t.Timestamp, &t.Bid, &t.Ask, &t.Volume, &t.Tradeable)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return &t, err
}

// DeleteStaleTicks removes ticks older than the 7-day retention window.
func (s *Store) DeleteStaleTicks(ctx context.Context) (int64, error) {
	tag, err := s.Pool.Exec(ctx, `DELETE FROM ticks WHERE timestamp < $1`, time.Now().UTC().Add(-7*24*time.Hour))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// UpsertOHLC validates and writes a candle, rejecting on invariant failure.
func (s *Store) UpsertOHLC(ctx context.Context, c domain.OHLCData) error {
	if !c.Valid() {
		return fmt.Errorf("invalid ohlc candle %s/%s @ %s: high>=open,close>=low>0 violated", c.Instrument, c.Timeframe, c.OpenTime)
	}
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO ohlc_data (instrument, timeframe, open_time, open, high, low, close, volume)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (instrument, timeframe, open_time) DO UPDATE SET
			open=$4, high=$5, low=$6, close=$7, volume=$8
	`, c.Instrument, c.Timeframe, c.OpenTime, c.Open, c.High, c.Low, c.Close, c.Volume)
	return err
}

// GetOHLCWindow returns the most recent `limit` candles for (instrument,
// timeframe), ascending by open_time — the window the indicator engine and
// pattern recognizer consume.
func (s *Store) GetOHLCWindow(ctx context.Context, instrument string, tf domain.Timeframe, limit int) ([]domain.OHLCData, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT instrument, timeframe, open_time, open, high, low, close, volume
		FROM ohlc_data WHERE instrument=$1 AND timeframe=$2
		ORDER BY open_time DESC LIMIT $3
	`, instrument, tf, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.OHLCData
	for rows.Next() {
		var c domain.OHLCData
		if err := rows.Scan(&c.Instrument, &c.Timeframe, &c.OpenTime, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	// reverse to ascending order
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, rows.Err()
}

// DeleteStaleOHLC removes candles past their timeframe's retention window.
func (s *Store) DeleteStaleOHLC(ctx context.Context) (int64, error) {
	var total int64
	for _, tf := range []domain.Timeframe{domain.TimeframeM5, domain.TimeframeM15, domain.TimeframeH1, domain.TimeframeH4, domain.TimeframeD1} {
		cutoff := time.Now().UTC().AddDate(0, 0, -tf.RetentionDays())
		tag, err := s.Pool.Exec(ctx, `DELETE FROM ohlc_data WHERE timeframe=$1 AND open_time < $2`, tf, cutoff)
		if err != nil {
			return total, err
		}
		total += tag.RowsAffected()
	}
	return total, nil
}
