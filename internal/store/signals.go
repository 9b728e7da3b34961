package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/domain"
)

// UpsertSignal enforces the one-active-signal-per-key invariant (spec.md §3,
// §8 invariant 1) atomically: any existing active signal for the same
// (instrument, timeframe, direction) is marked superseded in the same
// transaction as the insert.
func (s *Store) UpsertSignal(ctx context.Context, sig *domain.TradingSignal) error {
	snapshot, err := json.Marshal(sig.Snapshot)
	if err != nil {
		return fmt.Errorf("marshal signal snapshot: %w", err)
	}

	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("upsert signal: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		UPDATE trading_signals SET status='superseded'
		WHERE instrument=$1 AND timeframe=$2 AND direction=$3 AND status='active'
	`, sig.Instrument, sig.Timeframe, sig.Direction)
	if err != nil {
		return fmt.Errorf("upsert signal: supersede: %w", err)
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO trading_signals (instrument, timeframe, direction, confidence, suggested_entry, suggested_sl, suggested_tp, status, is_valid, snapshot, expires_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING id, created_at
	`, sig.Instrument, sig.Timeframe, sig.Direction, sig.Confidence, sig.SuggestedEntry, sig.SuggestedSL,
		sig.SuggestedTP, sig.Status, sig.IsValid, snapshot, sig.ExpiresAt).Scan(&sig.ID, &sig.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert signal: insert: %w", err)
	}

	return tx.Commit(ctx)
}

func scanSignal(row rowScanner) (*domain.TradingSignal, error) {
	sig := &domain.TradingSignal{}
	var snapshot []byte
	err := row.Scan(&sig.ID, &sig.Instrument, &sig.Timeframe, &sig.Direction, &sig.Confidence,
		&sig.SuggestedEntry, &sig.SuggestedSL, &sig.SuggestedTP, &sig.Status, &sig.IsValid,
		&snapshot, &sig.CreatedAt, &sig.ExpiresAt)
	if err != nil {
		return nil, err
	}
	if len(snapshot) > 0 {
		if err := json.Unmarshal(snapshot, &sig.Snapshot); err != nil {
			return nil, fmt.Errorf("unmarshal signal snapshot: %w", err)
		}
	}
	return sig, nil
}

const signalSelect = `
	SELECT id, instrument, timeframe, direction, confidence, suggested_entry, suggested_sl, suggested_tp,
	       status, is_valid, snapshot, created_at, expires_at
	FROM trading_signals`

// GetActiveSignal fetches the (at most one) active signal for a key.
func (s *Store) GetActiveSignal(ctx context.Context, instrument string, tf domain.Timeframe, dir domain.Direction) (*domain.TradingSignal, error) {
	row := s.Pool.QueryRow(ctx, signalSelect+` WHERE instrument=$1 AND timeframe=$2 AND direction=$3 AND status='active'`,
		instrument, tf, dir)
	sig, err := scanSignal(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return sig, err
}

// ListActiveSignals returns every currently active, valid signal — the
// auto-trader's per-loop work list.
func (s *Store) ListActiveSignals(ctx context.Context) ([]*domain.TradingSignal, error) {
	rows, err := s.Pool.Query(ctx, signalSelect+` WHERE status='active' ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.TradingSignal
	for rows.Next() {
		sig, err := scanSignal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sig)
	}
	return out, rows.Err()
}

// MarkSignalExecuted transitions a signal once the auto-trader has acted.
func (s *Store) MarkSignalExecuted(ctx context.Context, id int64) error {
	_, err := s.Pool.Exec(ctx, `UPDATE trading_signals SET status='executed' WHERE id=$1`, id)
	return err
}

// ExpireStaleSignals expires active signals older than maxAge (10 min
// default) and deletes expired signals older than deleteAfter (2 min
// default past their expiry), implementing the two-tier retention of
// spec.md §4.5 / DESIGN.md Open Question #1.
func (s *Store) ExpireStaleSignals(ctx context.Context, maxAge, deleteAfter time.Duration) (expired, deleted int64, err error) {
	tag, err := s.Pool.Exec(ctx, `
		UPDATE trading_signals SET status='expired'
		WHERE status='active' AND created_at < $1
	`, time.Now().UTC().Add(-maxAge))
	if err != nil {
		return 0, 0, fmt.Errorf("expire stale signals: %w", err)
	}
	expired = tag.RowsAffected()

	tag, err = s.Pool.Exec(ctx, `
		DELETE FROM trading_signals WHERE status='expired' AND expires_at < $1
	`, time.Now().UTC().Add(-deleteAfter))
	if err != nil {
		return expired, 0, fmt.Errorf("delete expired signals: %w", err)
	}
	deleted = tag.RowsAffected()
	return expired, deleted, nil
}

// ExpireSignalsForInstrument expires every active signal for an instrument,
// used by the news filter (spec.md §4.5).
func (s *Store) ExpireSignalsForInstrument(ctx context.Context, instrument string) (int64, error) {
	tag, err := s.Pool.Exec(ctx, `
		UPDATE trading_signals SET status='expired' WHERE instrument=$1 AND status='active'
	`, instrument)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// UpsertIndicatorScore updates the rolling performance metric used to weight
// an indicator's contribution to aggregate confidence.
func (s *Store) UpsertIndicatorScore(ctx context.Context, sc domain.IndicatorScore) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO indicator_scores (instrument, timeframe, indicator_name, score, sample_count, updated_at)
		VALUES ($1,$2,$3,$4,$5,NOW())
		ON CONFLICT (instrument, timeframe, indicator_name) DO UPDATE SET
			score=$4, sample_count=$5, updated_at=NOW()
	`, sc.Instrument, sc.Timeframe, sc.IndicatorName, sc.Score, sc.SampleCount)
	return err
}

// GetIndicatorScore fetches the rolling score for an indicator, defaulting
// to a neutral 50/0-samples row if none exists yet.
func (s *Store) GetIndicatorScore(ctx context.Context, instrument string, tf domain.Timeframe, name string) (domain.IndicatorScore, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT instrument, timeframe, indicator_name, score, sample_count, updated_at
		FROM indicator_scores WHERE instrument=$1 AND timeframe=$2 AND indicator_name=$3
	`, instrument, tf, name)
	var sc domain.IndicatorScore
	err := row.Scan(&sc.Instrument, &sc.Timeframe, &sc.IndicatorName, &sc.Score, &sc.SampleCount, &sc.UpdatedAt)
	if err == pgx.ErrNoRows {
		return domain.IndicatorScore{Instrument: instrument, Timeframe: tf, IndicatorName: name, Score: 50, SampleCount: 0}, nil
	}
	return sc, err
}
