package trademonitor

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/commands"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/domain"
)

// applyTrailingStop runs the 4-stage trail of spec.md §4.8:
// stage 1 (progress >= Stage1Progress) moves SL to break-even plus a small
// buffer; stage 2/3/4 trail SL behind price by a shrinking fraction of the
// distance already covered. Every stage is subject to four guardrails: SL
// only ever moves in the trade's favor, never closer than
// MinSLDistancePoints to price, never further than
// MaxSLMovePerUpdatePoints per call, and never more often than
// UpdateRateLimit per trade.
func (m *Monitor) applyTrailingStop(ctx context.Context, t *domain.Trade, mid, progress float64) {
	if progress < m.cfg.Stage1Progress {
		return
	}
	if t.LastSLUpdateAt != nil && time.Since(*t.LastSLUpdateAt) < m.cfg.UpdateRateLimit {
		return
	}

	sym, err := m.store.GetBrokerSymbol(ctx, t.Instrument)
	if err != nil || sym == nil {
		log.Error().Err(err).Str("instrument", t.Instrument).Msg("trademonitor: broker symbol lookup failed, skipping trail")
		return
	}
	point := sym.Point

	candidate := m.trailTarget(t, mid, progress, point)
	if candidate == 0 {
		return
	}

	if !improvesOnCurrent(t.Direction, t.SL, candidate) {
		return
	}

	minDistance := m.cfg.MinSLDistancePoints * point
	if distanceToPrice(t.Direction, candidate, mid) < minDistance {
		return
	}

	maxMove := m.cfg.MaxSLMovePerUpdatePoints * point
	if moveSize(t.Direction, t.SL, candidate) > maxMove {
		candidate = capMove(t.Direction, t.SL, maxMove)
	}

	if err := m.store.UpdateTradeSL(ctx, t.ID, candidate); err != nil {
		log.Error().Err(err).Int64("trade_id", t.ID).Msg("trademonitor: trailing-stop SL update failed")
		return
	}
	t.SL = candidate
	now := time.Now().UTC()
	t.LastSLUpdateAt = &now

	cmd := &domain.Command{
		AccountNumber: t.AccountNumber,
		Type:          domain.CmdModifySL,
		Status:        domain.CommandPending,
		TimeoutAt:     now.Add(2 * time.Minute),
		Payload:       map[string]interface{}{"ticket": t.Ticket, "sl": candidate},
	}
	cmd.ID = commands.CommandID(t.Instrument+"-trail", now)
	if err := m.queue.Emit(ctx, cmd); err != nil {
		log.Error().Err(err).Int64("trade_id", t.ID).Msg("trademonitor: trailing-stop command emission failed")
	}
}

// trailTarget computes the stage-appropriate SL candidate, 0 if no stage applies.
func (m *Monitor) trailTarget(t *domain.Trade, mid, progress, point float64) float64 {
	buy := t.Direction == domain.Buy
	sign := 1.0
	if !buy {
		sign = -1.0
	}

	switch {
	case progress >= m.cfg.Stage4Progress:
		return trailBehind(mid, sign, m.cfg.Stage4TrailFraction, t.OpenPrice, t.TP)
	case progress >= m.cfg.Stage3Progress:
		return trailBehind(mid, sign, m.cfg.Stage3TrailFraction, t.OpenPrice, t.TP)
	case progress >= m.cfg.Stage2Progress:
		return trailBehind(mid, sign, m.cfg.Stage2TrailFraction, t.OpenPrice, t.TP)
	case progress >= m.cfg.Stage1Progress:
		return t.OpenPrice + sign*m.cfg.BreakEvenPoints*point
	default:
		return 0
	}
}

// trailBehind places the stop a fraction of the entry-to-TP distance behind
// the current price, in the direction away from the market.
func trailBehind(mid, sign, fraction, openPrice, tp float64) float64 {
	totalDistance := tp - openPrice
	if sign < 0 {
		totalDistance = openPrice - tp
	}
	if totalDistance <= 0 {
		return 0
	}
	return mid - sign*fraction*totalDistance
}

func improvesOnCurrent(dir domain.Direction, current, candidate float64) bool {
	if dir == domain.Buy {
		return candidate > current
	}
	return candidate < current
}

func distanceToPrice(dir domain.Direction, sl, mid float64) float64 {
	if dir == domain.Buy {
		return mid - sl
	}
	return sl - mid
}

func moveSize(dir domain.Direction, current, candidate float64) float64 {
	d := candidate - current
	if d < 0 {
		d = -d
	}
	return d
}

func capMove(dir domain.Direction, current, maxMove float64) float64 {
	if dir == domain.Buy {
		return current + maxMove
	}
	return current - maxMove
}

// partialCloseDue reports whether progress has crossed a partial-close stage
// this trade has not yet taken, used to give partial-close priority over the
// trailing stop within a single scan iteration.
func (m *Monitor) partialCloseDue(t *domain.Trade, progress float64) bool {
	return m.partialCloseStage(t, progress) > 0
}

func (m *Monitor) partialCloseStage(t *domain.Trade, progress float64) int {
	switch {
	case progress >= m.cfg.Stage3Progress && t.PartialClosedStages < 2:
		return 2
	case progress >= m.cfg.Stage2Progress && t.PartialClosedStages < 1:
		return 1
	default:
		return 0
	}
}

// applyPartialClose triggers the two partial-exit stages (progress >= 0.50
// takes the first tranche, progress >= 0.75 the second), skipping a stage
// whose remaining volume would drop below 2x the symbol's minimum tradeable
// volume (DESIGN.md Open Question: partial-close-below-min-volume).
func (m *Monitor) applyPartialClose(ctx context.Context, t *domain.Trade, progress float64) {
	stage := m.partialCloseStage(t, progress)
	if stage == 0 {
		return
	}

	sym, err := m.store.GetBrokerSymbol(ctx, t.Instrument)
	if err != nil || sym == nil {
		log.Error().Err(err).Str("instrument", t.Instrument).Msg("trademonitor: broker symbol lookup failed, skipping partial close")
		return
	}

	closeVolume := t.Volume * 0.5
	remaining := t.Volume - closeVolume
	if remaining < sym.MinVolume*2 {
		m.logDecision(ctx, t, domain.DecisionTradeSkip, "partial_close_skipped",
			"remaining volume would drop below 2x min_volume")
		return
	}

	now := time.Now().UTC()
	cmd := &domain.Command{
		AccountNumber: t.AccountNumber,
		Type:          domain.CmdPartialClose,
		Status:        domain.CommandPending,
		TimeoutAt:     now.Add(2 * time.Minute),
		Payload:       map[string]interface{}{"ticket": t.Ticket, "volume": closeVolume},
	}
	cmd.ID = commands.CommandID(t.Instrument+"-partial", now)
	if err := m.queue.Emit(ctx, cmd); err != nil {
		log.Error().Err(err).Int64("trade_id", t.ID).Msg("trademonitor: partial-close command emission failed")
		return
	}
	if err := m.store.MarkPartialClose(ctx, t.ID, remaining, stage); err != nil {
		log.Error().Err(err).Int64("trade_id", t.ID).Msg("trademonitor: partial-close state update failed")
		return
	}
	t.Volume, t.PartialClosedStages = remaining, stage
}
