// Package signals implements the signal generator of spec.md §4.5: it
// aggregates a fresh indicator bundle, pattern list and regime block into a
// weighted directional intention, blends rules-based and optional ML
// confidence, selects SL/TP, and persists the result under the
// one-active-signal-per-key invariant.
package signals

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/MikeHotel0815/ngTradingBot-sub001/config"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/domain"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/events"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/indicators"
)

// Store is the subset of internal/store the generator depends on.
type Store interface {
	GetOHLCWindow(ctx context.Context, instrument string, tf domain.Timeframe, limit int) ([]domain.OHLCData, error)
	GetBrokerSymbol(ctx context.Context, instrument string) (*domain.BrokerSymbol, error)
	GetSymbolConfig(ctx context.Context, accountNumber int64, instrument string, direction domain.Direction) (*domain.SymbolTradingConfig, error)
	GetIndicatorScore(ctx context.Context, instrument string, tf domain.Timeframe, name string) (domain.IndicatorScore, error)
	RecentClosedTrades(ctx context.Context, accountNumber int64, instrument string, direction domain.Direction, limit int) ([]*domain.Trade, error)
	GetRiskState(ctx context.Context, accountNumber int64) (*domain.AccountRiskState, error)
	UpsertSignal(ctx context.Context, sig *domain.TradingSignal) error
	ExpireSignalsForInstrument(ctx context.Context, instrument string) (int64, error)
	GetActiveSignal(ctx context.Context, instrument string, tf domain.Timeframe, dir domain.Direction) (*domain.TradingSignal, error)
}

// DecisionLogger is the subset of internal/decisionlog.Logger the generator
// depends on, so every accepted/rejected signal reaches the dashboard's live
// feed as well as the audit trail.
type DecisionLogger interface {
	AppendSafe(ctx context.Context, d domain.DecisionLogEntry)
}

// MLScorer is the optional collaborator of spec.md §6: "score(features) →
// {confidence, model_version, ab_group}". Absence or failure falls back
// transparently to rules-based confidence.
type MLScorer interface {
	Score(ctx context.Context, features map[string]float64) (confidence float64, modelVersion string, err error)
}

// NewsGate reports whether an instrument is currently blocked by a
// high-impact calendar event, and the event description for the decision log.
type NewsGate interface {
	Blocked(instrument string, now time.Time) (blocked bool, eventDesc string)
}

// Generator runs the per-(instrument, timeframe) signal generation pass.
type Generator struct {
	store    Store
	engine   *indicators.Engine
	detector PatternDetector
	bus      *events.EventBus
	scorer   MLScorer
	news     NewsGate
	logger   DecisionLogger
	cfg      config.SignalConfig
	sl       config.AutoTraderConfig
}

// PatternDetector is the subset of internal/patterns.Detector the generator
// depends on.
type PatternDetector interface {
	Detect(candles []domain.OHLCData) []domain.PatternDetection
}

// New builds a signal generator. scorer and news may be nil; scorer absence
// falls back to rules-only confidence, news absence disables the filter.
func New(store Store, engine *indicators.Engine, detector PatternDetector, bus *events.EventBus, scorer MLScorer, news NewsGate, logger DecisionLogger, cfg config.SignalConfig, autoCfg config.AutoTraderConfig) *Generator {
	return &Generator{store: store, engine: engine, detector: detector, bus: bus, scorer: scorer, news: news, logger: logger, cfg: cfg, sl: autoCfg}
}

// Cadence picks the generation interval for an instrument from its current
// volatility regime, per spec.md §4.5 ("10s, 20s if LOW, 5s if HIGH").
func (g *Generator) Cadence(atrPercentile float64) time.Duration {
	switch {
	case atrPercentile < 0.25:
		return g.cfg.LowVolatilityCadence
	case atrPercentile > 0.75:
		return g.cfg.HighVolatilityCadence
	default:
		return g.cfg.BaseCadence
	}
}

// Generate runs one full pass for (accountNumber, instrument, timeframe):
// news filter (a blocked instrument returns before any indicator work) ->
// indicator bundle -> pattern list -> regime filter -> aggregation ->
// confidence -> SL/TP -> market-hours validity flag -> persistence.
func (g *Generator) Generate(ctx context.Context, accountNumber int64, instrument string, tf domain.Timeframe) error {
	now := time.Now().UTC()

	if g.news != nil {
		if blocked, eventDesc := g.news.Blocked(instrument, now); blocked {
			if _, err := g.store.ExpireSignalsForInstrument(ctx, instrument); err != nil {
				log.Error().Err(err).Str("instrument", instrument).Msg("news filter: failed to expire active signals")
			}
			g.logDecision(ctx, accountNumber, domain.DecisionNewsPause, "skipped", fmt.Sprintf("news_filter:%s", eventDesc), nil)
			return nil
		}
	}

	bundle, err := g.engine.Compute(ctx, instrument, tf)
	if err != nil {
		g.logDecision(ctx, accountNumber, domain.DecisionSignalGenerated, "rejected", err.Error(), nil)
		return fmt.Errorf("compute indicators: %w", err)
	}

	bars, err := g.store.GetOHLCWindow(ctx, instrument, tf, 260)
	if err != nil {
		return fmt.Errorf("load ohlc for pattern detection: %w", err)
	}
	patterns := g.detector.Detect(bars)

	filtered := indicators.FilterByRegime(bundle.Values, bundle.Regime)
	agg, err := g.aggregate(ctx, instrument, tf, filtered)
	if err != nil {
		return err
	}
	if agg == nil {
		// No directional consensus strong enough to act on; nothing to persist.
		return nil
	}

	confidence, abGroup, mlConf := g.confidence(ctx, instrument, agg, patterns, bundle.Regime, now)

	entry := bars[len(bars)-1].Close
	slTP, valid, reason := g.selectSLTP(ctx, accountNumber, instrument, agg.direction, entry, bundle.Values)

	sig := &domain.TradingSignal{
		Instrument:     instrument,
		Timeframe:      tf,
		Direction:      agg.direction,
		Confidence:     confidence,
		SuggestedEntry: entry,
		SuggestedSL:    slTP.sl,
		SuggestedTP:    slTP.tp,
		Status:         domain.SignalActive,
		IsValid:        valid && domain.Tradeable(instrument, now),
		Snapshot: domain.IndicatorSnapshot{
			Indicators:   bundle.Values,
			Patterns:     patterns,
			Regime:       bundle.Regime,
			Session:      string(domain.DeriveSession(now)),
			EntryHint:    entry,
			MLConfidence: mlConf,
			ABTestGroup:  abGroup,
		},
		ExpiresAt: now.Add(g.cfg.ActiveRetention),
	}

	if !valid {
		g.logDecision(ctx, accountNumber, domain.DecisionSignalGenerated, "rejected", reason, map[string]interface{}{"instrument": instrument, "direction": string(agg.direction)})
		return nil
	}

	if err := g.store.UpsertSignal(ctx, sig); err != nil {
		return fmt.Errorf("upsert signal: %w", err)
	}

	g.bus.PublishSignal(instrument, string(tf), string(agg.direction), confidence)
	g.logDecision(ctx, accountNumber, domain.DecisionSignalGenerated, "accepted", "", map[string]interface{}{
		"instrument": instrument, "direction": string(agg.direction), "confidence": confidence,
	})
	return nil
}

// StillValid implements internal/trademonitor.SignalChecker for spec.md
// §4.8's strategy re-validation: a losing trade's backing strategy still
// holds only as long as an active signal in the same direction exists for
// its instrument/timeframe. Once Generate has superseded or expired it, the
// trade monitor treats the trade as orphaned from its original thesis.
func (g *Generator) StillValid(ctx context.Context, instrument string, tf domain.Timeframe, direction domain.Direction) (bool, error) {
	sig, err := g.store.GetActiveSignal(ctx, instrument, tf, direction)
	if err != nil {
		return false, err
	}
	return sig != nil, nil
}

func (g *Generator) logDecision(ctx context.Context, accountNumber int64, t domain.DecisionType, outcome, reason string, extra map[string]interface{}) {
	entry := domain.DecisionLogEntry{Type: t, Outcome: outcome, Reason: reason, Context: extra}
	if accountNumber != 0 {
		entry.AccountNumber = &accountNumber
	}
	g.logger.AppendSafe(ctx, entry)
}
