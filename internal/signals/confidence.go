package signals

import (
	"context"
	"hash/fnv"
	"time"

	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/domain"
)

// aggregation is the outcome of weighing every indicator sub-signal into a
// single directional consensus, per spec.md §4.5's aggregation rule.
type aggregation struct {
	direction      domain.Direction
	indicatorScore float64 // 0-100, weighted agreement with the winning direction
	strengthScore  float64 // 0-100, derived from sub-signal strength labels
	nIndicators    int
}

var strengthPoints = map[string]float64{
	"weak": 25, "medium": 55, "strong": 80, "very_strong": 100,
}

// aggregate implements spec.md §4.5: each indicator with a signal
// contributes a weighted vote; weights come from IndicatorScore.Weight()
// (minimum-samples gated). A BUY requires buy_signals - sell_signals to clear
// the configured advantage before it is emitted; its score then absorbs the
// configured confidence penalty. Returns nil when no direction clears the bar.
func (g *Generator) aggregate(ctx context.Context, instrument string, tf domain.Timeframe, values []domain.IndicatorValue) (*aggregation, error) {
	var buyVotes, sellVotes int
	var buyWeight, sellWeight, buyStrength, sellStrength float64

	for _, v := range values {
		if !v.HasSignal || v.Signal == "NEUTRAL" {
			continue
		}
		score, err := g.store.GetIndicatorScore(ctx, instrument, tf, v.Name)
		if err != nil {
			return nil, err
		}
		w := score.Weight()
		sp := strengthPoints[v.Strength]
		switch v.Signal {
		case "BUY":
			buyVotes++
			buyWeight += w
			buyStrength += sp
		case "SELL":
			sellVotes++
			sellWeight += w
			sellStrength += sp
		}
	}

	total := buyVotes + sellVotes
	if total == 0 {
		return nil, nil
	}

	buyAdvantage := g.cfg.BuySignalAdvantage

	var direction domain.Direction
	var winWeight, winStrength float64
	var winVotes int
	switch {
	case buyVotes-sellVotes >= buyAdvantage:
		direction = domain.Buy
		winWeight, winStrength, winVotes = buyWeight, buyStrength, buyVotes
	case sellVotes > buyVotes:
		direction = domain.Sell
		winWeight, winStrength, winVotes = sellWeight, sellStrength, sellVotes
	default:
		return nil, nil
	}

	indicatorScore := 100 * winWeight / float64(winVotes)
	if indicatorScore > 100 {
		indicatorScore = 100
	}
	if direction == domain.Buy {
		indicatorScore -= g.cfg.BuyConfidencePenalty
		if indicatorScore < 0 {
			indicatorScore = 0
		}
	}

	return &aggregation{
		direction:      direction,
		indicatorScore: indicatorScore,
		strengthScore:  winStrength / float64(winVotes),
		nIndicators:    winVotes,
	}, nil
}

// patternScore reduces the pattern list to a single 0-100 score aligned with
// the aggregated direction: bullish patterns support BUY, bearish support
// SELL, indecision patterns are neutral and excluded.
func patternScore(patterns []domain.PatternDetection, direction domain.Direction) float64 {
	want := "bullish"
	if direction == domain.Sell {
		want = "bearish"
	}
	var sum float64
	var n int
	for _, p := range patterns {
		if p.Direction != want {
			continue
		}
		sum += p.Reliability
		n++
	}
	if n == 0 {
		return 50 // neutral contribution when no confirming pattern fired
	}
	return sum / float64(n)
}

// confidence computes the final 0-100 confidence per spec.md §4.5's rules
// formula, A/B-blended with an optional ML score. The hash of
// (instrument, direction) stably assigns that pair to one of three groups
// at the configured 80/10/10 split.
func (g *Generator) confidence(ctx context.Context, instrument string, agg *aggregation, patterns []domain.PatternDetection, regime domain.Regime, now time.Time) (confidence float64, abGroup string, mlConfidence *float64) {
	pScore := patternScore(patterns, agg.direction)
	confluenceBonus := g.cfg.ConfluenceBonusPerInd * float64(agg.nIndicators)
	if confluenceBonus > 10 {
		confluenceBonus = 10
	}
	indicatorTerm := agg.indicatorScore + confluenceBonus
	if indicatorTerm > 100 {
		indicatorTerm = 100
	}

	rules := g.cfg.PatternWeight*pScore + g.cfg.IndicatorWeight*indicatorTerm + g.cfg.StrengthWeight*agg.strengthScore
	if rules > 100 {
		rules = 100
	}
	if rules < 0 {
		rules = 0
	}

	abGroup = abGroupFor(instrument, agg.direction, g.cfg.ABTestWeights)

	if g.scorer == nil || abGroup == "rules_only" {
		return rules, abGroup, nil
	}

	features := map[string]float64{
		"indicator_score": agg.indicatorScore,
		"pattern_score":   pScore,
		"strength_score":  agg.strengthScore,
		"regime_strength": regime.Strength,
	}
	ml, _, err := g.scorer.Score(ctx, features)
	if err != nil {
		// ML failure falls back transparently to rules-based confidence.
		return rules, "rules_only", nil
	}
	mlPct := ml * 100
	mlConfidence = &mlPct

	switch abGroup {
	case "ml_only":
		return mlPct, abGroup, mlConfidence
	default: // hybrid
		return 0.6*mlPct + 0.4*rules, abGroup, mlConfidence
	}
}

// abGroupFor stably hashes (instrument, direction) into ml_only/rules_only/
// hybrid at the configured weights (default 80/10/10, index order
// [ml_only, rules_only, hybrid]).
func abGroupFor(instrument string, direction domain.Direction, weights [3]float64) string {
	h := fnv.New32a()
	h.Write([]byte(instrument))
	h.Write([]byte(direction))
	bucket := float64(h.Sum32()%10000) / 10000.0

	total := weights[0] + weights[1] + weights[2]
	if total <= 0 {
		return "hybrid"
	}
	mlCut := weights[0] / total
	rulesCut := mlCut + weights[1]/total
	switch {
	case bucket < mlCut:
		return "ml_only"
	case bucket < rulesCut:
		return "rules_only"
	default:
		return "hybrid"
	}
}
