package autotrader

import (
	"context"
	"sync"
	"time"

	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/domain"
)

// spreadSamples is the ring-buffer depth the rolling average spread is
// computed over, matching spec.md's "3x rolling avg" spread gate.
const spreadSamples = 20

// spreadTracker holds the per-instrument rolling spread average the spread
// gate compares against. It is the one piece of in-memory state the
// auto-trader's "singleton discipline" paragraph calls out by name
// (alongside the correlation cache, which is instead recomputed from the
// store each gate call since it is already cheap and store-accurate) —
// mutex-protected because internal/scheduler could in principle invoke
// Scan from more than one goroutine, even though the current wiring never does.
type spreadTracker struct {
	mu      sync.Mutex
	samples map[string][]float64
	next    map[string]int
}

func newSpreadTracker() *spreadTracker {
	return &spreadTracker{samples: map[string][]float64{}, next: map[string]int{}}
}

// observe returns the instrument's rolling average over the samples seen
// before this call (0 when there are none), then records spread as a new
// sample.
func (t *spreadTracker) observe(instrument string, spread float64) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	buf := t.samples[instrument]
	var avg float64
	if len(buf) > 0 {
		var sum float64
		for _, s := range buf {
			sum += s
		}
		avg = sum / float64(len(buf))
	}
	if buf == nil {
		buf = make([]float64, 0, spreadSamples)
	}
	if len(buf) < spreadSamples {
		buf = append(buf, spread)
	} else {
		buf[t.next[instrument]] = spread
		t.next[instrument] = (t.next[instrument] + 1) % spreadSamples
	}
	t.samples[instrument] = buf
	return avg
}

// pipSize approximates MT5's pip convention: 5- and 3-digit brokers quote an
// extra fractional digit beyond the pip, so their pip is 10x the point.
func pipSize(sym *domain.BrokerSymbol) float64 {
	if sym.Digits == 5 || sym.Digits == 3 {
		return sym.Point * 10
	}
	return sym.Point
}

// gateSpread implements spec.md §4.6 step 8: reject a tick that is stale, or
// whose spread exceeds the wider of the symbol's configured ceiling and a
// multiple of its own recent rolling average. Returns a nil tick (and a
// reject reason) on staleness so the caller can log DecisionTickStale
// instead of DecisionSpreadRejected.
func (e *Engine) gateSpread(ctx context.Context, sym *domain.BrokerSymbol) (*domain.Tick, string) {
	tick, err := e.store.GetLatestTick(ctx, sym.Instrument)
	if err != nil || tick == nil {
		return nil, "no tick available"
	}
	if time.Since(tick.Timestamp) > e.cfg.TickStaleAfter {
		return nil, "latest tick is stale"
	}

	spread := tick.Spread()
	avg := e.spread.observe(sym.Instrument, spread)

	pip := pipSize(sym)
	maxFixed := sym.MaxSpreadPips * pip
	maxRolling := e.cfg.MaxSpreadMultiplier * avg
	maxAllowed := maxFixed
	if maxRolling > maxAllowed {
		maxAllowed = maxRolling
	}
	if maxAllowed > 0 && spread > maxAllowed {
		return tick, "spread exceeds configured ceiling"
	}
	return tick, ""
}
