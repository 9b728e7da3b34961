package signals

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/MikeHotel0815/ngTradingBot-sub001/config"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/domain"
)

// calendarEvent is one row of the upstream high-impact news feed.
type calendarEvent struct {
	Currency string    `json:"currency"`
	Title    string    `json:"title"`
	Impact   string    `json:"impact"` // "high", "medium", "low"
	Time     time.Time `json:"time"`
}

// NewsFilter holds the events fetched by Poll and answers the signal generator's pre-persist gate (spec.md §4.5): an
// instrument is blocked from `pause_before_minutes` before through
// `pause_after_minutes` after any high-impact event touching one of its
// constituent currencies.
type NewsFilter struct {
	cfg    config.NewsConfig
	client *retryablehttp.Client

	mu     sync.RWMutex
	events []calendarEvent
}

// NewNewsFilter builds a filter. No loop in this repository calls Poll, and
// cfg.PollInterval is not read; until a successful Poll loads events, Blocked
// always returns false (fail open — a stalled feed never itself halts trading).
func NewNewsFilter(cfg config.NewsConfig) *NewsFilter {
	client := retryablehttp.NewClient()
	client.RetryMax = cfg.MaxRetries
	client.Logger = log.New(io.Discard, "", log.LstdFlags)
	client.HTTPClient.Timeout = cfg.RequestTimeout
	return &NewsFilter{cfg: cfg, client: client}
}

// Poll fetches the feed once and replaces the in-memory event set on
// success; a transient failure leaves the previous set in place per spec.md
// §7's retried-then-escalated transient-I/O policy (the caller logs the
// escalation to the decision log, this method only returns the error).
func (f *NewsFilter) Poll(ctx context.Context) error {
	if !f.cfg.Enabled || f.cfg.FeedURL == "" {
		return nil
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, f.cfg.FeedURL, nil)
	if err != nil {
		return fmt.Errorf("build news calendar request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch news calendar: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("news calendar returned %s", resp.Status)
	}

	var events []calendarEvent
	if err := json.NewDecoder(resp.Body).Decode(&events); err != nil {
		return fmt.Errorf("decode news calendar: %w", err)
	}

	f.mu.Lock()
	f.events = events
	f.mu.Unlock()
	return nil
}

// Blocked implements the NewsGate interface the generator consumes.
func (f *NewsFilter) Blocked(instrument string, now time.Time) (bool, string) {
	if !f.cfg.Enabled {
		return false, ""
	}
	before := time.Duration(f.cfg.PauseBeforeMinutes) * time.Minute
	after := time.Duration(f.cfg.PauseAfterMinutes) * time.Minute

	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, ev := range f.events {
		if ev.Impact != "high" {
			continue
		}
		if !involvesInstrument(instrument, ev.Currency) {
			continue
		}
		if now.After(ev.Time.Add(-before)) && now.Before(ev.Time.Add(after)) {
			return true, fmt.Sprintf("%s %s", ev.Currency, ev.Title)
		}
	}
	return false, ""
}

func involvesInstrument(instrument, currency string) bool {
	if currency == "" {
		return false
	}
	u := strings.ToUpper(instrument)
	c := strings.ToUpper(currency)
	if strings.Contains(u, c) {
		return true
	}
	// Metals/indices quote in USD but the feed may tag events under the
	// underlying commodity/index currency instead.
	if domain.ClassifyAsset(instrument) == domain.AssetMetals && c == "USD" {
		return true
	}
	return false
}
