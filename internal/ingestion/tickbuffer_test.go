package ingestion

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/MikeHotel0815/ngTradingBot-sub001/config"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/domain"
)

type fakeTickStore struct {
	mu      sync.Mutex
	batches [][]domain.Tick
}

func (f *fakeTickStore) InsertTicksBatch(ctx context.Context, ticks []domain.Tick) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := append([]domain.Tick(nil), ticks...)
	f.batches = append(f.batches, cp)
	return len(ticks), nil
}

type fakeTickCache struct {
	mu  sync.Mutex
	set map[string]interface{}
}

func newFakeTickCache() *fakeTickCache { return &fakeTickCache{set: map[string]interface{}{}} }

func (f *fakeTickCache) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.set[key] = value
	return nil
}

func testIngestionConfig() config.IngestionConfig {
	return config.IngestionConfig{TickBufferMax: 3, TickFlushInterval: time.Hour, TickOverflowRatio: 2}
}

func TestIngestUpdatesLatestTickImmediately(t *testing.T) {
	store := &fakeTickStore{}
	cache := newFakeTickCache()
	b := NewTickBuffer(store, cache, testIngestionConfig())

	now := time.Now().UTC()
	b.Ingest(context.Background(), []domain.Tick{{Instrument: "EURUSD", Bid: 1.10, Ask: 1.1002, Timestamp: now}})

	tick, ok := b.LatestTick("EURUSD")
	if !ok || tick.Bid != 1.10 {
		t.Fatalf("expected latest tick to be set immediately, got %+v ok=%v", tick, ok)
	}
	if len(cache.set) != 1 {
		t.Errorf("expected one cache write, got %d", len(cache.set))
	}
}

func TestIngestDoesNotRegressLatestTickOnOlderTimestamp(t *testing.T) {
	store := &fakeTickStore{}
	cache := newFakeTickCache()
	b := NewTickBuffer(store, cache, testIngestionConfig())

	now := time.Now().UTC()
	b.Ingest(context.Background(), []domain.Tick{{Instrument: "EURUSD", Bid: 1.20, Timestamp: now}})
	b.Ingest(context.Background(), []domain.Tick{{Instrument: "EURUSD", Bid: 1.10, Timestamp: now.Add(-time.Minute)}})

	tick, _ := b.LatestTick("EURUSD")
	if tick.Bid != 1.20 {
		t.Errorf("expected latest tick to stay at the newer value 1.20, got %v", tick.Bid)
	}
}

func TestIngestFlushesImmediatelyWhenBufferFull(t *testing.T) {
	store := &fakeTickStore{}
	cache := newFakeTickCache()
	b := NewTickBuffer(store, cache, testIngestionConfig()) // TickBufferMax: 3

	now := time.Now().UTC()
	b.Ingest(context.Background(), []domain.Tick{
		{Instrument: "EURUSD", Timestamp: now},
		{Instrument: "EURUSD", Timestamp: now.Add(time.Second)},
		{Instrument: "EURUSD", Timestamp: now.Add(2 * time.Second)},
	})

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		store.mu.Lock()
		n := len(store.batches)
		store.mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.batches) != 1 || len(store.batches[0]) != 3 {
		t.Fatalf("expected one flushed batch of 3 ticks, got %+v", store.batches)
	}
}

func TestIngestDropsOldestOnOverflow(t *testing.T) {
	store := &fakeTickStore{}
	cache := newFakeTickCache()
	cfg := config.IngestionConfig{TickBufferMax: 1000, TickFlushInterval: time.Hour, TickOverflowRatio: 1}
	b := NewTickBuffer(store, cache, cfg) // overflow threshold = 1000

	now := time.Now().UTC()
	batch := make([]domain.Tick, 0, 1200)
	for i := 0; i < 1200; i++ {
		batch = append(batch, domain.Tick{Instrument: "EURUSD", Timestamp: now.Add(time.Duration(i) * time.Millisecond)})
	}
	b.Ingest(context.Background(), batch)

	if got := b.Dropped(); got != 200 {
		t.Errorf("expected 200 ticks dropped past the overflow threshold, got %d", got)
	}
}

func TestStartFlushesOnTicker(t *testing.T) {
	store := &fakeTickStore{}
	cache := newFakeTickCache()
	cfg := config.IngestionConfig{TickBufferMax: 1000, TickFlushInterval: 10 * time.Millisecond, TickOverflowRatio: 10}
	b := NewTickBuffer(store, cache, cfg)

	b.Start(context.Background())
	b.Ingest(context.Background(), []domain.Tick{{Instrument: "EURUSD", Timestamp: time.Now().UTC()}})
	time.Sleep(50 * time.Millisecond)
	b.Stop()

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.batches) == 0 {
		t.Error("expected the periodic ticker to have flushed the buffered tick")
	}
}
