package ingestion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/MikeHotel0815/ngTradingBot-sub001/config"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/domain"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/events"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var errAuth = errors.New("invalid account number or api key")

// fakeStore is a minimal in-memory Store for handler-level tests.
type fakeStore struct {
	accounts map[int64]*domain.Account
	apiKeys  map[int64]string
	subs     map[int64][]domain.SubscribedSymbol
	commands map[string]*domain.Command

	connectErr error
	ohlcErr    error

	lastTrade *domain.Trade
	completed []string
	failed    []string
}

type fakeLogger struct {
	lastDecision domain.DecisionLogEntry
}

func (f *fakeLogger) AppendSafe(ctx context.Context, d domain.DecisionLogEntry) {
	f.lastDecision = d
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		accounts: map[int64]*domain.Account{},
		apiKeys:  map[int64]string{},
		subs:     map[int64][]domain.SubscribedSymbol{},
		commands: map[string]*domain.Command{},
	}
}

func (f *fakeStore) ConnectAccount(ctx context.Context, accountNumber int64, brokerLabel string) (*domain.Account, string, bool, error) {
	if f.connectErr != nil {
		return nil, "", false, f.connectErr
	}
	if acc, ok := f.accounts[accountNumber]; ok {
		return acc, f.apiKeys[accountNumber], false, nil
	}
	acc := &domain.Account{AccountNumber: accountNumber, BrokerLabel: brokerLabel}
	f.accounts[accountNumber] = acc
	f.apiKeys[accountNumber] = "generated-key"
	return acc, "generated-key", true, nil
}

func (f *fakeStore) AuthenticateAPIKey(ctx context.Context, accountNumber int64, apiKey string) (*domain.Account, error) {
	acc, ok := f.accounts[accountNumber]
	if !ok || f.apiKeys[accountNumber] != apiKey {
		return nil, errAuth
	}
	return acc, nil
}

func (f *fakeStore) UpdateHeartbeat(ctx context.Context, accountNumber int64, balance, equity, margin, freeMargin float64) error {
	return nil
}

func (f *fakeStore) UpsertBrokerSymbol(ctx context.Context, sym domain.BrokerSymbol) error { return nil }

func (f *fakeStore) UpsertSubscription(ctx context.Context, sub domain.SubscribedSymbol) error {
	f.subs[sub.AccountNumber] = append(f.subs[sub.AccountNumber], sub)
	return nil
}

func (f *fakeStore) ListSubscriptions(ctx context.Context, accountNumber int64) ([]domain.SubscribedSymbol, error) {
	return f.subs[accountNumber], nil
}

func (f *fakeStore) UpsertOHLC(ctx context.Context, c domain.OHLCData) error { return f.ohlcErr }

func (f *fakeStore) UpsertTradeFromEA(ctx context.Context, t *domain.Trade) error {
	f.lastTrade = t
	return nil
}

func (f *fakeStore) GetCommand(ctx context.Context, id string) (*domain.Command, error) {
	return f.commands[id], nil
}

func (f *fakeStore) CompleteCommand(ctx context.Context, id string, response map[string]interface{}, linkedTicket *int64) error {
	f.completed = append(f.completed, id)
	return nil
}

func (f *fakeStore) FailCommand(ctx context.Context, id string, errMsg string) error {
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeStore) InsertLog(ctx context.Context, l domain.LogEntry) error { return nil }

type fakeDeliverer struct {
	cmds []*domain.Command
}

func (f *fakeDeliverer) Deliver(ctx context.Context, accountNumber int64) ([]*domain.Command, error) {
	return f.cmds, nil
}

type fakeOptimizer struct {
	called     bool
	instrument string
	win        bool
}

func (f *fakeOptimizer) OnTradeClosed(ctx context.Context, accountNumber int64, instrument string, direction domain.Direction, win bool) error {
	f.called = true
	f.instrument = instrument
	f.win = win
	return nil
}

type fakeVault struct {
	archived bool
	account  int64
	broker   string
	apiKey   string
}

func (f *fakeVault) ArchiveAPIKey(ctx context.Context, accountNumber int64, brokerLabel, apiKey string) error {
	f.archived = true
	f.account = accountNumber
	f.broker = brokerLabel
	f.apiKey = apiKey
	return nil
}

func newTestHandlers(store *fakeStore, deliverer CommandDeliverer, optimizer TradeCloseObserver) *Handlers {
	h, _ := newTestHandlersWithLogger(store, deliverer, optimizer, nil)
	return h
}

func newTestHandlersWithVault(store *fakeStore, deliverer CommandDeliverer, optimizer TradeCloseObserver, vault CredentialVault) *Handlers {
	h, _ := newTestHandlersWithLogger(store, deliverer, optimizer, vault)
	return h
}

func newTestHandlersWithLogger(store *fakeStore, deliverer CommandDeliverer, optimizer TradeCloseObserver, vault CredentialVault) (*Handlers, *fakeLogger) {
	cache := newFakeTickCache()
	tickStore := &fakeTickStore{}
	ticks := NewTickBuffer(tickStore, cache, config.IngestionConfig{TickBufferMax: 1000, TickFlushInterval: time.Hour, TickOverflowRatio: 10})
	logger := &fakeLogger{}
	return NewHandlers(store, ticks, deliverer, optimizer, vault, logger, events.NewEventBus()), logger
}

func doRequest(h gin.HandlerFunc, method, path string, body interface{}, header http.Header) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	c.Request = req
	h(c)
	return w
}

func TestConnectReturnsAPIKeyOnlyOnCreate(t *testing.T) {
	store := newFakeStore()
	h, logger := newTestHandlersWithLogger(store, nil, nil, nil)

	w := doRequest(h.Connect, http.MethodPost, "/connect", ConnectRequest{
		AccountNumber: 1001, Broker: "TestBroker", Symbols: []string{"EURUSD"},
	}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 on first connect, got %d: %s", w.Code, w.Body.String())
	}
	var resp ConnectResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.APIKey == "" {
		t.Error("expected an api key to be returned on account creation")
	}
	if logger.lastDecision.Outcome != "created" {
		t.Errorf("expected decision outcome 'created', got %q", logger.lastDecision.Outcome)
	}

	w2 := doRequest(h.Connect, http.MethodPost, "/connect", ConnectRequest{
		AccountNumber: 1001, Broker: "TestBroker",
	}, nil)
	var resp2 ConnectResponse
	_ = json.Unmarshal(w2.Body.Bytes(), &resp2)
	if resp2.APIKey != "" {
		t.Error("expected no api key to be returned on reconnect")
	}
	if logger.lastDecision.Outcome != "reconnected" {
		t.Errorf("expected decision outcome 'reconnected', got %q", logger.lastDecision.Outcome)
	}
}

func TestConnectArchivesIssuedKeyInVaultOnCreate(t *testing.T) {
	store := newFakeStore()
	vault := &fakeVault{}
	h := newTestHandlersWithVault(store, nil, nil, vault)

	w := doRequest(h.Connect, http.MethodPost, "/connect", ConnectRequest{
		AccountNumber: 1001, Broker: "TestBroker",
	}, nil)
	var resp ConnectResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)

	if !vault.archived {
		t.Fatal("expected the issued api key to be archived in vault on account creation")
	}
	if vault.account != 1001 || vault.broker != "TestBroker" || vault.apiKey != resp.APIKey {
		t.Errorf("unexpected archived credential: %+v", vault)
	}

	vault.archived = false
	doRequest(h.Connect, http.MethodPost, "/connect", ConnectRequest{AccountNumber: 1001, Broker: "TestBroker"}, nil)
	if vault.archived {
		t.Error("expected no vault archival on reconnect")
	}
}

func TestHeartbeatRejectsBadAPIKey(t *testing.T) {
	store := newFakeStore()
	store.accounts[2002] = &domain.Account{AccountNumber: 2002}
	store.apiKeys[2002] = "right-key"
	h := newTestHandlers(store, nil, nil)

	w := doRequest(h.Heartbeat, http.MethodPost, "/heartbeat", HeartbeatRequest{
		AccountNumber: 2002, APIKey: "wrong-key",
	}, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 on bad api key, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHeartbeatAcceptsAPIKeyFromHeader(t *testing.T) {
	store := newFakeStore()
	store.accounts[2003] = &domain.Account{AccountNumber: 2003}
	store.apiKeys[2003] = "right-key"
	h := newTestHandlers(store, &fakeDeliverer{}, nil)

	header := http.Header{}
	header.Set("Authorization", "x-api-key right-key")
	w := doRequest(h.Heartbeat, http.MethodPost, "/heartbeat", HeartbeatRequest{
		AccountNumber: 2003,
	}, header)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 with header-supplied key, got %d: %s", w.Code, w.Body.String())
	}
}

func TestTickBatchRejectsInvalidTick(t *testing.T) {
	store := newFakeStore()
	store.accounts[3003] = &domain.Account{AccountNumber: 3003}
	store.apiKeys[3003] = "key"
	h := newTestHandlers(store, nil, nil)

	w := doRequest(h.TickBatch, http.MethodPost, "/tick_batch", TickBatchRequest{
		AccountNumber: 3003, APIKey: "key",
		Ticks: []TickWire{{Instrument: "EURUSD", Bid: 1.10, Ask: 1.09, Timestamp: time.Now().UTC()}},
	}, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for ask<bid tick, got %d: %s", w.Code, w.Body.String())
	}
}

func TestTickBatchAcceptsValidTicks(t *testing.T) {
	store := newFakeStore()
	store.accounts[3004] = &domain.Account{AccountNumber: 3004}
	store.apiKeys[3004] = "key"
	h := newTestHandlers(store, nil, nil)

	w := doRequest(h.TickBatch, http.MethodPost, "/tick_batch", TickBatchRequest{
		AccountNumber: 3004, APIKey: "key",
		Ticks: []TickWire{{Instrument: "EURUSD", Bid: 1.10, Ask: 1.1002, Timestamp: time.Now().UTC()}},
	}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for valid tick batch, got %d: %s", w.Code, w.Body.String())
	}
}

func TestOHLCBatchRejectsInvalidCandle(t *testing.T) {
	store := newFakeStore()
	store.accounts[4004] = &domain.Account{AccountNumber: 4004}
	store.apiKeys[4004] = "key"
	h := newTestHandlers(store, nil, nil)

	w := doRequest(h.OHLCBatch, http.MethodPost, "/ohlc_batch", OHLCBatchRequest{
		AccountNumber: 4004, APIKey: "key", Instrument: "EURUSD", Timeframe: "M1",
		Candles: []CandleWire{{OpenTime: time.Now().UTC(), Open: 1.1, High: 1.05, Low: 1.2, Close: 1.1}},
	}, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invariant-violating candle, got %d: %s", w.Code, w.Body.String())
	}
}

func TestTradeUpdateInvokesOptimizerOnClose(t *testing.T) {
	store := newFakeStore()
	store.accounts[5005] = &domain.Account{AccountNumber: 5005}
	store.apiKeys[5005] = "key"
	opt := &fakeOptimizer{}
	h := newTestHandlers(store, nil, opt)

	closePrice := 1.2010
	w := doRequest(h.TradeUpdate, http.MethodPost, "/trade_update", TradeUpdateRequest{
		AccountNumber: 5005, APIKey: "key", Ticket: 1, Instrument: "EURUSD",
		Direction: "BUY", Volume: 0.1, OpenPrice: 1.2000, ClosePrice: &closePrice,
		Profit: 10, Status: "closed",
	}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !opt.called {
		t.Fatal("expected the optimizer to be notified on trade close")
	}
	if !opt.win {
		t.Error("expected a positive-profit close to be reported as a win")
	}
}

func TestTradeUpdateSkipsOptimizerWhenStillOpen(t *testing.T) {
	store := newFakeStore()
	store.accounts[5006] = &domain.Account{AccountNumber: 5006}
	store.apiKeys[5006] = "key"
	opt := &fakeOptimizer{}
	h := newTestHandlers(store, nil, opt)

	doRequest(h.TradeUpdate, http.MethodPost, "/trade_update", TradeUpdateRequest{
		AccountNumber: 5006, APIKey: "key", Ticket: 2, Instrument: "EURUSD",
		Direction: "SELL", Volume: 0.1, OpenPrice: 1.2000, Status: "open",
	}, nil)
	if opt.called {
		t.Error("expected the optimizer to not be notified while a trade is still open")
	}
}

func TestCommandResponseConflictsOnAccountMismatch(t *testing.T) {
	store := newFakeStore()
	store.accounts[6006] = &domain.Account{AccountNumber: 6006}
	store.apiKeys[6006] = "key"
	store.commands["cmd-1"] = &domain.Command{ID: "cmd-1", AccountNumber: 9999}
	h := newTestHandlers(store, nil, nil)

	w := doRequest(h.CommandResponse, http.MethodPost, "/command_response", CommandResponseRequest{
		AccountNumber: 6006, APIKey: "key", CommandID: "cmd-1", Status: "completed",
	}, nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 on account mismatch, got %d: %s", w.Code, w.Body.String())
	}
}

func TestCommandResponseCompletesMatchingCommand(t *testing.T) {
	store := newFakeStore()
	store.accounts[6007] = &domain.Account{AccountNumber: 6007}
	store.apiKeys[6007] = "key"
	store.commands["cmd-2"] = &domain.Command{ID: "cmd-2", AccountNumber: 6007}
	h := newTestHandlers(store, nil, nil)

	w := doRequest(h.CommandResponse, http.MethodPost, "/command_response", CommandResponseRequest{
		AccountNumber: 6007, APIKey: "key", CommandID: "cmd-2", Status: "completed",
	}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if len(store.completed) != 1 || store.completed[0] != "cmd-2" {
		t.Errorf("expected cmd-2 to be marked completed, got %+v", store.completed)
	}
}
