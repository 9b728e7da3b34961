// Package ingestion implements spec.md §4.1's EA-facing HTTP surface: connect,
// heartbeat, tick_batch, ohlc_batch, trade_update, command_response, and log.
// Grounded on the teacher's internal/api/server.go gin+CORS+RateLimiter
// scaffolding idiom (NewServer/setupRoutes/rateLimitMiddleware), generalized
// from one multi-purpose API port to the spec's four narrow EA ports plus
// the request-scoped api-key check the teacher's JWT middleware does for
// operator sessions (internal/auth.Middleware), here done per-handler since
// the key may travel inside the JSON body as well as in the Authorization
// header, and the account it belongs to is only known once the body is parsed.
package ingestion

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/domain"
	"github.com/MikeHotel0815/ngTradingBot-sub001/internal/events"
)

// headerAPIKey extracts the key from "Authorization: x-api-key: <key>", the
// non-standard scheme spec.md §6 specifies for the EA surface (as opposed to
// the dashboard's plain bearer JWT).
func headerAPIKey(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(strings.TrimSuffix(parts[0], ":"), "x-api-key") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func resolveAPIKey(c *gin.Context, bodyKey string) string {
	if k := headerAPIKey(c); k != "" {
		return k
	}
	return bodyKey
}

// authenticate validates the presented key against the account, returning
// false (and having already written the AuthFailure response) on mismatch.
func (h *Handlers) authenticate(c *gin.Context, accountNumber int64, apiKey string) (*domain.Account, bool) {
	if apiKey == "" {
		abort(c, authFailure("missing api key"))
		return nil, false
	}
	acc, err := h.store.AuthenticateAPIKey(c.Request.Context(), accountNumber, apiKey)
	if err != nil {
		abort(c, authFailure("invalid account number or api key"))
		return nil, false
	}
	return acc, true
}

// Handlers holds every collaborator the ingestion endpoints call into.
// Queue and Optimizer are optional: nil lets the surface come up before the
// rest of the trading core is wired, matching internal/scheduler's
// nil-collaborator convention. bus is not optional — every handler that
// reaches a publish call assumes a live EventBus, since dashboard fanout is
// the one thing the ingestion surface can never silently skip.
type Handlers struct {
	store     Store
	ticks     *TickBuffer
	queue     CommandDeliverer
	optimizer TradeCloseObserver
	vault     CredentialVault
	logger    DecisionLogger
	bus       *events.EventBus
}

func NewHandlers(store Store, ticks *TickBuffer, queue CommandDeliverer, optimizer TradeCloseObserver, vault CredentialVault, logger DecisionLogger, bus *events.EventBus) *Handlers {
	return &Handlers{store: store, ticks: ticks, queue: queue, optimizer: optimizer, vault: vault, logger: logger, bus: bus}
}

// Connect implements spec.md §4.1's connect contract: idempotent
// create-or-return of the account's api-key, plus ingestion of whatever
// symbol specs/subscriptions the EA submits on first contact.
func (h *Handlers) Connect(c *gin.Context) {
	var req ConnectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, validationFailure(err.Error()))
		return
	}
	ctx := c.Request.Context()

	acc, apiKey, created, err := h.store.ConnectAccount(ctx, req.AccountNumber, req.Broker)
	if err != nil {
		abort(c, validationFailure("connect failed: "+err.Error()))
		return
	}

	for _, spec := range req.SymbolSpecs {
		sym := domain.BrokerSymbol{
			Instrument: spec.Instrument, Digits: spec.Digits, Point: spec.Point,
			MinVolume: spec.MinVolume, MaxVolume: spec.MaxVolume, StepVolume: spec.StepVolume,
			ContractSize: spec.ContractSize, TickSize: spec.TickSize, TickValue: spec.TickValue,
			StopsLevel: spec.StopsLevel, MaxSpreadPips: spec.MaxSpreadPips,
		}
		if err := h.store.UpsertBrokerSymbol(ctx, sym); err != nil {
			log.Warn().Err(err).Str("instrument", spec.Instrument).Msg("ingestion: rejected malformed symbol spec on connect")
		}
	}
	for _, instrument := range req.Symbols {
		sub := domain.SubscribedSymbol{
			AccountNumber: req.AccountNumber, Instrument: instrument,
			Active: true, State: domain.SubscriptionLive,
		}
		if err := h.store.UpsertSubscription(ctx, sub); err != nil {
			log.Error().Err(err).Str("instrument", instrument).Msg("ingestion: failed to persist subscription on connect")
		}
	}

	subs, err := h.store.ListSubscriptions(ctx, req.AccountNumber)
	if err != nil {
		abort(c, validationFailure("failed to load subscriptions: "+err.Error()))
		return
	}
	symbols := make([]string, 0, len(subs))
	for _, s := range subs {
		symbols = append(symbols, s.Instrument)
	}

	outcome := "reconnected"
	if created {
		outcome = "created"
	}
	entry := domain.DecisionLogEntry{
		AccountNumber: &acc.AccountNumber, Type: domain.DecisionMT5Reconnect, Outcome: outcome,
		Reason:  "EA connect",
		Context: map[string]interface{}{"broker": req.Broker, "platform": req.Platform},
	}
	h.logger.AppendSafe(ctx, entry)
	h.bus.Publish(events.Event{Type: events.EventAccountConnected, Timestamp: time.Now().UTC(),
		Data: map[string]interface{}{"account_number": acc.AccountNumber, "created": created}})

	resp := ConnectResponse{SubscribedSymbols: symbols}
	if created {
		resp.APIKey = apiKey // plaintext key only ever returned at creation time
		if h.vault != nil {
			if err := h.vault.ArchiveAPIKey(ctx, acc.AccountNumber, req.Broker, apiKey); err != nil {
				log.Warn().Err(err).Int64("account_number", acc.AccountNumber).Msg("ingestion: failed to archive issued api key in vault")
			}
		}
	}
	c.JSON(http.StatusOK, resp)
}

// Heartbeat refreshes the account snapshot and returns its pending command
// batch, per spec.md §4.1/§4.7.
func (h *Handlers) Heartbeat(c *gin.Context) {
	var req HeartbeatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, validationFailure(err.Error()))
		return
	}
	ctx := c.Request.Context()
	apiKey := resolveAPIKey(c, req.APIKey)
	if _, ok := h.authenticate(c, req.AccountNumber, apiKey); !ok {
		return
	}

	if err := h.store.UpdateHeartbeat(ctx, req.AccountNumber, req.Balance, req.Equity, req.Margin, req.FreeMargin); err != nil {
		abort(c, validationFailure("heartbeat update failed: "+err.Error()))
		return
	}
	h.bus.PublishBalanceUpdate(req.AccountNumber, req.Balance, req.Equity, req.Margin)

	subs, err := h.store.ListSubscriptions(ctx, req.AccountNumber)
	if err != nil {
		abort(c, validationFailure("failed to load subscriptions: "+err.Error()))
		return
	}
	symbols := make([]string, 0, len(subs))
	for _, s := range subs {
		symbols = append(symbols, s.Instrument)
	}

	resp := HeartbeatResponse{Symbols: symbols}
	if h.queue != nil {
		cmds, err := h.queue.Deliver(ctx, req.AccountNumber)
		if err != nil {
			log.Error().Err(err).Int64("account_number", req.AccountNumber).Msg("ingestion: failed to deliver pending commands")
		}
		for _, cmd := range cmds {
			resp.PendingCommands = append(resp.PendingCommands, CommandWireDTO{
				ID: cmd.ID, Type: string(cmd.Type), Payload: cmd.Payload, TimeoutAt: cmd.TimeoutAt,
			})
		}
	}
	c.JSON(http.StatusOK, resp)
}

// TickBatch ingests a batch of ticks, per spec.md §4.1/§4.2.
func (h *Handlers) TickBatch(c *gin.Context) {
	var req TickBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, validationFailure(err.Error()))
		return
	}
	apiKey := resolveAPIKey(c, req.APIKey)
	if _, ok := h.authenticate(c, req.AccountNumber, apiKey); !ok {
		return
	}
	if len(req.Ticks) == 0 {
		abort(c, validationFailure("ticks must not be empty"))
		return
	}

	ticks := make([]domain.Tick, 0, len(req.Ticks))
	for _, w := range req.Ticks {
		if w.Instrument == "" || w.Bid <= 0 || w.Ask <= 0 || w.Ask < w.Bid {
			abort(c, validationFailure("tick has invalid instrument/bid/ask"))
			return
		}
		ticks = append(ticks, domain.Tick{
			Instrument: w.Instrument, Timestamp: w.Timestamp, Bid: w.Bid, Ask: w.Ask,
			Volume: w.Volume, Tradeable: w.Tradeable,
		})
	}
	h.ticks.Ingest(c.Request.Context(), ticks)
	h.bus.Publish(events.Event{Type: events.EventTickReceived, Timestamp: time.Now().UTC(),
		Data: map[string]interface{}{"account_number": req.AccountNumber, "count": len(ticks)}})
	c.JSON(http.StatusOK, gin.H{"accepted": len(ticks)})
}

// OHLCBatch upserts a batch of candles for one (instrument, timeframe), per
// spec.md §4.1: the whole batch is rejected on the first invariant failure.
func (h *Handlers) OHLCBatch(c *gin.Context) {
	var req OHLCBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, validationFailure(err.Error()))
		return
	}
	ctx := c.Request.Context()
	apiKey := resolveAPIKey(c, req.APIKey)
	if _, ok := h.authenticate(c, req.AccountNumber, apiKey); !ok {
		return
	}

	tf := domain.Timeframe(strings.ToUpper(req.Timeframe))
	candles := make([]domain.OHLCData, 0, len(req.Candles))
	for _, w := range req.Candles {
		candle := domain.OHLCData{
			Instrument: req.Instrument, Timeframe: tf, OpenTime: w.OpenTime,
			Open: w.Open, High: w.High, Low: w.Low, Close: w.Close, Volume: w.Volume,
		}
		if !candle.Valid() {
			abort(c, validationFailure("candle fails OHLC invariant at "+w.OpenTime.String()))
			return
		}
		candles = append(candles, candle)
	}
	for _, candle := range candles {
		if err := h.store.UpsertOHLC(ctx, candle); err != nil {
			abort(c, validationFailure("ohlc upsert failed: "+err.Error()))
			return
		}
	}
	h.bus.Publish(events.Event{Type: events.EventOHLCReceived, Timestamp: time.Now().UTC(),
		Data: map[string]interface{}{"instrument": req.Instrument, "timeframe": string(tf), "count": len(candles)}})
	c.JSON(http.StatusOK, gin.H{"accepted": len(candles)})
}

// TradeUpdate creates or updates a Trade from an EA report, per spec.md
// §4.1/§3. On a close transition it also notifies the auto-optimizer so
// SymbolTradingConfig reacts the same tick the close was reported on.
func (h *Handlers) TradeUpdate(c *gin.Context) {
	var req TradeUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, validationFailure(err.Error()))
		return
	}
	ctx := c.Request.Context()
	apiKey := resolveAPIKey(c, req.APIKey)
	if _, ok := h.authenticate(c, req.AccountNumber, apiKey); !ok {
		return
	}

	direction := domain.Direction(strings.ToUpper(req.Direction))
	if direction != domain.Buy && direction != domain.Sell {
		abort(c, validationFailure("direction must be BUY or SELL"))
		return
	}
	status := domain.TradeStatus(strings.ToLower(req.Status))

	t := &domain.Trade{
		AccountNumber: req.AccountNumber, Ticket: req.Ticket, Instrument: req.Instrument,
		Direction: direction, Volume: req.Volume, OpenPrice: req.OpenPrice, OpenTime: req.OpenTime,
		ClosePrice: req.ClosePrice, CloseTime: req.CloseTime, SL: req.SL, TP: req.TP,
		Profit: req.Profit, Commission: req.Commission, Swap: req.Swap, Status: status,
		Source: domain.TradeSource(req.Source), SignalID: req.SignalID, CommandID: req.CommandID,
		EntryVolatility: req.EntryVolatility, EntrySpread: req.EntrySpread,
		EntryBid: req.EntryBid, EntryAsk: req.EntryAsk,
	}
	if req.CloseReason != "" {
		cr := domain.CloseReason(req.CloseReason)
		t.CloseReason = &cr
	}
	if t.Source == "" {
		t.Source = domain.SourceEACommand
	}

	if err := h.store.UpsertTradeFromEA(ctx, t); err != nil {
		abort(c, validationFailure("trade upsert failed: "+err.Error()))
		return
	}

	if status == domain.TradeClosed {
		win := t.Profit > 0
		h.bus.PublishTradeClosed(t.AccountNumber, t.Instrument, t.OpenPrice, floatOrZero(t.ClosePrice), t.Volume, t.Profit, string(reasonOrEmpty(t.CloseReason)))
		if h.optimizer != nil {
			if err := h.optimizer.OnTradeClosed(ctx, t.AccountNumber, t.Instrument, t.Direction, win); err != nil {
				log.Error().Err(err).Int64("account_number", t.AccountNumber).Str("instrument", t.Instrument).
					Msg("ingestion: auto-optimizer update failed after trade close")
			}
		}
	} else {
		h.bus.PublishTradeOpened(t.AccountNumber, t.Instrument, string(t.Direction), t.OpenPrice, t.Volume)
	}
	c.JSON(http.StatusOK, gin.H{"id": t.ID})
}

func floatOrZero(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}

func reasonOrEmpty(r *domain.CloseReason) domain.CloseReason {
	if r == nil {
		return ""
	}
	return *r
}

// CommandResponse transitions a delivered command to its terminal state, per
// spec.md §4.1/§4.7.
func (h *Handlers) CommandResponse(c *gin.Context) {
	var req CommandResponseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, validationFailure(err.Error()))
		return
	}
	ctx := c.Request.Context()
	apiKey := resolveAPIKey(c, req.APIKey)
	if _, ok := h.authenticate(c, req.AccountNumber, apiKey); !ok {
		return
	}

	cmd, err := h.store.GetCommand(ctx, req.CommandID)
	if err != nil {
		abort(c, validationFailure("command lookup failed: "+err.Error()))
		return
	}
	if cmd == nil {
		abort(c, validationFailure("unknown command id"))
		return
	}
	if cmd.AccountNumber != req.AccountNumber {
		abort(c, conflictFailure("command belongs to a different account"))
		return
	}

	switch strings.ToLower(req.Status) {
	case "completed":
		if err := h.store.CompleteCommand(ctx, req.CommandID, req.Response, req.LinkedTicket); err != nil {
			abort(c, validationFailure("command completion failed: "+err.Error()))
			return
		}
		h.bus.Publish(events.Event{Type: events.EventCommandCompleted, Timestamp: time.Now().UTC(),
			Data: map[string]interface{}{"account_number": req.AccountNumber, "command_id": req.CommandID}})
	case "failed":
		if err := h.store.FailCommand(ctx, req.CommandID, req.ErrorMessage); err != nil {
			abort(c, validationFailure("command failure record failed: "+err.Error()))
			return
		}
		h.bus.Publish(events.Event{Type: events.EventCommandFailed, Timestamp: time.Now().UTC(),
			Data: map[string]interface{}{"account_number": req.AccountNumber, "command_id": req.CommandID, "error": req.ErrorMessage}})
	default:
		abort(c, validationFailure("status must be completed or failed"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Log inserts an EA or server-originated log line.
func (h *Handlers) Log(c *gin.Context) {
	var req LogRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, validationFailure(err.Error()))
		return
	}
	if req.AccountNumber != nil {
		apiKey := resolveAPIKey(c, req.APIKey)
		if _, ok := h.authenticate(c, *req.AccountNumber, apiKey); !ok {
			return
		}
	}
	entry := domain.LogEntry{
		AccountNumber: req.AccountNumber, Level: domain.LogLevel(strings.ToUpper(req.Level)),
		Message: req.Message, Details: req.Details, Timestamp: time.Now().UTC(),
	}
	if err := h.store.InsertLog(c.Request.Context(), entry); err != nil {
		abort(c, validationFailure("log insert failed: "+err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
