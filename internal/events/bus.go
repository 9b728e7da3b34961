package events

import (
	"sync"
	"time"
)

// EventType represents different types of events in the system.
type EventType string

const (
	EventTickReceived         EventType = "TICK_RECEIVED"
	EventOHLCReceived          EventType = "OHLC_RECEIVED"
	EventSignalGenerated       EventType = "SIGNAL_GENERATED"
	EventSignalExpired         EventType = "SIGNAL_EXPIRED"
	EventTradeOpened           EventType = "TRADE_OPENED"
	EventTradeClosed           EventType = "TRADE_CLOSED"
	EventTradeUpdate           EventType = "TRADE_UPDATE"
	EventCommandIssued         EventType = "COMMAND_ISSUED"
	EventCommandCompleted      EventType = "COMMAND_COMPLETED"
	EventCommandFailed         EventType = "COMMAND_FAILED"
	EventCircuitBreakerTripped EventType = "CIRCUIT_BREAKER_TRIPPED"
	EventCircuitBreakerReset   EventType = "CIRCUIT_BREAKER_RESET"
	EventSymbolPaused          EventType = "SYMBOL_PAUSED"
	EventSymbolResumed         EventType = "SYMBOL_RESUMED"
	EventShadowTradeOpened     EventType = "SHADOW_TRADE_OPENED"
	EventShadowTradeClosed     EventType = "SHADOW_TRADE_CLOSED"
	EventAccountConnected      EventType = "ACCOUNT_CONNECTED"
	EventAccountDisconnected   EventType = "ACCOUNT_DISCONNECTED"
	EventBalanceUpdate         EventType = "BALANCE_UPDATE"
	EventDecisionLogged        EventType = "DECISION_LOGGED"
	EventError                 EventType = "ERROR"
)

// Event represents a system event.
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber is a function that handles events.
type Subscriber func(Event)

// EventBus manages event publishing and subscriptions.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber
}

// NewEventBus creates a new event bus.
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]Subscriber),
		allSubs:     make([]Subscriber, 0),
	}
}

// Subscribe registers a subscriber for a specific event type.
func (eb *EventBus) Subscribe(eventType EventType, subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for all events.
func (eb *EventBus) SubscribeAll(subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.allSubs = append(eb.allSubs, subscriber)
}

// Publish sends an event to all subscribers, each notified in its own
// goroutine so a slow subscriber never blocks the publisher.
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if subs, ok := eb.subscribers[event.Type]; ok {
		for _, sub := range subs {
			go sub(event)
		}
	}

	for _, sub := range eb.allSubs {
		go sub(event)
	}
}

// PublishTradeOpened publishes a trade-opened event.
func (eb *EventBus) PublishTradeOpened(accountNumber int64, instrument, direction string, openPrice, volume float64) {
	eb.Publish(Event{
		Type: EventTradeOpened,
		Data: map[string]interface{}{
			"account_number": accountNumber,
			"instrument":     instrument,
			"direction":      direction,
			"open_price":     openPrice,
			"volume":         volume,
		},
	})
}

// PublishTradeClosed publishes a trade-closed event.
func (eb *EventBus) PublishTradeClosed(accountNumber int64, instrument string, openPrice, closePrice, volume, profit float64, reason string) {
	eb.Publish(Event{
		Type: EventTradeClosed,
		Data: map[string]interface{}{
			"account_number": accountNumber,
			"instrument":     instrument,
			"open_price":     openPrice,
			"close_price":    closePrice,
			"volume":         volume,
			"profit":         profit,
			"close_reason":   reason,
		},
	})
}

// PublishSignal publishes a signal-generated event.
func (eb *EventBus) PublishSignal(instrument, timeframe, direction string, confidence float64) {
	eb.Publish(Event{
		Type: EventSignalGenerated,
		Data: map[string]interface{}{
			"instrument": instrument,
			"timeframe":  timeframe,
			"direction":  direction,
			"confidence": confidence,
		},
	})
}

// PublishCommandIssued publishes a command-issued event.
func (eb *EventBus) PublishCommandIssued(accountNumber int64, commandID, commandType string) {
	eb.Publish(Event{
		Type: EventCommandIssued,
		Data: map[string]interface{}{
			"account_number": accountNumber,
			"command_id":     commandID,
			"command_type":   commandType,
		},
	})
}

// PublishCircuitBreakerTripped publishes a circuit-breaker-tripped event.
func (eb *EventBus) PublishCircuitBreakerTripped(accountNumber int64, reason string) {
	eb.Publish(Event{
		Type: EventCircuitBreakerTripped,
		Data: map[string]interface{}{
			"account_number": accountNumber,
			"reason":         reason,
		},
	})
}

// PublishBalanceUpdate publishes an account balance/equity update event.
func (eb *EventBus) PublishBalanceUpdate(accountNumber int64, balance, equity, margin float64) {
	eb.Publish(Event{
		Type: EventBalanceUpdate,
		Data: map[string]interface{}{
			"account_number": accountNumber,
			"balance":        balance,
			"equity":         equity,
			"margin":         margin,
		},
	})
}

// PublishError publishes an error event.
func (eb *EventBus) PublishError(source, message string, err error) {
	data := map[string]interface{}{
		"source":  source,
		"message": message,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	eb.Publish(Event{
		Type: EventError,
		Data: data,
	})
}

// BroadcastFunc is a callback for broadcasting events to a specific account's
// dashboard websocket connections, without the component packages needing to
// import the dashboard package and create an import cycle.
type BroadcastFunc func(accountNumber int64, data interface{})

var (
	broadcastTradeUpdate    BroadcastFunc
	broadcastSignalUpdate   BroadcastFunc
	broadcastCircuitBreaker BroadcastFunc
	broadcastAccountUpdate  BroadcastFunc
	broadcastCommandUpdate  BroadcastFunc
)

// SetBroadcastTradeUpdate wires the dashboard's trade-update broadcaster.
func SetBroadcastTradeUpdate(fn BroadcastFunc) { broadcastTradeUpdate = fn }

// SetBroadcastSignalUpdate wires the dashboard's signal-update broadcaster.
func SetBroadcastSignalUpdate(fn BroadcastFunc) { broadcastSignalUpdate = fn }

// SetBroadcastCircuitBreaker wires the dashboard's circuit-breaker broadcaster.
func SetBroadcastCircuitBreaker(fn BroadcastFunc) { broadcastCircuitBreaker = fn }

// SetBroadcastAccountUpdate wires the dashboard's account-snapshot broadcaster.
func SetBroadcastAccountUpdate(fn BroadcastFunc) { broadcastAccountUpdate = fn }

// SetBroadcastCommandUpdate wires the dashboard's command-status broadcaster.
func SetBroadcastCommandUpdate(fn BroadcastFunc) { broadcastCommandUpdate = fn }

// BroadcastTradeUpdate pushes a trade update to an account's dashboard
// connections, a no-op until the dashboard has wired a callback.
func BroadcastTradeUpdate(accountNumber int64, data interface{}) {
	if broadcastTradeUpdate != nil {
		go broadcastTradeUpdate(accountNumber, data)
	}
}

// BroadcastSignalUpdate pushes a signal update to an account's dashboard
// connections.
func BroadcastSignalUpdate(accountNumber int64, data interface{}) {
	if broadcastSignalUpdate != nil {
		go broadcastSignalUpdate(accountNumber, data)
	}
}

// BroadcastCircuitBreaker pushes circuit breaker state to an account's
// dashboard connections.
func BroadcastCircuitBreaker(accountNumber int64, data interface{}) {
	if broadcastCircuitBreaker != nil {
		go broadcastCircuitBreaker(accountNumber, data)
	}
}

// BroadcastAccountUpdate pushes an account balance/equity snapshot.
func BroadcastAccountUpdate(accountNumber int64, data interface{}) {
	if broadcastAccountUpdate != nil {
		go broadcastAccountUpdate(accountNumber, data)
	}
}

// BroadcastCommandUpdate pushes a command status change.
func BroadcastCommandUpdate(accountNumber int64, data interface{}) {
	if broadcastCommandUpdate != nil {
		go broadcastCommandUpdate(accountNumber, data)
	}
}
