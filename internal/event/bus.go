package event

import (
	"sync"
	"time"
)

// Type names an engine event.
type Type string

// Every event the engine emits. Delivery beyond the registered handlers
// (webhook, chat, pager) is an external collaborator's concern.
const (
	SLOCreated        Type = "sloCreated"
	SLOUpdated        Type = "sloUpdated"
	SLODeleted        Type = "sloDeleted"
	Measured          Type = "measured"
	StateChanged      Type = "stateChanged"
	AlertTriggered    Type = "alertTriggered"
	AlertAcknowledged Type = "alertAcknowledged"
	AlertResolved     Type = "alertResolved"
	BudgetWarning     Type = "budgetWarning"
	BudgetCritical    Type = "budgetCritical"
	BudgetExhausted   Type = "budgetExhausted"
	BurnRateHigh      Type = "burnRateHigh"
	ReportGenerated   Type = "reportGenerated"
	Error             Type = "error"
)

// Event is one emitted engine event.
type Event struct {
	Type      Type        `json:"type"`
	SLOID     string      `json:"sloId,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload,omitempty"`
}

// Handler receives events synchronously on the publishing goroutine.
type Handler func(Event)

// Bus is a synchronous in-process event bus. Emission happens on the
// goroutine that detected the triggering condition; handlers for the same
// SLO therefore observe events in cycle order. No ordering is implied
// across different SLOs.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Type][]Handler
	all      []Handler
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[Type][]Handler)}
}

// Subscribe registers a handler for one event type.
func (b *Bus) Subscribe(t Type, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[t] = append(b.handlers[t], h)
}

// SubscribeAll registers a handler for every event type.
func (b *Bus) SubscribeAll(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, h)
}

// Publish delivers the event to every matching handler before returning.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	typed := b.handlers[e.Type]
	all := b.all
	b.mu.RUnlock()

	for _, h := range typed {
		h(e)
	}
	for _, h := range all {
		h(e)
	}
}
