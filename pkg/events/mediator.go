// Package events provides pub-sub fan-out of FSM transition events,
// decoupling the engine from its listeners.
package events

import (
	"sync"
	"time"

	"agentloop/pkg/logx"
)

// CategoryDomain classifies transition events as domain events.
const CategoryDomain = "domain"

// TransitionEvent is published on every successful FSM transition.
type TransitionEvent struct {
	FSMID     string    `json:"fsm_id"`
	FromState string    `json:"from_state"`
	ToState   string    `json:"to_state"`
	Timestamp time.Time `json:"timestamp"`
	Category  string    `json:"category"`
}

// Handler consumes a transition event. A failing handler does not prevent
// delivery to other handlers.
type Handler func(event TransitionEvent) error

// Mediator fans transition events out to subscribed handlers synchronously,
// in subscription order.
type Mediator struct {
	mu       sync.RWMutex
	handlers []Handler
	logger   *logx.Logger
}

// NewMediator creates an empty mediator.
func NewMediator() *Mediator {
	return &Mediator{logger: logx.NewLogger("events")}
}

// Subscribe registers a handler for all future events.
func (m *Mediator) Subscribe(h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, h)
}

// Publish delivers the event to every handler. Handler errors are logged and
// swallowed; the first one is returned so callers can log it, but publication
// is considered best-effort.
func (m *Mediator) Publish(event TransitionEvent) error {
	if event.Category == "" {
		event.Category = CategoryDomain
	}

	m.mu.RLock()
	handlers := make([]Handler, len(m.handlers))
	copy(handlers, m.handlers)
	m.mu.RUnlock()

	var firstErr error
	for _, h := range handlers {
		if err := h(event); err != nil {
			m.logger.Warn("event handler failed for %s (%s -> %s): %v",
				event.FSMID, event.FromState, event.ToState, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
