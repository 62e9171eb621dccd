// Package events provides the in-process event bus used to fan out
// domain events to SSE/WebSocket clients and background listeners.
package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// EventType represents different event types
type EventType string

const (
	// Risk engine events
	RiskScoreCalculated EventType = "RISK_SCORE_CALCULATED"
	RiskBatchCompleted  EventType = "RISK_BATCH_COMPLETED"

	// Market data events
	CompanyAdded EventType = "COMPANY_ADDED"
	PriceUpdated EventType = "PRICE_UPDATED"
	NewsUpdated  EventType = "NEWS_UPDATED"

	// Infrastructure events
	AnalyticsSynced     EventType = "ANALYTICS_SYNCED"
	GraphStatusChanged  EventType = "GRAPH_STATUS_CHANGED"
	SystemStatusChanged EventType = "SYSTEM_STATUS_CHANGED"
	BackupCompleted     EventType = "BACKUP_COMPLETED"
	ErrorOccurred       EventType = "ERROR_OCCURRED"

	// Job lifecycle events
	JobStarted   EventType = "JOB_STARTED"
	JobProgress  EventType = "JOB_PROGRESS"
	JobCompleted EventType = "JOB_COMPLETED"
	JobFailed    EventType = "JOB_FAILED"
)

// Event represents a system event with typed data
// The Data field can be either EventData (typed) or map[string]interface{} (legacy)
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
	Module    string                 `json:"module"`
}

// GetTypedData attempts to convert the legacy Data map to typed EventData
// Returns the typed data if conversion is successful, nil otherwise
func (e *Event) GetTypedData() EventData {
	if e.Data == nil {
		return nil
	}

	switch e.Type {
	case RiskScoreCalculated:
		var data RiskScoreCalculatedData
		if err := convertMapToStruct(e.Data, &data); err == nil {
			return &data
		}
	case RiskBatchCompleted:
		var data RiskBatchCompletedData
		if err := convertMapToStruct(e.Data, &data); err == nil {
			return &data
		}
	case CompanyAdded:
		var data CompanyAddedData
		if err := convertMapToStruct(e.Data, &data); err == nil {
			return &data
		}
	case PriceUpdated:
		var data PriceUpdatedData
		if err := convertMapToStruct(e.Data, &data); err == nil {
			return &data
		}
	case NewsUpdated:
		var data NewsUpdatedData
		if err := convertMapToStruct(e.Data, &data); err == nil {
			return &data
		}
	case AnalyticsSynced:
		var data AnalyticsSyncedData
		if err := convertMapToStruct(e.Data, &data); err == nil {
			return &data
		}
	case GraphStatusChanged:
		var data GraphStatusChangedData
		if err := convertMapToStruct(e.Data, &data); err == nil {
			return &data
		}
	case SystemStatusChanged:
		var data SystemStatusChangedData
		if err := convertMapToStruct(e.Data, &data); err == nil {
			return &data
		}
	case BackupCompleted:
		var data BackupCompletedData
		if err := convertMapToStruct(e.Data, &data); err == nil {
			return &data
		}
	case ErrorOccurred:
		var data ErrorEventData
		if err := convertMapToStruct(e.Data, &data); err == nil {
			return &data
		}
	case JobStarted, JobProgress, JobCompleted, JobFailed:
		var data JobStatusData
		if err := convertMapToStruct(e.Data, &data); err == nil {
			return &data
		}
	}

	return nil
}

// Bus is an in-process publish/subscribe event bus.
// Handlers are invoked synchronously on the publisher's goroutine and
// must not block; slow consumers should buffer and drop on their side.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[EventType]map[int]func(*Event)
	nextID      int
	log         zerolog.Logger
}

// NewBus creates a new event bus
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		subscribers: make(map[EventType]map[int]func(*Event)),
		log:         log.With().Str("service", "event_bus").Logger(),
	}
}

// Subscribe registers a handler for the given event type.
// Returns an unsubscribe function that removes the handler.
func (b *Bus) Subscribe(eventType EventType, handler func(*Event)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subscribers[eventType] == nil {
		b.subscribers[eventType] = make(map[int]func(*Event))
	}

	id := b.nextID
	b.nextID++
	b.subscribers[eventType][id] = handler

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subscribers[eventType], id)
	}
}

// Emit constructs an event and delivers it to all subscribers of its type
func (b *Bus) Emit(eventType EventType, module string, data map[string]interface{}) {
	event := &Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
		Module:    module,
	}

	// Snapshot handlers so subscribers can (un)subscribe from within a handler
	b.mu.RLock()
	handlers := make([]func(*Event), 0, len(b.subscribers[eventType]))
	for _, handler := range b.subscribers[eventType] {
		handlers = append(handlers, handler)
	}
	b.mu.RUnlock()

	for _, handler := range handlers {
		handler(event)
	}

	b.log.Debug().
		Str("event_type", string(eventType)).
		Str("module", module).
		Int("handlers", len(handlers)).
		Msg("Event delivered")
}

// SubscriberCount returns the number of handlers registered for a type
func (b *Bus) SubscriberCount(eventType EventType) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[eventType])
}
