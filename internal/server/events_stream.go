package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/riskwatch/internal/events"
)

const (
	// eventChanSize buffers bursts; a slow client drops events rather
	// than blocking the bus.
	eventChanSize = 100

	heartbeatInterval = 30 * time.Second
)

// EventsStreamHandler streams bus events to SSE clients
type EventsStreamHandler struct {
	eventBus *events.Bus
	log      zerolog.Logger
}

// NewEventsStreamHandler creates the SSE stream handler
func NewEventsStreamHandler(eventBus *events.Bus, log zerolog.Logger) *EventsStreamHandler {
	return &EventsStreamHandler{
		eventBus: eventBus,
		log:      log.With().Str("component", "events_stream").Logger(),
	}
}

// allEventTypes lists every event type a stream client can subscribe to
func allEventTypes() []events.EventType {
	return []events.EventType{
		events.RiskScoreCalculated,
		events.RiskBatchCompleted,
		events.CompanyAdded,
		events.PriceUpdated,
		events.NewsUpdated,
		events.AnalyticsSynced,
		events.GraphStatusChanged,
		events.SystemStatusChanged,
		events.BackupCompleted,
		events.ErrorOccurred,
		events.JobStarted,
		events.JobProgress,
		events.JobCompleted,
		events.JobFailed,
	}
}

// parseTypeFilter parses the comma separated ?types= parameter. An
// empty result means "all types".
func parseTypeFilter(raw string) map[events.EventType]bool {
	filter := make(map[events.EventType]bool)

	for _, t := range strings.Split(raw, ",") {
		t = strings.TrimSpace(t)
		if t != "" {
			filter[events.EventType(t)] = true
		}
	}

	return filter
}

// subscribeEvents registers the handler for the filtered types, or for
// every type when the filter is empty, and returns the unsubscribe
// functions.
func subscribeEvents(bus *events.Bus, filter map[events.EventType]bool, handler func(*events.Event)) []func() {
	unsubscribes := make([]func(), 0, len(allEventTypes()))

	if len(filter) == 0 {
		for _, eventType := range allEventTypes() {
			unsubscribes = append(unsubscribes, bus.Subscribe(eventType, handler))
		}
		return unsubscribes
	}

	for eventType := range filter {
		unsubscribes = append(unsubscribes, bus.Subscribe(eventType, handler))
	}

	return unsubscribes
}

// encodeStreamEvent marshals the wire payload shared by the SSE and
// WebSocket feeds.
func encodeStreamEvent(log zerolog.Logger, event *events.Event) string {
	payload := map[string]interface{}{
		"type":      string(event.Type),
		"module":    event.Module,
		"timestamp": event.Timestamp.Format(time.RFC3339),
		"data":      event.Data,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("type", string(event.Type)).Msg("Failed to encode event")
		return `{"error":"failed to encode event"}`
	}

	return string(data)
}

// ServeHTTP handles GET /api/events/stream
func (h *EventsStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	typesParam := r.URL.Query().Get("types")
	typeFilter := parseTypeFilter(typesParam)

	h.log.Info().
		Str("remote_addr", r.RemoteAddr).
		Str("types", typesParam).
		Msg("SSE client connected")

	eventChan := make(chan *events.Event, eventChanSize)
	handler := func(event *events.Event) {
		select {
		case eventChan <- event:
		default:
			h.log.Warn().Str("type", string(event.Type)).Msg("Event channel full, dropping event")
		}
	}

	unsubscribes := subscribeEvents(h.eventBus, typeFilter, handler)
	defer func() {
		for _, unsubscribe := range unsubscribes {
			unsubscribe()
		}
	}()

	// Initial message so clients can confirm the stream is live
	fmt.Fprintf(w, "data: %s\n\n", `{"type":"connected","message":"Connected to event stream"}`)
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			h.log.Debug().Str("remote_addr", r.RemoteAddr).Msg("SSE client disconnected")
			return

		case event := <-eventChan:
			fmt.Fprintf(w, "data: %s\n\n", encodeStreamEvent(h.log, event))
			flusher.Flush()

		case <-heartbeat.C:
			fmt.Fprintf(w, "data: %s\n\n", fmt.Sprintf(`{"type":"heartbeat","timestamp":"%s"}`, time.Now().Format(time.RFC3339)))
			flusher.Flush()
		}
	}
}
