package server

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"github.com/aristath/riskwatch/internal/events"
)

// wsWriteWait bounds a single frame write.
const wsWriteWait = 10 * time.Second

// EventsSocketHandler streams bus events to WebSocket clients. It
// serves the same payloads as the SSE stream for clients that cannot
// consume SSE.
type EventsSocketHandler struct {
	eventBus *events.Bus
	log      zerolog.Logger
}

// NewEventsSocketHandler creates the WebSocket feed handler
func NewEventsSocketHandler(eventBus *events.Bus, log zerolog.Logger) *EventsSocketHandler {
	return &EventsSocketHandler{
		eventBus: eventBus,
		log:      log.With().Str("component", "events_socket").Logger(),
	}
}

// ServeHTTP handles GET /api/events/ws
func (h *EventsSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	typesParam := r.URL.Query().Get("types")
	typeFilter := parseTypeFilter(typesParam)

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.log.Warn().Err(err).Msg("WebSocket accept failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream aborted")

	h.log.Info().
		Str("remote_addr", r.RemoteAddr).
		Str("types", typesParam).
		Msg("WebSocket client connected")

	// The feed is write-only; CloseRead cancels the context when the
	// client closes or sends anything.
	ctx := conn.CloseRead(r.Context())

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

	if err := h.write(ctx, conn, `{"type":"connected","message":"Connected to event stream"}`); err != nil {
		h.logWriteError(err)
		return
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			h.log.Debug().Str("remote_addr", r.RemoteAddr).Msg("WebSocket client disconnected")
			conn.Close(websocket.StatusNormalClosure, "")
			return

		case event := <-eventChan:
			if err := h.write(ctx, conn, encodeStreamEvent(h.log, event)); err != nil {
				h.logWriteError(err)
				return
			}

		case <-heartbeat.C:
			pingCtx, cancel := context.WithTimeout(ctx, wsWriteWait)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				h.log.Debug().Err(err).Msg("WebSocket ping failed, closing")
				return
			}
		}
	}
}

// write sends one text frame with a bounded write deadline
func (h *EventsSocketHandler) write(ctx context.Context, conn *websocket.Conn, payload string) error {
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteWait)
	defer cancel()

	return conn.Write(writeCtx, websocket.MessageText, []byte(payload))
}

// logWriteError logs a failed frame write, quietly for normal closes
func (h *EventsSocketHandler) logWriteError(err error) {
	closeStatus := websocket.CloseStatus(err)
	if closeStatus == websocket.StatusNormalClosure || closeStatus == websocket.StatusGoingAway {
		h.log.Info().Int("status", int(closeStatus)).Msg("WebSocket closed normally")
		return
	}

	h.log.Warn().Err(err).Msg("WebSocket write failed")
}
