package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/teemow/inboxcopilot/internal/logging"
	"github.com/teemow/inboxcopilot/internal/status"
)

// eventWriteTimeout bounds a single websocket write.
const eventWriteTimeout = 5 * time.Second

// EventsHandler streams status hub events over a websocket. Each message is
// a JSON status.Event; the first one is the current snapshot.
type EventsHandler struct {
	hub            *status.Hub
	logger         *slog.Logger
	originPatterns []string
}

// NewEventsHandler creates an EventsHandler. With no origin patterns only
// same-origin clients are accepted.
func NewEventsHandler(hub *status.Hub, logger *slog.Logger, originPatterns []string) *EventsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventsHandler{
		hub:            hub,
		logger:         logger.With("component", "events"),
		originPatterns: originPatterns,
	}
}

// ServeHTTP implements http.Handler for the websocket upgrade.
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		h.logger.Warn("failed to accept websocket", logging.Err(err), "ip", r.RemoteAddr)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "stream ended"); closeErr != nil {
			h.logger.Debug("failed to close websocket", logging.Err(closeErr))
		}
	}()

	// The stream is one-way; CloseRead handles control frames and cancels
	// ctx when the client goes away.
	ctx := ws.CloseRead(r.Context())

	events, cancel := h.hub.Subscribe()
	defer cancel()

	h.logger.Debug("event subscriber connected", "ip", r.RemoteAddr)

	if err := h.write(ctx, ws, status.Event{Type: status.EventSnapshot, Snapshot: h.hub.Snapshot()}); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("event subscriber disconnected", "ip", r.RemoteAddr)
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := h.write(ctx, ws, ev); err != nil {
				return
			}
		}
	}
}

func (h *EventsHandler) write(ctx context.Context, ws *websocket.Conn, ev status.Event) error {
	writeCtx, cancel := context.WithTimeout(ctx, eventWriteTimeout)
	defer cancel()
	if err := wsjson.Write(writeCtx, ws, ev); err != nil {
		if ctx.Err() == nil {
			h.logger.Debug("websocket write error", logging.Err(err))
		}
		return err
	}
	return nil
}
