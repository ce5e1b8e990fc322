package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
)

// handleFeed serves GET /ws/feed: a WebSocket stream of session events
// (session started, utterances, opener detection, session ended). Each event
// is one JSON text message. Slow clients miss events rather than stalling the
// session pipeline.
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("feed: websocket accept failed", "err", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "feed closed")

	events, cancel := s.manager.Subscribe()
	defer cancel()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusGoingAway, "server shutting down")
			return
		case ev, ok := <-events:
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "feed closed")
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				slog.Warn("feed: marshal event", "err", err)
				continue
			}
			if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
				slog.Debug("feed: client gone", "err", err)
				return
			}
		}
	}
}
