package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 20 * time.Second
)

// EventsHandler handles GET /v1/problems/{id}/events. It upgrades to a
// WebSocket and writes every event of the problem as a JSON text message.
// "*" follows every problem.
func (s *Server) EventsHandler(w http.ResponseWriter, r *http.Request) {
	if s.Follow == nil {
		writeProblem(w, http.StatusServiceUnavailable, "Events unavailable", "no event stream is configured", r.URL.Path)
		return
	}
	id := r.PathValue("id")
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	stream, err := s.Follow.Follow(ctx, id)
	if err != nil {
		writeProblem(w, http.StatusServiceUnavailable, "Subscribe failed", err.Error(), r.URL.Path)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()
	log := s.log().With(zap.String("problem_id", id))
	log.Debug("event stream opened")

	// The read loop only handles control frames and notices the client
	// going away.
	conn.SetReadLimit(1 << 10)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(wsPongWait)) })
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(wsWriteWait))
			return
		case evt, ok := <-stream:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(evt); err != nil {
				log.Debug("event stream write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}
