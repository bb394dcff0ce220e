package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// maxStreamClients caps concurrent websocket subscribers.
	maxStreamClients = 200

	streamWriteWait  = 5 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// The API carries no auth; origin checks would add none.
		return true
	},
}

// streamEvents implements GET /events/stream: a websocket that receives
// every journaled event as JSON. Each connection is one broker
// subscriber; a client that cannot keep up misses events rather than
// blocking the journal (the broker drops, this handler just writes).
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	if s.broker == nil {
		s.writeError(w, http.StatusServiceUnavailable, "event stream not available")
		return
	}
	if n := s.streamClients.Add(1); n > maxStreamClients {
		s.streamClients.Add(-1)
		s.writeError(w, http.StatusServiceUnavailable, "too many stream clients")
		return
	}
	defer s.streamClients.Add(-1)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written its error response.
		s.logger.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	sub := s.broker.Subscribe()
	defer s.broker.Unsubscribe(sub)

	s.logger.Debug().Msg("Stream client connected")

	// Read pump: detects disconnects and keeps the pong deadline fresh.
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(streamPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(streamPingPeriod)
	defer ping.Stop()

	for {
		select {
		case event, ok := <-sub:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteJSON(event); err != nil {
				s.logger.Debug().Err(err).Msg("Stream client write failed")
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
