package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/MJE43/buried-treasure-go/internal/game"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = 50 * time.Second
)

func (s *Server) newUpgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  4 << 10,
		WriteBufferSize: 16 << 10,
		CheckOrigin: func(r *http.Request) bool {
			if s.allowOrigin == "*" {
				return true
			}
			origin := r.Header.Get("Origin")
			return origin == "" || origin == s.allowOrigin
		},
	}
}

// handleStream pushes the caller's record over a websocket: once on
// connect, then after every applied action.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetReqID(r.Context())
	wallet := r.URL.Query().Get("wallet")
	if err := ValidateWallet(wallet); err != nil {
		s.validationFailed(w, r, err)
		return
	}

	// Subscribe before the first read so no update slips between them.
	updates, cancel := s.engine.Subscribe(wallet)
	defer cancel()

	rec, err := s.engine.State(r.Context(), wallet)
	if errors.Is(err, game.ErrNotRegistered) {
		var reg game.Registration
		reg, err = s.engine.Register(r.Context(), wallet)
		rec = reg.State
	}
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}

	conn, err := s.newUpgrader().Upgrade(w, r, nil)
	if err != nil {
		s.logger.Printf("stream_upgrade_failed request_id=%s err=%v", requestID, err)
		return
	}
	defer conn.Close()

	s.logger.Printf("stream_opened request_id=%s player=%s", requestID, hashIdentity(wallet))
	defer s.logger.Printf("stream_closed request_id=%s player=%s", requestID, hashIdentity(wallet))

	// The reader only drains control frames and notices the close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
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

	send := func(v any) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
		return conn.WriteJSON(v) == nil
	}

	if !send(rec) {
		return
	}
	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case next, ok := <-updates:
			if !ok || !send(next) {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
				return
			}
		}
	}
}
