package net

import (
	"net/http"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/driftsync/server/internal/config"
	"github.com/driftsync/server/internal/world"
)

// Server upgrades HTTP requests to WebSocket sessions and hands each
// one to the world through its handle.
type Server struct {
	handle   *world.Handle
	cfg      config.NetworkConfig
	upgrader websocket.Upgrader
	nextID   atomic.Uint64
	log      *zap.Logger
}

func NewServer(handle *world.Handle, cfg config.NetworkConfig, log *zap.Logger) *Server {
	return &Server{
		handle: handle,
		cfg:    cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log: log,
	}
}

// Handler returns the WebSocket endpoint. The session runs on the
// handler goroutine; it returns when the connection is done.
func (s *Server) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.log.Warn("upgrade failed", zap.Error(err))
			return
		}

		id := s.nextID.Add(1)
		log := s.log.With(
			zap.Uint64("session", id),
			zap.String("ip", conn.RemoteAddr().String()),
		)
		NewSession(conn, s.handle, s.cfg, log).Run()
	}
}
