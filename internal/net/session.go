package net

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/driftsync/server/internal/config"
	"github.com/driftsync/server/internal/protocol"
	"github.com/driftsync/server/internal/world"
)

// Session represents a single client connection. The reader runs on the
// HTTP handler goroutine; a dedicated writer goroutine owns all writes
// to the socket. World state is reached only through the world handle.
type Session struct {
	conn   *websocket.Conn
	handle *world.Handle
	cfg    config.NetworkConfig

	id     world.PlayerID
	outbox <-chan []byte
	acks   chan string // readLoop -> writePump, the writer owns the socket

	closeCh   chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool

	// Per-second command rate limiter (readLoop goroutine only, no lock needed)
	cmdPerSec  int   // max commands/sec (0 = unlimited)
	cmdCount   int   // commands received this second
	cmdResetAt int64 // unix second of last counter reset

	log *zap.Logger
}

func NewSession(conn *websocket.Conn, handle *world.Handle, cfg config.NetworkConfig, log *zap.Logger) *Session {
	return &Session{
		conn:      conn,
		handle:    handle,
		cfg:       cfg,
		acks:      make(chan string, 16),
		closeCh:   make(chan struct{}),
		cmdPerSec: cfg.CommandsPerSecond,
		log:       log,
	}
}

// Run registers the player, sends the handshake, and services the
// connection until either side goes away. It blocks for the lifetime of
// the session and always leaves the player deregistered.
func (s *Session) Run() {
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ConnectTimeout)
	id, outbox, err := s.handle.Connect(ctx)
	cancel()
	if err != nil {
		s.log.Warn("join failed", zap.Error(err))
		return
	}
	s.id = id
	s.outbox = outbox
	s.log = s.log.With(zap.Uint32("player", uint32(id)))
	defer s.handle.Disconnect(id)

	// Handshake is written before the writer goroutine starts, so the
	// single-writer rule holds.
	s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	if err := s.conn.WriteMessage(websocket.BinaryMessage, protocol.EncodeHandshake(uint32(id))); err != nil {
		s.log.Debug("handshake write failed", zap.Error(err))
		return
	}

	s.log.Info("player joined")
	go s.writePump()
	s.readLoop()
	s.log.Info("player left")
}

// Close tears down the session. Safe to call from any goroutine,
// idempotent.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.closeCh)
		s.conn.Close()
	})
}

// readLoop consumes text commands from the socket, acknowledges each
// one, and forwards valid commands to the world. Runs until the
// connection errors, the rate limit trips, or the world stops.
func (s *Session) readLoop() {
	s.conn.SetReadLimit(s.cfg.MaxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		return nil
	})

	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			if !s.closed.Load() {
				s.log.Debug("read error", zap.Error(err))
			}
			return
		}

		if s.cmdPerSec > 0 {
			now := time.Now().Unix()
			if now != s.cmdResetAt {
				s.cmdCount = 0
				s.cmdResetAt = now
			}
			s.cmdCount++
			if s.cmdCount > s.cmdPerSec {
				s.log.Warn("command rate exceeded, disconnecting", zap.Int("cps", s.cmdCount))
				return
			}
		}

		cmd, ack := protocol.Parse(string(payload))

		// Every line gets an ack, valid or not. The ack goes through the
		// writer goroutine; if its queue backs up the client is too slow
		// to keep.
		select {
		case s.acks <- ack:
		case <-s.closeCh:
			return
		default:
			s.log.Warn("ack queue full, disconnecting")
			return
		}

		if cmd.Kind == protocol.KindInvalid {
			s.log.Debug("rejected command", zap.String("ack", ack))
			continue
		}
		if err := s.dispatch(cmd); err != nil {
			// World shut down underneath us.
			return
		}
	}
}

func (s *Session) dispatch(cmd protocol.Command) error {
	v := world.Vec3{X: cmd.X, Y: cmd.Y, Z: cmd.Z}
	switch cmd.Kind {
	case protocol.KindSetInterest:
		return s.handle.SetInterest(s.id, v, cmd.Radius)
	case protocol.KindSetPosition:
		return s.handle.SetPosition(s.id, v)
	case protocol.KindSetRotation:
		return s.handle.SetRotation(s.id, v)
	}
	return nil
}

// writePump runs in its own goroutine and is the only writer on the
// socket. It interleaves broadcast frames, command acks, and keepalive
// pings. A closed outbox means the world stopped; the client gets a
// going-away close frame.
func (s *Session) writePump() {
	defer s.Close()

	ping := time.NewTicker(s.cfg.ReadTimeout * 9 / 10)
	defer ping.Stop()

	for {
		select {
		case frame, ok := <-s.outbox:
			if !ok {
				s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
				s.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
				return
			}
			if !s.write(websocket.BinaryMessage, frame) {
				return
			}
		case ack := <-s.acks:
			if !s.write(websocket.TextMessage, []byte(ack)) {
				return
			}
		case <-ping.C:
			if !s.write(websocket.PingMessage, nil) {
				return
			}
		case <-s.closeCh:
			return
		}
	}
}

func (s *Session) write(messageType int, data []byte) bool {
	s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	if err := s.conn.WriteMessage(messageType, data); err != nil {
		if !s.closed.Load() {
			s.log.Debug("write error", zap.Error(err))
		}
		return false
	}
	return true
}
