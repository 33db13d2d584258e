// Package world implements the authoritative world actor. One goroutine
// owns all player state; sessions reach it only through a bounded
// command channel and receive state back through bounded per-player
// outboxes. There is no shared mutable memory and no lock around player
// state.
package world

import (
	"time"

	"go.uber.org/zap"
)

type World struct {
	nextID  PlayerID
	players map[PlayerID]*Player

	cmds chan command
	stop chan struct{}
	done chan struct{}

	tickRate   time.Duration
	outboxSize int

	metrics *Metrics
	log     *zap.Logger
}

// New creates the world and its session-facing handle. Run must be
// started on its own goroutine before the handle is used.
func New(tickRate time.Duration, commandQueueSize, outboxSize int, log *zap.Logger) (*World, *Handle) {
	w := &World{
		nextID:     1,
		players:    make(map[PlayerID]*Player),
		cmds:       make(chan command, commandQueueSize),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
		tickRate:   tickRate,
		outboxSize: outboxSize,
		metrics:    &Metrics{},
		log:        log,
	}
	h := &Handle{cmds: w.cmds, stop: w.stop, done: w.done}
	return w, h
}

// Metrics returns the world's runtime counters.
func (w *World) Metrics() *Metrics {
	return w.metrics
}

// Run drives the world until the handle is shut down.
//
// A command that arrives between ticks is applied immediately (the
// low-latency path). When the tick fires, the remaining queue is
// drained without blocking in arrival order and exactly one broadcast
// pass runs. Ticks missed while the loop was busy collapse into a
// single catch-up pass: time.Ticker holds at most one pending tick, and
// a broadcast pass is an idempotent recomputation of current state.
func (w *World) Run() {
	defer close(w.done)

	ticker := time.NewTicker(w.tickRate)
	defer ticker.Stop()

	w.log.Info("world started", zap.Duration("tick_rate", w.tickRate))
	for {
		select {
		case cmd := <-w.cmds:
			w.apply(cmd)
		case <-ticker.C:
			start := time.Now()
			w.drain()
			w.broadcastPass()
			w.metrics.AddTick(time.Since(start).Nanoseconds())
		case <-w.stop:
			w.drain()
			w.shutdown()
			return
		}
	}
}

func (w *World) apply(cmd command) {
	cmd.apply(w)
	w.metrics.IncCommands()
}

// drain applies every queued command without blocking.
func (w *World) drain() {
	for {
		select {
		case cmd := <-w.cmds:
			w.apply(cmd)
		default:
			return
		}
	}
}

// shutdown closes every outbox so sessions unwind on their write side.
// Stopped is terminal; a fresh world requires a fresh New.
func (w *World) shutdown() {
	for id, p := range w.players {
		close(p.outbox)
		delete(w.players, id)
	}
	w.log.Info("world stopped")
}
