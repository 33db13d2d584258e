package world

import "sync/atomic"

// Metrics holds the world's runtime counters for the /metrics endpoint.
// All fields are updated with atomics so the HTTP handler can read them
// without touching the actor.
type Metrics struct {
	TickCount         int64
	TotalTickNs       int64
	CommandsApplied   int64
	StaleCommands     int64 // commands for an unknown/removed id
	Connects          int64
	Disconnects       int64
	BroadcastsSent    int64
	BroadcastsDropped int64 // outbox full
}

func (m *Metrics) IncCommands()       { atomic.AddInt64(&m.CommandsApplied, 1) }
func (m *Metrics) IncStaleCommands()  { atomic.AddInt64(&m.StaleCommands, 1) }
func (m *Metrics) IncConnects()       { atomic.AddInt64(&m.Connects, 1) }
func (m *Metrics) IncDisconnects()    { atomic.AddInt64(&m.Disconnects, 1) }
func (m *Metrics) IncBroadcasts()     { atomic.AddInt64(&m.BroadcastsSent, 1) }
func (m *Metrics) IncBroadcastDrops() { atomic.AddInt64(&m.BroadcastsDropped, 1) }

func (m *Metrics) AddTick(ns int64) {
	atomic.AddInt64(&m.TickCount, 1)
	atomic.AddInt64(&m.TotalTickNs, ns)
}

// Snapshot returns a read-only copy for HTTP output.
func (m *Metrics) Snapshot() map[string]any {
	ticks := atomic.LoadInt64(&m.TickCount)
	total := atomic.LoadInt64(&m.TotalTickNs)
	var avgMs float64
	if ticks > 0 {
		avgMs = float64(total) / float64(ticks) / 1e6
	}
	connects := atomic.LoadInt64(&m.Connects)
	disconnects := atomic.LoadInt64(&m.Disconnects)
	return map[string]any{
		"tick_count":         ticks,
		"avg_tick_ms":        avgMs,
		"commands_applied":   atomic.LoadInt64(&m.CommandsApplied),
		"stale_commands":     atomic.LoadInt64(&m.StaleCommands),
		"connects":           connects,
		"disconnects":        disconnects,
		"players_online":     connects - disconnects,
		"broadcasts_sent":    atomic.LoadInt64(&m.BroadcastsSent),
		"broadcasts_dropped": atomic.LoadInt64(&m.BroadcastsDropped),
	}
}
