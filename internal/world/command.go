package world

// Commands are the only way to reach world state. Each variant mutates
// the world on the actor goroutine, in command-channel arrival order.
// Mutations for an id the world no longer knows are silent no-ops: a
// disconnect and a late command from the same client may cross on the
// channel, and the loser must not be treated as an error.

type command interface {
	apply(w *World)
}

// ConnectReply carries the actor's answer to a connect request.
type ConnectReply struct {
	ID     PlayerID
	Outbox <-chan []byte
}

type connectCmd struct {
	reply chan ConnectReply
}

func (c connectCmd) apply(w *World) {
	id := w.nextID
	w.nextID++

	outbox := make(chan []byte, w.outboxSize)
	w.players[id] = &Player{ID: id, outbox: outbox}
	w.metrics.IncConnects()

	// reply is buffered (cap 1), the send never blocks the actor.
	c.reply <- ConnectReply{ID: id, Outbox: outbox}
}

type disconnectCmd struct {
	id PlayerID
}

func (c disconnectCmd) apply(w *World) {
	p, ok := w.players[c.id]
	if !ok {
		return // idempotent
	}
	close(p.outbox)
	delete(w.players, c.id)
	w.metrics.IncDisconnects()
}

type setInterestCmd struct {
	id     PlayerID
	center Vec3
	radius uint32
}

func (c setInterestCmd) apply(w *World) {
	p, ok := w.players[c.id]
	if !ok {
		w.metrics.IncStaleCommands()
		return
	}
	p.Interest = &InterestRegion{Center: c.center, Radius: c.radius}
}

type setPositionCmd struct {
	id  PlayerID
	pos Vec3
}

func (c setPositionCmd) apply(w *World) {
	p, ok := w.players[c.id]
	if !ok {
		w.metrics.IncStaleCommands()
		return
	}
	p.Position = c.pos
}

type setRotationCmd struct {
	id  PlayerID
	rot Vec3
}

func (c setRotationCmd) apply(w *World) {
	p, ok := w.players[c.id]
	if !ok {
		w.metrics.IncStaleCommands()
		return
	}
	p.Rotation = c.rot
}
