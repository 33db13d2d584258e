package world

import (
	"context"
	"errors"
	"sync"
)

// ErrStopped is returned when a command cannot be delivered because the
// world has been shut down.
var ErrStopped = errors.New("world stopped")

// Handle is the session-facing side of the command channel. Safe for
// concurrent use from any number of sessions; commands from one
// goroutine are observed by the actor in the order they were sent.
type Handle struct {
	cmds chan<- command
	stop chan struct{}
	done <-chan struct{}

	stopOnce sync.Once
}

// Connect registers a new player and blocks until the actor replies
// with the assigned id and the player's broadcast outbox.
func (h *Handle) Connect(ctx context.Context) (PlayerID, <-chan []byte, error) {
	reply := make(chan ConnectReply, 1)
	if err := h.sendCtx(ctx, connectCmd{reply: reply}); err != nil {
		return 0, nil, err
	}
	select {
	case r := <-reply:
		return r.ID, r.Outbox, nil
	case <-ctx.Done():
		// The command is already queued, so the actor will still create
		// the player. Undo it once the reply lands so the entry does
		// not leak. If the actor exits before applying the command no
		// reply ever comes; done releases the goroutine.
		go func() {
			select {
			case r := <-reply:
				h.Disconnect(r.ID)
			case <-h.done:
			}
		}()
		return 0, nil, ctx.Err()
	}
}

// Disconnect removes the player. Safe to call for an id that was
// already removed or never issued, and safe after shutdown.
func (h *Handle) Disconnect(id PlayerID) {
	_ = h.send(disconnectCmd{id: id})
}

// SetInterest declares the region the player wants broadcasts for.
func (h *Handle) SetInterest(id PlayerID, center Vec3, radius uint32) error {
	return h.send(setInterestCmd{id: id, center: center, radius: radius})
}

// SetPosition updates the player's position.
func (h *Handle) SetPosition(id PlayerID, pos Vec3) error {
	return h.send(setPositionCmd{id: id, pos: pos})
}

// SetRotation updates the player's rotation.
func (h *Handle) SetRotation(id PlayerID, rot Vec3) error {
	return h.send(setRotationCmd{id: id, rot: rot})
}

// Shutdown stops the world: the actor drains commands already queued,
// closes every outbox, and exits. Idempotent.
func (h *Handle) Shutdown() {
	h.stopOnce.Do(func() { close(h.stop) })
}

// Done is closed when the actor goroutine has exited.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// send enqueues a command. The stop channel is checked first on its
// own: the command channel is buffered, so a combined select would
// race a still-possible enqueue against the closed stop channel and
// let post-shutdown commands slip through as nil.
func (h *Handle) send(cmd command) error {
	select {
	case <-h.stop:
		return ErrStopped
	default:
	}
	select {
	case h.cmds <- cmd:
		return nil
	case <-h.stop:
		return ErrStopped
	}
}

func (h *Handle) sendCtx(ctx context.Context, cmd command) error {
	select {
	case <-h.stop:
		return ErrStopped
	default:
	}
	select {
	case h.cmds <- cmd:
		return nil
	case <-h.stop:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}
