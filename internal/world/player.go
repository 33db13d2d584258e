package world

import "math/bits"

// PlayerID identifies a player for the lifetime of its connection.
// IDs are assigned by the world actor, strictly increasing, and never
// reused while the process runs — a stale id can always be told apart
// from a live one.
type PlayerID uint32

// Vec3 is a position or rotation in quantized world units. The core
// accepts values as-is; range validation is a collaborator's concern.
type Vec3 struct {
	X, Y, Z int32
}

// InterestRegion is the sphere a player wants broadcasts for.
type InterestRegion struct {
	Center Vec3
	Radius uint32
}

// contains reports whether pos lies within the region. Euclidean
// distance, compared as squared integers. An axis delta can span the
// full int32 range, where its square no longer fits in 64 bits, so
// each axis is bounded by the radius first and the remaining squares
// are summed with explicit carry detection. No floats, exact at the
// boundary.
func (r *InterestRegion) contains(pos Vec3) bool {
	rad := uint64(r.Radius)
	dx, ok := axisDelta(pos.X, r.Center.X, rad)
	if !ok {
		return false
	}
	dy, ok := axisDelta(pos.Y, r.Center.Y, rad)
	if !ok {
		return false
	}
	dz, ok := axisDelta(pos.Z, r.Center.Z, rad)
	if !ok {
		return false
	}

	// Each delta is at most rad < 2^32, so each square fits in uint64,
	// as does rad*rad. A carry means the true sum exceeds 64 bits and
	// therefore exceeds rad*rad.
	s, c1 := bits.Add64(dx*dx, dy*dy, 0)
	s, c2 := bits.Add64(s, dz*dz, 0)
	if c1|c2 != 0 {
		return false
	}
	return s <= rad*rad
}

// axisDelta returns |a-b|, or false when that alone exceeds the radius.
func axisDelta(a, b int32, rad uint64) (uint64, bool) {
	d := int64(a) - int64(b)
	if d < 0 {
		d = -d
	}
	ud := uint64(d)
	if ud > rad {
		return 0, false
	}
	return ud, true
}

// Player is the in-world state for one connection. Accessed only from
// the world goroutine — no locks.
type Player struct {
	ID       PlayerID
	Position Vec3
	Rotation Vec3

	// Interest stays nil until the client declares a region; a player
	// without interest receives no broadcasts but remains visible to
	// others.
	Interest *InterestRegion

	outbox chan []byte
}
