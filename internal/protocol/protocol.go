// Package protocol implements the client-facing wire format: text
// commands inbound, fixed-width big-endian binary records outbound.
package protocol

import (
	"strconv"
	"strings"
)

// Kind identifies a parsed client command.
type Kind int

const (
	KindInvalid Kind = iota
	KindSetInterest
	KindSetPosition
	KindSetRotation
)

// Command is the decoded form of one inbound text frame.
// X/Y/Z carry the position, rotation, or interest center depending on
// Kind; Radius is set only for KindSetInterest.
type Command struct {
	Kind    Kind
	X, Y, Z int32
	Radius  uint32
}

const (
	NameSetInterest = "SetInterest"
	NameSetPosition = "SetPosition"
	NameSetRotation = "SetRotation"
)

// Parse decodes one text frame into a Command and the acknowledgement
// line to send back. On any failure Kind is KindInvalid, the ack carries
// the error ("<Name> Invalid" for wrong arity, "<Name> BadInt" for a
// non-integer token, "Unknown <name>" for an unrecognized command) and
// no world mutation may happen.
func Parse(line string) (Command, string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{}, "Invalid"
	}

	name := fields[0]
	args := fields[1:]
	switch name {
	case NameSetInterest:
		if len(args) != 4 {
			return Command{}, name + " Invalid"
		}
		x, y, z, ok := parseVec(args[0], args[1], args[2])
		if !ok {
			return Command{}, name + " BadInt"
		}
		r, err := strconv.ParseUint(args[3], 10, 32)
		if err != nil {
			return Command{}, name + " BadInt"
		}
		return Command{Kind: KindSetInterest, X: x, Y: y, Z: z, Radius: uint32(r)}, name + " Ok"

	case NameSetPosition, NameSetRotation:
		if len(args) != 3 {
			return Command{}, name + " Invalid"
		}
		x, y, z, ok := parseVec(args[0], args[1], args[2])
		if !ok {
			return Command{}, name + " BadInt"
		}
		kind := KindSetPosition
		if name == NameSetRotation {
			kind = KindSetRotation
		}
		return Command{Kind: kind, X: x, Y: y, Z: z}, name + " Ok"

	default:
		return Command{}, "Unknown " + name
	}
}

func parseVec(sx, sy, sz string) (x, y, z int32, ok bool) {
	vx, err := strconv.ParseInt(sx, 10, 32)
	if err != nil {
		return 0, 0, 0, false
	}
	vy, err := strconv.ParseInt(sy, 10, 32)
	if err != nil {
		return 0, 0, 0, false
	}
	vz, err := strconv.ParseInt(sz, 10, 32)
	if err != nil {
		return 0, 0, 0, false
	}
	return int32(vx), int32(vy), int32(vz), true
}
