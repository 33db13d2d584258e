package protocol

import (
	"encoding/binary"
	"fmt"
)

// All multi-byte fields on the wire are big-endian. The handshake is a
// single uint32 player id; a broadcast frame is a sequence of
// EntityRecordSize-byte records with no header — the record count is
// implied by the frame length. An empty frame is a valid empty batch.

// EntityRecordSize is the wire size of one visible-entity record:
// uint32 id, int32 x/y/z position, int32 x/y/z rotation.
const EntityRecordSize = 28

// HandshakeSize is the wire size of the id handshake frame.
const HandshakeSize = 4

// Entity is one visible-entity record in a broadcast batch.
type Entity struct {
	ID         uint32
	X, Y, Z    int32
	RX, RY, RZ int32
}

// Writer accumulates one broadcast frame.
type Writer struct {
	buf []byte
}

// NewWriter returns a Writer sized for the given number of records.
func NewWriter(records int) *Writer {
	return &Writer{buf: make([]byte, 0, records*EntityRecordSize)}
}

// AppendEntity appends one record to the frame.
func (w *Writer) AppendEntity(e Entity) {
	w.buf = binary.BigEndian.AppendUint32(w.buf, e.ID)
	w.buf = binary.BigEndian.AppendUint32(w.buf, uint32(e.X))
	w.buf = binary.BigEndian.AppendUint32(w.buf, uint32(e.Y))
	w.buf = binary.BigEndian.AppendUint32(w.buf, uint32(e.Z))
	w.buf = binary.BigEndian.AppendUint32(w.buf, uint32(e.RX))
	w.buf = binary.BigEndian.AppendUint32(w.buf, uint32(e.RY))
	w.buf = binary.BigEndian.AppendUint32(w.buf, uint32(e.RZ))
}

// Len returns the number of records appended so far.
func (w *Writer) Len() int {
	return len(w.buf) / EntityRecordSize
}

// Bytes returns the finished frame payload.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// DecodeBatch parses a broadcast frame back into records.
func DecodeBatch(b []byte) ([]Entity, error) {
	if len(b)%EntityRecordSize != 0 {
		return nil, fmt.Errorf("batch length %d not a multiple of %d", len(b), EntityRecordSize)
	}
	out := make([]Entity, 0, len(b)/EntityRecordSize)
	for off := 0; off < len(b); off += EntityRecordSize {
		r := b[off : off+EntityRecordSize]
		out = append(out, Entity{
			ID: binary.BigEndian.Uint32(r[0:4]),
			X:  int32(binary.BigEndian.Uint32(r[4:8])),
			Y:  int32(binary.BigEndian.Uint32(r[8:12])),
			Z:  int32(binary.BigEndian.Uint32(r[12:16])),
			RX: int32(binary.BigEndian.Uint32(r[16:20])),
			RY: int32(binary.BigEndian.Uint32(r[20:24])),
			RZ: int32(binary.BigEndian.Uint32(r[24:28])),
		})
	}
	return out, nil
}

// EncodeHandshake builds the first server frame: the assigned player id.
func EncodeHandshake(id uint32) []byte {
	var b [HandshakeSize]byte
	binary.BigEndian.PutUint32(b[:], id)
	return b[:]
}

// DecodeHandshake parses the handshake frame.
func DecodeHandshake(b []byte) (uint32, error) {
	if len(b) != HandshakeSize {
		return 0, fmt.Errorf("handshake length %d, want %d", len(b), HandshakeSize)
	}
	return binary.BigEndian.Uint32(b), nil
}
