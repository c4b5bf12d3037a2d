// Package codec holds the small big-endian append/read helpers shared by
// the DoIP identifier, address, and message codecs. Nothing here knows
// about DoIP semantics; it is pure byte-buffer plumbing.
package codec

import "encoding/binary"

// AppendUint16 appends v to dst in big-endian order.
func AppendUint16(dst []byte, v uint16) []byte {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], v)
	return append(dst, buf[:]...)
}

// AppendUint32 appends v to dst in big-endian order.
func AppendUint32(dst []byte, v uint32) []byte {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	return append(dst, buf[:]...)
}

// PutUint16 writes v into dst[0:2] in big-endian order.
func PutUint16(dst []byte, v uint16) {
	binary.BigEndian.PutUint16(dst, v)
}

// PutUint32 writes v into dst[0:4] in big-endian order.
func PutUint32(dst []byte, v uint32) {
	binary.BigEndian.PutUint32(dst, v)
}

// ReadUint16 reads a big-endian uint16 from the first two bytes of b.
// Caller must ensure len(b) >= 2.
func ReadUint16(b []byte) uint16 {
	return binary.BigEndian.Uint16(b)
}

// ReadUint32 reads a big-endian uint32 from the first four bytes of b.
// Caller must ensure len(b) >= 4.
func ReadUint32(b []byte) uint32 {
	return binary.BigEndian.Uint32(b)
}

// View returns a sub-slice [start:end] of b without copying. Used on the
// send path so messages can hand out borrowed views of their own buffer.
func View(b []byte, start, end int) []byte {
	return b[start:end]
}
