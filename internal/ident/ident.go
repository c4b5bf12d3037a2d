// Package ident implements the fixed-length DoIP identifiers: the 17-byte
// Vehicle Identification Number and the 6-byte Entity/Group identifiers.
//
// Grounded on the teacher's fixed-width wire-struct convention (e.g.
// tonylturner-cipdip's ENIPEncapsulation.SenderContext [8]byte) generalized
// to the two DoIP identifier widths, and on original_source/inc/DoIPVIN.h's
// GenericFixedId<N> template for the left-justify/pad/truncate shape.
package ident

import "strings"

// VINLength is the wire length of a Vehicle Identification Number.
const VINLength = 17

// EIDLength is the wire length of an Entity or Group identifier.
const EIDLength = 6

// VIN is a 17-byte Vehicle Identification Number, left-justified and
// right-padded with ASCII '0' when constructed from shorter input.
type VIN [VINLength]byte

// NewVIN builds a VIN from s: s is uppercased, then if shorter than
// VINLength right-padded with ASCII '0', if longer truncated.
func NewVIN(s string) VIN {
	var v VIN
	for i := range v {
		v[i] = '0'
	}
	copy(v[:], strings.ToUpper(s))
	return v
}

// VINFromBytes builds a VIN from raw bytes using the same pad/truncate rule.
func VINFromBytes(b []byte) VIN {
	return NewVIN(string(b))
}

// String returns the VIN as a string, trimming no padding.
func (v VIN) String() string {
	return string(v[:])
}

// Bytes returns the 17-byte wire representation.
func (v VIN) Bytes() []byte {
	out := make([]byte, VINLength)
	copy(out, v[:])
	return out
}

// IsValid reports whether every character is an uppercase alphanumeric
// excluding I, O, and Q — the ISO 3779 exclusion set for characters that
// are easily confused with digits.
func (v VIN) IsValid() bool {
	for _, c := range v {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'A' && c <= 'Z' && c != 'I' && c != 'O' && c != 'Q':
		default:
			return false
		}
	}
	return true
}

// EID is a 6-byte entity identifier, right-padded with 0x00 when
// constructed from shorter input.
type EID [EIDLength]byte

// GID is a 6-byte group identifier with the same construction rules as EID.
type GID [EIDLength]byte

// NewEID builds an EID from b: shorter input is right-padded with 0x00,
// longer input is truncated.
func NewEID(b []byte) EID {
	var e EID
	copy(e[:], b)
	return e
}

// NewGID builds a GID from b with the same rule as NewEID.
func NewGID(b []byte) GID {
	var g GID
	copy(g[:], b)
	return g
}

// Bytes returns the 6-byte wire representation.
func (e EID) Bytes() []byte {
	out := make([]byte, EIDLength)
	copy(out, e[:])
	return out
}

// Bytes returns the 6-byte wire representation.
func (g GID) Bytes() []byte {
	out := make([]byte, EIDLength)
	copy(out, g[:])
	return out
}

// String renders the identifier as colon-separated hex, e.g. "00:11:22:33:44:55".
func (e EID) String() string {
	return hexColon(e[:])
}

// String renders the identifier as colon-separated hex.
func (g GID) String() string {
	return hexColon(g[:])
}

func hexColon(b []byte) string {
	var sb strings.Builder
	const hexDigits = "0123456789ABCDEF"
	for i, c := range b {
		if i > 0 {
			sb.WriteByte(':')
		}
		sb.WriteByte(hexDigits[c>>4])
		sb.WriteByte(hexDigits[c&0x0F])
	}
	return sb.String()
}
