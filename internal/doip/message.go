// Package doip implements the DoIP (ISO 13400-2) wire codec: the 8-byte
// header, the closed payload-type/NACK/routing-activation enums, and the
// Message type that owns a contiguous byte buffer for a single frame.
//
// Grounded on the teacher's EtherNet/IP encapsulation codec
// (tonylturner-cipdip internal/cipclient/enip.go: EncodeENIP/DecodeENIP,
// a fixed header followed by a variable-length data field) generalized
// from ENIP's 24-byte header to DoIP's 8-byte one, and on
// original_source/inc/DoIPMessage.h for the exact field layout and
// ordering of validation checks.
package doip

import (
	"github.com/tturner/doip/internal/codec"
)

// HeaderLength is the fixed size of the DoIP header in bytes.
const HeaderLength = 8

// ProtocolVersion is the preferred protocol version byte this codec writes
// on every message it builds. Parsing accepts any version in
// [MinProtocolVersion, MaxProtocolVersion].
const (
	MinProtocolVersion ProtocolVersionByte = 0x01
	MaxProtocolVersion ProtocolVersionByte = 0x04
	ProtocolVersion    ProtocolVersionByte = 0x04
)

// ProtocolVersionByte is the raw protocol-version octet.
type ProtocolVersionByte uint8

// DefaultMaxPayloadLength is the practical cap on payload length applied
// by TryParseHeader/TryParse when the caller does not supply one
// (spec.md §4.1: "practical cap 16 MiB").
const DefaultMaxPayloadLength uint32 = 16 * 1024 * 1024

// Message owns its byte buffer outright: buf[0:8] is the header,
// buf[8:] is the payload. Once built or parsed, a Message is immutable;
// accessors return borrowed views into buf rather than copies.
type Message struct {
	buf []byte
}

// Build constructs a message for the given payload type and payload bytes.
// It always succeeds: the caller is responsible for payload bytes that
// make sense for payloadType (Build performs no length-plausibility check,
// unlike TryParse on the receive path).
func Build(payloadType PayloadType, payload []byte) Message {
	buf := make([]byte, HeaderLength, HeaderLength+len(payload))
	buf[0] = byte(ProtocolVersion)
	buf[1] = 0xFF ^ byte(ProtocolVersion)
	codec.PutUint16(buf[2:4], uint16(payloadType))
	codec.PutUint32(buf[4:8], uint32(len(payload)))
	buf = append(buf, payload...)
	return Message{buf: buf}
}

// Bytes returns the complete frame (header + payload) as a borrowed view.
func (m Message) Bytes() []byte {
	return m.buf
}

// PayloadType returns the message's payload type.
func (m Message) PayloadType() PayloadType {
	return PayloadType(codec.ReadUint16(m.buf[2:4]))
}

// Payload returns a borrowed view of the payload bytes (excludes the
// 8-byte header).
func (m Message) Payload() []byte {
	return m.buf[HeaderLength:]
}

// SourceAddress returns the message's source address for payload types
// that carry one (diagnostic message family); ok is false otherwise.
func (m Message) SourceAddress() (addr Address, ok bool) {
	if !m.PayloadType().hasAddresses() || len(m.Payload()) < 2 {
		return 0, false
	}
	return Address(codec.ReadUint16(m.Payload()[0:2])), true
}

// TargetAddress returns the message's target address for payload types
// that carry one (diagnostic message family); ok is false otherwise.
func (m Message) TargetAddress() (addr Address, ok bool) {
	if !m.PayloadType().hasAddresses() || len(m.Payload()) < 4 {
		return 0, false
	}
	return Address(codec.ReadUint16(m.Payload()[2:4])), true
}

// HeaderInfo is the result of a successful header parse: the payload type
// and the payload length declared in the header (not yet validated against
// the bytes actually available).
type HeaderInfo struct {
	PayloadType   PayloadType
	PayloadLength uint32
}

// TryParseHeader inspects the first 8 bytes of b and validates them in the
// order spec.md §4.1 requires: length, protocol version pattern, payload
// type membership, per-type length plausibility, then the configured
// maximum. maxPayloadLength of 0 selects DefaultMaxPayloadLength.
func TryParseHeader(b []byte, maxPayloadLength uint32) (HeaderInfo, error) {
	if maxPayloadLength == 0 {
		maxPayloadLength = DefaultMaxPayloadLength
	}

	if len(b) < HeaderLength {
		return HeaderInfo{}, InvalidPayloadLength
	}

	version := b[0]
	inverse := b[1]
	if version < byte(MinProtocolVersion) || version > byte(MaxProtocolVersion) || inverse != 0xFF^version {
		return HeaderInfo{}, IncorrectPatternFormat
	}

	pt := PayloadType(codec.ReadUint16(b[2:4]))
	if !pt.IsValid() {
		return HeaderInfo{}, UnknownPayloadType
	}

	length := codec.ReadUint32(b[4:8])
	if !lengthPlausible(pt, length) {
		return HeaderInfo{}, InvalidPayloadLength
	}

	if length > maxPayloadLength {
		return HeaderInfo{}, MessageTooLarge
	}

	return HeaderInfo{PayloadType: pt, PayloadLength: length}, nil
}

// TryParse parses a complete frame: header plus exactly PayloadLength
// payload bytes. b may contain trailing bytes belonging to a subsequent
// frame; TryParse copies only its own HeaderLength+PayloadLength prefix
// into the returned Message's owned buffer and never consumes more.
func TryParse(b []byte, maxPayloadLength uint32) (Message, error) {
	info, err := TryParseHeader(b, maxPayloadLength)
	if err != nil {
		return Message{}, err
	}

	total := HeaderLength + int(info.PayloadLength)
	if len(b) < total {
		return Message{}, InvalidPayloadLength
	}

	buf := make([]byte, total)
	copy(buf, b[:total])
	return Message{buf: buf}, nil
}

// lengthPlausible applies the per-payload-type min/max rule from spec.md
// §4.1. Payload types the table is silent on (the EID/VIN identification
// request variants, entity-status, power-mode, and periodic-diagnostic
// messages) accept any declared length; ISO 13400-2 defines no fixed
// shape for most of them and spec.md's table is explicitly "selected"
// rather than exhaustive.
func lengthPlausible(pt PayloadType, length uint32) bool {
	switch pt {
	case VehicleIdentificationRequest:
		return length == 0
	case VehicleIdentificationResponse:
		return length == 32 || length == 33
	case RoutingActivationRequest:
		return length == 7 || length == 11
	case RoutingActivationResponse:
		return length == 9 || length == 13
	case AliveCheckRequest:
		return length == 0
	case AliveCheckResponse:
		return length == 2
	case DiagnosticMessage, DiagnosticMessageAck, DiagnosticMessageNegativeAck:
		return length >= 5
	case NegativeAck:
		return length == 1
	default:
		return true
	}
}
