package doip

import (
	"github.com/tturner/doip/internal/codec"
	"github.com/tturner/doip/internal/ident"
)

// BuildNegativeAck builds a header-level NegativeAck message (spec.md §6).
func BuildNegativeAck(code NackCode) Message {
	return Build(NegativeAck, []byte{byte(code)})
}

// BuildVehicleIdentificationRequest builds the broadcast discovery request.
func BuildVehicleIdentificationRequest() Message {
	return Build(VehicleIdentificationRequest, nil)
}

// BuildVehicleIdentificationRequestWithEID builds a discovery request that
// targets a specific entity by EID.
func BuildVehicleIdentificationRequestWithEID(eid ident.EID) Message {
	return Build(VehicleIdentificationRequestWithEID, eid.Bytes())
}

// BuildVehicleIdentificationRequestWithVIN builds a discovery request that
// targets a specific vehicle by VIN.
func BuildVehicleIdentificationRequestWithVIN(vin ident.VIN) Message {
	return Build(VehicleIdentificationRequestWithVIN, vin.Bytes())
}

// BuildVehicleIdentificationResponse builds the announcement/identification
// response: VIN[17] | LogicalAddr[2] | EID[6] | GID[6] | FurtherAction[1] |
// [SyncStatus[1]] (spec.md §6).
func BuildVehicleIdentificationResponse(vin ident.VIN, logicalAddr Address, eid ident.EID, gid ident.GID, furtherAction byte, syncStatus *byte) Message {
	payload := make([]byte, 0, 33)
	payload = append(payload, vin.Bytes()...)
	payload = codec.AppendUint16(payload, uint16(logicalAddr))
	payload = append(payload, eid.Bytes()...)
	payload = append(payload, gid.Bytes()...)
	payload = append(payload, furtherAction)
	if syncStatus != nil {
		payload = append(payload, *syncStatus)
	}
	return Build(VehicleIdentificationResponse, payload)
}

// RoutingActivationType is the activation type octet of a
// RoutingActivationRequest. Only Default and DiagnosticCommRequired are
// in scope (spec.md §1 Non-goals).
type RoutingActivationType uint8

const (
	ActivationDefault                 RoutingActivationType = 0x00
	ActivationDiagnosticCommRequired  RoutingActivationType = 0xE0
)

// BuildRoutingActivationRequest builds SA[2] | ActivationType[1] |
// Reserved[4] | [OEM[4]].
func BuildRoutingActivationRequest(sa Address, activationType RoutingActivationType, oem []byte) Message {
	payload := make([]byte, 0, 11)
	payload = codec.AppendUint16(payload, uint16(sa))
	payload = append(payload, byte(activationType))
	payload = append(payload, 0, 0, 0, 0)
	if len(oem) > 0 {
		payload = append(payload, paddedOEM(oem)...)
	}
	return Build(RoutingActivationRequest, payload)
}

// BuildRoutingActivationResponse builds SA[2] | EntityAddr[2] | Code[1] |
// Reserved[4] | [OEM[4]], echoing request's source address as the client
// address field.
func BuildRoutingActivationResponse(request Message, entityAddr Address, result RoutingActivationResult, oem []byte) Message {
	clientAddr, _ := request.SourceAddressField()
	payload := make([]byte, 0, 13)
	payload = codec.AppendUint16(payload, uint16(clientAddr))
	payload = codec.AppendUint16(payload, uint16(entityAddr))
	payload = append(payload, byte(result))
	payload = append(payload, 0, 0, 0, 0)
	if len(oem) > 0 {
		payload = append(payload, paddedOEM(oem)...)
	}
	return Build(RoutingActivationResponse, payload)
}

func paddedOEM(oem []byte) []byte {
	out := make([]byte, 4)
	copy(out, oem)
	return out
}

// SourceAddressField reads the SA field out of a RoutingActivationRequest
// payload. It is distinct from SourceAddress (which only applies to the
// diagnostic-message family) because routing activation carries SA at a
// different payload offset and is not reachable from PayloadType.hasAddresses.
func (m Message) SourceAddressField() (Address, bool) {
	if m.PayloadType() != RoutingActivationRequest || len(m.Payload()) < 2 {
		return 0, false
	}
	return Address(codec.ReadUint16(m.Payload()[0:2])), true
}

// BuildAliveCheckRequest builds an empty-payload AliveCheckRequest.
func BuildAliveCheckRequest() Message {
	return Build(AliveCheckRequest, nil)
}

// BuildAliveCheckResponse builds SA[2].
func BuildAliveCheckResponse(sa Address) Message {
	return Build(AliveCheckResponse, codec.AppendUint16(nil, uint16(sa)))
}

// BuildDiagnosticMessage builds SA[2] | TA[2] | Payload[>=1].
func BuildDiagnosticMessage(sa, ta Address, payload []byte) Message {
	body := make([]byte, 0, 4+len(payload))
	body = codec.AppendUint16(body, uint16(sa))
	body = codec.AppendUint16(body, uint16(ta))
	body = append(body, payload...)
	return Build(DiagnosticMessage, body)
}

// BuildDiagnosticMessageAck builds SA[2] | TA[2] | AckCode[1]=0x00 |
// Payload[>=0], where Payload is the (optional) response data forwarded
// from the downstream reply.
func BuildDiagnosticMessageAck(sa, ta Address, payload []byte) Message {
	body := make([]byte, 0, 5+len(payload))
	body = codec.AppendUint16(body, uint16(sa))
	body = codec.AppendUint16(body, uint16(ta))
	body = append(body, 0x00)
	body = append(body, payload...)
	return Build(DiagnosticMessageAck, body)
}

// BuildDiagnosticMessageNegativeAck builds SA[2] | TA[2] | NackCode[1] |
// EchoPayload[>=0], where EchoPayload conventionally carries the leading
// byte(s) of the original diagnostic request for tester correlation.
func BuildDiagnosticMessageNegativeAck(sa, ta Address, code DiagNackCode, echoPayload []byte) Message {
	body := make([]byte, 0, 5+len(echoPayload))
	body = codec.AppendUint16(body, uint16(sa))
	body = codec.AppendUint16(body, uint16(ta))
	body = append(body, byte(code))
	body = append(body, echoPayload...)
	return Build(DiagnosticMessageNegativeAck, body)
}
