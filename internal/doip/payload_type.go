package doip

// PayloadType is the closed enumeration of DoIP payload types (ISO 13400-2
// table 17). Grounded on the teacher's ENIPCommand* constant block in
// internal/cipclient/enip.go, generalized from EtherNet/IP's six commands
// to DoIP's fuller set, and on original_source/inc/DoIPPayloadType.h for
// the exact numeric values.
type PayloadType uint16

const (
	NegativeAck                         PayloadType = 0x0000
	VehicleIdentificationRequest        PayloadType = 0x0001
	VehicleIdentificationRequestWithEID PayloadType = 0x0002
	VehicleIdentificationRequestWithVIN PayloadType = 0x0003
	VehicleIdentificationResponse       PayloadType = 0x0004
	RoutingActivationRequest            PayloadType = 0x0005
	RoutingActivationResponse           PayloadType = 0x0006
	AliveCheckRequest                   PayloadType = 0x0007
	AliveCheckResponse                  PayloadType = 0x0008
	EntityStatusRequest                 PayloadType = 0x4001
	EntityStatusResponse                PayloadType = 0x4002
	DiagnosticPowerModeRequest          PayloadType = 0x4003
	DiagnosticPowerModeResponse         PayloadType = 0x4004
	DiagnosticMessage                   PayloadType = 0x8001
	DiagnosticMessageAck                PayloadType = 0x8002
	DiagnosticMessageNegativeAck        PayloadType = 0x8003
	PeriodicDiagnosticMessage           PayloadType = 0x8004
)

// IsValid reports whether t is a member of the closed payload-type enum.
// Values outside this set fail parsing as UnknownPayloadType (spec.md §3).
func (t PayloadType) IsValid() bool {
	switch t {
	case NegativeAck,
		VehicleIdentificationRequest,
		VehicleIdentificationRequestWithEID,
		VehicleIdentificationRequestWithVIN,
		VehicleIdentificationResponse,
		RoutingActivationRequest,
		RoutingActivationResponse,
		AliveCheckRequest,
		AliveCheckResponse,
		EntityStatusRequest,
		EntityStatusResponse,
		DiagnosticPowerModeRequest,
		DiagnosticPowerModeResponse,
		DiagnosticMessage,
		DiagnosticMessageAck,
		DiagnosticMessageNegativeAck,
		PeriodicDiagnosticMessage:
		return true
	default:
		return false
	}
}

func (t PayloadType) String() string {
	switch t {
	case NegativeAck:
		return "NegativeAck"
	case VehicleIdentificationRequest:
		return "VehicleIdentificationRequest"
	case VehicleIdentificationRequestWithEID:
		return "VehicleIdentificationRequestWithEID"
	case VehicleIdentificationRequestWithVIN:
		return "VehicleIdentificationRequestWithVIN"
	case VehicleIdentificationResponse:
		return "VehicleIdentificationResponse"
	case RoutingActivationRequest:
		return "RoutingActivationRequest"
	case RoutingActivationResponse:
		return "RoutingActivationResponse"
	case AliveCheckRequest:
		return "AliveCheckRequest"
	case AliveCheckResponse:
		return "AliveCheckResponse"
	case EntityStatusRequest:
		return "EntityStatusRequest"
	case EntityStatusResponse:
		return "EntityStatusResponse"
	case DiagnosticPowerModeRequest:
		return "DiagnosticPowerModeRequest"
	case DiagnosticPowerModeResponse:
		return "DiagnosticPowerModeResponse"
	case DiagnosticMessage:
		return "DiagnosticMessage"
	case DiagnosticMessageAck:
		return "DiagnosticMessageAck"
	case DiagnosticMessageNegativeAck:
		return "DiagnosticMessageNegativeAck"
	case PeriodicDiagnosticMessage:
		return "PeriodicDiagnosticMessage"
	default:
		return "Unknown"
	}
}

// hasAddresses reports whether payload type t carries SA/TA fields,
// used by Message.SourceAddress/TargetAddress.
func (t PayloadType) hasAddresses() bool {
	switch t {
	case DiagnosticMessage, DiagnosticMessageAck, DiagnosticMessageNegativeAck, PeriodicDiagnosticMessage:
		return true
	default:
		return false
	}
}
