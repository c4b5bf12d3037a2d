package doip

// NackCode is the generic DoIP-header negative-acknowledgement code
// (ISO 13400-2 table 19), returned by the message codec when a frame
// fails header or length validation.
type NackCode uint8

const (
	IncorrectPatternFormat NackCode = 0
	UnknownPayloadType     NackCode = 1
	MessageTooLarge        NackCode = 2
	OutOfMemory            NackCode = 3
	InvalidPayloadLength   NackCode = 4
)

func (c NackCode) String() string {
	switch c {
	case IncorrectPatternFormat:
		return "IncorrectPatternFormat"
	case UnknownPayloadType:
		return "UnknownPayloadType"
	case MessageTooLarge:
		return "MessageTooLarge"
	case OutOfMemory:
		return "OutOfMemory"
	case InvalidPayloadLength:
		return "InvalidPayloadLength"
	default:
		return "Unknown"
	}
}

// Error implements the error interface so a NackCode can be returned
// directly from parse functions and wrapped with %w where useful.
func (c NackCode) Error() string {
	return "doip: " + c.String()
}

// DiagNackCode is the diagnostic-message negative-acknowledgement code
// (ISO 13400-2 table 26), carried in a DiagnosticMessageNegativeAck payload.
type DiagNackCode uint8

const (
	InvalidSourceAddress     DiagNackCode = 2
	UnknownTargetAddress     DiagNackCode = 3
	DiagnosticMessageTooLarge DiagNackCode = 4
	DiagOutOfMemory          DiagNackCode = 5
	TargetUnreachable        DiagNackCode = 6
	UnknownNetwork           DiagNackCode = 7
	TransportProtocolError   DiagNackCode = 8
	TargetBusy               DiagNackCode = 9
)

func (c DiagNackCode) String() string {
	switch c {
	case InvalidSourceAddress:
		return "InvalidSourceAddress"
	case UnknownTargetAddress:
		return "UnknownTargetAddress"
	case DiagnosticMessageTooLarge:
		return "DiagnosticMessageTooLarge"
	case DiagOutOfMemory:
		return "OutOfMemory"
	case TargetUnreachable:
		return "TargetUnreachable"
	case UnknownNetwork:
		return "UnknownNetwork"
	case TransportProtocolError:
		return "TransportProtocolError"
	case TargetBusy:
		return "TargetBusy"
	default:
		return "Unknown"
	}
}

// DiagnosticAck is the application's ack decision for an inbound diagnostic
// message: nil means positive acknowledgement, non-nil carries the negative
// code to send back (spec.md §4.3 notify_diagnostic_message).
type DiagnosticAck = *DiagNackCode

// Ack builds a DiagnosticAck carrying a negative code.
func Ack(code DiagNackCode) DiagnosticAck {
	c := code
	return &c
}

// RoutingActivationResult is the response code carried in a
// RoutingActivationResponse payload (ISO 13400-2 table 56).
type RoutingActivationResult uint8

const (
	UnknownSourceAddress                RoutingActivationResult = 0x00
	NoMoreRoutingSlotsAvailable         RoutingActivationResult = 0x01
	InvalidAddressOrRoutingType         RoutingActivationResult = 0x02
	SourceAddressAlreadyRegistered      RoutingActivationResult = 0x03
	Unauthorized                        RoutingActivationResult = 0x04
	MissingConfirmation                 RoutingActivationResult = 0x05
	InvalidRoutingType                  RoutingActivationResult = 0x06
	SecuredConnectionRequired           RoutingActivationResult = 0x07
	VehicleNotReadyForRouting           RoutingActivationResult = 0x08
	RouteActivated                      RoutingActivationResult = 0x10
	RouteActivatedConfirmationRequired  RoutingActivationResult = 0x11
)

// ClosesSocket reports whether the given routing activation result code
// mandates closing the TCP connection (spec.md §6 close-on-code policy).
func (r RoutingActivationResult) ClosesSocket() bool {
	switch r {
	case UnknownSourceAddress,
		NoMoreRoutingSlotsAvailable,
		SourceAddressAlreadyRegistered,
		MissingConfirmation,
		InvalidRoutingType,
		SecuredConnectionRequired:
		return true
	default:
		return false
	}
}

func (r RoutingActivationResult) String() string {
	switch r {
	case UnknownSourceAddress:
		return "UnknownSourceAddress"
	case NoMoreRoutingSlotsAvailable:
		return "NoMoreRoutingSlotsAvailable"
	case InvalidAddressOrRoutingType:
		return "InvalidAddressOrRoutingType"
	case SourceAddressAlreadyRegistered:
		return "SourceAddressAlreadyRegistered"
	case Unauthorized:
		return "Unauthorized"
	case MissingConfirmation:
		return "MissingConfirmation"
	case InvalidRoutingType:
		return "InvalidRoutingType"
	case SecuredConnectionRequired:
		return "SecuredConnectionRequired"
	case VehicleNotReadyForRouting:
		return "VehicleNotReadyForRouting"
	case RouteActivated:
		return "RouteActivated"
	case RouteActivatedConfirmationRequired:
		return "RouteActivatedConfirmationRequired"
	default:
		return "Unknown"
	}
}
