// Package apperrors provides user-friendly error wrapping for CLI-facing
// failures (network, protocol, configuration).
//
// Adapted from the teacher's internal/errors/userfriendly.go: the same
// {Message, Reason, Hint, Try, Err} shape and Error()/Unwrap() rendering,
// retargeted from CIP/EtherNet-IP wording to DoIP wording and from
// "cipdip test"/"cipdip validate-config" example commands to "doip".
package apperrors

import (
	"fmt"
	"strings"
)

// UserFriendlyError renders a multi-line, actionable error message for
// CLI output.
type UserFriendlyError struct {
	Message string
	Reason  string
	Hint    string
	Try     string
	Err     error
}

func (e UserFriendlyError) Error() string {
	var buf strings.Builder
	buf.WriteString(e.Message)
	if e.Reason != "" {
		buf.WriteString("\n  Reason: " + e.Reason)
	}
	if e.Hint != "" {
		buf.WriteString("\n  Hint: " + e.Hint)
	}
	if e.Try != "" {
		buf.WriteString("\n  Try: " + e.Try)
	}
	if e.Err != nil {
		buf.WriteString("\n  Details: " + e.Err.Error())
	}
	return buf.String()
}

func (e UserFriendlyError) Unwrap() error {
	return e.Err
}

// WrapNetworkError wraps a transport failure against a DoIP entity.
func WrapNetworkError(err error, host string, port int) error {
	if err == nil {
		return nil
	}
	return UserFriendlyError{
		Message: fmt.Sprintf("Failed to communicate with DoIP entity at %s:%d", host, port),
		Reason:  extractNetworkReason(err),
		Hint:    "The target may not be a DoIP entity, or there may be a network connectivity issue",
		Try:     "doip client discover",
		Err:     err,
	}
}

// WrapProtocolError wraps a DoIP protocol-level failure (a NACK, an
// unexpected payload type, a malformed frame).
func WrapProtocolError(err error, operation string) error {
	if err == nil {
		return nil
	}
	return UserFriendlyError{
		Message: fmt.Sprintf("DoIP operation failed: %s", operation),
		Reason:  extractProtocolReason(err),
		Hint:    "The entity may not support this operation, or the source/target address may be wrong",
		Try:     "Re-run routing activation before sending diagnostic messages",
		Err:     err,
	}
}

// WrapConfigError wraps a configuration load/validate failure.
func WrapConfigError(err error, configPath string) error {
	if err == nil {
		return nil
	}
	return UserFriendlyError{
		Message: fmt.Sprintf("Configuration error in %s", configPath),
		Reason:  err.Error(),
		Hint:    "Check vin/logical_address/eid/gid and the timer fields against the documented defaults",
		Try:     fmt.Sprintf("doip config validate --config %s", configPath),
		Err:     err,
	}
}

func extractNetworkReason(err error) string {
	s := err.Error()
	switch {
	case strings.Contains(s, "timeout") || strings.Contains(s, "deadline exceeded"):
		return "Connection timeout - entity may be offline or unreachable"
	case strings.Contains(s, "connection refused"):
		return "Connection refused - entity may not be listening on this port"
	case strings.Contains(s, "no route to host"):
		return "No route to host - network routing issue or entity unreachable"
	case strings.Contains(s, "connection reset"):
		return "Connection reset - entity closed the connection unexpectedly"
	default:
		return "Network communication failed"
	}
}

func extractProtocolReason(err error) string {
	s := err.Error()
	switch {
	case strings.Contains(s, "nack") || strings.Contains(s, "Nack"):
		return "Entity returned a DoIP negative acknowledgement"
	case strings.Contains(s, "unexpected response payload type"):
		return "Received an unexpected payload type from the entity"
	case strings.Contains(s, "timeout"):
		return "Entity did not respond within the configured timeout"
	default:
		return "DoIP protocol error occurred"
	}
}
