package appmodel

import (
	"time"

	"github.com/tturner/doip/internal/connctx"
	"github.com/tturner/doip/internal/doip"
)

// ProviderStatus is the outcome a downstream Provider reports for a
// completed request.
type ProviderStatus int

const (
	StatusHandled ProviderStatus = iota
	StatusPending
	StatusTimeout
	StatusError
)

// ProviderResult is what a Provider hands back through its callback.
type ProviderResult struct {
	Payload []byte
	Status  ProviderStatus
	Latency time.Duration
}

// ProviderCallback is invoked by a Provider exactly once per SendRequest.
type ProviderCallback func(ProviderResult)

// Provider is the narrow interface a downstream transport (CAN gateway,
// bench harness, simulator) implements to receive forwarded diagnostic
// payloads.
type Provider interface {
	SendRequest(payload []byte, callback ProviderCallback)
	Start() error
	Stop() error
}

// Forwarder adapts a Provider into the Connection Context's downstream
// path: it unwraps the inner diagnostic payload from an inbound
// DiagnosticMessage, hands it to the provider, and on completion re-enters
// the context so the state machine can transition out of
// WaitDownstreamResponse.
type Forwarder struct {
	provider Provider
}

// NewForwarder builds a Forwarder over provider.
func NewForwarder(provider Provider) *Forwarder {
	return &Forwarder{provider: provider}
}

// Start starts the underlying provider.
func (f *Forwarder) Start() error { return f.provider.Start() }

// Stop stops the underlying provider.
func (f *Forwarder) Stop() error { return f.provider.Stop() }

// Forward extracts msg's inner diagnostic payload and submits it to the
// provider. The provider's eventual callback calls
// ctx.ReceiveDownstreamResponse: a Handled result carries the response
// payload wrapped as a DiagnosticMessage for the state machine to turn
// into a DiagnosticMessageAck; Timeout and Error both resolve to a nil
// response, which the context maps to DownstreamTimeout.
func (f *Forwarder) Forward(ctx connctx.Context, msg doip.Message) connctx.Disposition {
	sa, haveSA := msg.SourceAddress()
	ta, haveTA := msg.TargetAddress()
	if !haveSA || !haveTA || len(msg.Payload()) < 4 {
		return connctx.Error
	}
	innerPayload := msg.Payload()[4:]

	f.provider.SendRequest(innerPayload, func(result ProviderResult) {
		switch result.Status {
		case StatusHandled:
			response := doip.BuildDiagnosticMessage(sa, ta, result.Payload)
			ctx.ReceiveDownstreamResponse(&response)
		case StatusPending:
			// Provider asked for more time without a terminal result yet;
			// nothing to inject, the caller's own retry/timeout governs.
		default:
			ctx.ReceiveDownstreamResponse(nil)
		}
	})

	return connctx.Pending
}
