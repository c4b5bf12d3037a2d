// Package connctx defines the Connection Context: the interface that
// separates the protocol state machine from the TCP transport and the
// application model, plus the event vocabulary timers and downstream
// replies use to re-enter the state machine safely from another goroutine.
//
// Grounded on the teacher's ConnectionState/Session split
// (tonylturner-cipdip internal/server/core/types.go), generalized from a
// plain struct bag into an interface boundary per the design note that a
// target-language port should replace the source's bare pointers with an
// abstract handle.
package connctx

import (
	"sync"

	"github.com/tturner/doip/internal/doip"
)

// CloseReason records why a connection was torn down. NotClosed is the
// zero value for an open connection.
type CloseReason int

const (
	NotClosed CloseReason = iota
	InitialInactivityTimeoutReason
	GeneralInactivityCloseReason
	AliveCheckTimeoutReason
	RoutingActivationDeniedReason
	SourceAddressConflictReason
	SocketErrorReason
	InvalidMessageReason
	ClientRequestedReason
	ServerShutdownReason
)

func (r CloseReason) String() string {
	switch r {
	case NotClosed:
		return "NotClosed"
	case InitialInactivityTimeoutReason:
		return "InitialInactivityTimeout"
	case GeneralInactivityCloseReason:
		return "GeneralInactivityTimeout"
	case AliveCheckTimeoutReason:
		return "AliveCheckTimeout"
	case RoutingActivationDeniedReason:
		return "RoutingActivationDenied"
	case SourceAddressConflictReason:
		return "SourceAddressAlreadyRegistered"
	case SocketErrorReason:
		return "SocketError"
	case InvalidMessageReason:
		return "InvalidMessage"
	case ClientRequestedReason:
		return "ClientRequested"
	case ServerShutdownReason:
		return "ServerShutdown"
	default:
		return "Unknown"
	}
}

// Disposition is the application's response to a routed downstream request.
type Disposition int

const (
	Pending Disposition = iota
	Handled
	Error
)

// EventKind enumerates the events the server state machine (C7) reacts to.
// Defined here, not in the fsm package, so that timers and downstream
// callbacks can build and enqueue events without importing the state
// machine itself.
type EventKind int

const (
	RoutingActivationReceived EventKind = iota
	AliveCheckResponseReceived
	DiagnosticMessageReceived
	DiagnosticMessageReceivedDownstream
	CloseRequestReceived
	InitialInactivityTimeout
	GeneralInactivityTimeout
	AliveCheckTimeout
	DownstreamTimeout
	InvalidMessage
	SocketError
)

func (k EventKind) String() string {
	names := [...]string{
		"RoutingActivationReceived",
		"AliveCheckResponseReceived",
		"DiagnosticMessageReceived",
		"DiagnosticMessageReceivedDownstream",
		"CloseRequestReceived",
		"InitialInactivityTimeout",
		"GeneralInactivityTimeout",
		"AliveCheckTimeout",
		"DownstreamTimeout",
		"InvalidMessage",
		"SocketError",
	}
	if int(k) < 0 || int(k) >= len(names) {
		return "Unknown"
	}
	return names[k]
}

// Event is the payload enqueued into an EventSink. Message and Nack are
// populated only for the event kinds that carry them.
type Event struct {
	Kind    EventKind
	Message doip.Message
	Nack    doip.NackCode
}

// EventSink receives events serialized with respect to each other; the
// state machine is the only implementer. Timer callbacks and downstream
// responses call Dispatch from whatever goroutine they run on.
type EventSink interface {
	Dispatch(evt Event)
}

// Sender is the minimal transport capability the context needs: write a
// complete framed message, or tear the connection down.
type Sender interface {
	SendMessage(msg doip.Message) (int, error)
	CloseSocket() error
}

// DiagnosticObserver lets the application model see inbound diagnostic
// traffic and the ack decision that was sent for it.
type DiagnosticObserver interface {
	OnDiagnosticMessage(ctx Context, msg doip.Message) doip.DiagnosticAck
	OnDiagnosticNotification(ctx Context, ack doip.DiagnosticAck)
}

// DownstreamRouter lets the application model claim diagnostic traffic for
// asynchronous downstream forwarding instead of answering synchronously.
type DownstreamRouter interface {
	HasDownstreamHandler() bool
	OnDownstreamRequest(ctx Context, msg doip.Message) Disposition
	OnDownstreamResponse(ctx Context, request, response doip.Message)
}

// LifecycleObserver lets the application model react to connection open
// and close.
type LifecycleObserver interface {
	OnOpenConnection(ctx Context)
	OnCloseConnection(ctx Context, reason CloseReason)
}

// Context is the full interface the state machine (C7) is built against.
// It is safe to call from any goroutine that holds a reference to it;
// concurrent senders serialize at the transport boundary (see SendProtocolMessage).
type Context interface {
	SendProtocolMessage(msg doip.Message) (int, error)
	Close(reason CloseReason)
	IsOpen() bool
	CloseReason() CloseReason

	ServerAddress() doip.Address
	ClientAddress() doip.Address
	SetClientAddress(addr doip.Address)

	NotifyDiagnosticMessage(msg doip.Message) doip.DiagnosticAck
	NotifyDiagnosticAckSent(ack doip.DiagnosticAck)

	HasDownstreamHandler() bool
	NotifyDownstreamRequest(msg doip.Message) Disposition
	NotifyDownstreamResponse(request, response doip.Message)
	ReceiveDownstreamResponse(response *doip.Message)
}

// Connection is the concrete Context implementation: it owns the socket
// send path, the close/reason bookkeeping, the routed client address, and
// bridges to the lifecycle/diagnostic/downstream hooks of an application
// model plus the event sink (the state machine) that downstream replies
// and timers re-enter.
type Connection struct {
	mu sync.Mutex

	sender       Sender
	sink         EventSink
	serverAddr   doip.Address
	clientAddr   doip.Address
	open         bool
	closeReason  CloseReason

	lifecycle  LifecycleObserver
	diagnostic DiagnosticObserver
	downstream DownstreamRouter
}

// NewConnection builds a Context bound to sender for protocol I/O and addr
// as the server's own logical address. sender may be nil and supplied
// later via SetSender, since the transport (which needs this Context as
// its event sink) and the context (which needs the transport as its
// sender) are naturally constructed in a cycle. The event sink and
// application hooks are attached via Bind once the state machine exists.
func NewConnection(sender Sender, serverAddr doip.Address) *Connection {
	return &Connection{
		sender:     sender,
		serverAddr: serverAddr,
		open:       true,
	}
}

// SetSender attaches the transport used for SendProtocolMessage/Close.
// Called once, before the connection starts receiving.
func (c *Connection) SetSender(sender Sender) {
	c.mu.Lock()
	c.sender = sender
	c.mu.Unlock()
}

// Bind attaches the state machine's event sink and the application model's
// hooks. Called once, immediately after both sides are constructed.
func (c *Connection) Bind(sink EventSink, lifecycle LifecycleObserver, diagnostic DiagnosticObserver, downstream DownstreamRouter) {
	c.mu.Lock()
	c.sink = sink
	c.lifecycle = lifecycle
	c.diagnostic = diagnostic
	c.downstream = downstream
	c.mu.Unlock()
}

// Dispatch forwards an event to the bound sink, if any. Used by the TCP
// session runtime to feed parsed messages into the state machine, and is
// the same path timers and downstream replies use.
func (c *Connection) Dispatch(evt Event) {
	c.mu.Lock()
	sink := c.sink
	c.mu.Unlock()
	if sink != nil {
		sink.Dispatch(evt)
	}
}

func (c *Connection) SendProtocolMessage(msg doip.Message) (int, error) {
	c.mu.Lock()
	sender := c.sender
	c.mu.Unlock()
	return sender.SendMessage(msg)
}

func (c *Connection) Close(reason CloseReason) {
	c.mu.Lock()
	if !c.open {
		c.mu.Unlock()
		return
	}
	c.open = false
	c.closeReason = reason
	lifecycle := c.lifecycle
	sender := c.sender
	c.mu.Unlock()

	if sender != nil {
		_ = sender.CloseSocket()
	}

	if lifecycle != nil {
		lifecycle.OnCloseConnection(c, reason)
	}
}

func (c *Connection) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *Connection) CloseReason() CloseReason {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeReason
}

func (c *Connection) ServerAddress() doip.Address {
	return c.serverAddr
}

func (c *Connection) ClientAddress() doip.Address {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clientAddr
}

func (c *Connection) SetClientAddress(addr doip.Address) {
	c.mu.Lock()
	c.clientAddr = addr
	c.mu.Unlock()
}

func (c *Connection) NotifyDiagnosticMessage(msg doip.Message) doip.DiagnosticAck {
	c.mu.Lock()
	diagnostic := c.diagnostic
	c.mu.Unlock()
	if diagnostic == nil {
		return nil
	}
	return diagnostic.OnDiagnosticMessage(c, msg)
}

func (c *Connection) NotifyDiagnosticAckSent(ack doip.DiagnosticAck) {
	c.mu.Lock()
	diagnostic := c.diagnostic
	c.mu.Unlock()
	if diagnostic != nil {
		diagnostic.OnDiagnosticNotification(c, ack)
	}
}

func (c *Connection) HasDownstreamHandler() bool {
	c.mu.Lock()
	downstream := c.downstream
	c.mu.Unlock()
	return downstream != nil && downstream.HasDownstreamHandler()
}

func (c *Connection) NotifyDownstreamRequest(msg doip.Message) Disposition {
	c.mu.Lock()
	downstream := c.downstream
	c.mu.Unlock()
	if downstream == nil {
		return Error
	}
	return downstream.OnDownstreamRequest(c, msg)
}

// NotifyDownstreamResponse lets the application model observe a completed
// asynchronous downstream round-trip (spec.md §4.8
// on_downstream_response), the async-path analogue of
// NotifyDiagnosticAckSent's post-send observation for the synchronous
// path. Called after the ack/nack for response has already been sent.
func (c *Connection) NotifyDownstreamResponse(request, response doip.Message) {
	c.mu.Lock()
	downstream := c.downstream
	c.mu.Unlock()
	if downstream != nil {
		downstream.OnDownstreamResponse(c, request, response)
	}
}

// ReceiveDownstreamResponse injects a DiagnosticMessageReceivedDownstream
// event (response non-nil) or a DownstreamTimeout event (response nil,
// covering both the provider Timeout and Error statuses per the forwarder's
// mapping) into the bound state machine. Safe to call from any goroutine.
func (c *Connection) ReceiveDownstreamResponse(response *doip.Message) {
	if response == nil {
		c.Dispatch(Event{Kind: DownstreamTimeout})
		return
	}
	c.Dispatch(Event{Kind: DiagnosticMessageReceivedDownstream, Message: *response})
}

// NotifyOpen fires the lifecycle hook once the context is fully wired. The
// TCP session runtime calls this after Bind.
func (c *Connection) NotifyOpen() {
	c.mu.Lock()
	lifecycle := c.lifecycle
	c.mu.Unlock()
	if lifecycle != nil {
		lifecycle.OnOpenConnection(c)
	}
}
