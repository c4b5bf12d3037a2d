package fsm

import (
	"log"
	"sync"

	"github.com/tturner/doip/internal/connctx"
	"github.com/tturner/doip/internal/doip"
	"github.com/tturner/doip/internal/timer"
)

// Machine is the per-connection protocol state machine. It implements
// connctx.EventSink: timers, the TCP session runtime, and downstream
// replies all call Dispatch, which serializes them against each other
// under a single mutex (spec.md §5: "the connection worker is the sole
// caller of the state machine for that connection").
type Machine struct {
	mu sync.Mutex

	ctx    connctx.Context
	timers *timer.Manager
	cfg    Config
	logger *log.Logger

	state State

	initialInactivityID timer.ID
	generalInactivityID timer.ID
	aliveCheckID        timer.ID
	downstreamID        timer.ID
	aliveCheckRetries   int

	pendingDownstream *doip.Message

	notify func(State)
}

// SetNotifier registers fn to be called, from whatever goroutine calls
// Dispatch or Start, every time the machine's state changes. fn must not
// call back into the Machine. Used by the monitor TUI (D3) to observe
// transitions without participating in them; nil disables notification.
func (m *Machine) SetNotifier(fn func(State)) {
	m.mu.Lock()
	m.notify = fn
	m.mu.Unlock()
}

// NewMachine builds a Machine bound to ctx and timers, in state
// SocketInitialized. Call Start to enter WaitRoutingActivation and arm the
// initial-inactivity timer.
func NewMachine(ctx connctx.Context, timers *timer.Manager, cfg Config, logger *log.Logger) *Machine {
	if logger == nil {
		logger = log.Default()
	}
	return &Machine{
		ctx:    ctx,
		timers: timers,
		cfg:    cfg,
		logger: logger,
		state:  SocketInitialized,
	}
}

// Start fires the implicit "accept entry" transition: arm
// T_TCP_Initial_Inactivity and move to WaitRoutingActivation.
func (m *Machine) Start() {
	m.mu.Lock()
	if m.state != SocketInitialized {
		m.mu.Unlock()
		return
	}
	m.initialInactivityID = m.timers.Add(m.cfg.InitialInactivity, func() {
		m.Dispatch(connctx.Event{Kind: connctx.InitialInactivityTimeout})
	}, false)
	m.state = WaitRoutingActivation
	notify, state := m.notify, m.state
	m.mu.Unlock()

	if notify != nil {
		notify(state)
	}
}

// State returns the machine's current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Dispatch applies evt to the current state per the transition table. It
// is safe to call from any goroutine.
func (m *Machine) Dispatch(evt connctx.Event) {
	m.mu.Lock()

	if m.state == Closed {
		m.mu.Unlock()
		return
	}
	before := m.state

	switch evt.Kind {
	case connctx.RoutingActivationReceived:
		m.onRoutingActivationReceived(evt)
	case connctx.AliveCheckResponseReceived:
		m.onAliveCheckResponseReceived()
	case connctx.DiagnosticMessageReceived:
		m.onDiagnosticMessageReceived(evt)
	case connctx.DiagnosticMessageReceivedDownstream:
		m.onDiagnosticMessageReceivedDownstream(evt)
	case connctx.CloseRequestReceived:
		m.closeLocked(connctx.ClientRequestedReason)
	case connctx.InitialInactivityTimeout:
		m.onInitialInactivityTimeout()
	case connctx.GeneralInactivityTimeout:
		m.onGeneralInactivityTimeout()
	case connctx.AliveCheckTimeout:
		m.onAliveCheckTimeout()
	case connctx.DownstreamTimeout:
		m.onDownstreamTimeout()
	case connctx.InvalidMessage:
		m.onFatalProtocolEvent(evt.Nack, connctx.InvalidMessageReason)
	case connctx.SocketError:
		m.closeLocked(connctx.SocketErrorReason)
	default:
		m.logger.Printf("fsm: unhandled event kind %v in state %v", evt.Kind, m.state)
	}

	notify, after := m.notify, m.state
	m.mu.Unlock()

	if notify != nil && after != before {
		notify(after)
	}
}

func (m *Machine) onRoutingActivationReceived(evt connctx.Event) {
	sa, ok := evt.Message.SourceAddressField()

	switch m.state {
	case WaitRoutingActivation:
		if ok && doip.IsValidSourceAddress(sa) {
			m.cancelTimer(&m.initialInactivityID)
			m.ctx.SetClientAddress(sa)
			resp := doip.BuildRoutingActivationResponse(evt.Message, m.ctx.ServerAddress(), doip.RouteActivated, nil)
			m.send(resp)
			m.armGeneralInactivity()
			m.state = RoutingActivated
			return
		}
		resp := doip.BuildRoutingActivationResponse(evt.Message, m.ctx.ServerAddress(), doip.UnknownSourceAddress, nil)
		m.send(resp)
		m.closeLocked(connctx.RoutingActivationDeniedReason)

	case RoutingActivated:
		if ok && sa == m.ctx.ClientAddress() {
			resp := doip.BuildRoutingActivationResponse(evt.Message, m.ctx.ServerAddress(), doip.RouteActivated, nil)
			m.send(resp)
			m.armGeneralInactivity()
			return
		}
		resp := doip.BuildRoutingActivationResponse(evt.Message, m.ctx.ServerAddress(), doip.SourceAddressAlreadyRegistered, nil)
		m.send(resp)
		m.closeLocked(connctx.SourceAddressConflictReason)

	default:
		m.logger.Printf("fsm: RoutingActivationReceived discarded in state %v", m.state)
	}
}

func (m *Machine) onDiagnosticMessageReceived(evt connctx.Event) {
	if m.state != RoutingActivated {
		m.logger.Printf("fsm: DiagnosticMessageReceived discarded in state %v", m.state)
		return
	}

	sa, _ := evt.Message.SourceAddress()
	ta, _ := evt.Message.TargetAddress()
	echo := innerPayload(evt.Message)

	if sa != m.ctx.ClientAddress() {
		nack := doip.BuildDiagnosticMessageNegativeAck(sa, ta, doip.InvalidSourceAddress, echo)
		m.send(nack)
		m.armGeneralInactivity()
		return
	}

	if m.ctx.HasDownstreamHandler() {
		switch m.ctx.NotifyDownstreamRequest(evt.Message) {
		case connctx.Pending:
			msg := evt.Message
			m.pendingDownstream = &msg
			m.downstreamID = m.timers.Add(m.cfg.Downstream, func() {
				m.Dispatch(connctx.Event{Kind: connctx.DownstreamTimeout})
			}, false)
			m.state = WaitDownstreamResponse
		case connctx.Handled:
			ack := doip.BuildDiagnosticMessageAck(sa, ta, nil)
			m.send(ack)
			m.armGeneralInactivity()
		default:
			nack := doip.BuildDiagnosticMessageNegativeAck(sa, ta, doip.TransportProtocolError, echo)
			m.send(nack)
			m.armGeneralInactivity()
		}
		return
	}

	ack := m.ctx.NotifyDiagnosticMessage(evt.Message)
	if ack == nil {
		resp := doip.BuildDiagnosticMessageAck(sa, ta, nil)
		m.send(resp)
	} else {
		resp := doip.BuildDiagnosticMessageNegativeAck(sa, ta, *ack, echo)
		m.send(resp)
	}
	m.ctx.NotifyDiagnosticAckSent(ack)
	m.armGeneralInactivity()
}

func (m *Machine) onDiagnosticMessageReceivedDownstream(evt connctx.Event) {
	if m.state != WaitDownstreamResponse {
		m.logger.Printf("fsm: DiagnosticMessageReceivedDownstream discarded in state %v", m.state)
		return
	}

	m.cancelTimer(&m.downstreamID)
	sa, _ := evt.Message.SourceAddress()
	ta, _ := evt.Message.TargetAddress()
	ack := doip.BuildDiagnosticMessageAck(sa, ta, innerPayload(evt.Message))
	m.send(ack)
	request := m.pendingDownstream
	m.pendingDownstream = nil
	m.armGeneralInactivity()
	m.state = RoutingActivated

	if request != nil {
		m.ctx.NotifyDownstreamResponse(*request, evt.Message)
	}
}

func (m *Machine) onDownstreamTimeout() {
	if m.state != WaitDownstreamResponse || m.pendingDownstream == nil {
		return
	}
	req := m.pendingDownstream
	sa, _ := req.SourceAddress()
	ta, _ := req.TargetAddress()
	nack := doip.BuildDiagnosticMessageNegativeAck(sa, ta, doip.TargetUnreachable, innerPayload(*req))
	m.send(nack)
	m.pendingDownstream = nil
	m.armGeneralInactivity()
	m.state = RoutingActivated
}

func (m *Machine) onInitialInactivityTimeout() {
	if m.state != WaitRoutingActivation {
		return
	}
	m.closeLocked(connctx.InitialInactivityTimeoutReason)
}

func (m *Machine) onGeneralInactivityTimeout() {
	if m.state != RoutingActivated {
		return
	}
	m.send(doip.BuildAliveCheckRequest())
	m.aliveCheckRetries = 0
	m.aliveCheckID = m.timers.Add(m.cfg.AliveCheck, func() {
		m.Dispatch(connctx.Event{Kind: connctx.AliveCheckTimeout})
	}, false)
	m.state = WaitAliveCheckResponse
}

func (m *Machine) onAliveCheckResponseReceived() {
	if m.state != WaitAliveCheckResponse {
		return
	}
	m.cancelTimer(&m.aliveCheckID)
	m.armGeneralInactivity()
	m.state = RoutingActivated
}

func (m *Machine) onAliveCheckTimeout() {
	if m.state != WaitAliveCheckResponse {
		return
	}
	m.aliveCheckRetries++
	if m.aliveCheckRetries < m.cfg.MaxAliveCheckRetries {
		m.send(doip.BuildAliveCheckRequest())
		m.aliveCheckID = m.timers.Add(m.cfg.AliveCheck, func() {
			m.Dispatch(connctx.Event{Kind: connctx.AliveCheckTimeout})
		}, false)
		return
	}
	m.closeLocked(connctx.AliveCheckTimeoutReason)
}

func (m *Machine) onFatalProtocolEvent(nack doip.NackCode, reason connctx.CloseReason) {
	m.send(doip.BuildNegativeAck(nack))
	m.closeLocked(reason)
}

// armGeneralInactivity cancels any running general-inactivity timer and
// rearms it. It runs on each transition into RoutingActivated and after
// every diagnostic message answered there; an inbound message that the
// current state discards (e.g. an unsolicited alive-check response) does
// not rearm the timer.
func (m *Machine) armGeneralInactivity() {
	m.cancelTimer(&m.generalInactivityID)
	m.generalInactivityID = m.timers.Add(m.cfg.GeneralInactivity, func() {
		m.Dispatch(connctx.Event{Kind: connctx.GeneralInactivityTimeout})
	}, false)
}

func (m *Machine) cancelTimer(id *timer.ID) {
	if *id != 0 {
		m.timers.Remove(*id)
		*id = 0
	}
}

// closeLocked cancels every protocol timer and hands off to the context,
// which fires the application's close hook exactly once. Called with m.mu
// held; ctx.Close does its own idempotency/locking so it is safe to invoke
// more than once across retries.
func (m *Machine) closeLocked(reason connctx.CloseReason) {
	m.state = Finalize
	m.cancelTimer(&m.initialInactivityID)
	m.cancelTimer(&m.generalInactivityID)
	m.cancelTimer(&m.aliveCheckID)
	m.cancelTimer(&m.downstreamID)
	m.pendingDownstream = nil
	m.state = Closed
	m.ctx.Close(reason)
}

func (m *Machine) send(msg doip.Message) {
	if _, err := m.ctx.SendProtocolMessage(msg); err != nil {
		m.logger.Printf("fsm: send failed: %v", err)
	}
}

// innerPayload returns the UDS bytes of a diagnostic-family message,
// stripping the leading SA/TA fields.
func innerPayload(msg doip.Message) []byte {
	p := msg.Payload()
	if len(p) < 4 {
		return nil
	}
	return p[4:]
}
