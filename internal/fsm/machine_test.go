package fsm

import (
	"sync"
	"testing"
	"time"

	"github.com/tturner/doip/internal/connctx"
	"github.com/tturner/doip/internal/doip"
	"github.com/tturner/doip/internal/timer"
)

// fakeSender records every message sent and whether the socket was closed,
// standing in for the TCP session runtime.
type fakeSender struct {
	mu     sync.Mutex
	sent   []doip.Message
	closed bool
}

func (f *fakeSender) SendMessage(msg doip.Message) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return len(msg.Bytes()), nil
}

func (f *fakeSender) CloseSocket() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSender) last() doip.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[len(f.sent)-1]
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

// fakeDownstream implements connctx.DownstreamRouter for WaitDownstreamResponse tests.
type fakeDownstream struct {
	mu       sync.Mutex
	has      bool
	disposed connctx.Disposition

	respondedRequest  doip.Message
	respondedResponse doip.Message
	responded         bool
}

func (f *fakeDownstream) HasDownstreamHandler() bool { return f.has }
func (f *fakeDownstream) OnDownstreamRequest(connctx.Context, doip.Message) connctx.Disposition {
	return f.disposed
}
func (f *fakeDownstream) OnDownstreamResponse(ctx connctx.Context, request, response doip.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.respondedRequest = request
	f.respondedResponse = response
	f.responded = true
}

func (f *fakeDownstream) sawResponse() (request, response doip.Message, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.respondedRequest, f.respondedResponse, f.responded
}

func newHarness(t *testing.T, cfg Config) (*Machine, *connctx.Connection, *fakeSender, *timer.Manager) {
	t.Helper()
	sender := &fakeSender{}
	tm := timer.NewManager()
	conn := connctx.NewConnection(sender, 0x0E80)
	m := NewMachine(conn, tm, cfg, nil)
	conn.Bind(m, nil, nil, nil)
	return m, conn, sender, tm
}

func fastConfig() Config {
	return Config{
		InitialInactivity:    40 * time.Millisecond,
		GeneralInactivity:    300 * time.Second,
		AliveCheck:           40 * time.Millisecond,
		Downstream:           40 * time.Millisecond,
		MaxAliveCheckRetries: 3,
	}
}

func TestInitialInactivityTimeoutClosesConnection(t *testing.T) {
	cfg := fastConfig()
	m, conn, sender, tm := newHarness(t, cfg)
	defer tm.Stop()

	m.Start()
	time.Sleep(cfg.InitialInactivity * 3)

	if m.State() != Closed {
		t.Fatalf("state = %v, want Closed", m.State())
	}
	if conn.CloseReason() != connctx.InitialInactivityTimeoutReason {
		t.Fatalf("close reason = %v, want InitialInactivityTimeout", conn.CloseReason())
	}
	if conn.IsOpen() {
		t.Fatalf("connection still open after InitialInactivityTimeout")
	}
	_ = sender
}

func TestRoutingActivationSuccessTransitionsAndAcks(t *testing.T) {
	m, conn, sender, tm := newHarness(t, fastConfig())
	defer tm.Stop()
	m.Start()

	req := doip.BuildRoutingActivationRequest(0xE000, doip.ActivationDefault, nil)
	m.Dispatch(connctx.Event{Kind: connctx.RoutingActivationReceived, Message: req})

	if m.State() != RoutingActivated {
		t.Fatalf("state = %v, want RoutingActivated", m.State())
	}
	if conn.ClientAddress() != 0xE000 {
		t.Fatalf("client address = %x, want E000", conn.ClientAddress())
	}
	resp := sender.last()
	if resp.PayloadType() != doip.RoutingActivationResponse {
		t.Fatalf("sent payload type = %v, want RoutingActivationResponse", resp.PayloadType())
	}
}

func TestRoutingActivationInvalidSourceClosesWithDenied(t *testing.T) {
	m, conn, sender, tm := newHarness(t, fastConfig())
	defer tm.Stop()
	m.Start()

	req := doip.BuildRoutingActivationRequest(0x1234, doip.ActivationDefault, nil)
	m.Dispatch(connctx.Event{Kind: connctx.RoutingActivationReceived, Message: req})

	if m.State() != Closed {
		t.Fatalf("state = %v, want Closed", m.State())
	}
	if conn.CloseReason() != connctx.RoutingActivationDeniedReason {
		t.Fatalf("close reason = %v, want RoutingActivationDenied", conn.CloseReason())
	}
	resp := sender.last()
	if resp.PayloadType() != doip.RoutingActivationResponse {
		t.Fatalf("sent payload type = %v, want RoutingActivationResponse", resp.PayloadType())
	}
}

func activate(t *testing.T, m *Machine) {
	t.Helper()
	m.Start()
	req := doip.BuildRoutingActivationRequest(0xE000, doip.ActivationDefault, nil)
	m.Dispatch(connctx.Event{Kind: connctx.RoutingActivationReceived, Message: req})
	if m.State() != RoutingActivated {
		t.Fatalf("setup: state = %v, want RoutingActivated", m.State())
	}
}

func TestDiagnosticMessageSynchronousAck(t *testing.T) {
	m, _, sender, tm := newHarness(t, fastConfig())
	defer tm.Stop()
	activate(t, m)

	diag := doip.BuildDiagnosticMessage(0xE000, 0x0E80, []byte{0x3E})
	m.Dispatch(connctx.Event{Kind: connctx.DiagnosticMessageReceived, Message: diag})

	if m.State() != RoutingActivated {
		t.Fatalf("state = %v, want RoutingActivated", m.State())
	}
	resp := sender.last()
	if resp.PayloadType() != doip.DiagnosticMessageAck {
		t.Fatalf("payload type = %v, want DiagnosticMessageAck", resp.PayloadType())
	}
}

func TestDiagnosticMessageWrongSourceGetsInvalidSourceNack(t *testing.T) {
	m, _, sender, tm := newHarness(t, fastConfig())
	defer tm.Stop()
	activate(t, m)

	diag := doip.BuildDiagnosticMessage(0xE001, 0x0E80, []byte{0x3E})
	m.Dispatch(connctx.Event{Kind: connctx.DiagnosticMessageReceived, Message: diag})

	resp := sender.last()
	if resp.PayloadType() != doip.DiagnosticMessageNegativeAck {
		t.Fatalf("payload type = %v, want DiagnosticMessageNegativeAck", resp.PayloadType())
	}
	if len(resp.Payload()) < 5 || resp.Payload()[4] != byte(doip.InvalidSourceAddress) {
		t.Fatalf("nack code = %x, want InvalidSourceAddress", resp.Payload())
	}
}

func TestAliveCheckRetriesThenCloses(t *testing.T) {
	cfg := fastConfig()
	cfg.GeneralInactivity = 30 * time.Millisecond
	m, conn, sender, tm := newHarness(t, cfg)
	defer tm.Stop()
	activate(t, m)

	time.Sleep(cfg.GeneralInactivity + cfg.AliveCheck*time.Duration(cfg.MaxAliveCheckRetries+1)*3)

	if m.State() != Closed {
		t.Fatalf("state = %v, want Closed", m.State())
	}
	if conn.CloseReason() != connctx.AliveCheckTimeoutReason {
		t.Fatalf("close reason = %v, want AliveCheckTimeout", conn.CloseReason())
	}

	aliveChecks := 0
	for i := 0; i < sender.count(); i++ {
		sender.mu.Lock()
		pt := sender.sent[i].PayloadType()
		sender.mu.Unlock()
		if pt == doip.AliveCheckRequest {
			aliveChecks++
		}
	}
	if aliveChecks < cfg.MaxAliveCheckRetries {
		t.Fatalf("alive check requests sent = %d, want at least %d", aliveChecks, cfg.MaxAliveCheckRetries)
	}
}

func TestAliveCheckResponseReturnsToRoutingActivated(t *testing.T) {
	cfg := fastConfig()
	cfg.GeneralInactivity = 20 * time.Millisecond
	m, _, _, tm := newHarness(t, cfg)
	defer tm.Stop()
	activate(t, m)

	time.Sleep(cfg.GeneralInactivity * 2)
	if m.State() != WaitAliveCheckResponse {
		t.Fatalf("state = %v, want WaitAliveCheckResponse", m.State())
	}

	ackResp := doip.BuildAliveCheckResponse(0xE000)
	m.Dispatch(connctx.Event{Kind: connctx.AliveCheckResponseReceived, Message: ackResp})

	if m.State() != RoutingActivated {
		t.Fatalf("state = %v, want RoutingActivated", m.State())
	}
}

func TestDownstreamPendingRoundTrip(t *testing.T) {
	_, _, sender, tm := newHarness(t, fastConfig())
	defer tm.Stop()

	ds := &fakeDownstream{has: true, disposed: connctx.Pending}
	conn := connctx.NewConnection(sender, 0x0E80)
	mm := NewMachine(conn, tm, fastConfig(), nil)
	conn.Bind(mm, nil, nil, ds)
	activate(t, mm)

	diag := doip.BuildDiagnosticMessage(0xE000, 0x0E80, []byte{0x22, 0xF1, 0x90})
	mm.Dispatch(connctx.Event{Kind: connctx.DiagnosticMessageReceived, Message: diag})

	if mm.State() != WaitDownstreamResponse {
		t.Fatalf("state = %v, want WaitDownstreamResponse", mm.State())
	}

	response := doip.BuildDiagnosticMessage(0xE000, 0x0E80, []byte{0x62, 0xF1, 0x90, 0xAA})
	mm.Dispatch(connctx.Event{Kind: connctx.DiagnosticMessageReceivedDownstream, Message: response})

	if mm.State() != RoutingActivated {
		t.Fatalf("state = %v, want RoutingActivated", mm.State())
	}
	ack := sender.last()
	if ack.PayloadType() != doip.DiagnosticMessageAck {
		t.Fatalf("payload type = %v, want DiagnosticMessageAck", ack.PayloadType())
	}

	gotRequest, gotResponse, ok := ds.sawResponse()
	if !ok {
		t.Fatal("expected OnDownstreamResponse to be called after a completed downstream round-trip")
	}
	if string(gotRequest.Bytes()) != string(diag.Bytes()) {
		t.Fatalf("OnDownstreamResponse request = % X, want % X", gotRequest.Bytes(), diag.Bytes())
	}
	if string(gotResponse.Bytes()) != string(response.Bytes()) {
		t.Fatalf("OnDownstreamResponse response = % X, want % X", gotResponse.Bytes(), response.Bytes())
	}
}

func TestDownstreamTimeoutSendsNegativeAck(t *testing.T) {
	cfg := fastConfig()
	sender := &fakeSender{}
	tm := timer.NewManager()
	defer tm.Stop()
	ds := &fakeDownstream{has: true, disposed: connctx.Pending}
	conn := connctx.NewConnection(sender, 0x0E80)
	m := NewMachine(conn, tm, cfg, nil)
	conn.Bind(m, nil, nil, ds)
	activate(t, m)

	diag := doip.BuildDiagnosticMessage(0xE000, 0x0E80, []byte{0x22, 0xF1, 0x90})
	m.Dispatch(connctx.Event{Kind: connctx.DiagnosticMessageReceived, Message: diag})

	time.Sleep(cfg.Downstream * 3)

	if m.State() != RoutingActivated {
		t.Fatalf("state = %v, want RoutingActivated", m.State())
	}
	resp := sender.last()
	if resp.PayloadType() != doip.DiagnosticMessageNegativeAck {
		t.Fatalf("payload type = %v, want DiagnosticMessageNegativeAck", resp.PayloadType())
	}
	if len(resp.Payload()) < 5 || resp.Payload()[4] != byte(doip.TargetUnreachable) {
		t.Fatalf("nack code = %x, want TargetUnreachable", resp.Payload())
	}
}

func TestNotifierFiresOnlyWhenStateChanges(t *testing.T) {
	m, conn, _, tm := newHarness(t, fastConfig())
	defer tm.Stop()
	_ = conn

	var mu sync.Mutex
	var seen []State
	m.SetNotifier(func(s State) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})

	m.Start()

	act := doip.BuildRoutingActivationRequest(0xE000, doip.ActivationDefault, nil)
	m.Dispatch(connctx.Event{Kind: connctx.RoutingActivationReceived, Message: act})

	diag := doip.BuildDiagnosticMessage(0xE000, 0x0E80, []byte{0x3E})
	m.Dispatch(connctx.Event{Kind: connctx.DiagnosticMessageReceived, Message: diag})

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 {
		t.Fatalf("notifier fired %d times, want 2 (Start, RoutingActivated); got %v", len(seen), seen)
	}
	if seen[0] != WaitRoutingActivation {
		t.Fatalf("first notification = %v, want WaitRoutingActivation", seen[0])
	}
	if seen[1] != RoutingActivated {
		t.Fatalf("second notification = %v, want RoutingActivated", seen[1])
	}
}
