// Package tcpsession implements the TCP Session Runtime (C8): the framed
// header-then-payload receive loop that feeds parsed messages into the
// state machine, and the complete-or-error blocking write path.
//
// Grounded on the teacher's per-connection accept/read loop
// (tonylturner-cipdip internal/server/core/listener.go handleConnection),
// generalized from its length-prefixed ENIP stream accumulator
// (parseENIPStream over a growable buffer) to DoIP's fixed 8-byte header
// plus declared-length payload framing, read in two exact reads rather
// than accumulated and re-scanned.
package tcpsession

import (
	"io"
	"log"
	"net"
	"sync"
	"time"

	"github.com/tturner/doip/internal/connctx"
	"github.com/tturner/doip/internal/doip"
)

// Session owns one accepted TCP connection: the blocking write path (used
// as the connctx.Sender) and the read loop that turns bytes into events
// for the bound state machine.
type Session struct {
	conn   net.Conn
	sink   connctx.EventSink
	logger *log.Logger

	maxMessageSize uint32

	writeMu sync.Mutex
	closed  sync.Once
}

// NewSession wraps conn. sink receives the events the read loop derives
// from inbound frames; it is normally the fsm.Machine bound to this
// connection's Context. maxMessageSize bounds a single frame's payload
// (spec.md §4.5 step 3); 0 selects doip.DefaultMaxPayloadLength.
func NewSession(conn net.Conn, sink connctx.EventSink, maxMessageSize uint32, logger *log.Logger) *Session {
	if logger == nil {
		logger = log.Default()
	}
	return &Session{conn: conn, sink: sink, maxMessageSize: maxMessageSize, logger: logger}
}

// SendMessage writes a complete frame. Partial writes are retried until
// the frame is fully written or the connection errors (spec.md §4.5:
// "writes are blocking and complete-or-error").
func (s *Session) SendMessage(msg doip.Message) (int, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	buf := msg.Bytes()
	written := 0
	for written < len(buf) {
		n, err := s.conn.Write(buf[written:])
		written += n
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

// CloseSocket closes the underlying connection exactly once.
func (s *Session) CloseSocket() error {
	var err error
	s.closed.Do(func() {
		err = s.conn.Close()
	})
	return err
}

// Run executes the framed receive loop until the peer closes, a fatal
// protocol error occurs, or the connection is closed from elsewhere (which
// unblocks the pending Read with a use-of-closed-connection error). Each
// step maps directly onto spec.md §4.5:
//  1. read exactly 8 header bytes;
//  2. parse the header, emitting the appropriate NACK event on failure;
//  3. read exactly PayloadLength more bytes, bounded by maxMessageSize;
//  4. hand the assembled message to the sink as the matching event;
//  5. general inactivity is rearmed by the sink when it acts on the
//     derived event; this loop does not touch timers, and a message the
//     state machine discards in its current state does not rearm it.
func (s *Session) Run() {
	header := make([]byte, doip.HeaderLength)

	for {
		if _, err := io.ReadFull(s.conn, header); err != nil {
			s.sink.Dispatch(connctx.Event{Kind: connctx.SocketError})
			return
		}

		info, err := doip.TryParseHeader(header, s.maxMessageSize)
		if err != nil {
			s.sink.Dispatch(connctx.Event{Kind: connctx.InvalidMessage, Nack: err.(doip.NackCode)})
			return
		}

		body := make([]byte, doip.HeaderLength+int(info.PayloadLength))
		copy(body, header)
		if info.PayloadLength > 0 {
			if _, err := io.ReadFull(s.conn, body[doip.HeaderLength:]); err != nil {
				s.sink.Dispatch(connctx.Event{Kind: connctx.SocketError})
				return
			}
		}

		msg, err := doip.TryParse(body, s.maxMessageSize)
		if err != nil {
			s.sink.Dispatch(connctx.Event{Kind: connctx.InvalidMessage, Nack: err.(doip.NackCode)})
			return
		}

		kind, ok := eventKindFor(msg.PayloadType())
		if !ok {
			s.sink.Dispatch(connctx.Event{Kind: connctx.InvalidMessage, Nack: doip.UnknownPayloadType})
			return
		}
		s.sink.Dispatch(connctx.Event{Kind: kind, Message: msg})
	}
}

// eventKindFor maps an inbound payload type to the event the state
// machine reacts to. Payload types with no defined server-side reaction
// (e.g. a client-only response type arriving unexpectedly) report ok=false
// so the caller closes the session rather than silently hanging.
func eventKindFor(pt doip.PayloadType) (kind connctx.EventKind, ok bool) {
	switch pt {
	case doip.RoutingActivationRequest:
		return connctx.RoutingActivationReceived, true
	case doip.AliveCheckResponse:
		return connctx.AliveCheckResponseReceived, true
	case doip.DiagnosticMessage:
		return connctx.DiagnosticMessageReceived, true
	default:
		return 0, false
	}
}

// SetKeepaliveDeadline is a thin wrapper that bounds a read with a
// socket-level timeout independent of the protocol inactivity timers.
// Nothing in this module calls it; the server unblocks reads on shutdown
// by closing the connection.
func SetKeepaliveDeadline(conn net.Conn, d time.Duration) error {
	return conn.SetReadDeadline(time.Now().Add(d))
}
