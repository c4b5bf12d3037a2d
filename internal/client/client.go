// Package client implements the symmetric DoIP Client (C12): UDP
// discovery, TCP routing activation, and diagnostic message send/receive,
// as a tester would use it against a DoIP entity.
//
// Grounded on the teacher's cipclient package (DiscoverDevices in
// internal/cipclient/discovery.go: broadcast a request, collect unicast
// replies under a read deadline) for the discovery shape, and on
// internal/cip/client/client.go for the connect-then-exchange-framed-
// messages shape of the TCP session below.
package client

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/tturner/doip/internal/doip"
	"github.com/tturner/doip/internal/ident"
)

// DiscoveredEntity is one VehicleIdentificationResponse collected during
// discovery, plus the address it arrived from.
type DiscoveredEntity struct {
	From            *net.UDPAddr
	VIN             ident.VIN
	LogicalAddress  doip.Address
	EID             ident.EID
	GID             ident.GID
	FurtherAction   byte
}

// DiscoverOptions controls a Discover call.
type DiscoverOptions struct {
	Port     int
	Timeout  time.Duration
	Loopback bool
}

// Discover broadcasts (or, in loopback mode, sends to 127.0.0.1) a
// VehicleIdentificationRequest and collects every VehicleIdentificationResponse
// received before opts.Timeout elapses.
func Discover(ctx context.Context, opts DiscoverOptions) ([]DiscoveredEntity, error) {
	port := opts.Port
	if port == 0 {
		port = 13400
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	if err != nil {
		return nil, fmt.Errorf("listen UDP: %w", err)
	}
	defer conn.Close()

	dest := &net.UDPAddr{IP: net.IPv4bcast, Port: port}
	if opts.Loopback {
		dest = &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port}
	}

	req := doip.BuildVehicleIdentificationRequest()
	if _, err := conn.WriteToUDP(req.Bytes(), dest); err != nil {
		return nil, fmt.Errorf("send VehicleIdentificationRequest: %w", err)
	}

	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, fmt.Errorf("set read deadline: %w", err)
	}

	var found []DiscoveredEntity
	buf := make([]byte, doip.HeaderLength+64)
	for {
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			break
		}
		msg, err := doip.TryParse(buf[:n], 0)
		if err != nil || msg.PayloadType() != doip.VehicleIdentificationResponse {
			continue
		}
		entity, ok := parseIdentificationResponse(msg, from)
		if ok {
			found = append(found, entity)
		}
	}
	return found, nil
}

func parseIdentificationResponse(msg doip.Message, from *net.UDPAddr) (DiscoveredEntity, bool) {
	p := msg.Payload()
	if len(p) < 32 {
		return DiscoveredEntity{}, false
	}
	vin := ident.VINFromBytes(p[0:17])
	logical := doip.Address(uint16(p[17])<<8 | uint16(p[18]))
	eid := ident.NewEID(p[19:25])
	gid := ident.NewGID(p[25:31])
	return DiscoveredEntity{
		From:           from,
		VIN:            vin,
		LogicalAddress: logical,
		EID:            eid,
		GID:            gid,
		FurtherAction:  p[31],
	}, true
}

// Session is an active TCP connection to a DoIP entity, after (optionally)
// routing activation.
type Session struct {
	conn         net.Conn
	sourceAddr   doip.Address
	entityAddr   doip.Address
	routeActive  bool
}

// Dial connects to addr ("host:port") and returns an unactivated Session.
func Dial(ctx context.Context, addr string, sourceAddr doip.Address) (*Session, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return &Session{conn: conn, sourceAddr: sourceAddr}, nil
}

// Close closes the underlying TCP connection.
func (s *Session) Close() error {
	return s.conn.Close()
}

// EntityAddress returns the logical address the entity reported during
// routing activation. Only meaningful after a successful Activate call.
func (s *Session) EntityAddress() doip.Address {
	return s.entityAddr
}

// Activate performs routing activation and blocks until the response
// arrives or readTimeout elapses. On RouteActivated or
// RouteActivatedConfirmationRequired it records the entity's logical
// address and marks the session active.
func (s *Session) Activate(activationType doip.RoutingActivationType, readTimeout time.Duration) (doip.RoutingActivationResult, error) {
	req := doip.BuildRoutingActivationRequest(s.sourceAddr, activationType, nil)
	if err := s.send(req); err != nil {
		return 0, err
	}

	msg, err := s.receiveWithTimeout(readTimeout)
	if err != nil {
		return 0, err
	}
	if msg.PayloadType() != doip.RoutingActivationResponse || len(msg.Payload()) < 5 {
		return 0, fmt.Errorf("unexpected response payload type %v", msg.PayloadType())
	}

	entityAddr := doip.Address(uint16(msg.Payload()[2])<<8 | uint16(msg.Payload()[3]))
	result := doip.RoutingActivationResult(msg.Payload()[4])
	if result == doip.RouteActivated || result == doip.RouteActivatedConfirmationRequired {
		s.entityAddr = entityAddr
		s.routeActive = true
	}
	return result, nil
}

// SendDiagnostic sends a DiagnosticMessage carrying payload to target and
// waits for the matching ack/nack, returning its raw reply.
func (s *Session) SendDiagnostic(target doip.Address, payload []byte, readTimeout time.Duration) (doip.Message, error) {
	if !s.routeActive {
		return doip.Message{}, fmt.Errorf("routing activation required before sending diagnostic messages")
	}
	req := doip.BuildDiagnosticMessage(s.sourceAddr, target, payload)
	if err := s.send(req); err != nil {
		return doip.Message{}, err
	}
	return s.receiveWithTimeout(readTimeout)
}

func (s *Session) send(msg doip.Message) error {
	buf := msg.Bytes()
	written := 0
	for written < len(buf) {
		n, err := s.conn.Write(buf[written:])
		written += n
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) receiveWithTimeout(timeout time.Duration) (doip.Message, error) {
	if timeout > 0 {
		s.conn.SetReadDeadline(time.Now().Add(timeout))
		defer s.conn.SetReadDeadline(time.Time{})
	}

	header := make([]byte, doip.HeaderLength)
	if _, err := readFull(s.conn, header); err != nil {
		return doip.Message{}, err
	}
	info, err := doip.TryParseHeader(header, 0)
	if err != nil {
		return doip.Message{}, err
	}
	body := make([]byte, doip.HeaderLength+int(info.PayloadLength))
	copy(body, header)
	if info.PayloadLength > 0 {
		if _, err := readFull(s.conn, body[doip.HeaderLength:]); err != nil {
			return doip.Message{}, err
		}
	}
	return doip.TryParse(body, 0)
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
