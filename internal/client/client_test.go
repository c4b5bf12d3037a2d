package client

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/tturner/doip/internal/discovery"
	"github.com/tturner/doip/internal/doip"
	"github.com/tturner/doip/internal/ident"
)

func TestDiscoverFindsLoopbackEntity(t *testing.T) {
	identity := discovery.Identity{
		VIN:            ident.NewVIN("1HGBH41JXMN109186"),
		LogicalAddress: 0x0E80,
		EID:            ident.NewEID([]byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}),
		GID:            ident.NewGID([]byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}),
	}
	listener, err := discovery.NewListener(0, identity, nil)
	if err != nil {
		t.Fatalf("NewListener: %v", err)
	}
	defer listener.Close()
	go listener.Run()

	port := listener.Addr().Port

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	found, err := Discover(ctx, DiscoverOptions{Port: port, Timeout: 300 * time.Millisecond, Loopback: true})
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(found) != 1 {
		t.Fatalf("found %d entities, want 1", len(found))
	}
	if found[0].LogicalAddress != 0x0E80 {
		t.Fatalf("logical address = %x, want 0x0E80", found[0].LogicalAddress)
	}
	if found[0].VIN.String() != "1HGBH41JXMN109186" {
		t.Fatalf("VIN = %q, want 1HGBH41JXMN109186", found[0].VIN.String())
	}
}

func TestActivateAndSendDiagnosticAgainstFakeServer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		header := make([]byte, doip.HeaderLength)
		if _, err := readFull(conn, header); err != nil {
			return
		}
		info, err := doip.TryParseHeader(header, 0)
		if err != nil {
			return
		}
		body := make([]byte, doip.HeaderLength+int(info.PayloadLength))
		copy(body, header)
		readFull(conn, body[doip.HeaderLength:])
		req, err := doip.TryParse(body, 0)
		if err != nil {
			return
		}

		resp := doip.BuildRoutingActivationResponse(req, 0x0E80, doip.RouteActivated, nil)
		conn.Write(resp.Bytes())

		header2 := make([]byte, doip.HeaderLength)
		if _, err := readFull(conn, header2); err != nil {
			return
		}
		info2, err := doip.TryParseHeader(header2, 0)
		if err != nil {
			return
		}
		body2 := make([]byte, doip.HeaderLength+int(info2.PayloadLength))
		copy(body2, header2)
		readFull(conn, body2[doip.HeaderLength:])
		diagReq, err := doip.TryParse(body2, 0)
		if err != nil {
			return
		}
		sa, _ := diagReq.SourceAddress()
		ta, _ := diagReq.TargetAddress()
		ack := doip.BuildDiagnosticMessageAck(sa, ta, nil)
		conn.Write(ack.Bytes())
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	sess, err := Dial(ctx, ln.Addr().String(), 0xE000)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer sess.Close()

	result, err := sess.Activate(doip.ActivationDefault, time.Second)
	if err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if result != doip.RouteActivated {
		t.Fatalf("result = %v, want RouteActivated", result)
	}

	reply, err := sess.SendDiagnostic(0x0E80, []byte{0x3E}, time.Second)
	if err != nil {
		t.Fatalf("SendDiagnostic: %v", err)
	}
	if reply.PayloadType() != doip.DiagnosticMessageAck {
		t.Fatalf("reply payload type = %v, want DiagnosticMessageAck", reply.PayloadType())
	}
}
