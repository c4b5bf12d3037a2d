package discovery

import (
	"net"
	"testing"
	"time"

	"github.com/tturner/doip/internal/doip"
	"github.com/tturner/doip/internal/ident"
)

func testIdentity() Identity {
	return Identity{
		VIN:             ident.NewVIN("1HGBH41JXMN109186"),
		LogicalAddress:  0x0E80,
		EID:             ident.NewEID([]byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}),
		GID:             ident.NewGID([]byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}),
		FurtherActionCode: 0x00,
	}
}

func TestListenerAnswersIdentificationRequest(t *testing.T) {
	listener, err := NewListener(0, testIdentity(), nil)
	if err != nil {
		t.Fatalf("NewListener: %v", err)
	}
	defer listener.Close()
	go listener.Run()

	client, err := net.DialUDP("udp", nil, listener.conn.LocalAddr().(*net.UDPAddr))
	if err != nil {
		t.Fatalf("DialUDP: %v", err)
	}
	defer client.Close()

	req := doip.BuildVehicleIdentificationRequest()
	if _, err := client.Write(req.Bytes()); err != nil {
		t.Fatalf("write request: %v", err)
	}

	client.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 64)
	n, err := client.Read(buf)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}

	resp, err := doip.TryParse(buf[:n], 0)
	if err != nil {
		t.Fatalf("TryParse response: %v", err)
	}
	if resp.PayloadType() != doip.VehicleIdentificationResponse {
		t.Fatalf("payload type = %v, want VehicleIdentificationResponse", resp.PayloadType())
	}
}

func TestListenerDropsMalformedDatagramSilently(t *testing.T) {
	listener, err := NewListener(0, testIdentity(), nil)
	if err != nil {
		t.Fatalf("NewListener: %v", err)
	}
	defer listener.Close()
	go listener.Run()

	client, err := net.DialUDP("udp", nil, listener.conn.LocalAddr().(*net.UDPAddr))
	if err != nil {
		t.Fatalf("DialUDP: %v", err)
	}
	defer client.Close()

	if _, err := client.Write([]byte{0x01, 0x02, 0x03}); err != nil {
		t.Fatalf("write garbage: %v", err)
	}

	client.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	buf := make([]byte, 64)
	if _, err := client.Read(buf); err == nil {
		t.Fatalf("expected no reply to malformed datagram")
	}
}

func TestIdentityResponseMatchesFactory(t *testing.T) {
	id := testIdentity()
	resp := id.Response()
	syncStatus := id.SyncStatus
	want := doip.BuildVehicleIdentificationResponse(id.VIN, id.LogicalAddress, id.EID, id.GID, id.FurtherActionCode, &syncStatus)
	if string(resp.Bytes()) != string(want.Bytes()) {
		t.Fatalf("Response() does not match factory output")
	}
}

// TestIdentityResponseMatchesScenario1Bytes pins the exact wire bytes from
// spec.md's discovery happy-path scenario: a 33-byte (0x21) payload ending
// in FurtherActionCode then SyncStatus, not the 32-byte payload you get by
// omitting SyncStatus.
func TestIdentityResponseMatchesScenario1Bytes(t *testing.T) {
	id := testIdentity()
	got := id.Response().Bytes()

	want := []byte{0x04, 0xFB, 0x00, 0x04, 0x00, 0x00, 0x00, 0x21}
	want = append(want, []byte("1HGBH41JXMN109186")...)
	want = append(want, 0x0E, 0x80, 0x00, 0x11, 0x22, 0x33, 0x44, 0x55, 0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF, 0x00, 0x00)

	if string(got) != string(want) {
		t.Fatalf("Response().Bytes() =\n% X\nwant\n% X", got, want)
	}
}
