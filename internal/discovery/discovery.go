// Package discovery implements UDP Discovery (C9): the identification
// listener that answers VehicleIdentificationRequest with a unicast
// VehicleIdentificationResponse, and the vehicle-announcement broadcaster
// that advertises the same response on startup.
//
// Grounded on the teacher's UDP I/O listener
// (tonylturner-cipdip internal/server/core/listener.go handleUDP, and its
// optional multicast join) for the bind/receive-loop shape, generalized
// from ENIP's connected I/O datagrams to DoIP's two independent UDP
// concerns (a request/response listener and a periodic announcer), and on
// original_source/inc/DoIPTimes.h for the default announcement cadence
// (three announcements, 500 ms apart).
package discovery

import (
	"log"
	"net"
	"time"

	"golang.org/x/sys/unix"

	"github.com/tturner/doip/internal/doip"
	"github.com/tturner/doip/internal/ident"
)

// DefaultPort is the DoIP UDP discovery port (spec.md §6).
const DefaultPort = 13400

// Identity is the fixed identification data the listener and announcer
// advertise for this entity.
type Identity struct {
	VIN               ident.VIN
	LogicalAddress    doip.Address
	EID               ident.EID
	GID               ident.GID
	FurtherActionCode byte

	// SyncStatus is the VIN/GID synchronization status octet (spec.md §6
	// Scenario 1): 0x00 means synchronized. original_source's canonical
	// response builder always emits this byte, so it is never omitted here.
	SyncStatus byte
}

// Response builds the VehicleIdentificationResponse payload for this identity.
func (id Identity) Response() doip.Message {
	syncStatus := id.SyncStatus
	return doip.BuildVehicleIdentificationResponse(id.VIN, id.LogicalAddress, id.EID, id.GID, id.FurtherActionCode, &syncStatus)
}

// AnnounceMode selects the announcement destination.
type AnnounceMode int

const (
	Broadcast AnnounceMode = iota
	Loopback
)

// Config controls the announcer's cadence and destination.
type Config struct {
	Count    int
	Interval time.Duration
	Mode     AnnounceMode
	Port     int
}

// DefaultConfig returns the ISO 13400-2 default announcement behavior.
func DefaultConfig() Config {
	return Config{Count: 3, Interval: 500 * time.Millisecond, Mode: Broadcast, Port: DefaultPort}
}

// Listener binds the discovery port and answers identification requests.
// Malformed inbound datagrams are dropped silently after logging; no NACK
// is sent on UDP (spec.md §7 user-visible behaviour).
type Listener struct {
	conn     *net.UDPConn
	identity Identity
	logger   *log.Logger
}

// NewListener binds to 0.0.0.0:port (DefaultPort when port is 0).
func NewListener(port int, identity Identity, logger *log.Logger) (*Listener, error) {
	if port == 0 {
		port = DefaultPort
	}
	if logger == nil {
		logger = log.Default()
	}
	addr := &net.UDPAddr{IP: net.IPv4zero, Port: port}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, err
	}
	return &Listener{conn: conn, identity: identity, logger: logger}, nil
}

// Run serves identification requests until Close is called, at which
// point ReadFromUDP returns an error and the loop exits.
func (l *Listener) Run() {
	buf := make([]byte, doip.HeaderLength+256)
	for {
		n, from, err := l.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		l.handleDatagram(buf[:n], from)
	}
}

func (l *Listener) handleDatagram(data []byte, from *net.UDPAddr) {
	msg, err := doip.TryParse(data, 0)
	if err != nil {
		l.logger.Printf("discovery: dropping malformed UDP datagram from %s: %v", from, err)
		return
	}

	switch msg.PayloadType() {
	case doip.VehicleIdentificationRequest, doip.VehicleIdentificationRequestWithEID, doip.VehicleIdentificationRequestWithVIN:
		resp := l.identity.Response()
		if _, err := l.conn.WriteToUDP(resp.Bytes(), from); err != nil {
			l.logger.Printf("discovery: reply to %s failed: %v", from, err)
		}
	default:
		l.logger.Printf("discovery: dropping unexpected UDP payload type %v from %s", msg.PayloadType(), from)
	}
}

// Close unblocks Run and releases the socket.
func (l *Listener) Close() error {
	return l.conn.Close()
}

// Addr returns the socket's bound local address.
func (l *Listener) Addr() *net.UDPAddr {
	return l.conn.LocalAddr().(*net.UDPAddr)
}

// Announce sends cfg.Count vehicle-announcement datagrams, cfg.Interval
// apart, to the broadcast address (or 127.0.0.1 in loopback mode) on
// cfg.Port.
func Announce(identity Identity, cfg Config) error {
	port := cfg.Port
	if port == 0 {
		port = DefaultPort
	}

	dest := &net.UDPAddr{IP: net.IPv4bcast, Port: port}
	if cfg.Mode == Loopback {
		dest = &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port}
	}

	conn, err := net.DialUDP("udp", nil, dest)
	if err != nil {
		return err
	}
	defer conn.Close()

	if cfg.Mode == Broadcast {
		if err := setBroadcast(conn); err != nil {
			return err
		}
	}

	resp := identity.Response()
	count := cfg.Count
	if count <= 0 {
		count = 3
	}
	for i := 0; i < count; i++ {
		if _, err := conn.Write(resp.Bytes()); err != nil {
			return err
		}
		if i < count-1 {
			time.Sleep(cfg.Interval)
		}
	}
	return nil
}

// setBroadcast enables SO_BROADCAST on conn's socket, required to send to
// the limited broadcast address (255.255.255.255) from a UDP socket.
func setBroadcast(conn *net.UDPConn) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	var sockErr error
	err = raw.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}
