package capture

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/tturner/doip/internal/doip"
)

func buildTCPPacket(t *testing.T, srcIP, dstIP string, srcPort, dstPort uint16, payload []byte) []byte {
	t.Helper()
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		DstMAC:       net.HardwareAddr{0x66, 0x77, 0x88, 0x99, 0xaa, 0xbb},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		SrcIP:    net.ParseIP(srcIP).To4(),
		DstIP:    net.ParseIP(dstIP).To4(),
		Protocol: layers.IPProtocolTCP,
	}
	tcp := &layers.TCP{
		SrcPort: layers.TCPPort(srcPort),
		DstPort: layers.TCPPort(dstPort),
		Seq:     1,
		ACK:     true,
		Window:  14600,
	}
	tcp.SetNetworkLayerForChecksum(ip)

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, ip, tcp, gopacket.Payload(payload)); err != nil {
		t.Fatalf("serialize tcp packet: %v", err)
	}
	return buf.Bytes()
}

func buildUDPPacket(t *testing.T, srcIP, dstIP string, srcPort, dstPort uint16, payload []byte) []byte {
	t.Helper()
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		DstMAC:       net.HardwareAddr{0x66, 0x77, 0x88, 0x99, 0xaa, 0xbb},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		SrcIP:    net.ParseIP(srcIP).To4(),
		DstIP:    net.ParseIP(dstIP).To4(),
		Protocol: layers.IPProtocolUDP,
	}
	udp := &layers.UDP{
		SrcPort: layers.UDPPort(srcPort),
		DstPort: layers.UDPPort(dstPort),
	}
	udp.SetNetworkLayerForChecksum(ip)

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload(payload)); err != nil {
		t.Fatalf("serialize udp packet: %v", err)
	}
	return buf.Bytes()
}

func writePCAP(t *testing.T, packets ...[]byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "doip.pcap")
	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("create pcap: %v", err)
	}
	defer file.Close()

	writer := pcapgo.NewWriter(file)
	if err := writer.WriteFileHeader(65535, layers.LinkTypeEthernet); err != nil {
		t.Fatalf("write pcap header: %v", err)
	}
	for i, packet := range packets {
		ci := gopacket.CaptureInfo{
			Timestamp:     time.Unix(1700000000, int64(i)*int64(time.Millisecond)),
			CaptureLength: len(packet),
			Length:        len(packet),
		}
		if err := writer.WritePacket(ci, packet); err != nil {
			t.Fatalf("write packet: %v", err)
		}
	}
	return path
}

func TestExtractFromFileFindsTCPDiagnosticMessage(t *testing.T) {
	msg := doip.BuildDiagnosticMessage(0xE000, 0x0E80, []byte{0x3E})
	packet := buildTCPPacket(t, "10.0.0.1", "10.0.0.2", 40000, 13400, msg.Bytes())
	path := writePCAP(t, packet)

	found, err := ExtractFromFile(path)
	if err != nil {
		t.Fatalf("ExtractFromFile: %v", err)
	}
	if len(found) != 1 {
		t.Fatalf("found %d messages, want 1", len(found))
	}
	if found[0].Transport != "tcp" {
		t.Fatalf("transport = %s, want tcp", found[0].Transport)
	}
	if found[0].Message.PayloadType() != doip.DiagnosticMessage {
		t.Fatalf("payload type = %v, want DiagnosticMessage", found[0].Message.PayloadType())
	}
}

func TestExtractFromFileFindsUDPAnnouncement(t *testing.T) {
	msg := doip.BuildVehicleIdentificationRequest()
	packet := buildUDPPacket(t, "10.0.0.5", "255.255.255.255", 13400, 13400, msg.Bytes())
	path := writePCAP(t, packet)

	found, err := ExtractFromFile(path)
	if err != nil {
		t.Fatalf("ExtractFromFile: %v", err)
	}
	if len(found) != 1 {
		t.Fatalf("found %d messages, want 1", len(found))
	}
	if found[0].Transport != "udp" {
		t.Fatalf("transport = %s, want udp", found[0].Transport)
	}
	if found[0].Message.PayloadType() != doip.VehicleIdentificationRequest {
		t.Fatalf("payload type = %v, want VehicleIdentificationRequest", found[0].Message.PayloadType())
	}
}

func TestExtractFromFileSkipsNonDoIPPayload(t *testing.T) {
	packet := buildTCPPacket(t, "10.0.0.1", "10.0.0.2", 40000, 13400, []byte("not a doip frame"))
	path := writePCAP(t, packet)

	found, err := ExtractFromFile(path)
	if err != nil {
		t.Fatalf("ExtractFromFile: %v", err)
	}
	if len(found) != 0 {
		t.Fatalf("found %d messages, want 0", len(found))
	}
}
