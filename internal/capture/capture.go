// Package capture implements offline DoIP frame extraction from pcap
// files (D1), a debugging aid for inspecting recorded traffic — never on
// the hot path of the TCP Session Runtime (C8) or UDP Discovery (C9).
//
// Grounded on the teacher's internal/pcap/extract.go: pcap.OpenOffline +
// gopacket.NewPacketSource, a per-TCP-stream byte buffer keyed by the
// 4-tuple (streamKey) that payload bytes accumulate into across packets,
// and a per-packet TCP/UDP payload scan for UDP. Simplified from ENIP's
// 24-byte little/big-endian header sniffing to DoIP's single 8-byte
// big-endian header, and from full CIP service decoding (not needed here)
// to a single doip.TryParseHeader/TryParse call per candidate frame.
package capture

import (
	"fmt"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"

	"github.com/tturner/doip/internal/doip"
)

// CapturedMessage is one DoIP frame recovered from a pcap file, with the
// packet metadata it arrived under.
type CapturedMessage struct {
	Timestamp time.Time
	SrcIP     string
	DstIP     string
	SrcPort   uint16
	DstPort   uint16
	Transport string
	Message   doip.Message
}

// ExtractFromFile opens pcapFile offline and returns every well-formed
// DoIP frame found in its TCP and UDP payloads. TCP payloads are
// reassembled per 4-tuple stream before parsing, since a single DoIP
// frame may span multiple TCP segments; UDP datagrams are parsed as-is.
func ExtractFromFile(pcapFile string) ([]CapturedMessage, error) {
	handle, err := pcap.OpenOffline(pcapFile)
	if err != nil {
		return nil, fmt.Errorf("open pcap file: %w", err)
	}
	defer handle.Close()

	var out []CapturedMessage
	streams := make(map[string][]byte)
	source := gopacket.NewPacketSource(handle, handle.LinkType())

	for packet := range source.Packets() {
		ts := packetTimestamp(packet)

		if tcpLayer := packet.Layer(layers.LayerTypeTCP); tcpLayer != nil {
			tcp, _ := tcpLayer.(*layers.TCP)
			if len(tcp.Payload) == 0 {
				continue
			}
			key := streamKey(packet, tcp.SrcPort, tcp.DstPort)
			streams[key] = append(streams[key], tcp.Payload...)
			messages, remaining := extractFrames(streams[key], ts, packet, uint16(tcp.SrcPort), uint16(tcp.DstPort), "tcp")
			streams[key] = remaining
			out = append(out, messages...)
			continue
		}

		if udpLayer := packet.Layer(layers.LayerTypeUDP); udpLayer != nil {
			udp, _ := udpLayer.(*layers.UDP)
			if len(udp.Payload) == 0 {
				continue
			}
			messages, _ := extractFrames(udp.Payload, ts, packet, uint16(udp.SrcPort), uint16(udp.DstPort), "udp")
			out = append(out, messages...)
		}
	}

	return out, nil
}

func extractFrames(buf []byte, ts time.Time, packet gopacket.Packet, srcPort, dstPort uint16, transport string) ([]CapturedMessage, []byte) {
	var out []CapturedMessage
	offset := 0
	for offset+doip.HeaderLength <= len(buf) {
		info, err := doip.TryParseHeader(buf[offset:offset+doip.HeaderLength], 0)
		if err != nil {
			offset++
			continue
		}
		total := doip.HeaderLength + int(info.PayloadLength)
		if offset+total > len(buf) {
			break
		}
		msg, err := doip.TryParse(buf[offset:offset+total], 0)
		if err != nil {
			offset++
			continue
		}

		srcIP, dstIP := packetIPs(packet)
		out = append(out, CapturedMessage{
			Timestamp: ts,
			SrcIP:     srcIP,
			DstIP:     dstIP,
			SrcPort:   srcPort,
			DstPort:   dstPort,
			Transport: transport,
			Message:   msg,
		})
		offset += total
	}

	if offset >= len(buf) {
		return out, nil
	}
	remaining := make([]byte, len(buf)-offset)
	copy(remaining, buf[offset:])
	return out, remaining
}

func streamKey(packet gopacket.Packet, srcPort, dstPort layers.TCPPort) string {
	srcIP, dstIP := packetIPs(packet)
	return fmt.Sprintf("%s:%d->%s:%d", srcIP, srcPort, dstIP, dstPort)
}

func packetIPs(packet gopacket.Packet) (string, string) {
	netLayer := packet.NetworkLayer()
	if netLayer == nil {
		return "", ""
	}
	src, dst := netLayer.NetworkFlow().Endpoints()
	return src.String(), dst.String()
}

func packetTimestamp(packet gopacket.Packet) time.Time {
	if packet.Metadata() == nil {
		return time.Time{}
	}
	return packet.Metadata().Timestamp
}
