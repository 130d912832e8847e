// Package decode hand-decodes Ethernet/IPv4/TCP headers from a raw frame.
// This is deliberately NOT built on gopacket's layer decoders: byte-by-byte
// header parsing is the part under test here (spec.md §4.1 calls it "the
// core"), so internal/capture hands this package raw bytes and nothing
// else. Grounded on the eth_header/ip_header/tcp_header struct layouts and
// packet_received's header-walk in original_source/pe_dump/pe_dump.c.
package decode

import (
	"encoding/binary"
	"net"
)

const (
	ethHeaderLen   = 14
	ethTypeIPv4    = 0x0800
	minIPHeaderLen = 20
	minTCPHeaderLen = 20
	protoTCP       = 6
)

// TCP flag bits, matching TH_* in original_source/pe_dump/pe_dump.c.
const (
	FlagFIN = 0x01
	FlagSYN = 0x02
	FlagRST = 0x04
	FlagPSH = 0x08
	FlagACK = 0x10
	FlagURG = 0x20
	FlagECE = 0x40
	FlagCWR = 0x80
)

// DropReason explains why a frame was not decoded into a Segment.
type DropReason int

const (
	// DropNone indicates successful decoding; it is the DropReason
	// returned alongside a decoded Segment.
	DropNone DropReason = iota
	// DropTooShortForEthernet means the frame is shorter than an Ethernet header.
	DropTooShortForEthernet
	// DropNotIPv4 means the Ethernet payload is not an IPv4 packet.
	DropNotIPv4
	// DropTooShortForIP means the frame is shorter than the declared IP header.
	DropTooShortForIP
	// DropBadIPHeaderLen means the IP header length field is < 20 bytes.
	DropBadIPHeaderLen
	// DropNotTCP means the IP payload protocol is not TCP.
	DropNotTCP
	// DropTooShortForTCP means the frame is shorter than the declared TCP header.
	DropTooShortForTCP
	// DropBadTCPHeaderLen means the TCP data offset is < 20 bytes.
	DropBadTCPHeaderLen
	// DropBadPayloadLength means ip.total_length - ip_header_len -
	// tcp_header_len is negative, or claims more bytes than were actually
	// captured.
	DropBadPayloadLength
	// DropExceedsSnapLen means the captured frame is longer than the
	// configured snapshot length.
	DropExceedsSnapLen
)

// Segment is the decoded result of one Ethernet/IPv4/TCP frame: the fields
// the flow state machine and reassembler need, plus the raw payload slice
// (no copy — it aliases the caller's frame buffer).
type Segment struct {
	SrcIP   net.IP
	DstIP   net.IP
	SrcPort uint16
	DstPort uint16
	Seq     uint32
	Ack     uint32
	Flags   uint8
	Payload []byte
}

// Decode parses frame (an Ethernet frame as captured, no FCS) into a
// Segment. captureLen is the driver-reported capture length for this frame
// (capture.Frame.CaptureLen); snapLen is the configured capture snapshot
// length (spec.md §4.1). A frame whose captureLen exceeds snapLen is
// dropped regardless of how well-formed its headers are. Pass snapLen <= 0
// to skip the check (no configured limit). Decode returns a non-zero
// DropReason instead of an error for every structural guard the original
// packet_received performs inline, so callers can count drops by reason
// without allocating.
func Decode(frame []byte, captureLen int, snapLen int) (Segment, DropReason) {
	if snapLen > 0 && captureLen > snapLen {
		return Segment{}, DropExceedsSnapLen
	}

	if len(frame) < ethHeaderLen {
		return Segment{}, DropTooShortForEthernet
	}

	etherType := binary.BigEndian.Uint16(frame[12:14])
	if etherType != ethTypeIPv4 {
		return Segment{}, DropNotIPv4
	}

	ipStart := ethHeaderLen
	if len(frame) < ipStart+minIPHeaderLen {
		return Segment{}, DropTooShortForIP
	}

	ipHdr := frame[ipStart:]
	ihl := int(ipHdr[0]&0x0f) * 4
	if ihl < minIPHeaderLen {
		return Segment{}, DropBadIPHeaderLen
	}

	if len(frame) < ipStart+ihl {
		return Segment{}, DropTooShortForIP
	}

	proto := ipHdr[9]
	if proto != protoTCP {
		return Segment{}, DropNotTCP
	}

	srcIP := net.IPv4(ipHdr[12], ipHdr[13], ipHdr[14], ipHdr[15])
	dstIP := net.IPv4(ipHdr[16], ipHdr[17], ipHdr[18], ipHdr[19])

	tcpStart := ipStart + ihl
	if len(frame) < tcpStart+minTCPHeaderLen {
		return Segment{}, DropTooShortForTCP
	}

	tcpHdr := frame[tcpStart:]
	dataOff := int(tcpHdr[12]>>4) * 4
	if dataOff < minTCPHeaderLen {
		return Segment{}, DropBadTCPHeaderLen
	}

	if len(frame) < tcpStart+dataOff {
		return Segment{}, DropTooShortForTCP
	}

	// payload length = ip.total_length - ip_header_len - tcp_header_len,
	// matching packet_received's payload_size computation; the remainder
	// of the captured frame is not trustworthy as payload, since Ethernet
	// minimum-frame padding or over-capture can append trailing bytes
	// past the end of the actual IP datagram.
	ipTotalLen := int(binary.BigEndian.Uint16(ipHdr[2:4]))
	payloadLen := ipTotalLen - ihl - dataOff
	payloadStart := tcpStart + dataOff

	if payloadLen < 0 || payloadStart+payloadLen > len(frame) {
		return Segment{}, DropBadPayloadLength
	}

	seg := Segment{
		SrcIP:   srcIP,
		DstIP:   dstIP,
		SrcPort: binary.BigEndian.Uint16(tcpHdr[0:2]),
		DstPort: binary.BigEndian.Uint16(tcpHdr[2:4]),
		Seq:     binary.BigEndian.Uint32(tcpHdr[4:8]),
		Ack:     binary.BigEndian.Uint32(tcpHdr[8:12]),
		Flags:   tcpHdr[13],
		Payload: frame[payloadStart : payloadStart+payloadLen],
	}

	return seg, DropNone
}

// HasFlag reports whether all bits in mask are set in flags.
func HasFlag(flags uint8, mask uint8) bool {
	return flags&mask == mask
}
