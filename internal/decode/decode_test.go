package decode

import (
	"encoding/binary"
	"testing"
)

// buildFrame constructs a minimal Ethernet+IPv4+TCP frame with no options
// and the given payload, for use as decoder test fixtures.
func buildFrame(flags uint8, seq, ack uint32, payload []byte) []byte {
	frame := make([]byte, 14+20+20+len(payload))

	binary.BigEndian.PutUint16(frame[12:14], ethTypeIPv4)

	ip := frame[14:34]
	ip[0] = 0x45 // version 4, IHL 5 (20 bytes)
	binary.BigEndian.PutUint16(ip[2:4], uint16(20+20+len(payload)))
	ip[9] = protoTCP
	copy(ip[12:16], []byte{192, 168, 1, 10})
	copy(ip[16:20], []byte{93, 184, 216, 34})

	tcp := frame[34:54]
	binary.BigEndian.PutUint16(tcp[0:2], 4444)
	binary.BigEndian.PutUint16(tcp[2:4], 80)
	binary.BigEndian.PutUint32(tcp[4:8], seq)
	binary.BigEndian.PutUint32(tcp[8:12], ack)
	tcp[12] = 5 << 4 // data offset 5 words = 20 bytes
	tcp[13] = flags

	copy(frame[54:], payload)

	return frame
}

func TestDecodeHappyPath(t *testing.T) {
	frame := buildFrame(FlagSYN, 1000, 0, nil)

	seg, reason := Decode(frame, len(frame), 0)
	if reason != DropNone {
		t.Fatalf("unexpected drop reason: %v", reason)
	}

	if seg.SrcPort != 4444 || seg.DstPort != 80 {
		t.Errorf("unexpected ports: src=%d dst=%d", seg.SrcPort, seg.DstPort)
	}

	if seg.Seq != 1000 {
		t.Errorf("unexpected seq: %d", seg.Seq)
	}

	if !HasFlag(seg.Flags, FlagSYN) {
		t.Error("expected SYN flag set")
	}

	if seg.SrcIP.String() != "192.168.1.10" {
		t.Errorf("unexpected src ip: %s", seg.SrcIP)
	}
}

func TestDecodeWithPayload(t *testing.T) {
	payload := []byte("GET / HTTP/1.1\r\n\r\n")
	frame := buildFrame(FlagACK|FlagPSH, 2000, 500, payload)

	seg, reason := Decode(frame, len(frame), 0)
	if reason != DropNone {
		t.Fatalf("unexpected drop reason: %v", reason)
	}

	if string(seg.Payload) != string(payload) {
		t.Errorf("payload mismatch: got %q", seg.Payload)
	}
}

func TestDecodeTooShortForEthernet(t *testing.T) {
	_, reason := Decode(make([]byte, 10), 10, 0)
	if reason != DropTooShortForEthernet {
		t.Errorf("expected DropTooShortForEthernet, got %v", reason)
	}
}

func TestDecodeNotIPv4(t *testing.T) {
	frame := buildFrame(FlagSYN, 0, 0, nil)
	binary.BigEndian.PutUint16(frame[12:14], 0x86DD) // IPv6

	_, reason := Decode(frame, len(frame), 0)
	if reason != DropNotIPv4 {
		t.Errorf("expected DropNotIPv4, got %v", reason)
	}
}

func TestDecodeNotTCP(t *testing.T) {
	frame := buildFrame(FlagSYN, 0, 0, nil)
	frame[14+9] = 17 // UDP

	_, reason := Decode(frame, len(frame), 0)
	if reason != DropNotTCP {
		t.Errorf("expected DropNotTCP, got %v", reason)
	}
}

func TestDecodeTruncatedTCPHeader(t *testing.T) {
	frame := buildFrame(FlagSYN, 0, 0, nil)
	frame = frame[:14+20+10] // chop the TCP header short

	_, reason := Decode(frame, len(frame), 0)
	if reason != DropTooShortForTCP {
		t.Errorf("expected DropTooShortForTCP, got %v", reason)
	}
}

func TestDecodeBadIPHeaderLen(t *testing.T) {
	frame := buildFrame(FlagSYN, 0, 0, nil)
	frame[14] = 0x42 // IHL = 2 words = 8 bytes, below the 20-byte minimum

	_, reason := Decode(frame, len(frame), 0)
	if reason != DropBadIPHeaderLen {
		t.Errorf("expected DropBadIPHeaderLen, got %v", reason)
	}
}

func TestDecodeIgnoresTrailingCapturePadding(t *testing.T) {
	payload := []byte("hello")
	frame := buildFrame(FlagACK, 1000, 0, payload)

	// simulate Ethernet minimum-frame padding or over-capture appending
	// bytes past the end of the actual IP datagram; ip.total_length still
	// only covers the real payload.
	frame = append(frame, []byte{0xAA, 0xAA, 0xAA}...)

	seg, reason := Decode(frame, len(frame), 0)
	if reason != DropNone {
		t.Fatalf("unexpected drop reason: %v", reason)
	}

	if string(seg.Payload) != string(payload) {
		t.Errorf("expected trailing padding excluded from payload, got %q", seg.Payload)
	}
}

func TestDecodeBadPayloadLengthNegative(t *testing.T) {
	frame := buildFrame(FlagACK, 1000, 0, nil)

	// claim an ip.total_length shorter than the header sizes it covers,
	// making the computed payload length negative.
	ip := frame[14:34]
	binary.BigEndian.PutUint16(ip[2:4], 30)

	_, reason := Decode(frame, len(frame), 0)
	if reason != DropBadPayloadLength {
		t.Errorf("expected DropBadPayloadLength, got %v", reason)
	}
}

func TestDecodeBadPayloadLengthOverflowsCapture(t *testing.T) {
	frame := buildFrame(FlagACK, 1000, 0, nil)

	// claim an ip.total_length implying far more payload than was
	// actually captured.
	ip := frame[14:34]
	binary.BigEndian.PutUint16(ip[2:4], 2000)

	_, reason := Decode(frame, len(frame), 0)
	if reason != DropBadPayloadLength {
		t.Errorf("expected DropBadPayloadLength, got %v", reason)
	}
}

func TestDecodeExceedsSnapLen(t *testing.T) {
	frame := buildFrame(FlagSYN, 1000, 0, nil)

	_, reason := Decode(frame, len(frame), len(frame)-1)
	if reason != DropExceedsSnapLen {
		t.Errorf("expected DropExceedsSnapLen, got %v", reason)
	}
}

func TestDecodeWithinSnapLen(t *testing.T) {
	frame := buildFrame(FlagSYN, 1000, 0, nil)

	_, reason := Decode(frame, len(frame), len(frame))
	if reason != DropNone {
		t.Errorf("expected DropNone when frame length equals snapLen, got %v", reason)
	}
}
