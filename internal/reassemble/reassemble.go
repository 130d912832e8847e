// Package reassemble holds the server-to-client payload buffer for one
// flow: placement of a segment at its sequence offset, and the geometric
// growth policy used once the flow is past header parsing and is
// accumulating PE bytes. Translated from the buffer-management branches of
// update_flow in original_source/pe_dump/pe_dump.c.
package reassemble

const (
	// InitCapacity is the buffer size allocated the first time a flow's
	// payload is touched, matching INIT_SC_PAYLOAD (1460*4, four TCP
	// segments' worth of Ethernet-MTU payload).
	InitCapacity = 1460 * 4
	// GrowBy is the minimum amount a buffer grows by when it must be
	// resized, matching REALLOC_SC_PAYLOAD (100KB).
	GrowBy = 100 * 1024

	// wrapThreshold is half of the 32-bit sequence space. A placement
	// offset derived from a sequence number further than this from the
	// flow's initial sequence number is treated as a wrapped-around
	// stale segment and dropped, resolving spec.md's Open Question on
	// sequence wrap-around: the offset is computed in 64-bit arithmetic
	// so a legitimate large-but-unwrapped offset is never confused with
	// a negative (pre-initSeq) one.
	wrapThreshold = int64(1) << 31
)

// Buffer is the growable byte buffer one flow's server-to-client stream is
// reassembled into.
type Buffer struct {
	data    []byte
	size    int
	initSeq uint32
	started bool
}

// New returns an empty, uninitialized Buffer.
func New() *Buffer {
	return &Buffer{}
}

// Start initializes the buffer at initSeq with InitCapacity bytes, as the
// first branch of update_flow does when tflow->sc_payload == NULL. Calling
// Start on an already-started Buffer is a no-op.
func (b *Buffer) Start(initSeq uint32) {
	if b.started {
		return
	}

	b.data = make([]byte, InitCapacity)
	b.size = 0
	b.initSeq = initSeq
	b.started = true
}

// Started reports whether Start has been called.
func (b *Buffer) Started() bool {
	return b.started
}

// Size returns how many bytes of the buffer are filled (the high-water
// mark, not the capacity).
func (b *Buffer) Size() int {
	return b.size
}

// Bytes returns the filled prefix of the buffer. The returned slice
// aliases internal storage and must not be retained across a Reset/Take.
func (b *Buffer) Bytes() []byte {
	return b.data[:b.size]
}

// Offset computes the placement offset for seq relative to the buffer's
// initial sequence number, in 64-bit arithmetic so wrap-around can be
// told apart from an out-of-order negative offset. ok is false if the
// segment must be dropped (offset negative, or so large it must be a
// wrapped sequence space rather than real data).
func (b *Buffer) Offset(seq uint32) (offset int64, ok bool) {
	p := int64(seq) - int64(b.initSeq)
	if p < 0 {
		return 0, false
	}

	if p > wrapThreshold {
		return 0, false
	}

	return p, true
}

// PlaceGrow copies payload into the buffer at seq's offset, growing the
// buffer if needed. Reproduces the FLOW_HTTP_RESP_MZ_FOUND branch of
// update_flow: grow by at least GrowBy, bailing out only if the segment is
// so far past the current capacity that growing once would not be enough
// — almost certainly extreme reordering or loss. Returns whether the
// payload was written.
func (b *Buffer) PlaceGrow(seq uint32, payload []byte) bool {
	if !b.started {
		return false
	}

	if len(payload) == 0 {
		return false
	}

	p, ok := b.Offset(seq)
	if !ok {
		return false
	}

	end := p + int64(len(payload))

	if end >= int64(len(b.data)) {
		if !b.grow(end, len(payload)) {
			return false
		}
	}

	copy(b.data[p:end], payload)

	if int(end) > b.size {
		b.size = int(end)
	}

	return true
}

// grow resizes the buffer to accommodate an offset of want bytes, following
// the original's growth rule exactly: new_cap = capacity + max(REALLOC_SC_
// PAYLOAD, payloadLen), and the placement is refused (letting the caller
// drop the segment) if want still doesn't fit inside that single growth
// step — almost certainly extreme reordering or loss, not real forward
// progress. The bail-out is sized against payloadLen, not the offset gap:
// sizing it against the gap would make growth always keep pace with want
// and the guard would never fire.
func (b *Buffer) grow(want int64, payloadLen int) bool {
	growth := int64(GrowBy)
	if int64(payloadLen) > growth {
		growth = int64(payloadLen)
	}

	newCap := int64(len(b.data)) + growth
	if want > newCap {
		return false
	}

	newData := make([]byte, newCap)
	copy(newData, b.data[:b.size])
	b.data = newData

	return true
}

// PlaceNoGrow is the no-resize placement used while the flow is still
// waiting on HTTP response headers or the MZ signature: the offset must
// already fit within the current capacity, exactly like the
// FLOW_HTTP_RESP_HEADER_WAIT/FLOW_HTTP_RESP_MZ_WAIT branch of update_flow
// which never reallocates.
func (b *Buffer) PlaceNoGrow(seq uint32, payload []byte) bool {
	if !b.started || len(payload) == 0 {
		return false
	}

	p, ok := b.Offset(seq)
	if !ok {
		return false
	}

	end := p + int64(len(payload))
	if end >= int64(len(b.data)) {
		return false
	}

	copy(b.data[p:end], payload)

	if int(end) > b.size {
		b.size = int(end)
	}

	return true
}
