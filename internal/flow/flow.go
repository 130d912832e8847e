// Package flow holds the per-connection state machine, reassembly buffer
// and LRU-bounded table pedump uses to track TCP flows from SYN through
// PE dump. The state machine and per-packet dispatch are translated from
// packet_received/init_flow/update_flow in
// original_source/pe_dump/pe_dump.c; the mutex-guarded record shape and
// logging style are grounded on tcpConnection in
// DynamEq6388-netcap/decoder/stream/tcpConnection.go.
package flow

import (
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/tph5595/amico/internal/flowkey"
	"github.com/tph5595/amico/internal/httpscan"
	"github.com/tph5595/amico/internal/reassemble"
	"github.com/tph5595/amico/internal/seqlist"
)

// State is one node of the per-flow state machine, matching the FLOW_*
// constants actually exercised by packet_received (the original also
// defines FLOW_NOT_HTTP, FLOW_HTTP_RESP_HEADER_COMPLETE,
// FLOW_HTTP_RESP_MZ_NOT_FOUND and FLOW_PE_DUMP, but none of those are ever
// assigned in the reference implementation, so they are not reproduced
// here).
type State int

const (
	StateInit State = iota
	StateSynAck
	StateHTTP
	StateHeaderWait
	StateMZWait
	StateMZFound
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateSynAck:
		return "SYNACK"
	case StateHTTP:
		return "HTTP"
	case StateHeaderWait:
		return "HDR_WAIT"
	case StateMZWait:
		return "MZ_WAIT"
	case StateMZFound:
		return "MZ_FOUND"
	default:
		return "UNKNOWN"
	}
}

// maxSCInitPayloads bounds how many server-to-client segments pedump
// waits through before giving up on a response header or MZ signature
// that never arrives, matching MAX_SC_INIT_PAYLOADS.
const maxSCInitPayloads = 4

// maxContentLength is the exclusive upper bound on a response's declared
// Content-Length for it to stay a PE candidate. It is fixed, independent
// of the configured maxPEBytes cap applied to the growing buffer.
const maxContentLength = 2 * 1024 * 1024

// Endpoint identifies one side of a flow's 4-tuple.
type Endpoint struct {
	IP   net.IP
	Port uint16
}

func (e Endpoint) key() flowkey.Endpoint {
	return flowkey.Endpoint{IP: e.IP, Port: e.Port}
}

// Flow is one tracked TCP connection. All mutation happens under Mu,
// held by the single packet-processing goroutine (spec.md §5); the mutex
// exists chiefly so the eviction callback and the packet loop can never
// observe a half-updated record.
type Flow struct {
	Mu sync.Mutex

	CSKey     string // client->server direction key, the LRU table key
	SCKey     string // server->client direction key
	AnonCSKey string // display key with the client IP masked

	Client Endpoint
	Server Endpoint

	State     State
	URL       string
	Host      string
	Referer   string
	ReqCount  int
	CorruptPE bool

	buf     *reassemble.Buffer
	seqList *seqlist.List

	numSCPayloads int
}

// New builds a freshly observed flow in StateInit, matching init_flow.
func New(client, server Endpoint, anonClientIP net.IP) *Flow {
	cs := flowkey.Make(client.key(), server.key())
	sc := flowkey.Reverse(client.key(), server.key())

	anonCS := cs
	if anonClientIP != nil {
		anonCS = flowkey.Anonymized(flowkey.Endpoint{IP: anonClientIP, Port: client.Port}, server.key())
	}

	return &Flow{
		CSKey:     cs,
		SCKey:     sc,
		AnonCSKey: anonCS,
		Client:    client,
		Server:    server,
		State:     StateInit,
	}
}

// BufferStarted reports whether the server-to-client payload buffer has
// been initialized.
func (f *Flow) BufferStarted() bool {
	return f.buf != nil && f.buf.Started()
}

// PayloadSize returns the reassembled buffer's high-water mark, or 0 if
// the buffer has not been started.
func (f *Flow) PayloadSize() int {
	if f.buf == nil {
		return 0
	}

	return f.buf.Size()
}

// Payload returns the reassembled buffer's filled prefix.
func (f *Flow) Payload() []byte {
	if f.buf == nil {
		return nil
	}

	return f.buf.Bytes()
}

// SeqList returns the sequence-interval list backing gap detection,
// initializing it if needed.
func (f *Flow) SeqList() *seqlist.List {
	if f.seqList == nil {
		f.seqList = seqlist.New()
	}

	return f.seqList
}

// TakeBuffer moves the buffer and sequence list out of the flow (ownership
// transfer to a detached dump job), zeroing the flow's own references in
// the same step. Matches dump_pe's tflow->sc_payload = NULL / sc_seq_list
// = NULL, performed to avoid the dumper and the flow table racing over
// the same memory.
func (f *Flow) TakeBuffer() ([]byte, *seqlist.List) {
	if f.buf == nil {
		return nil, f.takeSeqList()
	}

	b := f.buf.Bytes()
	// copy out: the flow's own buffer is about to be discarded, and the
	// dump job must own stable storage independent of future Start calls.
	payload := make([]byte, len(b))
	copy(payload, b)

	f.buf = nil

	return payload, f.takeSeqList()
}

func (f *Flow) takeSeqList() *seqlist.List {
	l := f.seqList
	f.seqList = nil

	return l
}

// ResetPayload discards the accumulated buffer and sequence list without
// dumping, matching reset_flow_payload.
func (f *Flow) ResetPayload() {
	f.buf = nil
	f.seqList = nil
	f.numSCPayloads = 0
}

// updateSC applies one server-to-client segment to the reassembly buffer,
// matching update_flow. growAllowed selects between the bounded
// (header/MZ-wait) and growing (MZ-found) placement policy.
func (f *Flow) updateSC(seq uint32, payload []byte, growAllowed bool) {
	if f.buf == nil {
		f.buf = reassemble.New()
		f.buf.Start(seq)
		f.seqList = seqlist.New()
	}

	if len(payload) == 0 {
		return
	}

	f.numSCPayloads++ // matches sc_num_payloads++, duplicates included on purpose

	var placed bool
	if growAllowed {
		placed = f.buf.PlaceGrow(seq, payload)
	} else {
		placed = f.buf.PlaceNoGrow(seq, payload)
	}

	if placed {
		f.seqList.Insert(seq, uint32(len(payload)))
	}
}

// AcceptSYNACK transitions on a SYN-ACK seen in the server-to-client
// direction, matching the `(tcp->th_flags & TH_SYN) && (tcp->th_flags &
// TH_ACK)` branch of packet_received.
func (f *Flow) AcceptSYNACK() {
	f.State = StateSynAck
}

// HTTPRequestResult reports what an observed client-to-server segment
// implies about the flow's HTTP state.
type HTTPRequestResult struct {
	// Abandon is true if the flow should be removed from the table
	// (first CS packet was not a recognizable HTTP request).
	Abandon bool
	// DumpPending is true if a previously found PE buffer must be
	// dumped now because a new HTTP request arrived on the same flow.
	DumpPending bool
}

// AcceptClientToServer applies one client-to-server segment, matching the
// CS_DIR branch of packet_received (excluding the dump/remove side
// effects, which the caller performs using DumpPending/Abandon).
func (f *Flow) AcceptClientToServer(seq, ack uint32, payload []byte) HTTPRequestResult {
	isReq := httpscan.IsHTTPRequest(payload)

	if f.State == StateSynAck {
		if !isReq {
			return HTTPRequestResult{Abandon: true}
		}

		f.State = StateHTTP
	}

	if f.State == StateHTTP && !isReq {
		return HTTPRequestResult{}
	}

	result := HTTPRequestResult{}

	if f.State == StateMZFound && isReq {
		f.SeqList().Insert(ack, 0)
		result.DumpPending = true
		f.State = StateHTTP
	}

	if isReq && f.State != StateHeaderWait {
		f.State = StateHeaderWait
		f.ReqCount++
		f.URL = httpscan.URL(payload)
		f.Host = httpscan.Host(payload)
		f.Referer = httpscan.Referer(payload)
	}

	return result
}

// ServerResponseResult reports what an observed server-to-client segment
// implies about the flow's HTTP/PE recognition state.
type ServerResponseResult struct {
	// Abandon is true if the flow gave up waiting for a header or MZ
	// signature and has returned to StateHTTP (reset_flow_payload already
	// applied via ResetPayload).
	Abandon bool
	// FoundPE is true exactly once, the packet on which the MZ
	// signature was recognized.
	FoundPE bool
	// OversizedPE is true if an in-progress PE buffer exceeded
	// maxPEBytes and must be abandoned without dumping.
	OversizedPE bool
}

// AcceptServerToClient applies one server-to-client segment, matching the
// SC_DIR branch of packet_received. maxPEBytes is the configured
// -K/max_pe_file_size cap.
func (f *Flow) AcceptServerToClient(seq uint32, payload []byte, maxPEBytes int) ServerResponseResult {
	if f.State == StateHTTP {
		return ServerResponseResult{}
	}

	if f.State == StateMZFound && f.PayloadSize() > maxPEBytes {
		f.State = StateHTTP
		f.ResetPayload()

		return ServerResponseResult{OversizedPE: true}
	}

	f.updateSC(seq, payload, f.State == StateMZFound)

	result := ServerResponseResult{}

	if f.State == StateHeaderWait {
		if httpscan.IsCompleteRespHeader(f.Payload()) {
			f.State = StateMZWait
		} else if f.numSCPayloads > maxSCInitPayloads {
			f.State = StateHTTP
			f.ResetPayload()

			return ServerResponseResult{Abandon: true}
		}
	}

	if f.State == StateMZWait {
		contentLen := httpscan.ContentLength(f.Payload())

		status := httpscan.PEWaitForBody
		if contentLen > 0 && contentLen < maxContentLength {
			status = httpscan.ContainsPE(f.Payload())
		}

		switch status {
		case httpscan.PEFound:
			f.State = StateMZFound
			result.FoundPE = true
		case httpscan.PENotFound:
			f.State = StateHTTP
			f.ResetPayload()
		case httpscan.PEWaitForBody:
			if f.numSCPayloads > maxSCInitPayloads {
				f.State = StateHTTP
				f.ResetPayload()
				result.Abandon = true
			}
		}
	}

	return result
}

// AcceptClose applies a FIN/RST seen on either side of the flow, matching
// the TH_RST/TH_FIN branch of packet_received. direction is SC or CS.
// Returns true if the flow's PE buffer should be dumped as a premature
// close.
func (f *Flow) AcceptClose(direction Direction, seq, ack uint32, payload []byte) (dump bool) {
	if f.State != StateMZFound {
		return false
	}

	if direction == DirectionServerToClient {
		f.updateSC(seq, payload, true)
		f.SeqList().Insert(seq, uint32(len(payload)))
	} else {
		f.SeqList().Insert(ack, 0)
	}

	f.State = StateHTTP

	return true
}

// Direction identifies which side of a 4-tuple a segment travelled.
type Direction int

const (
	DirectionClientToServer Direction = iota
	DirectionServerToClient
)

// LogFields returns the zap fields used consistently across flow log
// lines, keeping the verbose/debug call sites in dispatch.go terse.
func (f *Flow) LogFields() []zap.Field {
	return []zap.Field{
		zap.String("flow", f.AnonCSKey),
		zap.String("state", f.State.String()),
	}
}
