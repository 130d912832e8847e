// Dispatcher is the per-packet entry point, translated from
// packet_received in original_source/pe_dump/pe_dump.c: it classifies a
// decoded segment as a new flow, a client-to-server segment, a
// server-to-client segment, or a close, and drives the Flow state machine
// accordingly. It owns the only lock-protected mutation of the flow
// table, matching spec.md §5's single packet-processing-goroutine model.
package flow

import (
	"net"
	"strconv"

	"go.uber.org/zap"

	"github.com/tph5595/amico/internal/anon"
	"github.com/tph5595/amico/internal/decode"
	"github.com/tph5595/amico/internal/dump"
	"github.com/tph5595/amico/internal/flowkey"
	"github.com/tph5595/amico/internal/stats"
)

// Dispatcher ties the flow table, anonymization key and dump submission
// together behind one Handle entry point.
type Dispatcher struct {
	table      *Table
	anonKey    anon.Key
	anonymize  bool
	maxPEBytes int
	log        *zap.Logger
	stats      *stats.Counters
	dumper     *dump.Dumper
}

// NewDispatcher builds a Dispatcher. maxPEBytes and anonymize come from
// internal/config.Config; dumper may be nil in tests that only want to
// exercise the state machine.
func NewDispatcher(table *Table, anonKey anon.Key, anonymize bool, maxPEBytes int, log *zap.Logger, counters *stats.Counters, dumper *dump.Dumper) *Dispatcher {
	return &Dispatcher{
		table:      table,
		anonKey:    anonKey,
		anonymize:  anonymize,
		maxPEBytes: maxPEBytes,
		log:        log,
		stats:      counters,
		dumper:     dumper,
	}
}

// Handle processes one decoded TCP segment, matching packet_received's
// dispatch after its header-parsing guard clauses.
func (d *Dispatcher) Handle(seg decode.Segment) {
	// skip ACK-only/empty packets outside of SYN/FIN/RST, matching the
	// payload_size==0 guard in packet_received.
	if len(seg.Payload) == 0 && !(decode.HasFlag(seg.Flags, decode.FlagSYN) ||
		decode.HasFlag(seg.Flags, decode.FlagFIN) ||
		decode.HasFlag(seg.Flags, decode.FlagRST)) {
		return
	}

	pktSrc := Endpoint{IP: seg.SrcIP, Port: seg.SrcPort}
	pktDst := Endpoint{IP: seg.DstIP, Port: seg.DstPort}

	// a bare SYN (no ACK) always means a brand new flow, matching
	// `if(tcp->th_flags == TH_SYN)`. The SYN's sender is the client by
	// definition.
	if seg.Flags == decode.FlagSYN {
		d.acceptNewFlow(pktSrc, pktDst)
		return
	}

	// try the server-to-client interpretation first (pktDst=client,
	// pktSrc=server), matching packet_received's rev_key lookup order —
	// SC packets vastly outnumber CS packets in a typical HTTP exchange.
	if f, ok := d.table.Lookup(f2Key(pktDst, pktSrc)); ok {
		d.handleDirectional(f, seg, DirectionServerToClient)
		return
	}

	// fall back to the client-to-server interpretation (pktSrc=client,
	// pktDst=server).
	f, ok := d.table.Lookup(f2Key(pktSrc, pktDst))
	if !ok {
		return
	}

	d.handleDirectional(f, seg, DirectionClientToServer)
}

func (d *Dispatcher) acceptNewFlow(client, server Endpoint) {
	var anonIP net.IP
	if d.anonymize {
		var raw [4]byte
		copy(raw[:], client.IP.To4())
		masked := d.anonKey.Mask(raw)
		anonIP = net.IPv4(masked[0], masked[1], masked[2], masked[3])
	}

	f := New(client, server, anonIP)

	if existing, ok := d.table.Lookup(f.CSKey); ok {
		d.dumpIfMZFound(existing, true)
		d.table.Remove(existing.CSKey)
	}

	d.table.Store(f)

	if d.stats != nil {
		d.stats.IncHalfOpen()
	}

	if d.log != nil {
		d.log.Debug("new half-open flow", f.LogFields()...)
	}
}

func (d *Dispatcher) handleDirectional(f *Flow, seg decode.Segment, dir Direction) {
	f.Mu.Lock()

	// Table.Remove runs the eviction hook, which takes f.Mu itself, so the
	// removal happens only after f.Mu has been released.
	remove := false
	defer func() {
		f.Mu.Unlock()

		if remove {
			d.table.Remove(f.CSKey)
		}
	}()

	if decode.HasFlag(seg.Flags, decode.FlagRST) || decode.HasFlag(seg.Flags, decode.FlagFIN) {
		if f.AcceptClose(dir, seg.Seq, seg.Ack, seg.Payload) {
			d.submitDump(f, false)
		}

		remove = true

		return
	}

	switch dir {
	case DirectionClientToServer:
		result := f.AcceptClientToServer(seg.Seq, seg.Ack, seg.Payload)
		if result.DumpPending {
			d.submitDump(f, false)
		}

		if result.Abandon {
			remove = true
		}

	case DirectionServerToClient:
		if decode.HasFlag(seg.Flags, decode.FlagSYN) && decode.HasFlag(seg.Flags, decode.FlagACK) {
			f.AcceptSYNACK()

			if d.stats != nil {
				d.stats.IncFullyOpen()
			}

			return
		}

		result := f.AcceptServerToClient(seg.Seq, seg.Payload, d.maxPEBytes)
		if result.FoundPE && d.stats != nil {
			d.stats.IncPE()
		}
	}
}

// dumpIfMZFound mirrors tflow_destroy/4-tuple-collision handling: if the
// flow currently holds a recognized PE buffer, it is dumped (marked
// corrupt, since the flow is being torn down unexpectedly) before being
// discarded.
func (d *Dispatcher) dumpIfMZFound(f *Flow, corrupt bool) {
	f.Mu.Lock()
	defer f.Mu.Unlock()

	if f.State != StateMZFound {
		return
	}

	f.CorruptPE = f.CorruptPE || corrupt
	d.submitDumpLocked(f)
}

// EvictFlow is an EvictHook driving tflow_destroy semantics for every flow
// that leaves the table, whether dropped for capacity reasons, removed
// explicitly or purged at shutdown: any recognized PE buffer still held is
// dumped (marked corrupt) before the flow is discarded. Every call is
// counted with IncEviction, so that counter includes explicit removals.
// Built to be passed as flow.NewTable's onEvict once the Dispatcher exists.
func (d *Dispatcher) EvictFlow(f *Flow) {
	d.dumpIfMZFound(f, true)

	if d.stats != nil {
		d.stats.IncEviction()
	}
}

func (d *Dispatcher) submitDump(f *Flow, corrupt bool) {
	f.CorruptPE = f.CorruptPE || corrupt
	d.submitDumpLocked(f)
}

// submitDumpLocked must be called with f.Mu held. It transfers ownership
// of the buffer and sequence list out of the flow and hands them to the
// dumper, matching dump_pe's ownership-transfer-then-async-write pattern.
func (d *Dispatcher) submitDumpLocked(f *Flow) {
	payload, seqList := f.TakeBuffer()
	if len(payload) == 0 {
		return
	}

	if d.dumper == nil {
		return
	}

	d.dumper.Submit(dump.Job{
		FileName:  fileBase(f),
		URL:       f.URL,
		Host:      f.Host,
		Referer:   f.Referer,
		Payload:   payload,
		CorruptPE: f.CorruptPE,
		SeqList:   seqList,
	})
}

func fileBase(f *Flow) string {
	return f.AnonCSKey + "-" + strconv.Itoa(f.ReqCount)
}

func f2Key(a, b Endpoint) string {
	return flowkey.Make(a.key(), b.key())
}
