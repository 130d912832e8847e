// Package dump writes a reconstructed PE payload to disk asynchronously.
// Job is the detached snapshot handed from internal/flow to a dump worker
// once ownership of a flow's buffer and sequence list has been
// transferred out from under the table's lock, matching the
// mz_payload_thread data handed to dump_pe_thread in
// original_source/pe_dump/pe_dump.c.
package dump

import "github.com/tph5595/amico/internal/seqlist"

// Job is everything a dump worker needs, decoupled from the flow it came
// from so the flow table's lock is never held while writing to disk.
type Job struct {
	// FileName is the PE file's base name, without directory or
	// nic-segment prefix: "<anon_cs_key>-<http_request_count>".
	FileName string
	URL      string
	Host     string
	Referer  string

	Payload   []byte
	CorruptPE bool

	// SeqList backs the gap check performed at write time
	// (is_missing_flow_data in the original). May be nil only in tests;
	// a real job always carries the flow's sequence list.
	SeqList *seqlist.List
}
